package demlib

import (
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// 尺寸律：factor为f时输出宽高等于floor(原尺寸×f)
func TestOverviewDimensionLaw(t *testing.T) {
	g := newTestToolbox(t, RunConfig{Extent: [4]float64{0, 0, 10000, 10000}, Resolution: 10})
	nodata := g.cfg.Nodata
	mosaic := filepath.Join(g.cfg.OutputDir, MOSAIC_NAME+FILE_EXT_TIF)
	writeFloatTile(t, mosaic, 1000, 1000, 0, 10000, 10, nodata, func(col, row int) float32 {
		return float32(col % 50)
	})
	for _, tc := range []struct {
		factor float64
		size   int
	}{
		{0.5, 500},
		{0.25, 250},
	} {
		out, err := g.DeriveOverview(mosaic, tc.factor)
		assert.NoError(t, err)
		w, h, _ := readGrid(t, out)
		assert.Equal(t, tc.size, w)
		assert.Equal(t, tc.size, h)
	}
}

func TestOverviewKeepsCrsAndNodata(t *testing.T) {
	g := newTestToolbox(t, RunConfig{Extent: [4]float64{0, 0, 1000, 1000}, Resolution: 10})
	mosaic := filepath.Join(g.cfg.OutputDir, MOSAIC_NAME+FILE_EXT_TIF)
	writeFloatTile(t, mosaic, 100, 100, 0, 1000, 10, g.cfg.Nodata, func(col, row int) float32 { return 9 })
	out, err := g.DeriveOverview(mosaic, 0.5)
	assert.NoError(t, err)

	src := mustOpen(t, mosaic)
	defer src.Close()
	ov := mustOpen(t, out)
	defer ov.Close()
	assert.Equal(t, src.Projection(), ov.Projection())
	nd, ok := ov.Bands()[0].NoData()
	assert.True(t, ok)
	assert.Equal(t, g.cfg.Nodata, nd)
}

// 不允许从降采样结果再派生，防止重采样误差累积
func TestOverviewChainingRejected(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	_, err := g.DeriveOverview(filepath.Join(g.cfg.OutputDir, "mosaic_p50.tif"), 0.5)
	assert.IsError(t, err, ErrDerivedFromDerived)
}

// 名字里含"_p"但不是降采样后缀的成果可以正常派生
func TestOverviewNameWithPlainUnderscorePAccepted(t *testing.T) {
	g := newTestToolbox(t, RunConfig{Extent: [4]float64{0, 0, 1000, 1000}, Resolution: 10})
	mosaic := filepath.Join(g.cfg.OutputDir, "dem_proj.tif")
	writeFloatTile(t, mosaic, 100, 100, 0, 1000, 10, g.cfg.Nodata, func(col, row int) float32 { return 7 })
	out, err := g.DeriveOverview(mosaic, 0.5)
	assert.NoError(t, err)
	assert.Equal(t, "dem_proj_p50.tif", filepath.Base(out))
}

// 比例换算成百分比按四舍五入，0.29不得截成28
func TestOverviewPercentRounding(t *testing.T) {
	g := newTestToolbox(t, RunConfig{Extent: [4]float64{0, 0, 1000, 1000}, Resolution: 10})
	mosaic := filepath.Join(g.cfg.OutputDir, MOSAIC_NAME+FILE_EXT_TIF)
	writeFloatTile(t, mosaic, 100, 100, 0, 1000, 10, g.cfg.Nodata, func(col, row int) float32 { return 3 })
	out, err := g.DeriveOverview(mosaic, 0.29)
	assert.NoError(t, err)
	assert.Equal(t, "mosaic_p29.tif", filepath.Base(out))
}

func TestOverviewNameMatcher(t *testing.T) {
	assert.True(t, isOverviewName("mosaic_p50"))
	assert.True(t, isOverviewName("dem_proj_p25"))
	assert.False(t, isOverviewName("dem_proj"))
	assert.False(t, isOverviewName("mosaic_pXX"))
	assert.False(t, isOverviewName("p50"))
}
