package demlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// 两张10x10瓦片，左片盖x[0,600)，右片盖x[400,1000)，重叠x[400,600)
func writeMergePair(t *testing.T, g *DemToolbox, leftVal, rightVal float32, leftHole bool) (left, right string) {
	t.Helper()
	nodata := g.cfg.Nodata
	left = filepath.Join(g.cfg.StagingDir, "a_tile.tif")
	right = filepath.Join(g.cfg.StagingDir, "b_tile.tif")
	writeFloatTile(t, left, 60, 100, 0, 1000, 10, nodata, func(col, row int) float32 {
		if leftHole && col >= 45 && col < 50 && row >= 10 && row < 20 {
			return float32(nodata)
		}
		return leftVal
	})
	writeFloatTile(t, right, 60, 100, 400, 1000, 10, nodata, func(col, row int) float32 {
		return rightVal
	})
	return
}

func TestMosaicFirstValidWins(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	left, right := writeMergePair(t, g, 10, 20, true)
	out, err := g.MosaicTiles([]string{left, right})
	assert.NoError(t, err)
	w, h, vals := readGrid(t, out)
	assert.Equal(t, 100, w)
	assert.Equal(t, 100, h)
	nodata := float32(g.cfg.Nodata)
	for row := 0; row < 100; row++ {
		for col := 0; col < 100; col++ {
			got := vals[row*100+col]
			inHole := col >= 45 && col < 50 && row >= 10 && row < 20
			switch {
			case col < 40: // 仅左片
				if inHole {
					assert.Equal(t, nodata, got)
				} else {
					assert.Equal(t, float32(10), got)
				}
			case col < 60: // 重叠区，左片（字典序靠前）有效值优先，洞处透出右片
				if inHole {
					assert.Equal(t, float32(20), got)
				} else {
					assert.Equal(t, float32(10), got)
				}
			default: // 仅右片
				assert.Equal(t, float32(20), got)
			}
		}
	}
}

func TestMosaicLastWinsPolicy(t *testing.T) {
	g := newTestToolbox(t, RunConfig{MergePolicy: MergeLastWins})
	left, right := writeMergePair(t, g, 10, 20, false)
	out, err := g.MosaicTiles([]string{left, right})
	assert.NoError(t, err)
	_, _, vals := readGrid(t, out)
	// 重叠区内右片（靠后）覆盖左片
	assert.Equal(t, float32(20), vals[50*100+50])
	assert.Equal(t, float32(10), vals[50*100+20])
}

func TestMosaicUncoveredIsNodata(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	nodata := g.cfg.Nodata
	only := filepath.Join(g.cfg.StagingDir, "single.tif")
	// 只盖左上角200x200
	writeFloatTile(t, only, 20, 20, 0, 1000, 10, nodata, func(col, row int) float32 { return 5 })
	out, err := g.MosaicTiles([]string{only})
	assert.NoError(t, err)
	_, _, vals := readGrid(t, out)
	assert.Equal(t, float32(5), vals[0])
	assert.Equal(t, float32(5), vals[19*100+19])
	assert.Equal(t, float32(nodata), vals[19*100+20])
	assert.Equal(t, float32(nodata), vals[99*100+99])
}

func TestMosaicDeterminism(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	left, right := writeMergePair(t, g, 10, 20, true)
	out, err := g.MosaicTiles([]string{left, right})
	assert.NoError(t, err)
	first, err := os.ReadFile(out)
	assert.NoError(t, err)
	out2, err := g.MosaicTiles([]string{left, right})
	assert.NoError(t, err)
	second, err := os.ReadFile(out2)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMosaicCrsMismatch(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	left, _ := writeMergePair(t, g, 10, 20, false)
	alien := filepath.Join(g.cfg.StagingDir, "alien.tif")
	writeProjectedTile(t, alien, 4326)
	_, err := g.MosaicTiles([]string{left, alien})
	assert.IsError(t, err, ErrCrsMismatch)
}

func TestMosaicAllNodataRefused(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	nodata := g.cfg.Nodata
	blank := filepath.Join(g.cfg.StagingDir, "blank.tif")
	writeFloatTile(t, blank, 20, 20, 0, 1000, 10, nodata, func(col, row int) float32 {
		return float32(nodata)
	})
	_, err := g.MosaicTiles([]string{blank})
	assert.IsError(t, err, ErrEmptyMosaic)
	_, statErr := os.Stat(filepath.Join(g.cfg.OutputDir, MOSAIC_NAME+FILE_EXT_TIF))
	assert.Error(t, statErr)
}

func TestMosaicNoTiles(t *testing.T) {
	g := newTestToolbox(t, RunConfig{})
	_, err := g.MosaicTiles(nil)
	assert.IsError(t, err, ErrNoTiles)
}
