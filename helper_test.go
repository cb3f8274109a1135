package demlib

import (
	"os"
	"path/filepath"
	"testing"

	godal "github.com/airbusgeo/godal"
	"github.com/alecthomas/assert/v2"
	"github.com/lukeroth/gdal"
)

const testSrid = 3857

func newTestToolbox(t *testing.T, cfg RunConfig) *DemToolbox {
	t.Helper()
	dir := t.TempDir()
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(dir, "staging")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(dir, "output")
	}
	if cfg.TargetSrid == 0 {
		cfg.TargetSrid = testSrid
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = 10
	}
	if cfg.Extent == [4]float64{} {
		cfg.Extent = [4]float64{0, 0, 1000, 1000}
	}
	g, err := NewDemToolbox(cfg)
	assert.NoError(t, err)
	assert.NoError(t, os.MkdirAll(g.cfg.StagingDir, os.ModePerm))
	assert.NoError(t, os.MkdirAll(g.cfg.OutputDir, os.ModePerm))
	return g
}

// 生成测试瓦片：originX/originY为左上角，res为像元大小，fill给出各像元值
func writeFloatTile(t *testing.T, path string, width, height int, originX, originY, res float64,
	nodata float64, fill func(col, row int) float32) {
	t.Helper()
	writeGrid(t, path, godal.Float32, width, height, originX, originY, res, &nodata, func(buf interface{}, i, col, row int) {
		buf.([]float32)[i] = fill(col, row)
	})
}

func writeByteTile(t *testing.T, path string, width, height int, originX, originY, res float64,
	fill func(col, row int) byte) {
	t.Helper()
	writeGrid(t, path, godal.Byte, width, height, originX, originY, res, nil, func(buf interface{}, i, col, row int) {
		buf.([]byte)[i] = fill(col, row)
	})
}

func writeGrid(t *testing.T, path string, dt godal.DataType, width, height int, originX, originY, res float64,
	nodata *float64, set func(buf interface{}, i, col, row int)) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, dt, width, height)
	assert.NoError(t, err)
	sr, err := godal.NewSpatialRefFromEPSG(testSrid)
	assert.NoError(t, err)
	defer sr.Close()
	assert.NoError(t, ds.SetSpatialRef(sr))
	assert.NoError(t, ds.SetGeoTransform([6]float64{originX, res, 0, originY, 0, -res}))
	if nodata != nil {
		assert.NoError(t, ds.SetNoData(*nodata))
	}
	var buf interface{}
	if dt == godal.Byte {
		buf = make([]byte, width*height)
	} else {
		buf = make([]float32, width*height)
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			set(buf, row*width+col, col, row)
		}
	}
	assert.NoError(t, ds.Bands()[0].IO(godal.IOWrite, 0, 0, buf, width, height))
	assert.NoError(t, ds.Close())
}

// 指定坐标系的小瓦片，仅用于CRS不一致场景
func writeProjectedTile(t *testing.T, path string, srid int) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, 10, 10)
	assert.NoError(t, err)
	sr, err := godal.NewSpatialRefFromEPSG(srid)
	assert.NoError(t, err)
	defer sr.Close()
	assert.NoError(t, ds.SetSpatialRef(sr))
	assert.NoError(t, ds.SetGeoTransform([6]float64{0, 0.1, 0, 10, 0, -0.1}))
	buf := make([]float32, 100)
	for i := range buf {
		buf[i] = 1
	}
	assert.NoError(t, ds.Bands()[0].IO(godal.IOWrite, 0, 0, buf, 10, 10))
	assert.NoError(t, ds.Close())
}

func mustOpen(t *testing.T, path string) *godal.Dataset {
	t.Helper()
	ds, err := godal.Open(path, godal.RasterOnly())
	assert.NoError(t, err)
	return ds
}

// 整幅读回首波段，行主序、自上而下
func readGrid(t *testing.T, path string) (width, height int, vals []float32) {
	t.Helper()
	ds, err := godal.Open(path, godal.RasterOnly())
	assert.NoError(t, err)
	defer ds.Close()
	st := ds.Structure()
	width, height = st.SizeX, st.SizeY
	vals = make([]float32, width*height)
	assert.NoError(t, ds.Bands()[0].IO(godal.IORead, 0, 0, vals, width, height))
	return
}

// 生成只含多边形要素的测试shp，可附带字符串字段
func writePolygonShp(t *testing.T, shp string, srid int, wkts []string, fields map[string][]string) {
	t.Helper()
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Create(shp, nil)
	assert.True(t, ok)
	defer ds.Destroy()
	ref := gdal.CreateSpatialReference("")
	assert.NoError(t, ref.FromEPSG(srid))
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	layer := ds.CreateLayer("", ref, gdal.GT_Polygon, []string{"ENCODING=" + SHAPE_ENCODING})
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	for _, name := range names {
		fd := gdal.CreateFieldDefinition(name, gdal.FT_String)
		fd.SetWidth(128)
		assert.NoError(t, layer.CreateField(fd, false))
	}
	def := layer.Definition()
	for i, wkt := range wkts {
		geo, err := gdal.CreateFromWKT(wkt, ref)
		assert.NoError(t, err)
		feature := def.Create()
		assert.NoError(t, feature.SetFID(int64(i)))
		for _, name := range names {
			feature.SetFieldString(def.FieldIndex(name), fields[name][i])
		}
		assert.NoError(t, feature.SetGeometryDirectly(geo))
		assert.NoError(t, layer.Create(feature))
		feature.Destroy()
	}
}
