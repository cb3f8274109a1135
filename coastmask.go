package demlib

import (
	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 按权威海岸线矢量修正镶嵌图：落在海面多边形内（像元中心判定）的像元置为nodata，
// 其余像元不受影响。先在副本上烧录，成功后替换原图，重跑安全
func (g *DemToolbox) ApplySeaMask(mosaic, coastShp string) (err error) {
	seaWkb, err := g.seaPolygons(coastShp)
	if err != nil {
		return
	}
	sds, err := godal.Open(mosaic, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open mosaic failed", zap.String("tif", mosaic), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	// 工作副本，避免半途失败污染上一阶段成果
	wds, err := sds.Translate(tmpNameOf(mosaic), tiffOpts)
	sds.Close()
	if err != nil {
		log.Error(g.logTag+"copy mosaic failed", zap.Error(err))
		discard(mosaic)
		return
	}
	defer func() {
		wds.Close()
		if err != nil {
			discard(mosaic)
		} else {
			err = commit(mosaic)
		}
	}()
	sr, err := godal.NewSpatialRefFromEPSG(g.cfg.TargetSrid)
	if err != nil {
		return
	}
	defer sr.Close()
	sea, err := godal.NewGeometryFromWKB(seaWkb, sr)
	if err != nil {
		log.Error(g.logTag+"load sea geometry failed", zap.Error(err))
		return
	}
	defer sea.Close()
	if err = wds.RasterizeGeometry(sea, godal.Values(g.cfg.Nodata)); err != nil {
		log.Error(g.logTag+"burn sea mask failed", zap.Error(err))
		return
	}
	log.Info(g.logTag+"sea mask applied", zap.String("mosaic", mosaic), zap.String("coast", coastShp))
	return
}

// 读取海岸线shp并合并全部海面多边形，转换到目标坐标系后输出WKB
func (g *DemToolbox) seaPolygons(shp string) (ret GdalGeo, err error) {
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	srid, err := g.getSrid(layer.SpatialReference())
	if err != nil {
		return
	}
	var (
		feature *gdal.Feature
		sea     = gdal.Create(gdal.GT_Polygon)
		gc      []destroyable
	)
	defer func() {
		gc = append(gc, sea)
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		gc = append(gc, sea)
		sea = sea.Union(feature.Geometry())
	}
	if sea.IsEmpty() {
		log.Error(g.logTag+"coastline without sea polygon", zap.String("shp", shp))
		err = ErrEmptyCoastline
		return
	}
	if srid != g.cfg.TargetSrid {
		var tRef gdal.SpatialReference
		if tRef, err = g.getSridRef(g.cfg.TargetSrid); err != nil {
			return
		}
		if err = sea.TransformTo(tRef); err != nil {
			log.Error(g.logTag+"sea geometry transform failed", zap.Error(err))
			return
		}
	}
	ret, err = sea.ToWKB()
	return
}
