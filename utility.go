package demlib

import (
	"fmt"

	"github.com/wgdzlh/demlib/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

func PointsToWkt(x1, x2, y1, y2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", x1, x2, y1, y2)
}

func SpanToWkt(span [4]float64) string {
	return PointsToWkt(span[0], span[2], span[1], span[3])
}

func (g *DemToolbox) parseWKT(wkt string, ref gdal.SpatialReference) (ret gdal.Geometry, err error) {
	ret, err = gdal.CreateFromWKT(wkt, ref)
	if err != nil {
		log.Error(g.logTag+"parse wkt failed", zap.Error(err))
		err = ErrInvalidWKT
	}
	return
}

// 过滤掉与输出范围无交集的瓦片，省去无谓的下载与处理
func (g *DemToolbox) filterByExtent(entries []TileIndexEntry) (ret []TileIndexEntry) {
	tRef, err := g.getSridRef(g.cfg.TargetSrid)
	if err != nil {
		return entries
	}
	sRef, err := g.getSridRef(GEOGRAPHIC_SRID)
	if err != nil {
		return entries
	}
	ext, err := g.parseWKT(SpanToWkt(g.cfg.Extent), tRef)
	if err != nil {
		return entries
	}
	defer ext.Destroy()
	ret = make([]TileIndexEntry, 0, len(entries))
	var gc []destroyable
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for _, entry := range entries {
		geo, e := g.parseWKB(entry.Footprint, sRef)
		if e != nil {
			// 范围解析不了的瓦片宁可保留，交给后续阶段处置
			ret = append(ret, entry)
			continue
		}
		gc = append(gc, geo)
		if e = geo.TransformTo(tRef); e != nil {
			ret = append(ret, entry)
			continue
		}
		if geo.Intersects(ext) {
			ret = append(ret, entry)
		} else {
			log.Info(g.logTag+"tile outside output extent, skipped", zap.String("tile", entry.Id))
		}
	}
	return
}
