package demlib

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/wgdzlh/demlib/log"
	"github.com/wgdzlh/demlib/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 读取瓦片索引shp：每个要素对应一个源瓦片，idField为瓦片标识字段，urlField为远端压缩包地址字段。
// idField传空时以url文件名作为瓦片标识。返回条目按标识字典序排列，该次序即镶嵌次序
func (g *DemToolbox) TileIndex(shp, idField, urlField string) (ret []TileIndexEntry, err error) {
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	def := layer.Definition()
	idIdx := -1
	if idField != "" {
		if idIdx = g.fieldIndex(def, idField); idIdx < 0 {
			err = fmt.Errorf("%w: %s", ErrColumnMissing, idField)
			return
		}
	}
	urlIdx := g.fieldIndex(def, urlField)
	if urlIdx < 0 {
		err = fmt.Errorf("%w: %s", ErrColumnMissing, urlField)
		return
	}
	srid, err := g.getSrid(layer.SpatialReference())
	if err != nil {
		return
	}
	var tRef gdal.SpatialReference
	if srid != GEOGRAPHIC_SRID {
		if tRef, err = g.getSridRef(GEOGRAPHIC_SRID); err != nil {
			return
		}
	}
	gbkAttrs := !shpIsUtf8(shp)
	n := 128
	if nf, _ := layer.FeatureCount(false); nf > 0 {
		n = nf
	}
	ret = make([]TileIndexEntry, 0, n)
	var (
		feature *gdal.Feature
		geo     gdal.Geometry
		entry   TileIndexEntry
		e       error
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		entry.URL = g.fieldValue(feature, urlIdx, gbkAttrs)
		if idIdx >= 0 {
			entry.Id = g.fieldValue(feature, idIdx, gbkAttrs)
		} else {
			entry.Id = utils.GetFilenameWithoutExt(entry.URL)
		}
		if entry.Id == "" || entry.URL == "" {
			log.Warn(g.logTag+"skip index feature with void field", zap.Int64("fid", feature.FID()))
			continue
		}
		geo = feature.Geometry()
		if srid != GEOGRAPHIC_SRID {
			if e = geo.TransformTo(tRef); e != nil {
				log.Error(g.logTag+"footprint transform failed", zap.String("tile", entry.Id), zap.Error(e))
				continue
			}
		}
		if entry.Footprint, e = geo.ToWKB(); e != nil {
			log.Error(g.logTag+"footprint wkb convert failed", zap.String("tile", entry.Id), zap.Error(e))
			continue
		}
		ret = append(ret, entry)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Id < ret[j].Id })
	log.Info(g.logTag+"tile index loaded", zap.String("shp", shp), zap.Int("tiles", len(ret)))
	return
}

// 字段定位，兼容GBK编码的字段名
func (g *DemToolbox) fieldIndex(def gdal.FeatureDefinition, name string) (idx int) {
	if idx = def.FieldIndex(name); idx >= 0 {
		return
	}
	if gbk, e := utils.Utf8StrToGbk(name); e == nil {
		idx = def.FieldIndex(gbk)
	}
	return
}

func (g *DemToolbox) fieldValue(feature *gdal.Feature, idx int, gbk bool) (v string) {
	v = feature.FieldAsString(idx)
	if gbk {
		if u, e := utils.GbkStrToUtf8(v); e == nil {
			v = u
		}
	}
	return
}

// cpg缺失或非UTF-8的shp，属性值按GBK处理
func shpIsUtf8(shp string) bool {
	enc, err := os.ReadFile(strings.TrimSuffix(shp, FILE_EXT_SHP) + FILE_EXT_CPG)
	if err != nil || len(enc) == 0 {
		return false
	}
	encStr := strings.ToUpper(strings.TrimSpace(string(enc)))
	return encStr == SHAPE_ENCODING || encStr == UTF8_ENC
}
