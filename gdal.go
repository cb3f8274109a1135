package demlib

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

const sridRefCacheSize = 16

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

var registerOnce sync.Once

// DEM镶嵌工具箱，持有整次运行的只读配置；栅格走godal，矢量走OGR绑定
type DemToolbox struct {
	cfg    RunConfig
	refMap *lru.Cache[int, gdal.SpatialReference]
	rLock  sync.Mutex
	logTag string
}

// 初始化工具箱并校验配置
func NewDemToolbox(cfg RunConfig) (g *DemToolbox, err error) {
	registerOnce.Do(godal.RegisterAll)
	cfg.setDefaults()
	if err = cfg.validate(); err != nil {
		log.Error("DemToolbox: bad run config", zap.Error(err))
		return
	}
	refMap, err := lru.NewWithEvict(sridRefCacheSize, func(_ int, ref gdal.SpatialReference) {
		ref.Destroy()
	})
	if err != nil {
		return
	}
	g = &DemToolbox{
		cfg:    cfg,
		refMap: refMap,
		logTag: "DemToolbox:",
	}
	return
}

func (g *DemToolbox) Config() RunConfig {
	return g.cfg
}

// 获取srid对应的坐标系（可复用，淘汰时统一回收）
func (g *DemToolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap.Get(srid)
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil {
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// 数据轴次序固定为(经度,纬度)传统GIS次序，避免坐标系转换时次序倒置
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap.Add(srid, ref)
	return
}

func (g *DemToolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		err = ErrVoidSrid
		return
	}
	srid, err = strconv.Atoi(rawId)
	return
}

func (g *DemToolbox) parseWKB(wkb GdalGeo, ref gdal.SpatialReference) (ret gdal.Geometry, err error) {
	ret, err = gdal.CreateFromWKB(wkb, ref, len(wkb))
	if err != nil {
		log.Error(g.logTag+"parse wkb failed", zap.Error(err))
	}
	return
}

func epsgOf(srid int) string {
	return fmt.Sprintf("epsg:%d", srid)
}

// 栅格三要素：投影、仿射变换、尺寸。用于网格对齐判断
type gridShape struct {
	proj   string
	gt     [6]float64
	sizeX  int
	sizeY  int
	nodata float64
	hasNd  bool
}

func shapeOf(ds *godal.Dataset) (s gridShape, err error) {
	s.proj = ds.Projection()
	if s.gt, err = ds.GeoTransform(); err != nil {
		log.Error("read geotransform failed", zap.Error(err))
		err = ErrInvalidTif
		return
	}
	st := ds.Structure()
	s.sizeX = st.SizeX
	s.sizeY = st.SizeY
	s.nodata, s.hasNd = ds.Bands()[0].NoData()
	return
}

func (s gridShape) alignedWith(o gridShape) bool {
	if s.sizeX != o.sizeX || s.sizeY != o.sizeY {
		return false
	}
	for i := range s.gt {
		if s.gt[i] != o.gt[i] {
			return false
		}
	}
	return true
}

// 分块行循环，每块最多cfg.WindowHeight行；fn收到的块为[yOff, yOff+rows)
func (g *DemToolbox) eachStripe(width, height, dtSize int, fn func(yOff, rows int) error) (err error) {
	rows := g.cfg.WindowHeight
	if rows > height {
		rows = height
	}
	if width*rows*dtSize > MAX_WINDOW_BYTES {
		log.Error(g.logTag+"stripe buffer over limit", zap.Int("width", width), zap.Int("rows", rows))
		err = ErrResourceExhausted
		return
	}
	for yOff := 0; yOff < height; yOff += rows {
		n := rows
		if yOff+n > height {
			n = height - yOff
		}
		if err = fn(yOff, n); err != nil {
			return
		}
	}
	return
}

// 统计首波段有效像元数，用于空产物检查
func (g *DemToolbox) validCells(ds *godal.Dataset) (cnt int64, err error) {
	s, err := shapeOf(ds)
	if err != nil {
		return
	}
	band := ds.Bands()[0]
	buf := make([]float32, 0)
	err = g.eachStripe(s.sizeX, s.sizeY, 4, func(yOff, rows int) error {
		if cap(buf) < s.sizeX*rows {
			buf = make([]float32, s.sizeX*rows)
		}
		buf = buf[:s.sizeX*rows]
		if e := band.IO(godal.IORead, 0, yOff, buf, s.sizeX, rows); e != nil {
			log.Error(g.logTag+"read stripe failed", zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifReadFailed
		}
		nd := float32(s.nodata)
		for _, v := range buf {
			if !s.hasNd || v != nd {
				cnt++
			}
		}
		return nil
	})
	return
}

// 临时名写入、成功后改名，避免残留半成品与成品混淆
func tmpNameOf(path string) string {
	return path + FILE_EXT_PART
}

func commit(path string) error {
	return os.Rename(tmpNameOf(path), path)
}

func discard(path string) {
	os.Remove(tmpNameOf(path))
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, FILE_EXT_TIF)
}
