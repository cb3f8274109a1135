package demlib

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 垂直基准修正：先把大地水准面参考栅格重采样到镶嵌图的精确网格，再逐像元求差
// （椭球高 − 水准面差距），任一侧为nodata则结果为nodata。成功后替换原镶嵌图，
// 上层在此之后即可删除椭球高中间产物
func (g *DemToolbox) CorrectDatum(mosaic, geoidTif string) (err error) {
	mds, err := godal.Open(mosaic, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open mosaic failed", zap.String("tif", mosaic), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer mds.Close()
	shape, err := shapeOf(mds)
	if err != nil {
		return
	}
	aligned, err := g.alignGeoid(geoidTif, shape)
	if err != nil {
		return
	}
	defer os.Remove(aligned)
	gds, err := godal.Open(aligned, godal.RasterOnly())
	if err != nil {
		err = ErrInvalidTif
		return
	}
	defer gds.Close()
	gShape, err := shapeOf(gds)
	if err != nil {
		return
	}
	if !shape.alignedWith(gShape) {
		log.Error(g.logTag+"aligned geoid grid still differs from mosaic",
			zap.Int("w", gShape.sizeX), zap.Int("h", gShape.sizeY))
		err = ErrGridAlignment
		return
	}
	dst, err := godal.Create(godal.GTiff, tmpNameOf(mosaic), 1, godal.Float32, shape.sizeX, shape.sizeY,
		godal.CreationOption(tiffCreationOpts...))
	if err != nil {
		log.Error(g.logTag+"create corrected tif failed", zap.Error(err))
		return
	}
	defer func() {
		dst.Close()
		if err != nil {
			discard(mosaic)
		} else {
			err = commit(mosaic)
		}
	}()
	if err = dst.SetProjection(shape.proj); err != nil {
		return
	}
	if err = dst.SetGeoTransform(shape.gt); err != nil {
		return
	}
	if err = dst.SetNoData(g.cfg.Nodata); err != nil {
		return
	}
	// 两侧输入各按自身声明的哨兵值判洞，输出统一用配置哨兵值
	outNd := float32(g.cfg.Nodata)
	mNd, gNd := outNd, outNd
	if shape.hasNd {
		mNd = float32(shape.nodata)
	}
	if gShape.hasNd {
		gNd = float32(gShape.nodata)
	}
	var (
		mBand   = mds.Bands()[0]
		gBand   = gds.Bands()[0]
		dstBand = dst.Bands()[0]
		mBuf    []float32
		gBuf    []float32
	)
	err = g.eachStripe(shape.sizeX, shape.sizeY, 8, func(yOff, rows int) error {
		n := shape.sizeX * rows
		if cap(mBuf) < n {
			mBuf = make([]float32, n)
			gBuf = make([]float32, n)
		}
		mBuf, gBuf = mBuf[:n], gBuf[:n]
		if e := mBand.IO(godal.IORead, 0, yOff, mBuf, shape.sizeX, rows); e != nil {
			log.Error(g.logTag+"read mosaic stripe failed", zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifReadFailed
		}
		if e := gBand.IO(godal.IORead, 0, yOff, gBuf, shape.sizeX, rows); e != nil {
			log.Error(g.logTag+"read geoid stripe failed", zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifReadFailed
		}
		for i, v := range mBuf {
			if v == mNd || gBuf[i] == gNd {
				mBuf[i] = outNd
			} else {
				mBuf[i] = v - gBuf[i]
			}
		}
		if e := dstBand.IO(godal.IOWrite, 0, yOff, mBuf, shape.sizeX, rows); e != nil {
			log.Error(g.logTag+"write corrected stripe failed", zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifWriteFailed
		}
		return nil
	})
	if err == nil {
		log.Info(g.logTag+"datum corrected", zap.String("mosaic", mosaic), zap.String("geoid", geoidTif))
	}
	return
}

// 把参考水准面栅格对齐到镶嵌图网格：同坐标系、同范围、同尺寸，双线性重采样。
// 参考栅格通常更粗且网格不同，这一步是真实的几何对齐，不是空操作
func (g *DemToolbox) alignGeoid(geoidTif string, shape gridShape) (out string, err error) {
	sds, err := godal.Open(geoidTif, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open geoid tif failed", zap.String("tif", geoidTif), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer sds.Close()
	out = filepath.Join(g.cfg.StagingDir, "geoid_"+uuid.NewString()+FILE_EXT_TIF)
	nd := strconv.FormatFloat(g.cfg.Nodata, 'f', -1, 64)
	opts := append([]string{
		"-t_srs", epsgOf(g.cfg.TargetSrid),
		"-te", strconv.FormatFloat(g.cfg.Extent[0], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[1], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[2], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[3], 'f', -1, 64),
		"-ts", strconv.Itoa(shape.sizeX), strconv.Itoa(shape.sizeY),
		"-r", RESAMPLE_BILINEAR,
		"-ot", "Float32",
		"-dstnodata", nd,
		"-overwrite",
	}, tiffOpts...)
	ods, err := godal.Warp(out, []*godal.Dataset{sds}, opts)
	if err != nil {
		log.Error(g.logTag+"warp geoid failed", zap.Error(err))
		return
	}
	ods.Close()
	log.Info(g.logTag+"geoid aligned to mosaic grid", zap.String("out", out))
	return
}
