package demlib

import (
	"path/filepath"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 按有效性掩膜修复瓦片：掩膜为0处置为nodata，其余像元原值透传。
// 必须先于重投影执行，否则重采样会把坏值扩散到周边像元。
// 掩膜与瓦片网格必须完全一致，否则返回ErrGridAlignment
func (g *DemToolbox) RepairTile(art TileArtifact) (out string, err error) {
	out = filepath.Join(g.cfg.StagingDir, art.Id+"_repaired"+FILE_EXT_TIF)
	dem, err := godal.Open(art.Dem, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tile dem failed", zap.String("tile", art.Id), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer dem.Close()
	mask, err := godal.Open(art.Mask, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tile mask failed", zap.String("tile", art.Id), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer mask.Close()
	demShape, err := shapeOf(dem)
	if err != nil {
		return
	}
	maskShape, err := shapeOf(mask)
	if err != nil {
		return
	}
	if !demShape.alignedWith(maskShape) {
		log.Error(g.logTag+"tile and mask grids differ", zap.String("tile", art.Id),
			zap.Int("demW", demShape.sizeX), zap.Int("demH", demShape.sizeY),
			zap.Int("maskW", maskShape.sizeX), zap.Int("maskH", maskShape.sizeY))
		err = ErrGridAlignment
		return
	}
	dst, err := godal.Create(godal.GTiff, tmpNameOf(out), 1, godal.Float32, demShape.sizeX, demShape.sizeY,
		godal.CreationOption(tiffCreationOpts...))
	if err != nil {
		log.Error(g.logTag+"create repaired tif failed", zap.String("tile", art.Id), zap.Error(err))
		return
	}
	defer func() {
		dst.Close()
		if err != nil {
			discard(out)
		} else {
			err = commit(out)
		}
	}()
	if err = dst.SetProjection(demShape.proj); err != nil {
		return
	}
	if err = dst.SetGeoTransform(demShape.gt); err != nil {
		return
	}
	if err = dst.SetNoData(g.cfg.Nodata); err != nil {
		return
	}
	var (
		demBand  = dem.Bands()[0]
		maskBand = mask.Bands()[0]
		dstBand  = dst.Bands()[0]
		nodata   = float32(g.cfg.Nodata)
		srcNd    = float32(demShape.nodata)
		demBuf   []float32
		maskBuf  []byte
	)
	err = g.eachStripe(demShape.sizeX, demShape.sizeY, 5, func(yOff, rows int) error {
		n := demShape.sizeX * rows
		if cap(demBuf) < n {
			demBuf = make([]float32, n)
			maskBuf = make([]byte, n)
		}
		demBuf, maskBuf = demBuf[:n], maskBuf[:n]
		if e := demBand.IO(godal.IORead, 0, yOff, demBuf, demShape.sizeX, rows); e != nil {
			log.Error(g.logTag+"read dem stripe failed", zap.String("tile", art.Id), zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifReadFailed
		}
		if e := maskBand.IO(godal.IORead, 0, yOff, maskBuf, demShape.sizeX, rows); e != nil {
			log.Error(g.logTag+"read mask stripe failed", zap.String("tile", art.Id), zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifReadFailed
		}
		for i, m := range maskBuf {
			if m == 0 || (demShape.hasNd && demBuf[i] == srcNd) {
				demBuf[i] = nodata
			}
		}
		if e := dstBand.IO(godal.IOWrite, 0, yOff, demBuf, demShape.sizeX, rows); e != nil {
			log.Error(g.logTag+"write repaired stripe failed", zap.String("tile", art.Id), zap.Int("yOff", yOff), zap.Error(e))
			return ErrTifWriteFailed
		}
		return nil
	})
	if err == nil {
		log.Info(g.logTag+"tile repaired", zap.String("tile", art.Id), zap.String("out", out))
	}
	return
}
