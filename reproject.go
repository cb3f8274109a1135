package demlib

import (
	"path/filepath"
	"strconv"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 重投影单个修复后瓦片到目标坐标系与目标分辨率，双线性重采样，输出Float32。
// 源nodata显式声明，nodata像元不作为插值样本，GDAL按剩余有效样本加权归一，
// 洞不会被填成伪高程，同网格重投影时洞也不扩大
func (g *DemToolbox) WarpTile(id, repaired string) (out string, err error) {
	out = filepath.Join(g.cfg.StagingDir, id+"_warped"+FILE_EXT_TIF)
	sds, err := godal.Open(repaired, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open repaired tif failed", zap.String("tile", id), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer sds.Close()
	res := strconv.FormatFloat(g.cfg.Resolution, 'f', -1, 64)
	nd := strconv.FormatFloat(g.cfg.Nodata, 'f', -1, 64)
	opts := append([]string{
		"-t_srs", epsgOf(g.cfg.TargetSrid),
		"-tr", res, res,
		"-r", RESAMPLE_BILINEAR,
		"-ot", "Float32",
		"-srcnodata", nd,
		"-dstnodata", nd,
		"-overwrite",
	}, tiffOpts...)
	ods, err := godal.Warp(tmpNameOf(out), []*godal.Dataset{sds}, opts)
	if err != nil {
		log.Error(g.logTag+"warp tile failed", zap.String("tile", id), zap.Error(err))
		discard(out)
		return
	}
	ods.Close()
	if err = commit(out); err != nil {
		return
	}
	log.Info(g.logTag+"tile warped", zap.String("tile", id), zap.String("out", out))
	return
}
