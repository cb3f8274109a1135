package demlib

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 镶嵌全部重投影瓦片为单幅栅格，裁剪到配置的输出范围。
// 输入须按瓦片标识字典序传入；默认策略为先出现的有效值优先。
// VRT中靠后的源会盖住靠前的，故先有效值优先时逆序建VRT。
// 未被任何瓦片覆盖的像元为nodata；全图无有效像元视为异常，拒绝落盘
func (g *DemToolbox) MosaicTiles(tiles []string) (out string, err error) {
	if len(tiles) == 0 {
		err = ErrNoTiles
		return
	}
	if err = g.checkCommonCrs(tiles); err != nil {
		return
	}
	out = filepath.Join(g.cfg.OutputDir, MOSAIC_NAME+FILE_EXT_TIF)
	ordered := tiles
	if g.cfg.MergePolicy == MergeFirstValid {
		ordered = make([]string, len(tiles))
		for i, t := range tiles {
			ordered[len(tiles)-1-i] = t
		}
	}
	res := strconv.FormatFloat(g.cfg.Resolution, 'f', -1, 64)
	nd := strconv.FormatFloat(g.cfg.Nodata, 'f', -1, 64)
	tmpVrt := out + "_tmp" + FILE_EXT_VRT
	defer os.Remove(tmpVrt)
	vds, err := godal.BuildVRT(tmpVrt, ordered, []string{
		"-te", strconv.FormatFloat(g.cfg.Extent[0], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[1], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[2], 'f', -1, 64),
		strconv.FormatFloat(g.cfg.Extent[3], 'f', -1, 64),
		"-tr", res, res,
		"-srcnodata", nd,
		"-vrtnodata", nd,
		"-overwrite",
	})
	if err != nil {
		log.Error(g.logTag+"failed to build vrt", zap.Error(err))
		return
	}
	defer vds.Close()
	ods, err := vds.Translate(tmpNameOf(out), tiffOpts)
	if err != nil {
		log.Error(g.logTag+"failed to translate vrt", zap.Error(err))
		discard(out)
		return
	}
	cnt, err := g.validCells(ods)
	ods.Close()
	if err != nil {
		discard(out)
		return
	}
	if cnt == 0 {
		log.Error(g.logTag + "mosaic came out all nodata, refuse to write")
		discard(out)
		err = ErrEmptyMosaic
		return
	}
	if err = commit(out); err != nil {
		return
	}
	width, height := g.cfg.gridSize()
	log.Info(g.logTag+"mosaic merged", zap.Int("tiles", len(tiles)), zap.Int("width", width),
		zap.Int("height", height), zap.Int64("validCells", cnt), zap.String("out", out))
	return
}

// 镶嵌输入必须同一坐标系，以首个为基准逐一比对
func (g *DemToolbox) checkCommonCrs(tiles []string) (err error) {
	base := ""
	for i, t := range tiles {
		ds, e := godal.Open(t, godal.RasterOnly())
		if e != nil {
			log.Error(g.logTag+"open tile for crs check failed", zap.String("tif", t), zap.Error(e))
			err = ErrInvalidTif
			return
		}
		proj := ds.Projection()
		ds.Close()
		if i == 0 {
			base = proj
		} else if proj != base {
			log.Error(g.logTag+"tile crs differs from first", zap.String("tif", t))
			err = ErrCrsMismatch
			return
		}
	}
	return
}
