package demlib

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wgdzlh/demlib/log"

	godal "github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

const overviewTag = "_p"

// 仅识别形如 xxx_pNN 的降采样成果名，普通名字里含"_p"不误判
func isOverviewName(base string) bool {
	if len(base) < 4 {
		return false
	}
	tail := base[len(base)-4:]
	return strings.HasPrefix(tail, overviewTag) && tail[2] >= '0' && tail[2] <= '9' && tail[3] >= '0' && tail[3] <= '9'
}

// 派生指定比例的降采样成果，双线性重采样，输出尺寸为floor(原尺寸×factor)。
// 只允许从全分辨率修正成果派生，不得用降采样结果再降采样，以免重采样误差累积
func (g *DemToolbox) DeriveOverview(mosaic string, factor float64) (out string, err error) {
	if factor <= 0 || factor >= 1 {
		err = ErrBadConfig
		return
	}
	base := trimExt(filepath.Base(mosaic))
	if isOverviewName(base) {
		err = ErrDerivedFromDerived
		return
	}
	pct := int(math.Round(factor * 100))
	out = filepath.Join(g.cfg.OutputDir, fmt.Sprintf("%s%s%02d%s", base, overviewTag, pct, FILE_EXT_TIF))
	sds, err := godal.Open(mosaic, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open mosaic failed", zap.String("tif", mosaic), zap.Error(err))
		err = ErrInvalidTif
		return
	}
	defer sds.Close()
	st := sds.Structure()
	w := int(math.Floor(float64(st.SizeX) * factor))
	h := int(math.Floor(float64(st.SizeY) * factor))
	opts := append([]string{
		"-outsize", strconv.Itoa(w), strconv.Itoa(h),
		"-r", RESAMPLE_BILINEAR,
	}, tiffOpts...)
	ods, err := sds.Translate(tmpNameOf(out), opts)
	if err != nil {
		log.Error(g.logTag+"derive overview failed", zap.Float64("factor", factor), zap.Error(err))
		discard(out)
		return
	}
	ods.Close()
	if err = commit(out); err != nil {
		return
	}
	log.Info(g.logTag+"overview derived", zap.Float64("factor", factor),
		zap.Int("width", w), zap.Int("height", h), zap.String("out", out))
	return
}
