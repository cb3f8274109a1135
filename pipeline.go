package demlib

import (
	"context"
	"os"

	"github.com/wgdzlh/demlib/log"

	"go.uber.org/zap"
)

// 一次区域任务的外部资源定位
type PipelineInput struct {
	IndexShp string // 瓦片索引shp
	IdField  string // 索引中瓦片标识字段，空则取url文件名
	UrlField string // 索引中压缩包地址字段
	CoastShp string // 海岸线shp，空则跳过海面修正
	GeoidTif string // 大地水准面参考栅格，空则跳过垂直基准修正
}

// 全流程：获取→修复→重投影→镶嵌→海面修正→垂直基准修正→多分辨率派生。
// 获取/修复/重投影阶段单瓦片失败只记入汇总；镶嵌及之后的单成果阶段失败即整体终止，
// 且不会破坏上一阶段的成果。各阶段产物先写临时名、成功改名，按阶段重跑是安全的
func (g *DemToolbox) Run(ctx context.Context, in PipelineInput) (sum RunSummary, err error) {
	if err = os.MkdirAll(g.cfg.StagingDir, os.ModePerm); err != nil {
		return
	}
	if err = os.MkdirAll(g.cfg.OutputDir, os.ModePerm); err != nil {
		return
	}
	entries, err := g.TileIndex(in.IndexShp, in.IdField, in.UrlField)
	if err != nil {
		return
	}
	entries = g.filterByExtent(entries)
	arts, failed := g.FetchTiles(ctx, entries)
	sum.Fetched = len(arts)
	sum.Failed = failed

	// 逐瓦片修复+重投影，失败瓦片剔除出批次
	warped := make([]string, 0, len(arts))
	for _, art := range arts {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		repaired, e := g.RepairTile(art)
		if e != nil {
			sum.Failed = append(sum.Failed, TileError{Id: art.Id, Err: e})
			continue
		}
		sum.Repaired++
		w, e := g.WarpTile(art.Id, repaired)
		if e != nil {
			sum.Failed = append(sum.Failed, TileError{Id: art.Id, Err: e})
			continue
		}
		sum.Warped++
		warped = append(warped, w)
		// 原始瓦片与修复中间产物即弃，控制磁盘占用
		os.Remove(art.Dem)
		os.Remove(art.Mask)
		os.Remove(repaired)
	}

	mosaic, err := g.MosaicTiles(warped)
	if err != nil {
		return
	}
	for _, w := range warped {
		os.Remove(w)
	}
	if in.CoastShp != "" {
		if err = g.ApplySeaMask(mosaic, in.CoastShp); err != nil {
			return
		}
	}
	if in.GeoidTif != "" {
		if err = g.CorrectDatum(mosaic, in.GeoidTif); err != nil {
			return
		}
	}
	sum.Mosaic = mosaic
	for _, f := range g.cfg.ScaleFactors {
		var ov string
		if ov, err = g.DeriveOverview(mosaic, f); err != nil {
			return
		}
		sum.Overviews = append(sum.Overviews, ov)
	}
	log.Info(g.logTag+"pipeline done",
		zap.Int("tiles", len(entries)),
		zap.Int("merged", sum.Warped),
		zap.Int("failed", len(sum.Failed)),
		zap.String("mosaic", sum.Mosaic),
		zap.Strings("overviews", sum.Overviews))
	return
}
