package demlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wgdzlh/demlib/log"
	"github.com/wgdzlh/demlib/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	tilesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demlib_tiles_fetched_total",
		Help: "The total number of tile archives fetched and staged",
	})
	tilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demlib_tiles_failed_total",
		Help: "The total number of tiles abandoned after retries",
	})
	tileRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demlib_tile_fetch_retries_total",
		Help: "The total number of tile fetch retries",
	})
)

const (
	fetchBackoff = time.Second
	// 单次下载的硬上限，连接僵死时保证重试循环能接管
	fetchTimeout = 30 * time.Minute
)

var fetchClient = &http.Client{Timeout: fetchTimeout}

// 批量获取瓦片压缩包并解出高程栅格与有效性掩膜，两者按瓦片标识落盘到StagingDir。
// 各瓦片互相独立，单瓦片失败只记入failed，不中断批次；已就位的瓦片直接跳过，支持断点续跑
func (g *DemToolbox) FetchTiles(ctx context.Context, entries []TileIndexEntry) (arts []TileArtifact, failed []TileError) {
	jobs := make(chan int)
	results := make([]*TileArtifact, len(entries))
	errs := make([]*TileError, len(entries))
	var wg sync.WaitGroup
	wg.Add(g.cfg.Concurrency)
	for w := 0; w < g.cfg.Concurrency; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				art, err := g.fetchTile(ctx, entries[i])
				if err != nil {
					tilesFailed.Inc()
					errs[i] = &TileError{Id: entries[i].Id, Err: err}
					continue
				}
				results[i] = &art
			}
		}()
	}
	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	for i := range entries {
		if results[i] != nil {
			arts = append(arts, *results[i])
		} else if errs[i] != nil {
			failed = append(failed, *errs[i])
		}
	}
	log.Info(g.logTag+"tile batch fetched", zap.Int("total", len(entries)), zap.Int("ok", len(arts)), zap.Int("failed", len(failed)))
	return
}

// 获取单个瓦片：下载压缩包、按后缀解出两个成员、改为确定性文件名。
// 下载与解压都在本瓦片独占的临时子目录内进行，并发瓦片间不共享任何路径，
// 成员基础名相同也不会互相覆盖；临时目录用后即删
func (g *DemToolbox) fetchTile(ctx context.Context, entry TileIndexEntry) (art TileArtifact, err error) {
	art = TileArtifact{
		Id:   entry.Id,
		Dem:  filepath.Join(g.cfg.StagingDir, entry.Id+"_dem"+FILE_EXT_TIF),
		Mask: filepath.Join(g.cfg.StagingDir, entry.Id+"_mask"+FILE_EXT_TIF),
	}
	if fileExists(art.Dem) && fileExists(art.Mask) {
		log.Info(g.logTag+"tile already staged", zap.String("tile", entry.Id))
		return
	}
	tmpDir, err := utils.GetUniqSubDir(g.cfg.StagingDir)
	if err != nil {
		return
	}
	defer os.RemoveAll(tmpDir)
	archive := filepath.Join(tmpDir, entry.Id+FILE_EXT_ZIP)
	if err = g.download(ctx, entry.URL, archive); err != nil {
		log.Error(g.logTag+"tile transfer failed", zap.String("tile", entry.Id), zap.String("url", entry.URL), zap.Error(err))
		return
	}
	members, err := utils.UnzipMatched(archive, tmpDir, g.cfg.DemSuffix, g.cfg.MaskSuffix)
	if err != nil {
		if errors.Is(err, utils.ErrNoMatchInZip) {
			err = fmt.Errorf("%w: %s", ErrArchiveMember, entry.Id)
		}
		log.Error(g.logTag+"tile archive unpack failed", zap.String("tile", entry.Id), zap.Error(err))
		return
	}
	if err = os.Rename(members[0], art.Dem); err != nil {
		return
	}
	if err = os.Rename(members[1], art.Mask); err != nil {
		return
	}
	tilesFetched.Inc()
	log.Info(g.logTag+"tile staged", zap.String("tile", entry.Id))
	return
}

// 带退避的下载，先写临时名，成功后改名
func (g *DemToolbox) download(ctx context.Context, url, dst string) (err error) {
	for attempt := 0; attempt < g.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			tileRetries.Inc()
			select {
			case <-time.After(fetchBackoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = g.downloadOnce(ctx, url, dst); err == nil {
			return
		}
		log.Warn(g.logTag+"download attempt failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
	}
	err = fmt.Errorf("%w: %v", ErrTransfer, err)
	return
}

func (g *DemToolbox) downloadOnce(ctx context.Context, url, dst string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status %s", resp.Status)
		return
	}
	out, err := os.Create(tmpNameOf(dst))
	if err != nil {
		return
	}
	_, err = io.Copy(out, resp.Body)
	if e := out.Close(); err == nil {
		err = e
	}
	if err != nil {
		discard(dst)
		return
	}
	return commit(dst)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
