package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/fsnotify/fsnotify"
)

// DoneDir is the subdirectory ingested files are moved into.
const DoneDir = "ingested"

// Watcher uploads media files dropped into a directory. A file is picked up
// once it has stopped changing for Settle.
type Watcher struct {
	dir      string
	uploader Uploader

	Settle   time.Duration
	Interval time.Duration
}

func NewWatcher(dir string, uploader Uploader) *Watcher {
	return &Watcher{
		dir:      dir,
		uploader: uploader,
		Settle:   time.Second,
		Interval: 250 * time.Millisecond,
	}
}

// Run watches until ctx is done. Files already in the directory are ingested
// first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, DoneDir), 0o755); err != nil {
		return fmt.Errorf("prepare watch dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("watching drop folder", logger.String("dir", w.dir))

	// 文件稳定性检查的延迟队列
	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			pending[filepath.Join(w.dir, e.Name())] = time.Time{}
		}
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.Settle {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("drop folder watch error", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || strings.HasPrefix(info.Name(), ".") {
		return
	}

	f, err := LoadFile(path)
	if err != nil {
		logger.Warn("reading dropped file failed", logger.String("path", path), logger.ErrorField(err))
		return
	}

	res := Ingest(ctx, w.uploader, []upload.File{f})
	if res.Tracks.Accepted+res.Videos.Accepted == 0 {
		logger.Debug("ignoring non-media file", logger.String("path", path))
		return
	}
	if res.Tracks.Failed+res.Videos.Failed > 0 {
		logger.Warn("dropped file was not ingested", logger.String("path", path))
		return
	}

	dest := filepath.Join(w.dir, DoneDir, info.Name())
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("archiving ingested file failed", logger.String("path", path), logger.ErrorField(err))
		return
	}
	logger.Info("dropped file ingested", logger.String("file", info.Name()))
}
