package vidup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchInterval is the rescan period when Watch is given zero.
const DefaultWatchInterval = 30 * time.Second

// watchDebounce delays a scan after filesystem events so bursts of writes
// trigger one scan.
const watchDebounce = 2 * time.Second

type fileState struct {
	size    int64
	modTime time.Time
}

func (a fileState) same(b fileState) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

// Watcher stages and uploads videos that appear in a directory. A file is
// staged only after its size and mtime are unchanged across two scans.
type Watcher struct {
	svc       *UploadService
	dir       *Path
	recursive bool

	seen    map[string]fileState
	handled map[string]fileState
}

// NewWatcher creates a Watcher for dir.
func (s *UploadService) NewWatcher(dir *Path, recursive bool) (*Watcher, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("watch target is not a directory: %s", dir.String())
	}
	return &Watcher{
		svc:       s,
		dir:       dir,
		recursive: recursive,
		seen:      make(map[string]fileState),
		handled:   make(map[string]fileState),
	}, nil
}

// ScanResult reports one watcher scan.
type ScanResult struct {
	Settling int
	Stage    StageResult
	Upload   *UploadSummary
}

// Scan looks at the directory once. Files that were stable since the previous
// scan are staged, and the queue is drained if anything is pending.
func (w *Watcher) Scan(ctx context.Context) (*ScanResult, error) {
	s := w.svc
	files, err := s.fsmgr.FindFiles(w.dir, w.recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	result := &ScanResult{}
	current := make(map[string]fileState, len(files))
	for _, f := range files {
		if !s.isVideo(f.String()) {
			continue
		}
		state := fileState{size: f.Size(), modTime: f.ModTime()}
		current[f.String()] = state

		if prev, ok := w.handled[f.String()]; ok && prev.same(state) {
			continue
		}
		if prev, ok := w.seen[f.String()]; !ok || !prev.same(state) {
			result.Settling++
			continue
		}

		if err := s.stageOneFile(f, w.dir.String(), &result.Stage); err != nil {
			s.logger.Warn("could not stage watched file", "path", f.String(), "error", err)
			continue
		}
		w.handled[f.String()] = state
	}
	w.seen = current
	for p := range w.handled {
		if _, ok := current[p]; !ok {
			delete(w.handled, p)
		}
	}

	pending, err := s.stagingArea.Count()
	if err != nil {
		return result, fmt.Errorf("counting staged uploads: %w", err)
	}
	if pending == 0 {
		return result, nil
	}

	result.Upload, err = s.UploadAll(ctx)
	if err != nil {
		return result, err
	}
	return result, nil
}

// Run scans every interval and shortly after filesystem events until ctx is
// cancelled. A failed scan is logged and retried on the next trigger.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	s := w.svc

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addWatches(fw); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	debounce := time.NewTimer(watchDebounce)
	defer debounce.Stop()

	s.logger.Info("watching directory", "path", w.dir.String(), "interval", interval, "recursive", w.recursive)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && w.recursive {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.Add(ev.Name); err != nil {
						s.logger.Warn("could not watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("filesystem watcher error", "error", err)
		case <-ticker.C:
			w.scanAndLog(ctx)
		case <-debounce.C:
			w.scanAndLog(ctx)
		}
	}
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	res, err := w.Scan(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.svc.logger.Error("watch scan failed", "error", err)
		return
	}
	if res.Stage.Staged > 0 || res.Upload != nil {
		w.svc.logger.Info("watch scan", "settling", res.Settling, "staged", res.Stage.Staged)
	}
}

func (w *Watcher) addWatches(fw *fsnotify.Watcher) error {
	if !w.recursive {
		if err := fw.Add(w.dir.String()); err != nil {
			return fmt.Errorf("watching %s: %w", w.dir.String(), err)
		}
		return nil
	}
	return filepath.WalkDir(w.dir.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// Watch stages and uploads new videos under dir until ctx is cancelled.
func (s *UploadService) Watch(ctx context.Context, dir *Path, recursive bool, interval time.Duration) error {
	w, err := s.NewWatcher(dir, recursive)
	if err != nil {
		return err
	}
	return w.Run(ctx, interval)
}
