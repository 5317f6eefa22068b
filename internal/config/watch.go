package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

const watchDebounce = 200 * time.Millisecond

// Watch calls fn with the reloaded configuration whenever the file at path
// changes, until ctx is cancelled. The directory is watched rather than the
// file so editors that replace the file on save are seen. A file that fails
// to parse is logged and skipped.
func Watch(ctx context.Context, path string, fn func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		reload := func() {
			cfg, err := LoadFile(path)
			if err != nil {
				tuilog.Log.Warn("config.Watch: reload failed", "path", path, "error", err)
				return
			}
			tuilog.Log.Info("config.Watch: reloaded", "path", path)
			fn(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				tuilog.Log.Warn("config.Watch: watcher error", "error", err)
			}
		}
	}()
	return nil
}
