package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of writes editors produce on save.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the configuration whenever config.yaml in dir is written
// and hands the result to onReload. Invalid files are logged and skipped.
// The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, dir string, logger *slog.Logger, onReload func(*Config)) error {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("config: resolving %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	// The directory is watched so the file may be created after startup.
	if err := watcher.Add(abs); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watching %s: %w", abs, err)
	}

	target := filepath.Join(abs, "config.yaml")
	go func() {
		defer watcher.Close()

		timer := time.NewTimer(reloadDebounce)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				timer.Reset(reloadDebounce)
			case <-timer.C:
				cfg, err := Load(abs, logger)
				if err != nil {
					logger.Error("config reload failed", slog.String("error", err.Error()))
					continue
				}
				logger.Info("config reloaded", slog.String("file", target))
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
