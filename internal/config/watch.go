package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kelhray/dispatch/internal/log"
)

// Watch reloads the config file at path whenever it changes and hands the
// fresh config to onChange. A file that fails to reload is logged and skipped;
// the previous config stays in effect. Watch blocks until the context is
// cancelled.
//
// The parent directory is watched rather than the file itself, so editors
// that replace the file on save (rename-over-write) keep triggering reloads.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	logger := log.GetLogger()
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadFromPath(path)
			if err != nil {
				logger.Warnf("[config] reload %s: %v", path, err)
				continue
			}
			logger.Infof("[config] reloaded %s", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[config] watcher: %v", err)
		}
	}
}
