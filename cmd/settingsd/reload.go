package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/state"
)

// reloader rebuilds the catalog when the definitions file changes. The parent
// directory is watched so editors that replace the file through a rename are
// seen as well. A file that fails to load or compile keeps the current
// catalog in place.
type reloader struct {
	path    string
	build   func([]settings.Definition) (*settings.Catalog, error)
	service *state.Service
	logger  *slog.Logger

	// ready is closed once the watch is registered; tests wait on it.
	ready chan struct{}
}

// Run blocks until ctx is done.
func (r *reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch definitions: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch definitions %s: %w", r.path, err)
	}
	r.logger.Info("watching settings definitions", "path", target)
	if r.ready != nil {
		close(r.ready)
	}

	for {
		select {
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
			r.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("settings definitions watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *reloader) reload() {
	defs, err := loadDefinitions(r.path)
	if err != nil {
		r.logger.Warn("settings definitions reload failed", "path", r.path, "error", err)
		return
	}
	// editors truncate before writing; an empty file is never a catalog
	if len(defs) == 0 {
		r.logger.Warn("settings definitions reload skipped: no definitions", "path", r.path)
		return
	}
	catalog, err := r.build(defs)
	if err != nil {
		r.logger.Warn("settings definitions rejected", "path", r.path, "error", err)
		return
	}
	r.service.SwapCatalog(catalog)
	r.logger.Info("settings catalog reloaded", "definitions", catalog.Len())
}
