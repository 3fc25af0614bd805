package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/config"
	"github.com/goliatone/go-settings/pkg/state"
)

const oneDefinition = `settings:
  - key: theme
    type: string
    allowedScopes: [GLOBAL]
    default: light
`

const twoDefinitions = oneDefinition + `  - key: digest
    type: boolean
    allowedScopes: [USER]
    default: true
`

func writeDefinitions(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write definitions: %v", err)
	}
}

func waitForCatalog(t *testing.T, service *state.Service, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if service.Catalog().Len() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d definitions, catalog has %d", want, service.Catalog().Len())
}

func TestReloaderSwapsCatalogOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	writeDefinitions(t, path, oneDefinition)

	defs, err := loadDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	catalog, err := settings.NewCatalog(defs)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	service := state.NewService(catalog, state.NewScopeStore(state.NewMemoryRows()))
	r := &reloader{
		path:    path,
		build:   func(defs []settings.Definition) (*settings.Catalog, error) { return settings.NewCatalog(defs) },
		service: service,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:   make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case <-r.ready:
	case err := <-done:
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher never became ready")
	}

	writeDefinitions(t, path, twoDefinitions)
	waitForCatalog(t, service, 2)

	// a broken file keeps the last good catalog
	writeDefinitions(t, path, "settings: [")
	time.Sleep(200 * time.Millisecond)
	if service.Catalog().Len() != 2 {
		t.Fatalf("broken definitions replaced the catalog")
	}

	writeDefinitions(t, path, oneDefinition)
	waitForCatalog(t, service, 1)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestHandlerBuildsReloaderOnlyWhenWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	writeDefinitions(t, path, oneDefinition)

	for _, watch := range []bool{false, true} {
		cfg := config.Default()
		cfg.Definitions = config.Definitions{File: path, Watch: watch}
		a := &app{stdout: io.Discard, stderr: io.Discard, cfg: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
		rows, err := openStores(context.Background(), cfg.Storage, a.logger)
		if err != nil {
			t.Fatalf("open stores: %v", err)
		}
		_, r, err := a.handler(rows, prometheus.NewRegistry())
		_ = rows.Close()
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if (r != nil) != watch {
			t.Fatalf("watch=%t: unexpected reloader %v", watch, r)
		}
		if watch && r.path != path {
			t.Fatalf("reloader watches %q", r.path)
		}
	}
}
