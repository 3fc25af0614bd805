package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(values map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Parse("defaults", nil, env(nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.HTTP.ShutdownTimeoutDuration() != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.HTTP.ShutdownTimeoutDuration())
	}
}

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settingsd.yaml")
	body := `
http:
  addr: ":9090"
storage:
  driver: SQLite
  dsn: file.db
definitions:
  file: defs.yaml
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path, env(map[string]string{
		"SETTINGS_STORAGE_DSN":      "override.db",
		"SETTINGS_ACTIVITY_ENABLED": "true",
		"SETTINGS_LOG_FORMAT":       "json",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.HTTP.ShutdownTimeout != "10s" {
		t.Fatalf("unexpected http %+v", cfg.HTTP)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.DSN != "override.db" || cfg.Storage.Table != "settings" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Definitions.File != "defs.yaml" {
		t.Fatalf("unexpected definitions %+v", cfg.Definitions)
	}
	if !cfg.Activity.Enabled || cfg.Activity.Channel != "settings" {
		t.Fatalf("unexpected activity %+v", cfg.Activity)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log %+v", cfg.Log)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		env     map[string]string
		want    string
	}{
		{name: "unknown driver", payload: map[string]any{"storage": map[string]any{"driver": "mongo"}}, want: "storage.driver"},
		{name: "sqlite without dsn", env: map[string]string{"SETTINGS_STORAGE_DRIVER": "sqlite"}, want: "storage.dsn is required"},
		{name: "badger without path", env: map[string]string{"SETTINGS_STORAGE_DRIVER": "badger"}, want: "storage.path is required"},
		{name: "bad level", payload: map[string]any{"log": map[string]any{"level": "loud"}}, want: "log.level"},
		{name: "bad duration", payload: map[string]any{"http": map[string]any{"shutdownTimeout": "soon"}}, want: "http.shutdownTimeout"},
		{name: "bad bool env", env: map[string]string{"SETTINGS_ACTIVITY_ENABLED": "maybe"}, want: "SETTINGS_ACTIVITY_ENABLED"},
		{name: "watch without file", env: map[string]string{"SETTINGS_DEFINITIONS_WATCH": "true"}, want: "definitions.watch requires definitions.file"},
		{name: "unknown field", payload: map[string]any{"storage": map[string]any{"bogus": 1}}, want: "unknown field"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("test", tc.payload, env(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil)); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Log{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "pageSize")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"key":"pageSize"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
