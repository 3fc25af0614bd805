// Package config loads the settingsd configuration: built-in defaults, then
// an optional YAML file, then SETTINGS_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-settings/internal/hydrate"
	"github.com/goliatone/go-settings/internal/layering"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

type Config struct {
	HTTP        HTTP        `json:"http" yaml:"http"`
	Storage     Storage     `json:"storage" yaml:"storage"`
	Definitions Definitions `json:"definitions" yaml:"definitions"`
	Activity    Activity    `json:"activity" yaml:"activity"`
	Log         Log         `json:"log" yaml:"log"`
}

type HTTP struct {
	Addr            string `json:"addr" yaml:"addr"`
	ShutdownTimeout string `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// Storage selects the row backend. DSN is used by sqlite and postgres, Path by
// badger. Table prefixes the SQL tables.
type Storage struct {
	Driver     string `json:"driver" yaml:"driver"`
	DSN        string `json:"dsn" yaml:"dsn"`
	Path       string `json:"path" yaml:"path"`
	Table      string `json:"table" yaml:"table"`
	GCInterval string `json:"gcInterval" yaml:"gcInterval"`
}

// Definitions locates the definitions file. Watch reloads the catalog when
// the file changes while serving.
type Definitions struct {
	File  string `json:"file" yaml:"file"`
	Watch bool   `json:"watch" yaml:"watch"`
}

type Activity struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Channel string `json:"channel" yaml:"channel"`
}

type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP:    HTTP{Addr: ":8080", ShutdownTimeout: "10s"},
		Storage: Storage{Driver: DriverMemory, Table: "settings"},
		Activity: Activity{
			Channel: "settings",
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

type envVar struct {
	name string
	path string
	bool bool
}

var envVars = []envVar{
	{name: "SETTINGS_HTTP_ADDR", path: "http.addr"},
	{name: "SETTINGS_HTTP_SHUTDOWN_TIMEOUT", path: "http.shutdownTimeout"},
	{name: "SETTINGS_STORAGE_DRIVER", path: "storage.driver"},
	{name: "SETTINGS_STORAGE_DSN", path: "storage.dsn"},
	{name: "SETTINGS_STORAGE_PATH", path: "storage.path"},
	{name: "SETTINGS_STORAGE_TABLE", path: "storage.table"},
	{name: "SETTINGS_STORAGE_GC_INTERVAL", path: "storage.gcInterval"},
	{name: "SETTINGS_DEFINITIONS_FILE", path: "definitions.file"},
	{name: "SETTINGS_DEFINITIONS_WATCH", path: "definitions.watch", bool: true},
	{name: "SETTINGS_ACTIVITY_ENABLED", path: "activity.enabled", bool: true},
	{name: "SETTINGS_ACTIVITY_CHANNEL", path: "activity.channel"},
	{name: "SETTINGS_LOG_LEVEL", path: "log.level"},
	{name: "SETTINGS_LOG_FORMAT", path: "log.format"},
}

// Load reads path (optional) and applies the environment from lookup. A nil
// lookup reads the process environment.
func Load(path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var payload map[string]any
	source := "defaults"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		source = path
	}
	return Parse(source, payload, lookup)
}

// Parse layers payload over the defaults and the environment over both.
func Parse(source string, payload map[string]any, lookup LookupFunc) (Config, error) {
	defaults, err := toMap(Default())
	if err != nil {
		return Config{}, err
	}
	decoder := hydrate.NewDecoder[Config](
		hydrate.WithPreHook[Config](func(_ hydrate.Context, file map[string]any) (map[string]any, error) {
			env, err := environment(lookup)
			if err != nil {
				return nil, err
			}
			return layering.Merge(env, file, defaults), nil
		}),
		hydrate.WithDisallowUnknownFields[Config](),
		hydrate.WithPostHook[Config](func(_ hydrate.Context, cfg *Config) error {
			cfg.normalize()
			return cfg.Validate()
		}),
	)
	return decoder.Decode(hydrate.Context{Source: source}, payload)
}

func environment(lookup LookupFunc) (map[string]any, error) {
	env := map[string]any{}
	if lookup == nil {
		return env, nil
	}
	for _, v := range envVars {
		raw, ok := lookup(v.name)
		if !ok {
			continue
		}
		var value any = raw
		if v.bool {
			parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", v.name, err)
			}
			value = parsed
		}
		if err := hydrate.SetPath(env, v.path, value); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func toMap(cfg Config) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if _, err := parseDuration(c.HTTP.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("http.shutdownTimeout: %w", err))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for %s", c.Storage.Driver))
		}
	case DriverBadger:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for badger"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres, badger", c.Storage.Driver))
	}
	if _, err := parseDuration(c.Storage.GCInterval); err != nil {
		errs = append(errs, fmt.Errorf("storage.gcInterval: %w", err))
	}
	if c.Definitions.Watch && strings.TrimSpace(c.Definitions.File) == "" {
		errs = append(errs, errors.New("definitions.watch requires definitions.file"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ShutdownTimeoutDuration returns the parsed http.shutdownTimeout.
func (h HTTP) ShutdownTimeoutDuration() time.Duration {
	d, _ := parseDuration(h.ShutdownTimeout)
	return d
}

// GCIntervalDuration returns the parsed storage.gcInterval; zero disables GC.
func (s Storage) GCIntervalDuration() time.Duration {
	d, _ := parseDuration(s.GCInterval)
	return d
}

func parseDuration(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// NewLogger builds the slog logger described by l.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
