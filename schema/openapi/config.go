package openapi

import "strings"

type generatorConfig struct {
	openAPIVersion string
	title          string
	version        string
	description    string
	basePath       string
	rootComponent  string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		openAPIVersion: "3.0.3",
		title:          "Settings",
		version:        "1.0.0",
		basePath:       "/api",
		rootComponent:  "Settings",
	}
}

func (c generatorConfig) settingsPath() string {
	return c.basePath + "/settings"
}

// GeneratorOption configures the document generator.
type GeneratorOption func(*generatorConfig)

// WithOpenAPIVersion overrides the document version string.
func WithOpenAPIVersion(version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if version != "" {
			cfg.openAPIVersion = version
		}
	}
}

// WithInfo sets the info block. Empty strings keep the defaults.
func WithInfo(title, version, description string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if title != "" {
			cfg.title = title
		}
		if version != "" {
			cfg.version = version
		}
		if description != "" {
			cfg.description = description
		}
	}
}

// WithBasePath moves the settings routes for servers mounted under another
// prefix. "/" mounts them at the root.
func WithBasePath(prefix string) GeneratorOption {
	return func(cfg *generatorConfig) {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if prefix != "" && !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		cfg.basePath = prefix
	}
}

// WithRootComponent renames the component holding the per-key schemas.
func WithRootComponent(name string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if strings.TrimSpace(name) != "" {
			cfg.rootComponent = name
		}
	}
}
