// Package openapi renders setting definitions as an OpenAPI document: one
// component per key carrying its constraints, and the versioned write
// operation that accepts them.
package openapi

import (
	settings "github.com/goliatone/go-settings"
)

// Generator builds documents for a definition catalog. It holds no state
// between calls and is safe for concurrent use.
type Generator struct {
	config generatorConfig
}

func NewGenerator(opts ...GeneratorOption) Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return Generator{config: cfg}
}

// Generate returns the document for defs.
func (g Generator) Generate(defs []settings.Definition) (map[string]any, error) {
	registry := newComponentRegistry()
	return newOpenAPIDocumentBuilder(g.config, registry, defs).build()
}

// Definition returns the JSON-schema fragment describing values of def.
func Definition(def settings.Definition) map[string]any {
	schema := map[string]any{}
	c := def.Constraints
	switch def.Type {
	case settings.TypeBoolean:
		schema["type"] = "boolean"
	case settings.TypeNumber:
		schema["type"] = "number"
		if c.Integer {
			schema["type"] = "integer"
		}
		if c.Min != nil {
			schema["minimum"] = *c.Min
		}
		if c.Max != nil {
			schema["maximum"] = *c.Max
		}
	case settings.TypeString, settings.TypeEnum:
		schema["type"] = "string"
		if len(c.Options) > 0 {
			schema["enum"] = append([]string(nil), c.Options...)
		}
		if c.MaxLength > 0 {
			schema["maxLength"] = c.MaxLength
		}
		if c.Pattern != "" {
			schema["pattern"] = c.Pattern
		}
	}
	if !def.Default.IsZero() {
		schema["default"] = def.Default.Interface()
	}
	if def.Label != "" {
		schema["title"] = def.Label
	}
	if def.Description != "" {
		schema["description"] = def.Description
	}
	scopes := make([]string, 0, len(def.AllowedScopes))
	for _, scope := range def.AllowedScopes {
		scopes = append(scopes, string(scope))
	}
	schema["x-allowed-scopes"] = scopes
	if c.Rule != "" {
		rule := map[string]any{"expr": c.Rule}
		if c.Engine != "" {
			rule["engine"] = c.Engine
		}
		schema["x-rule"] = rule
	}
	return schema
}
