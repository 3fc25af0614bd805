package openapi

import (
	"fmt"
	"sort"
	"strings"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
)

type openAPIDocumentBuilder struct {
	config   generatorConfig
	registry *componentRegistry
	defs     []settings.Definition
}

func newOpenAPIDocumentBuilder(config generatorConfig, registry *componentRegistry, defs []settings.Definition) *openAPIDocumentBuilder {
	return &openAPIDocumentBuilder{
		config:   config,
		registry: registry,
		defs:     defs,
	}
}

func (b *openAPIDocumentBuilder) build() (map[string]any, error) {
	properties := make(map[string]any, len(b.defs))
	keys := make([]string, 0, len(b.defs))
	for _, def := range b.defs {
		if _, dup := properties[def.Key]; dup {
			return nil, fmt.Errorf("openapi: duplicate definition %q", def.Key)
		}
		ref := b.registry.add(combineComponentName("Setting", def.Key), Definition(def))
		properties[def.Key] = map[string]any{"$ref": ref}
		keys = append(keys, def.Key)
	}
	sort.Strings(keys)

	rootRef := b.registry.add(b.config.rootComponent, map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	})
	writeRef := b.registry.add(combineComponentName(b.config.rootComponent, "Write"), writeSchema(keys))
	resetRef := b.registry.add(combineComponentName(b.config.rootComponent, "Reset"), resetSchema(keys))
	errorRef := b.registry.add("Error", errorSchema())

	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.buildInfo(),
		"paths": map[string]any{
			b.config.settingsPath(): map[string]any{
				"get":    readOperation(),
				"put":    guardedOperation("writeSetting", "Store an override", writeDescription, writeRef, errorRef),
				"delete": guardedOperation("resetSetting", "Remove an override", resetDescription, resetRef, errorRef),
			},
		},
		"components": map[string]any{
			"schemas": b.registry.componentsMap(),
		},
		"x-settings": map[string]any{"$ref": rootRef},
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}
	return document, nil
}

func keySchema(keys []string) map[string]any {
	key := map[string]any{"type": "string"}
	if len(keys) > 0 {
		key["enum"] = keys
	}
	return key
}

func scopeSchema() map[string]any {
	return map[string]any{"type": "string", "enum": []string{string(settings.ScopeGlobal), string(settings.ScopeUser)}}
}

const (
	writeDescription = "Writes are accepted only when version equals the stored row version. " +
		"Set create to true when no row exists yet: exactly one concurrent creator succeeds and the rest receive VERSION_CONFLICT. " +
		"Version 1 without create also creates an absent row but updates a row already at version 1, so two such writers can both succeed."
	resetDescription  = "Removes the override when version equals the stored row version. The key then resolves from the next weaker scope."
	createDescription = "Require the row to be absent. This is the only way to get a single winner when several clients create the same row."
)

func writeSchema(keys []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":       keySchema(keys),
			"scopeType": scopeSchema(),
			"value":     map[string]any{},
			"version":   map[string]any{"type": "integer", "minimum": guard.InitialVersion},
			"create":    map[string]any{"type": "boolean", "default": false, "description": createDescription},
		},
		"required": []string{"key", "scopeType", "value", "version"},
	}
}

func resetSchema(keys []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":       keySchema(keys),
			"scopeType": scopeSchema(),
			"version":   map[string]any{"type": "integer", "minimum": guard.InitialVersion},
		},
		"required": []string{"key", "scopeType", "version"},
	}
}

func errorSchema() map[string]any {
	codes := make([]string, 0, len(guardResponses))
	for _, r := range guardResponses {
		codes = append(codes, string(r.code))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":     map[string]any{"type": "string", "enum": codes},
			"message":  map[string]any{"type": "string"},
			"expected": map[string]any{"type": "integer"},
			"current":  map[string]any{"type": "integer"},
		},
		"required": []string{"code", "message"},
	}
}

// guardResponses lists the rejections a guarded write can produce.
var guardResponses = []struct {
	status string
	code   guard.Code
}{
	{"404", guard.CodeNotFound},
	{"409", guard.CodeVersionConflict},
	{"409", guard.CodeBusinessConflict},
	{"422", guard.CodeValidation},
}

func (b *openAPIDocumentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.title,
		"version": b.config.version,
	}
	if b.config.description != "" {
		info["description"] = b.config.description
	}
	return info
}

func readOperation() map[string]any {
	return map[string]any{
		"operationId": "listSettings",
		"summary":     "Resolved settings for the caller",
		"responses": map[string]any{
			"200": map[string]any{"description": "Resolved settings table"},
		},
	}
}

func guardedOperation(id, summary, description, bodyRef, errorRef string) map[string]any {
	responses := map[string]any{
		"200": map[string]any{"description": "Refreshed settings table"},
	}
	described := map[string][]string{}
	for _, r := range guardResponses {
		described[r.status] = append(described[r.status], string(r.code))
	}
	for status, codes := range described {
		responses[status] = map[string]any{
			"description": strings.Join(codes, " or "),
			"content": map[string]any{
				"application/json": map[string]any{"schema": map[string]any{"$ref": errorRef}},
			},
		}
	}
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"description": description,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{"schema": map[string]any{"$ref": bodyRef}},
			},
		},
		"responses": responses,
	}
}

func combineComponentName(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	if len(filtered) == 0 {
		return "Schema"
	}
	return strings.Join(filtered, "_")
}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if _, ok := operation["operationId"].(string); !ok {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			if _, ok := operation["requestBody"].(map[string]any); !ok && method != "get" {
				return fmt.Errorf("openapi: operation %s %s missing requestBody", method, pathKey)
			}
			if _, ok := operation["responses"].(map[string]any); !ok {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
