package openapi

import (
	"strconv"
	"strings"
)

const schemaRefPrefix = "#/components/schemas/"

// componentRegistry collects component schemas. Setting keys contain dots,
// which component names may not, so every name is sanitized and made unique.
type componentRegistry struct {
	schemas map[string]map[string]any
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{schemas: map[string]map[string]any{}}
}

// add stores schema under a name derived from hint and returns its $ref.
func (r *componentRegistry) add(hint string, schema map[string]any) string {
	base := sanitizeComponentName(hint)
	if base == "" {
		base = "Schema"
	}
	name := base
	for n := 1; r.schemas[name] != nil; n++ {
		name = base + strconv.Itoa(n)
	}
	r.schemas[name] = schema
	return schemaRefPrefix + name
}

func (r *componentRegistry) componentsMap() map[string]any {
	if len(r.schemas) == 0 {
		return nil
	}
	out := make(map[string]any, len(r.schemas))
	for name, schema := range r.schemas {
		out[name] = schema
	}
	return out
}

// sanitizeComponentName maps every run of characters outside [A-Za-z0-9_] to
// one underscore, trims underscores at both ends and prefixes names that
// start with a digit.
func sanitizeComponentName(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range name {
		valid := r == '_' || r < 128 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
		if !valid {
			pending = true
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
