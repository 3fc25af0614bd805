package settings

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Constraints restrict the values a definition accepts. Rule is an optional
// boolean expression evaluated with `value` and `key` bound; Engine selects
// expr (default), cel or js.
type Constraints struct {
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Integer   bool     `json:"integer,omitempty" yaml:"integer,omitempty"`
	MaxLength int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Rule      string   `json:"rule,omitempty" yaml:"rule,omitempty"`
	Engine    string   `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// Definition declares one configuration key.
type Definition struct {
	Key           string      `json:"key"`
	Label         string      `json:"label,omitempty"`
	Description   string      `json:"description,omitempty"`
	Type          ValueType   `json:"type"`
	Constraints   Constraints `json:"constraints"`
	AllowedScopes []ScopeType `json:"allowedScopes"`
	Default       Value       `json:"defaultValue"`
}

// Allows reports whether rows stored at scope take part in resolution and may
// be written.
func (d Definition) Allows(scope ScopeType) bool {
	if scope == ScopeDefault {
		return true
	}
	return slices.Contains(d.AllowedScopes, scope)
}

// Parse converts a decoded payload into a value of the definition's type.
func (d Definition) Parse(raw any) (Value, error) {
	return ParseValue(d.Type, raw)
}

// check validates the definition shape. Rules are checked by the engine.
func (d Definition) check() error {
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("settings: definition key is required")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("settings: definition %q has unknown type %q", d.Key, d.Type)
	}
	for _, scope := range d.AllowedScopes {
		if !scope.Writable() {
			return fmt.Errorf("settings: definition %q allows unsupported scope %q", d.Key, scope)
		}
	}
	if d.Type == TypeEnum && len(d.Constraints.Options) == 0 {
		return fmt.Errorf("settings: enum definition %q declares no options", d.Key)
	}
	if d.Constraints.Pattern != "" {
		if _, err := regexp.Compile(d.Constraints.Pattern); err != nil {
			return fmt.Errorf("settings: definition %q pattern: %w", d.Key, err)
		}
	}
	if d.Constraints.Min != nil && d.Constraints.Max != nil && *d.Constraints.Min > *d.Constraints.Max {
		return fmt.Errorf("settings: definition %q has min greater than max", d.Key)
	}
	return nil
}

// checkValue applies the declarative constraints to v.
func (d Definition) checkValue(v Value) error {
	if v.Type() != d.Type {
		return fmt.Errorf("expected %s value, got %s", d.Type, typeOrUnset(v))
	}
	c := d.Constraints
	switch d.Type {
	case TypeEnum:
		if !slices.Contains(c.Options, v.Text()) {
			return fmt.Errorf("%q is not one of %s", v.Text(), strings.Join(c.Options, ", "))
		}
	case TypeString:
		if len(c.Options) > 0 && !slices.Contains(c.Options, v.Text()) {
			return fmt.Errorf("%q is not one of %s", v.Text(), strings.Join(c.Options, ", "))
		}
		if c.MaxLength > 0 && utf8.RuneCountInString(v.Text()) > c.MaxLength {
			return fmt.Errorf("length exceeds %d characters", c.MaxLength)
		}
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if !re.MatchString(v.Text()) {
				return fmt.Errorf("%q does not match %s", v.Text(), c.Pattern)
			}
		}
	case TypeNumber:
		n := v.Number()
		if c.Integer && n != math.Trunc(n) {
			return fmt.Errorf("%v is not an integer", n)
		}
		if c.Min != nil && n < *c.Min {
			return fmt.Errorf("%v is below minimum %v", n, *c.Min)
		}
		if c.Max != nil && n > *c.Max {
			return fmt.Errorf("%v is above maximum %v", n, *c.Max)
		}
	}
	return nil
}

func typeOrUnset(v Value) string {
	if v.IsZero() {
		return "unset"
	}
	return string(v.Type())
}

type definitionDocument struct {
	Settings []definitionEntry `yaml:"settings"`
}

type definitionEntry struct {
	Key           string      `yaml:"key"`
	Label         string      `yaml:"label"`
	Description   string      `yaml:"description"`
	Type          ValueType   `yaml:"type"`
	Constraints   Constraints `yaml:"constraints"`
	AllowedScopes []string    `yaml:"allowedScopes"`
	Default       any         `yaml:"default"`
}

// LoadDefinitions reads a YAML document of the form
//
//	settings:
//	  - key: projects.viewMode
//	    type: enum
//	    constraints: {options: [list, board]}
//	    allowedScopes: [GLOBAL, USER]
//	    default: list
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var doc definitionDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("settings: decode definitions: %w", err)
	}
	defs := make([]Definition, 0, len(doc.Settings))
	for i, entry := range doc.Settings {
		def := Definition{
			Key:         entry.Key,
			Label:       entry.Label,
			Description: entry.Description,
			Type:        entry.Type,
			Constraints: entry.Constraints,
		}
		for _, name := range entry.AllowedScopes {
			scope, err := ParseScopeType(name)
			if err != nil {
				return nil, fmt.Errorf("settings: definition %d (%s): %w", i, entry.Key, err)
			}
			def.AllowedScopes = append(def.AllowedScopes, scope)
		}
		value, err := ParseValue(entry.Type, normalizeYAML(entry.Default))
		if err != nil {
			return nil, fmt.Errorf("settings: definition %d (%s) default: %w", i, entry.Key, err)
		}
		def.Default = value
		defs = append(defs, def)
	}
	return defs, nil
}

// yaml.v3 decodes integers as int; numbers are float64 everywhere else.
func normalizeYAML(raw any) any {
	switch n := raw.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return raw
}
