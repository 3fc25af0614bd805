package settings

import (
	"fmt"
)

// Catalog is an immutable, validated set of definitions with their rules
// compiled. It is safe for concurrent use.
type Catalog struct {
	defs  []Definition
	index map[string]int
	rules map[string]compiledRule
	cfg   engineConfig
}

// NewCatalog validates defs, compiles their rules and checks every default
// value against its own constraints.
func NewCatalog(defs []Definition, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
		rules: map[string]compiledRule{},
		cfg:   applyOptions(opts),
	}
	for _, def := range defs {
		if err := def.check(); err != nil {
			return nil, err
		}
		if _, dup := c.index[def.Key]; dup {
			return nil, fmt.Errorf("settings: duplicate definition %q", def.Key)
		}
		if rule := def.Constraints.Rule; rule != "" {
			engine := normalizeEngine(def.Constraints.Engine)
			evaluator, err := c.cfg.evaluatorFor(engine)
			if err != nil {
				return nil, fmt.Errorf("settings: definition %q: %w", def.Key, err)
			}
			compiled, err := evaluator.Compile(rule)
			if err != nil {
				return nil, fmt.Errorf("settings: definition %q rule: %w", def.Key, err)
			}
			c.rules[def.Key] = compiledRule{engine: engine, expr: rule, rule: compiled}
		}
		def.AllowedScopes = append([]ScopeType(nil), def.AllowedScopes...)
		def.Constraints.Options = append([]string(nil), def.Constraints.Options...)
		c.index[def.Key] = len(c.defs)
		c.defs = append(c.defs, def)
		if err := c.Validate(def.Key, ScopeDefault, def.Default); err != nil {
			return nil, fmt.Errorf("settings: definition %q default: %w", def.Key, err)
		}
	}
	return c, nil
}

// Definitions returns the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition registered for key.
func (c *Catalog) Lookup(key string) (Definition, bool) {
	i, ok := c.index[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len reports the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Validate checks value against the type, declarative constraints and rule of
// the definition registered for key.
func (c *Catalog) Validate(key string, scope ScopeType, value Value) error {
	def, ok := c.Lookup(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := def.checkValue(value); err != nil {
		return err
	}
	if rule, ok := c.rules[key]; ok {
		return c.runRule(def, rule, value, scope)
	}
	return nil
}

// Parse converts a decoded payload for key and validates it for scope. Writes
// to a scope the definition does not allow are rejected here.
func (c *Catalog) Parse(key string, scope ScopeType, raw any) (Value, error) {
	def, ok := c.Lookup(key)
	if !ok {
		return Value{}, fmt.Errorf("unknown setting %q", key)
	}
	if !scope.Writable() {
		return Value{}, fmt.Errorf("scope %s is not writable", scope)
	}
	if !def.Allows(scope) {
		return Value{}, fmt.Errorf("setting %q cannot be set at %s scope", key, scope)
	}
	value, err := def.Parse(raw)
	if err != nil {
		return Value{}, err
	}
	if err := c.Validate(key, scope, value); err != nil {
		return Value{}, err
	}
	return value, nil
}
