package settings

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

// Function is a helper callable from constraint rules.
type Function func(args ...any) (any, error)

// FunctionRegistry holds rule helpers. Names are case insensitive; engines
// see them lower-cased.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{funcs: map[string]Function{}}
}

// Register adds fn under name. Registering a name twice is an error.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return fmt.Errorf("settings: function name is required")
	case fn == nil:
		return fmt.Errorf("settings: function %q has no implementation", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs == nil {
		r.funcs = map[string]Function{}
	}
	if _, taken := r.funcs[name]; taken {
		return fmt.Errorf("settings: function %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *FunctionRegistry) lookup(name string) (Function, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[strings.ToLower(name)]
	return fn, ok
}

// Call runs the helper registered as name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	fn, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("settings: unknown rule function %q", name)
	}
	return fn(args...)
}

// Clone copies the registry so later registrations do not leak between
// catalogs.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &FunctionRegistry{funcs: maps.Clone(r.funcs)}
}

// Names lists the registered names in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.funcs))
}

// WithFunctionRegistry makes a copy of registry available to every built-in
// rule engine.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *engineConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// WithCustomFunction registers one rule helper.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *engineConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// builtinFunctions are available to every catalog unless a caller registered
// the same name first.
//
//	regex(pattern, text) reports whether text matches pattern
//	runes(text)          counts the characters in text
var builtinFunctions = map[string]Function{
	"regex": func(args ...any) (any, error) {
		pattern, text, err := twoStrings("regex", args)
		if err != nil {
			return nil, err
		}
		return regexp.MatchString(pattern, text)
	},
	"runes": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("runes expects 1 argument, got %d", len(args))
		}
		text, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("runes expects a string, got %s", describe(args[0]))
		}
		return float64(utf8.RuneCountInString(text)), nil
	},
}

func withBuiltinFunctions(registry *FunctionRegistry) *FunctionRegistry {
	if registry == nil {
		registry = NewFunctionRegistry()
	}
	for name, fn := range builtinFunctions {
		if _, ok := registry.lookup(name); !ok {
			_ = registry.Register(name, fn)
		}
	}
	return registry
}

func twoStrings(name string, args []any) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
	}
	first, ok1 := args[0].(string)
	second, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("%s expects string arguments", name)
	}
	return first, second, nil
}
