package settings

import "errors"

const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

var errEmptyRule = errors.New("rule expression is empty")

// EngineOption configures one of the built-in rule engines.
type EngineOption func(*engineBase)

// UseProgramCache stores compiled programs in cache. Keys carry the engine
// name, so one cache can serve every engine.
func UseProgramCache(cache ProgramCache) EngineOption {
	return func(b *engineBase) {
		b.cache = cache
	}
}

// UseFunctions exposes a copy of registry to rules.
func UseFunctions(registry *FunctionRegistry) EngineOption {
	return func(b *engineBase) {
		if registry != nil {
			b.functions = registry.Clone()
		}
	}
}

// engineBase is the state every built-in engine shares.
type engineBase struct {
	name      string
	cache     ProgramCache
	functions *FunctionRegistry
}

func newEngineBase(name string, opts []EngineOption) engineBase {
	b := engineBase{name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// builtinEngines maps engine names to constructors. A constructor returns nil
// when the engine is not compiled into the binary.
var builtinEngines = map[string]func(...EngineOption) Evaluator{
	EngineExpr: NewExprEvaluator,
	EngineCEL:  NewCELEvaluator,
	EngineJS:   NewJSEvaluator,
}

// program returns the program cached under key or compiles and stores it.
func program[P any](b engineBase, key string, compile func() (P, error)) (P, error) {
	full := cacheKey(b.name, key)
	if b.cache != nil {
		if hit, ok := b.cache.Get(full); ok {
			if cached, ok := hit.(P); ok {
				return cached, nil
			}
		}
	}
	compiled, err := compile()
	if err != nil {
		return compiled, err
	}
	if b.cache != nil {
		b.cache.Set(full, compiled)
	}
	return compiled, nil
}

func (b engineBase) functionNames() []string {
	if b.functions == nil {
		return nil
	}
	return b.functions.Names()
}

func (b engineBase) call(name string, args ...any) (any, error) {
	return b.functions.Call(name, args...)
}
