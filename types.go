package settings

import "time"

// RuleContext carries inputs needed when evaluating a constraint rule.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Scope    ScopeType
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) scopeLabel() string {
	if ctx.Scope != "" {
		return string(ctx.Scope)
	}
	return "unknown"
}

func (ctx RuleContext) scopeBinding() map[string]any {
	if ctx.Scope == "" {
		return nil
	}
	return map[string]any{
		"name":     string(ctx.Scope),
		"label":    ctx.Scope.Label(),
		"priority": ctx.Scope.Priority(),
	}
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

// Option configures an Engine.
type Option func(*engineConfig)

// AnomalyHandler observes stored values that failed validation during
// resolution.
type AnomalyHandler func(key string, scope ScopeType, err error)

type engineConfig struct {
	evaluators   map[string]Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	observer     RuleObserver
	anomalies    AnomalyHandler
	now          func() time.Time
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.observer == nil {
		cfg.observer = ignoreRules{}
	}
	cfg.functions = withBuiltinFunctions(cfg.functions)
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg
}

// WithEvaluator registers e for the named rule engine, replacing the built-in
// one.
func WithEvaluator(engine string, e Evaluator) Option {
	return func(cfg *engineConfig) {
		if e == nil {
			return
		}
		if cfg.evaluators == nil {
			cfg.evaluators = map[string]Evaluator{}
		}
		cfg.evaluators[normalizeEngine(engine)] = e
	}
}

// WithAnomalyHandler reports values that resolution discarded.
func WithAnomalyHandler(handler AnomalyHandler) Option {
	return func(cfg *engineConfig) {
		cfg.anomalies = handler
	}
}

// WithClock overrides the time source bound as `now` in rules.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) {
		cfg.now = now
	}
}
