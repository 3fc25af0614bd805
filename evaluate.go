package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNoEvaluator = errors.New("settings: evaluator not configured")

func normalizeEngine(engine string) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	switch engine {
	case "", EngineExpr:
		return EngineExpr
	case "javascript", "goja":
		return EngineJS
	}
	return engine
}

// evaluatorFor returns the evaluator registered for engine, building the
// built-in one on first use.
func (cfg *engineConfig) evaluatorFor(engine string) (Evaluator, error) {
	engine = normalizeEngine(engine)
	if evaluator, ok := cfg.evaluators[engine]; ok {
		return evaluator, nil
	}
	var evaluator Evaluator
	if build, ok := builtinEngines[engine]; ok {
		evaluator = build(UseProgramCache(cfg.programCache), UseFunctions(cfg.functions))
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEvaluator, engine)
	}
	if cfg.evaluators == nil {
		cfg.evaluators = map[string]Evaluator{}
	}
	cfg.evaluators[engine] = evaluator
	return evaluator, nil
}

// compiledRule pairs a definition rule with its program.
type compiledRule struct {
	engine string
	expr   string
	rule   CompiledRule
}

// runRule evaluates rule for value. Anything other than boolean true rejects
// the value.
func (c *Catalog) runRule(def Definition, rule compiledRule, value Value, scope ScopeType) error {
	ctx := RuleContext{
		Snapshot: map[string]any{
			"value": value.Interface(),
			"key":   def.Key,
		},
		Scope: scope,
	}
	now := c.cfg.now()
	ctx.Now = &now

	start := time.Now()
	result, err := rule.rule.Evaluate(ctx)
	duration := time.Since(start)
	if err != nil {
		err = ruleError(rule.engine, rule.expr, scope, err)
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) && evalErr.Key == "" {
			evalErr.Key = def.Key
		}
	}
	c.cfg.observer.ObserveRule(RuleEvaluation{
		Engine:   rule.engine,
		Key:      def.Key,
		Expr:     rule.expr,
		Scope:    scope,
		Duration: duration,
		Err:      err,
	})
	if err != nil {
		return err
	}
	if ok, isBool := result.(bool); !isBool || !ok {
		return fmt.Errorf("%s rejected by rule %q", value, rule.expr)
	}
	return nil
}
