package settings

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator runs rules with github.com/expr-lang/expr. Registered helpers
// are callable by name or through call(name, args...).
type exprEvaluator struct {
	engineBase
}

// NewExprEvaluator returns the default rule engine.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{engineBase: newEngineBase(EngineExpr, opts)}
}

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, ruleError(EngineExpr, "", "", errEmptyRule)
	}
	compiled, err := program(e.engineBase, expression, func() (*exprvm.Program, error) {
		options := []exprlang.Option{
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		}
		for _, name := range e.functionNames() {
			options = append(options, exprlang.Function(name, func(args ...any) (any, error) {
				return e.call(name, args...)
			}))
		}
		return exprlang.Compile(expression, options...)
	})
	if err != nil {
		return nil, ruleError(EngineExpr, expression, "", err)
	}
	return &exprRule{evaluator: e, program: compiled, expression: expression}, nil
}

type exprRule struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (r *exprRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	result, err := exprlang.Run(r.program, r.evaluator.environment(ctx))
	if err != nil {
		return nil, ruleError(EngineExpr, r.expression, ctx.Scope, err)
	}
	return result, nil
}

func (e *exprEvaluator) environment(ctx RuleContext) map[string]any {
	env := map[string]any{
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
	if binding := ctx.scopeBinding(); binding != nil {
		env["scope"] = binding
	}
	for key, value := range snapshotAsMap(ctx.Snapshot) {
		env[key] = value
	}
	if e.functions != nil {
		env["call"] = func(name string, args ...any) (any, error) {
			return e.call(name, args...)
		}
	}
	return env
}

func snapshotAsMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}
