//go:build js_eval

package settings

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEvaluator runs rules with goja. Every evaluation gets a fresh runtime;
// only the parsed program is shared.
type jsEvaluator struct {
	engineBase
}

// NewJSEvaluator returns the engine selected by `engine: js`.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{engineBase: newEngineBase(EngineJS, opts)}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, ruleError(EngineJS, "", "", errEmptyRule)
	}
	compiled, err := program(e.engineBase, expression, func() (*goja.Program, error) {
		return goja.Compile("rule", fmt.Sprintf("(function(){ return (%s); })()", expression), false)
	})
	if err != nil {
		return nil, ruleError(EngineJS, expression, "", err)
	}
	return &jsRule{evaluator: e, expression: expression, program: compiled}, nil
}

type jsRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	vm := goja.New()
	r.evaluator.bind(vm, ctx)
	value, err := vm.RunProgram(r.program)
	if err != nil {
		return nil, ruleError(EngineJS, r.expression, ctx.Scope, err)
	}
	return value.Export(), nil
}

func (e *jsEvaluator) bind(vm *goja.Runtime, ctx RuleContext) {
	globals := map[string]any{
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
	if binding := ctx.scopeBinding(); binding != nil {
		globals["scope"] = binding
	}
	for key, value := range snapshotAsMap(ctx.Snapshot) {
		globals[key] = value
	}
	if e.functions != nil {
		globals["call"] = func(name string, args ...any) (any, error) {
			return e.call(name, args...)
		}
		for _, name := range e.functionNames() {
			globals[name] = func(args ...any) (any, error) {
				return e.call(name, args...)
			}
		}
	}
	for name, value := range globals {
		_ = vm.Set(name, value)
	}
}

func jsEvaluatorAvailable() bool {
	return true
}
