package settings

import (
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// Variables every CEL rule may reference regardless of the snapshot.
var celBaseVariables = []string{"value", "key", "scope", "args", "metadata"}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

// celEvaluator runs rules with cel-go. Helpers are reached through
// call("name", [args]). Programs are cached per set of snapshot variable
// names, since a CEL environment declares its variables up front.
type celEvaluator struct {
	engineBase
}

// NewCELEvaluator returns the engine selected by `engine: cel`.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{engineBase: newEngineBase(EngineCEL, opts)}
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

// Compile checks the expression against the base variables so syntax and type
// errors surface when the catalog is built.
func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, ruleError(EngineCEL, "", "", errEmptyRule)
	}
	if _, err := e.loadOrCompile(expression, nil); err != nil {
		return nil, err
	}
	return &celCompiledRule{
		evaluator:  e,
		expression: expression,
	}, nil
}

func (e *celEvaluator) loadOrCompile(expression string, snapshot map[string]any) (*celProgram, error) {
	names := celVariableNames(snapshot)
	key := strings.Join(names, ",") + "|" + expression
	compiled, err := program(e.engineBase, key, func() (*celProgram, error) {
		env, err := e.buildEnv(names)
		if err != nil {
			return nil, err
		}
		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, issues.Err()
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, err
		}
		return &celProgram{env: env, program: prg}, nil
	})
	if err != nil {
		return nil, ruleError(EngineCEL, expression, "", err)
	}
	return compiled, nil
}

func celVariableNames(snapshot map[string]any) []string {
	seen := map[string]bool{"now": true}
	names := make([]string, 0, len(celBaseVariables)+len(snapshot))
	for _, name := range celBaseVariables {
		seen[name] = true
		names = append(names, name)
	}
	extra := make([]string, 0, len(snapshot))
	for name := range snapshot {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func (e *celEvaluator) buildEnv(names []string) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
	}
	for _, name := range names {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	if e.functions != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_dyn",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.FunctionBinding(e.callBinding()),
		)))
	}
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) activation(ctx RuleContext, snapshot map[string]any) map[string]any {
	activation := map[string]any{
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
		"scope":    ctx.scopeLabel(),
		"value":    nil,
		"key":      "",
	}
	for key, value := range snapshot {
		activation[key] = value
	}
	return activation
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	snapshot := snapshotAsMap(ctx.Snapshot)
	compiled, err := r.evaluator.loadOrCompile(r.expression, snapshot)
	if err != nil {
		return nil, err
	}
	out, _, err := compiled.program.Eval(r.evaluator.activation(ctx, snapshot))
	if err != nil {
		return nil, ruleError(EngineCEL, r.expression, ctx.Scope, err)
	}
	return out.Value(), nil
}

// callBinding exposes registry helpers as call("name", [args...]).
func (e *celEvaluator) callBinding() functions.FunctionOp {
	return func(values ...ref.Val) ref.Val {
		if len(values) != 2 {
			return types.NewErr("settings: call requires a function name and an argument list")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("settings: call name must be string")
		}
		list, ok := values[1].(traits.Lister)
		if !ok {
			return types.NewErr("settings: call arguments must be a list")
		}
		size := int(list.Size().(types.Int))
		args := make([]any, 0, size)
		for i := 0; i < size; i++ {
			args = append(args, list.Get(types.Int(i)).Value())
		}
		result, err := e.call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
