package settings

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError reports a constraint rule that failed to compile or run.
// Key and Scope are empty when the rule was evaluated outside a catalog.
type EvaluationError struct {
	Engine string
	Key    string
	Expr   string
	Scope  ScopeType
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("settings: ")
	if e.Key != "" {
		b.WriteString(e.Key + ": ")
	}
	fmt.Fprintf(&b, "%s rule", e.Engine)
	if e.Expr != "" {
		fmt.Fprintf(&b, " %q", e.Expr)
	}
	if e.Scope != "" {
		fmt.Fprintf(&b, " at %s", e.Scope)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ruleError attaches rule metadata to err. Fields already set by an inner
// layer are kept.
func ruleError(engine, expr string, scope ScopeType, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		return &EvaluationError{Engine: engine, Expr: expr, Scope: scope, Err: err}
	}
	if evalErr.Engine == "" {
		evalErr.Engine = engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = expr
	}
	if evalErr.Scope == "" {
		evalErr.Scope = scope
	}
	return evalErr
}
