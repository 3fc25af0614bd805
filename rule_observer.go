package settings

import (
	"log/slog"
	"time"
)

// RuleEvaluation describes one constraint rule run against a candidate value.
type RuleEvaluation struct {
	Engine   string
	Key      string
	Expr     string
	Scope    ScopeType
	Duration time.Duration
	Err      error
}

// RuleObserver is told about every rule the catalog evaluates.
type RuleObserver interface {
	ObserveRule(RuleEvaluation)
}

// RuleObserverFunc adapts a function to RuleObserver.
type RuleObserverFunc func(RuleEvaluation)

func (f RuleObserverFunc) ObserveRule(event RuleEvaluation) {
	if f != nil {
		f(event)
	}
}

type ignoreRules struct{}

func (ignoreRules) ObserveRule(RuleEvaluation) {}

// WithRuleObserver attaches observer to the catalog. Nil restores the default
// of observing nothing.
func WithRuleObserver(observer RuleObserver) Option {
	return func(cfg *engineConfig) {
		if observer == nil {
			observer = ignoreRules{}
		}
		cfg.observer = observer
	}
}

// WithSlogRuleObserver logs rule evaluations at debug level and failures at
// warn level.
func WithSlogRuleObserver(logger *slog.Logger) Option {
	if logger == nil {
		return WithRuleObserver(nil)
	}
	return WithRuleObserver(RuleObserverFunc(func(event RuleEvaluation) {
		attrs := []any{
			"key", event.Key,
			"engine", event.Engine,
			"rule", event.Expr,
			"scope", string(event.Scope),
			"duration", event.Duration,
		}
		if event.Err != nil {
			logger.Warn("settings rule failed", append(attrs, "error", event.Err)...)
			return
		}
		logger.Debug("settings rule evaluated", attrs...)
	}))
}
