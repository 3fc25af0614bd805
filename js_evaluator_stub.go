//go:build !js_eval

package settings

// NewJSEvaluator returns nil: goja rules need the js_eval build tag. Catalogs
// report rules for this engine as ErrNoEvaluator.
func NewJSEvaluator(...EngineOption) Evaluator { return nil }

func jsEvaluatorAvailable() bool { return false }
