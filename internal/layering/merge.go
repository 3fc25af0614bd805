// Package layering composes configuration sources. Layers are ordered from
// strongest to weakest, the same way settings scopes resolve.
package layering

// Merge returns a new map holding every key of every layer. When two layers
// set the same key the stronger one wins, except that two nested maps are
// merged recursively. Inputs are not modified.
func Merge(layers ...map[string]any) map[string]any {
	merged := map[string]any{}
	for i := len(layers) - 1; i >= 0; i-- {
		merged = overlay(layers[i], merged)
	}
	return merged
}

func overlay(strong, weak map[string]any) map[string]any {
	result := make(map[string]any, len(weak)+len(strong))
	for key, value := range weak {
		result[key] = clone(value)
	}
	for key, value := range strong {
		strongMap, strongIsMap := value.(map[string]any)
		weakMap, weakIsMap := result[key].(map[string]any)
		if strongIsMap && weakIsMap {
			result[key] = overlay(strongMap, weakMap)
			continue
		}
		result[key] = clone(value)
	}
	return result
}

func clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			out[key] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = clone(child)
		}
		return out
	default:
		return value
	}
}
