package settings

import (
	"encoding/json"
	"fmt"
)

// Trace captures how each scope contributed to the effective value of a key.
type Trace struct {
	Key      string       `json:"key"`
	Resolved ScopeType    `json:"resolved"`
	Layers   []Provenance `json:"layers"`
}

// Provenance details one scope in a trace. Layers are ordered strongest
// first.
type Provenance struct {
	Scope    ScopeType `json:"scope"`
	Priority int       `json:"priority"`
	Allowed  bool      `json:"allowed"`
	Found    bool      `json:"found"`
	Value    *Value    `json:"value,omitempty"`
	Version  int64     `json:"version,omitempty"`
	Anomaly  string    `json:"anomaly,omitempty"`
}

// Trace reports the provenance of key for identity.
func (c *Catalog) Trace(key string, values []ScopedValue, identity Identity) (Trace, error) {
	resolved, ok := c.ResolveKey(key, values, identity)
	if !ok {
		return Trace{}, fmt.Errorf("settings: unknown setting %q", key)
	}
	trace := Trace{Key: key, Resolved: resolved.ResolvedScope}
	for i := len(resolutionOrder) - 1; i >= 0; i-- {
		scope := resolutionOrder[i]
		layer := Provenance{
			Scope:    scope,
			Priority: scope.Priority(),
			Allowed:  resolved.Allows(scope),
			Version:  resolved.VersionFor(scope),
		}
		if value, found := resolved.ValueFor(scope); found {
			layer.Found = true
			layer.Value = &value
		}
		if resolved.Anomaly != "" && scope == resolved.AnomalyScope {
			layer.Found = true
			layer.Anomaly = resolved.Anomaly
		}
		trace.Layers = append(trace.Layers, layer)
	}
	return trace, nil
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
