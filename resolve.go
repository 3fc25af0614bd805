package settings

import "fmt"

// Identity is the caller a table is resolved for.
type Identity struct {
	AccountID string `json:"accountId"`
	RoleCode  string `json:"roleCode,omitempty"`
	RoleKey   string `json:"roleKey,omitempty"`
}

// ScopedValue is one stored override. OwnerID is set for USER rows only.
// Err marks a row whose stored payload could not be decoded; Value is zero
// then and the row still claims its scope during resolution.
type ScopedValue struct {
	Key     string    `json:"key"`
	Scope   ScopeType `json:"scopeType"`
	OwnerID string    `json:"ownerId,omitempty"`
	Value   Value     `json:"value"`
	Version int64     `json:"version"`
	Err     error     `json:"-"`
}

// ResolvedSetting is the effective value of one key for one identity along
// with the raw value and version of every stored scope.
type ResolvedSetting struct {
	Definition
	GlobalValue     *Value    `json:"globalValue,omitempty"`
	GlobalVersion   int64     `json:"globalVersion,omitempty"`
	UserValue       *Value    `json:"userValue,omitempty"`
	UserVersion     int64     `json:"userVersion,omitempty"`
	ResolvedValue   Value     `json:"resolvedValue"`
	ResolvedVersion int64     `json:"resolvedVersion,omitempty"`
	ResolvedScope   ScopeType `json:"resolvedScope"`
	RoleCode        string    `json:"roleCode"`
	RoleKey         string    `json:"roleKey"`
	Anomaly         string    `json:"anomaly,omitempty"`
	AnomalyScope    ScopeType `json:"anomalyScope,omitempty"`
}

// VersionFor returns the stored version at scope, or 0 when no row exists.
func (r ResolvedSetting) VersionFor(scope ScopeType) int64 {
	switch scope {
	case ScopeGlobal:
		return r.GlobalVersion
	case ScopeUser:
		return r.UserVersion
	}
	return 0
}

// ValueFor returns the stored value at scope. DEFAULT always has one.
func (r ResolvedSetting) ValueFor(scope ScopeType) (Value, bool) {
	switch scope {
	case ScopeGlobal:
		if r.GlobalValue != nil {
			return *r.GlobalValue, true
		}
	case ScopeUser:
		if r.UserValue != nil {
			return *r.UserValue, true
		}
	case ScopeDefault:
		return r.Default, true
	}
	return Value{}, false
}

// Resolve builds a catalog from defs and resolves values for identity.
func Resolve(defs []Definition, values []ScopedValue, identity Identity, opts ...Option) ([]ResolvedSetting, error) {
	catalog, err := NewCatalog(defs, opts...)
	if err != nil {
		return nil, err
	}
	return catalog.Resolve(values, identity), nil
}

// Resolve computes the effective value of every key in catalog order. USER
// beats GLOBAL beats DEFAULT, considering only scopes the definition allows
// and only the USER rows owned by identity. A winning value that fails
// validation falls back to DEFAULT for that key alone.
func (c *Catalog) Resolve(values []ScopedValue, identity Identity) []ResolvedSetting {
	byKey := c.group(values, identity)
	out := make([]ResolvedSetting, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, c.resolveOne(def, byKey[def.Key], identity))
	}
	return out
}

// ResolveKey resolves a single key.
func (c *Catalog) ResolveKey(key string, values []ScopedValue, identity Identity) (ResolvedSetting, bool) {
	def, ok := c.Lookup(key)
	if !ok {
		return ResolvedSetting{}, false
	}
	return c.resolveOne(def, c.group(values, identity)[key], identity), true
}

type scopeRows map[ScopeType]ScopedValue

func (c *Catalog) group(values []ScopedValue, identity Identity) map[string]scopeRows {
	byKey := make(map[string]scopeRows, len(c.defs))
	for _, v := range values {
		if _, known := c.index[v.Key]; !known {
			continue
		}
		switch v.Scope {
		case ScopeGlobal:
		case ScopeUser:
			if identity.AccountID == "" || v.OwnerID != identity.AccountID {
				continue
			}
		default:
			continue
		}
		rows := byKey[v.Key]
		if rows == nil {
			rows = scopeRows{}
			byKey[v.Key] = rows
		}
		rows[v.Scope] = v
	}
	return byKey
}

func (c *Catalog) resolveOne(def Definition, rows scopeRows, identity Identity) ResolvedSetting {
	out := ResolvedSetting{
		Definition:    def,
		ResolvedValue: def.Default,
		ResolvedScope: ScopeDefault,
		RoleCode:      identity.RoleCode,
		RoleKey:       identity.RoleKey,
	}
	if row, ok := rows[ScopeGlobal]; ok {
		if row.Err == nil {
			value := row.Value
			out.GlobalValue = &value
		}
		out.GlobalVersion = row.Version
	}
	if row, ok := rows[ScopeUser]; ok {
		if row.Err == nil {
			value := row.Value
			out.UserValue = &value
		}
		out.UserVersion = row.Version
	}

	// an undecodable row still wins its scope so a weaker row never
	// surfaces in its place without an anomaly
	var broken error
	for _, scope := range resolutionOrder[1:] {
		row, ok := rows[scope]
		if !ok || !def.Allows(scope) {
			continue
		}
		out.ResolvedValue = row.Value
		out.ResolvedScope = scope
		out.ResolvedVersion = row.Version
		broken = row.Err
	}

	if out.ResolvedScope != ScopeDefault {
		var (
			value Value
			err   = broken
		)
		if err == nil {
			value, err = def.Parse(out.ResolvedValue)
		}
		if err == nil {
			err = c.Validate(def.Key, out.ResolvedScope, value)
		}
		if err != nil {
			out.Anomaly = fmt.Sprintf("%s value discarded: %v", out.ResolvedScope, err)
			out.AnomalyScope = out.ResolvedScope
			if c.cfg.anomalies != nil {
				c.cfg.anomalies(def.Key, out.ResolvedScope, err)
			}
			out.ResolvedValue = def.Default
			out.ResolvedScope = ScopeDefault
			out.ResolvedVersion = 0
		} else {
			out.ResolvedValue = value
		}
	}
	return out
}
