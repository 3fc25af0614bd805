package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
)

// EntitySetting is the entity name used in guard errors raised for settings.
const EntitySetting = "setting"

// Ref identifies one stored override: a key at GLOBAL scope, or a key owned by
// one account at USER scope.
type Ref struct {
	Key     string
	Scope   settings.ScopeType
	OwnerID string
}

// GlobalRef addresses the GLOBAL row of key.
func GlobalRef(key string) Ref {
	return Ref{Key: key, Scope: settings.ScopeGlobal}
}

// UserRef addresses the USER row of key owned by ownerID.
func UserRef(key, ownerID string) Ref {
	return Ref{Key: key, Scope: settings.ScopeUser, OwnerID: ownerID}
}

// Validate checks that r can address a stored row.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return guard.Validation(EntitySetting, "", "key is required")
	}
	if strings.Contains(r.Key, "/") {
		return guard.Validation(EntitySetting, r.Key, "key must not contain '/'")
	}
	switch r.Scope {
	case settings.ScopeGlobal:
		if r.OwnerID != "" {
			return guard.Validation(EntitySetting, r.Key, "GLOBAL rows have no owner")
		}
	case settings.ScopeUser:
		if strings.TrimSpace(r.OwnerID) == "" {
			return guard.Validation(EntitySetting, r.Key, "USER rows require an owner")
		}
		if strings.Contains(r.OwnerID, "/") {
			return guard.Validation(EntitySetting, r.Key, "owner must not contain '/'")
		}
	default:
		return guard.Validation(EntitySetting, r.Key, "scope %q is not writable", r.Scope)
	}
	return nil
}

// Identifier returns the canonical storage key, `global/<key>` or
// `user/<owner>/<key>`.
func (r Ref) Identifier() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.Scope == settings.ScopeGlobal {
		return fmt.Sprintf("global/%s", r.Key), nil
	}
	return fmt.Sprintf("user/%s/%s", r.OwnerID, r.Key), nil
}

// ParseIdentifier is the inverse of Identifier.
func ParseIdentifier(id string) (Ref, error) {
	parts := strings.Split(id, "/")
	var ref Ref
	switch {
	case len(parts) == 2 && parts[0] == "global":
		ref = GlobalRef(parts[1])
	case len(parts) == 3 && parts[0] == "user":
		ref = UserRef(parts[2], parts[1])
	default:
		return Ref{}, fmt.Errorf("state: malformed identifier %q", id)
	}
	if err := ref.Validate(); err != nil {
		return Ref{}, fmt.Errorf("state: identifier %q: %w", id, err)
	}
	return ref, nil
}

// Record is a stored override together with its version. Err is set by
// ListAll for a row whose payload could not be decoded.
type Record struct {
	Ref
	Value     settings.Value
	Version   int64
	UpdatedAt time.Time
	Err       error
}

// Scoped converts r into the shape the resolution engine consumes.
func (r Record) Scoped() settings.ScopedValue {
	return settings.ScopedValue{
		Key:     r.Key,
		Scope:   r.Scope,
		OwnerID: r.OwnerID,
		Value:   r.Value,
		Version: r.Version,
		Err:     r.Err,
	}
}

// Scoped converts records for resolution.
func Scoped(records []Record) []settings.ScopedValue {
	out := make([]settings.ScopedValue, 0, len(records))
	for _, record := range records {
		out = append(out, record.Scoped())
	}
	return out
}

// payload is the JSON document stored in a row. The value type travels with
// the row so values decode back into the same tag.
type payload struct {
	Key   string             `json:"key"`
	Scope settings.ScopeType `json:"scope"`
	Owner string             `json:"owner,omitempty"`
	Type  settings.ValueType `json:"type"`
	Value json.RawMessage    `json:"value"`
}

func encodeRecord(ref Ref, value settings.Value) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload{
		Key:   ref.Key,
		Scope: ref.Scope,
		Owner: ref.OwnerID,
		Type:  value.Type(),
		Value: raw,
	})
}

// brokenRecord keeps the address and version of a row that failed to decode.
// The address comes from the row ID since the payload cannot be trusted.
func brokenRecord(row guard.Row, cause error) (Record, bool) {
	ref, err := ParseIdentifier(row.ID)
	if err != nil {
		return Record{}, false
	}
	return Record{Ref: ref, Version: row.Version, UpdatedAt: row.UpdatedAt, Err: cause}, true
}

func decodeRecord(row guard.Row) (Record, error) {
	var doc payload
	if err := json.Unmarshal(row.Payload, &doc); err != nil {
		return Record{}, fmt.Errorf("state: decode %q: %w", row.ID, err)
	}
	value, err := settings.DecodeValue(doc.Type, doc.Value)
	if err != nil {
		return Record{}, fmt.Errorf("state: decode %q value: %w", row.ID, err)
	}
	return Record{
		Ref:       Ref{Key: doc.Key, Scope: doc.Scope, OwnerID: doc.Owner},
		Value:     value,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
