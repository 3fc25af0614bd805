package settings

import (
	"fmt"
	"strings"
)

// ScopeType names the tier a value lives in. DEFAULT is built into the
// definition; GLOBAL and USER are stored rows.
type ScopeType string

const (
	ScopeDefault ScopeType = "DEFAULT"
	ScopeGlobal  ScopeType = "GLOBAL"
	ScopeUser    ScopeType = "USER"
)

const (
	// Fixed priorities. Higher numbers win during resolution.
	ScopePriorityDefault = 100
	ScopePriorityGlobal  = 200
	ScopePriorityUser    = 300
)

// ParseScopeType converts a wire value into a ScopeType. Matching is case
// insensitive.
func ParseScopeType(value string) (ScopeType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(ScopeDefault):
		return ScopeDefault, nil
	case string(ScopeGlobal):
		return ScopeGlobal, nil
	case string(ScopeUser):
		return ScopeUser, nil
	default:
		return "", fmt.Errorf("settings: unknown scope %q", value)
	}
}

// Priority returns the precedence of s.
func (s ScopeType) Priority() int {
	switch s {
	case ScopeUser:
		return ScopePriorityUser
	case ScopeGlobal:
		return ScopePriorityGlobal
	case ScopeDefault:
		return ScopePriorityDefault
	default:
		return 0
	}
}

// Writable reports whether rows can be stored for s.
func (s ScopeType) Writable() bool {
	return s == ScopeGlobal || s == ScopeUser
}

func (s ScopeType) String() string {
	return string(s)
}

// Label returns a human-friendly name for s.
func (s ScopeType) Label() string {
	switch s {
	case ScopeUser:
		return "User"
	case ScopeGlobal:
		return "Global"
	case ScopeDefault:
		return "Defaults"
	default:
		return "Unknown"
	}
}

// UnmarshalText accepts any casing of the known scope names.
func (s *ScopeType) UnmarshalText(text []byte) error {
	parsed, err := ParseScopeType(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// resolutionOrder lists the scopes from weakest to strongest.
var resolutionOrder = []ScopeType{ScopeDefault, ScopeGlobal, ScopeUser}
