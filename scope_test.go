package settings

import "testing"

func TestParseScopeType(t *testing.T) {
	for _, raw := range []string{"user", " USER ", "User"} {
		got, err := ParseScopeType(raw)
		if err != nil || got != ScopeUser {
			t.Fatalf("%q: expected USER, got %q (%v)", raw, got, err)
		}
	}
	if _, err := ParseScopeType("TENANT"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}

	var s ScopeType
	if err := s.UnmarshalText([]byte("global")); err != nil || s != ScopeGlobal {
		t.Fatalf("unmarshal: %q %v", s, err)
	}
}

func TestScopePriorities(t *testing.T) {
	if !(ScopeUser.Priority() > ScopeGlobal.Priority() && ScopeGlobal.Priority() > ScopeDefault.Priority()) {
		t.Fatalf("priorities out of order")
	}
	if ScopeDefault.Writable() || !ScopeGlobal.Writable() || !ScopeUser.Writable() {
		t.Fatalf("unexpected writable scopes")
	}
	if ScopeType("x").Priority() != 0 || ScopeType("x").Label() != "Unknown" {
		t.Fatalf("unknown scope should have zero priority")
	}
}
