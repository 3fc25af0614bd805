package settings

import (
	"errors"
	"strings"
	"testing"
)

func resolveCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	cat, err := NewCatalog([]Definition{
		themeDefinition(),
		{
			Key:           "digest",
			Type:          TypeBoolean,
			AllowedScopes: []ScopeType{ScopeUser},
			Default:       BoolValue(true),
		},
	}, opts...)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func TestResolvePrecedence(t *testing.T) {
	cat := resolveCatalog(t)
	global := ScopedValue{Key: "theme", Scope: ScopeGlobal, Value: EnumValue("dark"), Version: 3}
	mine := ScopedValue{Key: "theme", Scope: ScopeUser, OwnerID: "acct-1", Value: EnumValue("light"), Version: 2}
	theirs := ScopedValue{Key: "theme", Scope: ScopeUser, OwnerID: "acct-2", Value: EnumValue("dark"), Version: 9}

	cases := []struct {
		name      string
		values    []ScopedValue
		identity  Identity
		wantValue string
		wantScope ScopeType
		wantVer   int64
	}{
		{"default only", nil, Identity{AccountID: "acct-1"}, "light", ScopeDefault, 0},
		{"global beats default", []ScopedValue{global}, Identity{AccountID: "acct-1"}, "dark", ScopeGlobal, 3},
		{"user beats global", []ScopedValue{global, mine}, Identity{AccountID: "acct-1"}, "light", ScopeUser, 2},
		{"order does not matter", []ScopedValue{mine, global}, Identity{AccountID: "acct-1"}, "light", ScopeUser, 2},
		{"other owners ignored", []ScopedValue{global, theirs}, Identity{AccountID: "acct-1"}, "dark", ScopeGlobal, 3},
		{"anonymous ignores user rows", []ScopedValue{theirs}, Identity{}, "light", ScopeDefault, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table := cat.Resolve(tc.values, tc.identity)
			if len(table) != 2 || table[0].Key != "theme" || table[1].Key != "digest" {
				t.Fatalf("table not in catalog order: %+v", table)
			}
			got := table[0]
			if got.ResolvedValue.Text() != tc.wantValue || got.ResolvedScope != tc.wantScope || got.ResolvedVersion != tc.wantVer {
				t.Fatalf("expected %s@%s v%d, got %s@%s v%d", tc.wantValue, tc.wantScope, tc.wantVer,
					got.ResolvedValue, got.ResolvedScope, got.ResolvedVersion)
			}
			if got.ResolvedValue.Type() != TypeEnum {
				t.Fatalf("resolved value lost its tag: %s", got.ResolvedValue.Type())
			}
		})
	}
}

func TestResolveReportsEveryScope(t *testing.T) {
	cat := resolveCatalog(t)
	table := cat.Resolve([]ScopedValue{
		{Key: "theme", Scope: ScopeGlobal, Value: EnumValue("dark"), Version: 3},
		{Key: "theme", Scope: ScopeUser, OwnerID: "acct-1", Value: EnumValue("light"), Version: 2},
		{Key: "unknown", Scope: ScopeGlobal, Value: StringValue("x"), Version: 1},
	}, Identity{AccountID: "acct-1", RoleCode: "admin", RoleKey: "org"})

	theme := table[0]
	if theme.GlobalVersion != 3 || theme.UserVersion != 2 {
		t.Fatalf("unexpected versions: %+v", theme)
	}
	if v, ok := theme.ValueFor(ScopeGlobal); !ok || v.Text() != "dark" {
		t.Fatalf("global value missing")
	}
	if theme.VersionFor(ScopeDefault) != 0 {
		t.Fatalf("DEFAULT has no version")
	}
	if theme.RoleCode != "admin" || theme.RoleKey != "org" {
		t.Fatalf("role not echoed: %+v", theme)
	}
}

func TestResolveSkipsDisallowedScope(t *testing.T) {
	cat := resolveCatalog(t)
	table := cat.Resolve([]ScopedValue{
		{Key: "digest", Scope: ScopeGlobal, Value: BoolValue(false), Version: 1},
	}, Identity{AccountID: "acct-1"})
	digest := table[1]
	if digest.ResolvedScope != ScopeDefault || !digest.ResolvedValue.Bool() {
		t.Fatalf("GLOBAL row should not take part: %+v", digest)
	}
	if digest.GlobalValue == nil {
		t.Fatalf("stored row should still be reported")
	}
}

func TestResolveFallsBackOnInvalidStoredValue(t *testing.T) {
	var reported []string
	cat := resolveCatalog(t, WithAnomalyHandler(func(key string, scope ScopeType, err error) {
		reported = append(reported, key+"@"+string(scope))
	}))
	table := cat.Resolve([]ScopedValue{
		{Key: "theme", Scope: ScopeGlobal, Value: EnumValue("dark"), Version: 1},
		{Key: "theme", Scope: ScopeUser, OwnerID: "acct-1", Value: EnumValue("purple"), Version: 4},
		{Key: "digest", Scope: ScopeUser, OwnerID: "acct-1", Value: BoolValue(false), Version: 1},
	}, Identity{AccountID: "acct-1"})

	theme := table[0]
	if theme.ResolvedScope != ScopeDefault || theme.ResolvedValue.Text() != "light" || theme.ResolvedVersion != 0 {
		t.Fatalf("expected DEFAULT fallback, got %+v", theme)
	}
	if !strings.Contains(theme.Anomaly, "USER value discarded") {
		t.Fatalf("unexpected anomaly %q", theme.Anomaly)
	}
	if table[1].ResolvedScope != ScopeUser || table[1].Anomaly != "" {
		t.Fatalf("other keys must be unaffected: %+v", table[1])
	}
	if len(reported) != 1 || reported[0] != "theme@USER" {
		t.Fatalf("unexpected anomaly reports %v", reported)
	}
}

func TestResolveUndecodableRowFallsBack(t *testing.T) {
	var reported []string
	cat := resolveCatalog(t, WithAnomalyHandler(func(key string, scope ScopeType, err error) {
		reported = append(reported, key+"@"+string(scope))
	}))
	values := []ScopedValue{
		{Key: "theme", Scope: ScopeGlobal, Value: EnumValue("dark"), Version: 1},
		{Key: "theme", Scope: ScopeUser, OwnerID: "acct-1", Version: 6, Err: errors.New("bad payload")},
		{Key: "digest", Scope: ScopeUser, OwnerID: "acct-1", Value: BoolValue(false), Version: 1},
	}
	table := cat.Resolve(values, Identity{AccountID: "acct-1"})

	theme := table[0]
	if theme.ResolvedScope != ScopeDefault || theme.ResolvedValue.Text() != "light" {
		t.Fatalf("broken USER row must not let GLOBAL surface: %+v", theme)
	}
	if !strings.Contains(theme.Anomaly, "bad payload") || theme.AnomalyScope != ScopeUser {
		t.Fatalf("unexpected anomaly %q at %s", theme.Anomaly, theme.AnomalyScope)
	}
	if theme.UserValue != nil || theme.UserVersion != 6 {
		t.Fatalf("broken row should keep its version only: %+v", theme)
	}
	if table[1].ResolvedScope != ScopeUser || table[1].ResolvedValue.Bool() {
		t.Fatalf("other keys must be unaffected: %+v", table[1])
	}
	if len(reported) != 1 || reported[0] != "theme@USER" {
		t.Fatalf("unexpected anomaly reports %v", reported)
	}

	trace, err := cat.Trace("theme", values, Identity{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if trace.Layers[0].Anomaly == "" || trace.Layers[0].Value != nil || trace.Layers[0].Version != 6 {
		t.Fatalf("USER layer should carry the anomaly: %+v", trace.Layers[0])
	}
}

func TestResolveFunction(t *testing.T) {
	if _, err := Resolve([]Definition{{Key: ""}}, nil, Identity{}); err == nil {
		t.Fatalf("expected invalid definitions to fail")
	}
	table, err := Resolve([]Definition{themeDefinition()}, nil, Identity{})
	if err != nil || len(table) != 1 {
		t.Fatalf("resolve: %v %v", table, err)
	}
}

func TestTrace(t *testing.T) {
	cat := resolveCatalog(t)
	values := []ScopedValue{
		{Key: "theme", Scope: ScopeGlobal, Value: EnumValue("dark"), Version: 3},
		{Key: "theme", Scope: ScopeUser, OwnerID: "acct-1", Value: EnumValue("purple"), Version: 4},
	}
	trace, err := cat.Trace("theme", values, Identity{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if trace.Resolved != ScopeDefault || len(trace.Layers) != 3 {
		t.Fatalf("unexpected trace %+v", trace)
	}
	order := []ScopeType{ScopeUser, ScopeGlobal, ScopeDefault}
	for i, layer := range trace.Layers {
		if layer.Scope != order[i] || layer.Priority != order[i].Priority() || !layer.Found {
			t.Fatalf("layer %d: %+v", i, layer)
		}
	}
	if trace.Layers[0].Anomaly == "" || trace.Layers[1].Anomaly != "" {
		t.Fatalf("anomaly should be attached to the USER layer only: %+v", trace.Layers)
	}
	if trace.Layers[0].Version != 4 || trace.Layers[1].Version != 3 {
		t.Fatalf("unexpected layer versions")
	}

	raw, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	decoded, err := TraceFromJSON(raw)
	if err != nil || decoded.Key != "theme" || len(decoded.Layers) != 3 || decoded.Layers[1].Value.Text() != "dark" {
		t.Fatalf("round trip: %+v %v", decoded, err)
	}

	if _, err := cat.Trace("missing", values, Identity{}); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
