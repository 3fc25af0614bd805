package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/httpapi"
	"github.com/goliatone/go-settings/internal/metrics"
	"github.com/goliatone/go-settings/pkg/catalog"
	"github.com/goliatone/go-settings/pkg/client"
	"github.com/goliatone/go-settings/pkg/guard"
	"github.com/goliatone/go-settings/pkg/state"
	"github.com/goliatone/go-settings/schema/openapi"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDefinitions() []settings.Definition {
	return []settings.Definition{
		{
			Key:           "theme",
			Type:          settings.TypeEnum,
			Constraints:   settings.Constraints{Options: []string{"light", "dark"}},
			AllowedScopes: []settings.ScopeType{settings.ScopeGlobal, settings.ScopeUser},
			Default:       settings.EnumValue("light"),
		},
		{
			Key:           "pageSize",
			Type:          settings.TypeNumber,
			Constraints:   settings.Constraints{Integer: true},
			AllowedScopes: []settings.ScopeType{settings.ScopeGlobal},
			Default:       settings.NumberValue(25),
		},
	}
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cat, err := settings.NewCatalog(testDefinitions(), settings.WithAnomalyHandler(m.Anomaly))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	opts := []catalog.Option{catalog.WithLogger(logger), catalog.WithRecorder(m)}
	return httpapi.New(httpapi.Deps{
		Settings:  state.NewService(cat, state.NewScopeStore(state.NewMemoryRows()), state.WithLogger(logger), state.WithRecorder(m)),
		Statuses:  catalog.NewStatuses(state.NewMemoryRows(), opts...),
		Relations: catalog.NewRelations(state.NewMemoryRows(), opts...),
		Templates: catalog.NewTemplates(state.NewMemoryRows(), opts...),
		Schema:    openapi.NewGenerator(),
		Gatherer:  reg,
		Logger:    logger,
	})
}

type call struct {
	method  string
	path    string
	account string
	body    string
}

func do(t *testing.T, engine http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.account != "" {
		req.Header.Set(client.HeaderAccountID, c.account)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code guard.Code) client.ErrorBody {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decode[client.ErrorBody](t, rec)
	if body.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, body.Code, body.Message)
	}
	if body.Message == "" {
		t.Fatalf("expected a message")
	}
	return body
}

func TestStatusFor(t *testing.T) {
	cases := map[guard.Code]int{
		guard.CodeValidation:       http.StatusUnprocessableEntity,
		guard.CodeNotFound:         http.StatusNotFound,
		guard.CodeVersionConflict:  http.StatusConflict,
		guard.CodeBusinessConflict: http.StatusConflict,
		guard.CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := httpapi.StatusFor(code); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestSettingsLifecycle(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, call{method: http.MethodGet, path: "/api/settings", account: "acct-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	table := decode[[]settings.ResolvedSetting](t, rec)
	if len(table) != 2 || table[0].ResolvedScope != settings.ScopeDefault {
		t.Fatalf("unexpected table: %+v", table)
	}

	rec = do(t, engine, call{method: http.MethodPut, path: "/api/settings", account: "acct-1",
		body: `{"key":"theme","scopeType":"USER","value":"dark","version":1,"create":true}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	table = decode[[]settings.ResolvedSetting](t, rec)
	if table[0].Key != "theme" || table[0].UserVersion != 1 || table[0].ResolvedValue.Text() != "dark" {
		t.Fatalf("unexpected theme row: %+v", table[0])
	}

	rec = do(t, engine, call{method: http.MethodPut, path: "/api/settings", account: "acct-1",
		body: `{"key":"theme","scopeType":"USER","value":"light","version":1}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, call{method: http.MethodPut, path: "/api/settings", account: "acct-1",
		body: `{"key":"theme","scopeType":"USER","value":"dark","version":1}`})
	body := expectError(t, rec, http.StatusConflict, guard.CodeVersionConflict)
	if body.Expected != 1 || body.Current != 2 {
		t.Fatalf("unexpected versions: %+v", body)
	}

	rec = do(t, engine, call{method: http.MethodGet, path: "/api/settings/trace?key=theme", account: "acct-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("trace: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/settings", account: "acct-1",
		body: `{"key":"theme","scopeType":"USER","version":2}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/settings", account: "acct-1",
		body: `{"key":"theme","scopeType":"USER","version":2}`})
	expectError(t, rec, http.StatusNotFound, guard.CodeNotFound)
}

func TestSettingsValidation(t *testing.T) {
	engine := newEngine(t)
	cases := []struct {
		name string
		body string
	}{
		{"unknown key", `{"key":"nope","scopeType":"GLOBAL","value":"x","version":1}`},
		{"option outside enum", `{"key":"theme","scopeType":"GLOBAL","value":"blue","version":1}`},
		{"wrong type", `{"key":"pageSize","scopeType":"GLOBAL","value":"10","version":1}`},
		{"fractional number", `{"key":"pageSize","scopeType":"GLOBAL","value":10.5,"version":1}`},
		{"scope not allowed", `{"key":"pageSize","scopeType":"USER","value":10,"version":1}`},
		{"default scope", `{"key":"theme","scopeType":"DEFAULT","value":"dark","version":1}`},
		{"missing version", `{"key":"theme","scopeType":"GLOBAL","value":"dark"}`},
		{"zero version", `{"key":"theme","scopeType":"GLOBAL","value":"dark","version":0}`},
		{"string version", `{"key":"theme","scopeType":"GLOBAL","value":"dark","version":"1"}`},
		{"missing key", `{"scopeType":"GLOBAL","value":"dark","version":1}`},
		{"malformed", `{"key":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, engine, call{method: http.MethodPut, path: "/api/settings", account: "acct-1", body: tc.body})
			expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)
		})
	}
}

func TestSettingsWriteMissingRowAtLaterVersion(t *testing.T) {
	engine := newEngine(t)
	rec := do(t, engine, call{method: http.MethodPut, path: "/api/settings",
		body: `{"key":"theme","scopeType":"GLOBAL","value":"dark","version":4}`})
	expectError(t, rec, http.StatusNotFound, guard.CodeNotFound)
}

func TestTraceRequiresKey(t *testing.T) {
	engine := newEngine(t)
	rec := do(t, engine, call{method: http.MethodGet, path: "/api/settings/trace"})
	expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)
}

func TestStatusRoutes(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, call{method: http.MethodPost, path: "/api/statuses", account: "acct-1",
		body: `{"code":"open","label":"Open","isActive":true,"isDefault":true}`})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	open := decode[catalog.Status](t, rec)
	if open.Version != 1 || open.ID == "" {
		t.Fatalf("unexpected status: %+v", open)
	}

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/statuses",
		body: `{"code":"OPEN","label":"Again","isActive":true}`})
	expectError(t, rec, http.StatusConflict, guard.CodeBusinessConflict)

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/statuses", body: `{"label":"No code"}`})
	body := expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)
	if !strings.Contains(body.Message, "code") {
		t.Fatalf("expected field name in message, got %q", body.Message)
	}

	rec = do(t, engine, call{method: http.MethodPut, path: "/api/statuses/" + open.ID,
		body: `{"version":1,"label":"Opened"}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/statuses/" + open.ID + "/toggle-active",
		body: `{"version":1}`})
	expectError(t, rec, http.StatusConflict, guard.CodeVersionConflict)

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/statuses/" + open.ID + "/toggle-active",
		body: `{"version":2}`})
	expectError(t, rec, http.StatusConflict, guard.CodeBusinessConflict)

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/statuses/" + open.ID, body: `{"version":2}`})
	expectError(t, rec, http.StatusConflict, guard.CodeBusinessConflict)

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/statuses/missing", body: `{"version":1}`})
	expectError(t, rec, http.StatusNotFound, guard.CodeNotFound)

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/statuses/" + open.ID})
	expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/statuses",
		body: `{"code":"done","label":"Done","isActive":true}`})
	done := decode[catalog.Status](t, rec)
	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/statuses/" + done.ID, body: `{"version":1}`})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, engine, call{method: http.MethodGet, path: "/api/statuses"})
	if list := decode[[]catalog.Status](t, rec); len(list) != 1 || list[0].Label != "Opened" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestRelationRoutes(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, call{method: http.MethodPost, path: "/api/relations", body: `{"id":"watchers","members":["a"]}`})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, call{method: http.MethodPost, path: "/api/relations/watchers/members", body: `{"member":"b","version":1}`})
	if set := decode[catalog.RelationSet](t, rec); set.Version != 2 || !set.Has("b") {
		t.Fatalf("unexpected set: %+v", set)
	}
	rec = do(t, engine, call{method: http.MethodPost, path: "/api/relations/watchers/members", body: `{"member":"b","version":2}`})
	expectError(t, rec, http.StatusConflict, guard.CodeBusinessConflict)

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/relations/watchers/members/a", body: `{"version":2}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/relations/watchers/members/a", body: `{"version":3}`})
	body := expectError(t, rec, http.StatusConflict, guard.CodeBusinessConflict)
	if !strings.Contains(body.Message, "already removed") {
		t.Fatalf("unexpected message %q", body.Message)
	}

	rec = do(t, engine, call{method: http.MethodGet, path: "/api/relations/missing"})
	expectError(t, rec, http.StatusNotFound, guard.CodeNotFound)
}

func TestTemplateRoutes(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, call{method: http.MethodPost, path: "/api/templates", body: `{"name":"greet","body":"{{ .name"}`})
	expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/templates", body: `{"name":"greet","body":"Hi {{ .name }}"}`})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	tpl := decode[catalog.Template](t, rec)

	rec = do(t, engine, call{method: http.MethodPost, path: "/api/templates/" + tpl.ID + "/render", body: `{"data":{"name":"Ada"}}`})
	if out := decode[map[string]string](t, rec); out["output"] != "Hi Ada" {
		t.Fatalf("unexpected render: %v", out)
	}
	rec = do(t, engine, call{method: http.MethodPost, path: "/api/templates/" + tpl.ID + "/render", body: `{"data":{}}`})
	expectError(t, rec, http.StatusUnprocessableEntity, guard.CodeValidation)

	rec = do(t, engine, call{method: http.MethodPut, path: "/api/templates/" + tpl.ID, body: `{"version":1,"body":"Hello {{ .name }}"}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, call{method: http.MethodPut, path: "/api/templates/" + tpl.ID, body: `{"version":1,"name":"late"}`})
	expectError(t, rec, http.StatusConflict, guard.CodeVersionConflict)

	rec = do(t, engine, call{method: http.MethodDelete, path: "/api/templates/" + tpl.ID, body: `{"version":2}`})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, engine, call{method: http.MethodGet, path: "/api/templates/" + tpl.ID})
	expectError(t, rec, http.StatusNotFound, guard.CodeNotFound)
}

func TestSchemaHealthAndMetrics(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, call{method: http.MethodGet, path: "/healthz"})
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = do(t, engine, call{method: http.MethodGet, path: "/api/settings/schema"})
	doc := decode[map[string]any](t, rec)
	if _, ok := doc["components"]; !ok {
		t.Fatalf("schema missing components: %v", doc)
	}

	do(t, engine, call{method: http.MethodPut, path: "/api/settings",
		body: `{"key":"pageSize","scopeType":"GLOBAL","value":50,"version":1}`})
	rec = do(t, engine, call{method: http.MethodGet, path: "/metrics"})
	if !bytes.Contains(rec.Body.Bytes(), []byte(`settings_writes_total{result="ok",scope="global"} 1`)) {
		t.Fatalf("write counter missing from metrics:\n%s", rec.Body.String())
	}
}
