package state_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
	"github.com/goliatone/go-settings/pkg/state"
	"github.com/goliatone/go-settings/pkg/state/badgerrows"
	"github.com/goliatone/go-settings/pkg/state/sqlrows"
)

type rowBackend struct {
	name string
	open func(t *testing.T) guard.RowStore
}

func rowBackends() []rowBackend {
	return []rowBackend{
		{"memory", func(*testing.T) guard.RowStore { return state.NewMemoryRows() }},
		{"sqlite", func(t *testing.T) guard.RowStore {
			store, err := sqlrows.Open(context.Background(), sqlrows.Config{
				Dialect: sqlrows.SQLite,
				DSN:     filepath.Join(t.TempDir(), "rows.db"),
			})
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		}},
		{"badger", func(t *testing.T) guard.RowStore {
			store, err := badgerrows.Open(badgerrows.InMemoryConfig())
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		}},
	}
}

type anomalyLog struct {
	mu   sync.Mutex
	seen []string
}

func (a *anomalyLog) handle(key string, scope settings.ScopeType, _ error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, key+"@"+string(scope))
}

func TestServiceToleratesUndecodableRows(t *testing.T) {
	for _, backend := range rowBackends() {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			rows := backend.open(t)
			anomalies := &anomalyLog{}
			catalog, err := settings.NewCatalog(testDefinitions(), settings.WithAnomalyHandler(anomalies.handle))
			if err != nil {
				t.Fatalf("catalog: %v", err)
			}
			var logs bytes.Buffer
			store := state.NewScopeStore(rows)
			service := state.NewService(catalog, store,
				state.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
			)

			if _, err := store.WriteWithVersion(ctx, state.GlobalRef("theme"), guard.ExpectCreate(), settings.StringValue("dark")); err != nil {
				t.Fatalf("seed theme: %v", err)
			}
			raw := map[string]string{
				"global/pageSize":              `{"key":"pageSize","scope":"GLOBAL","type":"number","value":"oops"}`,
				"user/alice/projects.viewMode": `{not json`,
				"stray":                        `{}`,
			}
			for id, body := range raw {
				if _, ok, err := rows.Insert(ctx, id, []byte(body)); err != nil || !ok {
					t.Fatalf("insert %s: ok=%t err=%v", id, ok, err)
				}
			}

			alice := settings.Identity{AccountID: "alice"}
			table, err := service.Table(ctx, alice)
			if err != nil {
				t.Fatalf("table must survive a bad row: %v", err)
			}
			if theme := find(t, table, "theme"); theme.ResolvedScope != settings.ScopeGlobal || theme.ResolvedValue.Text() != "dark" {
				t.Fatalf("valid key should still resolve: %+v", theme)
			}
			pageSize := find(t, table, "pageSize")
			if pageSize.ResolvedScope != settings.ScopeDefault || pageSize.ResolvedValue.Number() != 25 {
				t.Fatalf("pageSize should fall back to DEFAULT: %+v", pageSize)
			}
			if !strings.Contains(pageSize.Anomaly, "GLOBAL value discarded") || pageSize.GlobalVersion != 1 {
				t.Fatalf("pageSize anomaly not reported: %+v", pageSize)
			}
			viewMode := find(t, table, "projects.viewMode")
			if viewMode.ResolvedScope != settings.ScopeDefault || viewMode.AnomalyScope != settings.ScopeUser {
				t.Fatalf("viewMode should fall back to DEFAULT: %+v", viewMode)
			}

			anomalies.mu.Lock()
			seen := strings.Join(anomalies.seen, ",")
			anomalies.mu.Unlock()
			if seen != "projects.viewMode@USER,pageSize@GLOBAL" {
				t.Fatalf("unexpected anomaly reports %q", seen)
			}
			if !strings.Contains(logs.String(), "settings row unreadable") {
				t.Fatalf("bad rows should be logged: %s", logs.String())
			}

			trace, err := service.Trace(ctx, "projects.viewMode", alice)
			if err != nil {
				t.Fatalf("trace: %v", err)
			}
			if trace.Layers[0].Scope != settings.ScopeUser || trace.Layers[0].Anomaly == "" {
				t.Fatalf("USER layer should carry the anomaly: %+v", trace.Layers)
			}

			// the stored version lets a client overwrite the bad row
			table, err = service.Write(ctx, alice, state.WriteRequest{
				Key:      "pageSize",
				Scope:    settings.ScopeGlobal,
				Value:    10.0,
				Expected: guard.Expect(pageSize.GlobalVersion),
			})
			if err != nil {
				t.Fatalf("repair write: %v", err)
			}
			repaired := find(t, table, "pageSize")
			if repaired.ResolvedScope != settings.ScopeGlobal || repaired.ResolvedValue.Number() != 10 || repaired.Anomaly != "" {
				t.Fatalf("repair did not take: %+v", repaired)
			}
			if repaired.GlobalVersion != 2 {
				t.Fatalf("expected version 2 after repair, got %d", repaired.GlobalVersion)
			}
			if !strings.Contains(logs.String(), "settings previous value unavailable") {
				t.Fatalf("failed previous-value read should be logged: %s", logs.String())
			}
		})
	}
}
