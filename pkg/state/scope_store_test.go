package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
	"github.com/goliatone/go-settings/pkg/state"
)

// countingRows records how often storage was touched.
type countingRows struct {
	*state.MemoryRows
	mu    sync.Mutex
	calls int
}

func newCountingRows() *countingRows {
	return &countingRows{MemoryRows: state.NewMemoryRows()}
}

func (r *countingRows) touch() {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *countingRows) Load(ctx context.Context, id string) (guard.Row, bool, error) {
	r.touch()
	return r.MemoryRows.Load(ctx, id)
}

func (r *countingRows) Insert(ctx context.Context, id string, payload []byte) (guard.Row, bool, error) {
	r.touch()
	return r.MemoryRows.Insert(ctx, id, payload)
}

func (r *countingRows) Swap(ctx context.Context, id string, expected int64, payload []byte) (guard.Row, bool, error) {
	r.touch()
	return r.MemoryRows.Swap(ctx, id, expected, payload)
}

func (r *countingRows) Remove(ctx context.Context, id string, expected int64) (bool, error) {
	r.touch()
	return r.MemoryRows.Remove(ctx, id, expected)
}

func (r *countingRows) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestWriteWithVersionCreatesImplicitly(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.UserRef("projects.viewMode", "acct-1")

	record, err := store.WriteWithVersion(ctx, ref, guard.Expect(1), settings.EnumValue("board"))
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("expected version 1 after create, got %d", record.Version)
	}

	got, ok, err := store.Get(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if !got.Value.Equal(settings.EnumValue("board")) || got.Ref != ref {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestWriteWithVersionRoundTrip(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.GlobalRef("pageSize")

	if _, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.NumberValue(10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	for n := int64(1); n <= 3; n++ {
		record, err := store.WriteWithVersion(ctx, ref, guard.Expect(n), settings.NumberValue(float64(10*(n+1))))
		if err != nil {
			t.Fatalf("write at %d: %v", n, err)
		}
		if record.Version != n+1 {
			t.Fatalf("expected version %d, got %d", n+1, record.Version)
		}
	}
}

func TestWriteWithVersionIsNotIdempotent(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.GlobalRef("theme")
	if _, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.StringValue("light")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.WriteWithVersion(ctx, ref, guard.Expect(1), settings.StringValue("dark")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := store.WriteWithVersion(ctx, ref, guard.Expect(1), settings.StringValue("dark"))
	if !errors.Is(err, guard.ErrVersionConflict) {
		t.Fatalf("expected version conflict on resubmit, got %v", err)
	}
	var guardErr *guard.Error
	if !errors.As(err, &guardErr) || guardErr.Current != 2 || guardErr.Expected != 1 {
		t.Fatalf("expected conflict detail 1 vs 2, got %+v", guardErr)
	}
}

func TestWriteWithVersionCreateRace(t *testing.T) {
	for _, expected := range []guard.Expected{guard.ExpectCreate(), guard.Expect(1)} {
		t.Run(expected.String(), func(t *testing.T) {
			store := state.NewScopeStore(state.NewMemoryRows())
			ref := state.UserRef("projects.viewMode", "acct-1")

			const racers = 10
			results := make([]error, racers)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, results[i] = store.WriteWithVersion(context.Background(), ref, expected, settings.EnumValue("board"))
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			for _, err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, guard.ErrVersionConflict):
				default:
					t.Fatalf("loser must see VERSION_CONFLICT, got %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one creator, got %d", wins)
			}
			record, _, _ := store.Get(context.Background(), ref)
			if record.Version != 1 {
				t.Fatalf("expected the row to end at version 1, got %d", record.Version)
			}
		})
	}
}

func TestWriteWithVersionConcurrentUpdate(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.GlobalRef("theme")
	for n := int64(0); n < 4; n++ {
		expected := guard.Expect(n)
		if n == 0 {
			expected = guard.ExpectCreate()
		}
		if _, err := store.WriteWithVersion(ctx, ref, expected, settings.StringValue("v")); err != nil {
			t.Fatalf("seed %d: %v", n, err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.WriteWithVersion(ctx, ref, guard.Expect(4), settings.StringValue("next"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, guard.ErrVersionConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one win and one conflict, got %d/%d", wins, conflicts)
	}
	record, _, _ := store.Get(ctx, ref)
	if record.Version != 5 {
		t.Fatalf("expected version 5, got %d", record.Version)
	}
}

func TestWriteWithVersionCreateAgainstExistingRow(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.GlobalRef("theme")
	if _, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.StringValue("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.StringValue("b"))
	if !errors.Is(err, guard.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestWriteWithVersionMissingRowAboveInitial(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	_, err := store.WriteWithVersion(context.Background(), state.GlobalRef("theme"), guard.Expect(3), settings.StringValue("a"))
	if !errors.Is(err, guard.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteWithVersionRejectsBeforeStorage(t *testing.T) {
	cases := []struct {
		name     string
		ref      state.Ref
		expected guard.Expected
		value    settings.Value
	}{
		{"version zero", state.GlobalRef("theme"), guard.Expect(0), settings.StringValue("x")},
		{"negative version", state.GlobalRef("theme"), guard.Expect(-2), settings.StringValue("x")},
		{"create above one", state.GlobalRef("theme"), guard.Expected{Version: 2, Create: true}, settings.StringValue("x")},
		{"missing owner", state.Ref{Key: "theme", Scope: settings.ScopeUser}, guard.Expect(1), settings.StringValue("x")},
		{"missing value", state.GlobalRef("theme"), guard.Expect(1), settings.Value{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows := newCountingRows()
			store := state.NewScopeStore(rows)
			_, err := store.WriteWithVersion(context.Background(), tc.ref, tc.expected, tc.value)
			if !errors.Is(err, guard.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if rows.Calls() != 0 {
				t.Fatalf("storage touched %d times", rows.Calls())
			}
		})
	}
}

func TestScopeVersionsAreIndependent(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	refs := []state.Ref{
		state.GlobalRef("theme"),
		state.UserRef("theme", "a"),
		state.UserRef("theme", "b"),
	}
	for _, ref := range refs {
		if _, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.StringValue("x")); err != nil {
			t.Fatalf("create %+v: %v", ref, err)
		}
	}
	if _, err := store.WriteWithVersion(ctx, refs[1], guard.Expect(1), settings.StringValue("y")); err != nil {
		t.Fatalf("update user a: %v", err)
	}
	for i, want := range []int64{1, 2, 1} {
		record, _, _ := store.Get(ctx, refs[i])
		if record.Version != want {
			t.Fatalf("ref %d: expected version %d, got %d", i, want, record.Version)
		}
	}
	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
}

func TestListAllKeepsUndecodableRows(t *testing.T) {
	rows := state.NewMemoryRows()
	store := state.NewScopeStore(rows)
	ctx := context.Background()
	if _, err := store.WriteWithVersion(ctx, state.GlobalRef("theme"), guard.ExpectCreate(), settings.StringValue("x")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := rows.Insert(ctx, "user/a/theme", []byte(`{"type":"string","value":`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := rows.Insert(ctx, "not-a-setting", []byte(`{}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected the valid and the broken record, got %+v", all)
	}
	var broken state.Record
	for _, record := range all {
		if record.Err != nil {
			broken = record
		}
	}
	if broken.Ref != state.UserRef("theme", "a") || broken.Version != 1 || !broken.Value.IsZero() {
		t.Fatalf("broken record should keep its address and version: %+v", broken)
	}
	if _, _, err := store.Get(ctx, state.UserRef("theme", "a")); guard.CodeOf(err) != guard.CodeInternal {
		t.Fatalf("direct read of a broken row should be internal, got %v", err)
	}
}

func TestResetRemovesRowWithVersionCheck(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	ref := state.UserRef("theme", "a")
	if _, err := store.WriteWithVersion(ctx, ref, guard.ExpectCreate(), settings.StringValue("x")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Reset(ctx, ref, 2); !errors.Is(err, guard.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := store.Reset(ctx, ref, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := store.Get(ctx, ref); ok {
		t.Fatalf("row still present after reset")
	}
	if err := store.Reset(ctx, ref, 1); !errors.Is(err, guard.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordsKeepValueTags(t *testing.T) {
	store := state.NewScopeStore(state.NewMemoryRows())
	ctx := context.Background()
	values := map[string]settings.Value{
		"a": settings.StringValue("5"),
		"b": settings.NumberValue(5),
		"c": settings.BoolValue(true),
		"d": settings.EnumValue("board"),
	}
	for key, value := range values {
		if _, err := store.WriteWithVersion(ctx, state.GlobalRef(key), guard.ExpectCreate(), value); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
	}
	for key, want := range values {
		got, _, err := store.Get(ctx, state.GlobalRef(key))
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if !got.Value.Equal(want) {
			t.Fatalf("%s: expected %#v, got %#v", key, want, got.Value)
		}
	}
}
