// Package rowstoretest holds the behavioural contract every guard.RowStore
// implementation must satisfy. Backends call Run from their own tests.
package rowstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-settings/pkg/guard"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) guard.RowStore

// Run exercises factory against the RowStore contract.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	t.Run("insert then load", func(t *testing.T) { testInsertLoad(t, factory(t)) })
	t.Run("insert twice", func(t *testing.T) { testInsertTwice(t, factory(t)) })
	t.Run("swap increments", func(t *testing.T) { testSwap(t, factory(t)) })
	t.Run("stale swap", func(t *testing.T) { testStaleSwap(t, factory(t)) })
	t.Run("swap missing", func(t *testing.T) { testSwapMissing(t, factory(t)) })
	t.Run("remove", func(t *testing.T) { testRemove(t, factory(t)) })
	t.Run("list ordered", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("concurrent swap", func(t *testing.T) { testConcurrentSwap(t, factory(t)) })
	t.Run("concurrent insert", func(t *testing.T) { testConcurrentInsert(t, factory(t)) })
}

func testInsertLoad(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	row, ok, err := rows.Insert(ctx, "global/theme", []byte(`{"v":1}`))
	if err != nil || !ok {
		t.Fatalf("insert: ok=%t err=%v", ok, err)
	}
	if row.Version != guard.InitialVersion {
		t.Fatalf("expected version %d, got %d", guard.InitialVersion, row.Version)
	}
	loaded, ok, err := rows.Load(ctx, "global/theme")
	if err != nil || !ok {
		t.Fatalf("load: ok=%t err=%v", ok, err)
	}
	if string(loaded.Payload) != `{"v":1}` || loaded.Version != 1 || loaded.ID != "global/theme" {
		t.Fatalf("unexpected row: %+v", loaded)
	}
	if _, ok, err := rows.Load(ctx, "global/missing"); err != nil || ok {
		t.Fatalf("expected missing row, ok=%t err=%v", ok, err)
	}
}

func testInsertTwice(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	if _, ok, err := rows.Insert(ctx, "a", []byte(`{"n":1}`)); err != nil || !ok {
		t.Fatalf("first insert: ok=%t err=%v", ok, err)
	}
	if _, ok, err := rows.Insert(ctx, "a", []byte(`{"n":2}`)); err != nil || ok {
		t.Fatalf("second insert must report ok=false, got ok=%t err=%v", ok, err)
	}
	loaded, _, _ := rows.Load(ctx, "a")
	if string(loaded.Payload) != `{"n":1}` {
		t.Fatalf("second insert overwrote payload: %s", loaded.Payload)
	}
}

func testSwap(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	mustInsert(t, rows, "a")
	for expected := int64(1); expected <= 3; expected++ {
		row, ok, err := rows.Swap(ctx, "a", expected, []byte(fmt.Sprintf(`{"n":%d}`, expected+1)))
		if err != nil || !ok {
			t.Fatalf("swap at %d: ok=%t err=%v", expected, ok, err)
		}
		if row.Version != expected+1 {
			t.Fatalf("expected version %d, got %d", expected+1, row.Version)
		}
	}
	loaded, _, _ := rows.Load(ctx, "a")
	if loaded.Version != 4 || string(loaded.Payload) != `{"n":4}` {
		t.Fatalf("unexpected row after swaps: %+v", loaded)
	}
}

func testStaleSwap(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	mustInsert(t, rows, "a")
	if _, ok, _ := rows.Swap(ctx, "a", 1, []byte(`{}`)); !ok {
		t.Fatalf("first swap failed")
	}
	if _, ok, err := rows.Swap(ctx, "a", 1, []byte(`{"stale":true}`)); err != nil || ok {
		t.Fatalf("stale swap must report ok=false, got ok=%t err=%v", ok, err)
	}
	err := guard.Disambiguate(ctx, rows, "thing", "a", 1)
	if guard.CodeOf(err) != guard.CodeVersionConflict {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func testSwapMissing(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	if _, ok, err := rows.Swap(ctx, "ghost", 1, []byte(`{}`)); err != nil || ok {
		t.Fatalf("swap on missing row must report ok=false, got ok=%t err=%v", ok, err)
	}
	if _, ok, _ := rows.Load(ctx, "ghost"); ok {
		t.Fatalf("swap must not create rows")
	}
	err := guard.Disambiguate(ctx, rows, "thing", "ghost", 1)
	if guard.CodeOf(err) != guard.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testRemove(t *testing.T, rows guard.RowStore) {
	ctx := context.Background()
	mustInsert(t, rows, "a")
	if ok, err := rows.Remove(ctx, "a", 2); err != nil || ok {
		t.Fatalf("stale remove must report ok=false, got ok=%t err=%v", ok, err)
	}
	if ok, err := rows.Remove(ctx, "a", 1); err != nil || !ok {
		t.Fatalf("remove: ok=%t err=%v", ok, err)
	}
	if _, ok, _ := rows.Load(ctx, "a"); ok {
		t.Fatalf("row still present after remove")
	}
	if ok, err := rows.Remove(ctx, "a", 1); err != nil || ok {
		t.Fatalf("second remove must report ok=false, got ok=%t err=%v", ok, err)
	}
	// removed ids start over at the initial version
	row := mustInsert(t, rows, "a")
	if row.Version != guard.InitialVersion {
		t.Fatalf("expected reinsert at version 1, got %d", row.Version)
	}
}

func testList(t *testing.T, rows guard.RowStore) {
	for _, id := range []string{"user/b/x", "global/x", "user/a/x"} {
		mustInsert(t, rows, id)
	}
	listed, err := rows.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"global/x", "user/a/x", "user/b/x"}
	if len(listed) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(listed))
	}
	for i, id := range want {
		if listed[i].ID != id {
			t.Fatalf("row %d: expected %q, got %q", i, id, listed[i].ID)
		}
	}
}

func testConcurrentSwap(t *testing.T, rows guard.RowStore) {
	mustInsert(t, rows, "race")
	const writers = 8
	wins := raceAll(writers, func(i int) (bool, error) {
		_, ok, err := rows.Swap(context.Background(), "race", 1, []byte(fmt.Sprintf(`{"w":%d}`, i)))
		return ok, err
	})
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	loaded, _, _ := rows.Load(context.Background(), "race")
	if loaded.Version != 2 {
		t.Fatalf("expected version 2, got %d", loaded.Version)
	}
}

func testConcurrentInsert(t *testing.T, rows guard.RowStore) {
	const writers = 8
	wins := raceAll(writers, func(i int) (bool, error) {
		_, ok, err := rows.Insert(context.Background(), "fresh", []byte(fmt.Sprintf(`{"w":%d}`, i)))
		return ok, err
	})
	if wins != 1 {
		t.Fatalf("expected exactly one creator, got %d", wins)
	}
}

// raceAll runs fn from n goroutines released together and counts successes.
// Backend errors count as losses; SQLite may report SQLITE_BUSY under load.
func raceAll(n int, fn func(i int) (bool, error)) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := fn(i)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return wins
}

func mustInsert(t *testing.T, rows guard.RowStore, id string) guard.Row {
	t.Helper()
	row, ok, err := rows.Insert(context.Background(), id, []byte(`{}`))
	if err != nil || !ok {
		t.Fatalf("insert %q: ok=%t err=%v", id, ok, err)
	}
	return row
}
