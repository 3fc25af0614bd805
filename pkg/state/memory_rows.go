package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-settings/pkg/guard"
)

// MemoryRows is an in-memory guard.RowStore. The mutex is held only for the
// single compare-and-swap step of each call.
type MemoryRows struct {
	mu   sync.RWMutex
	rows map[string]guard.Row
	now  func() time.Time
}

var _ guard.RowStore = (*MemoryRows)(nil)

func NewMemoryRows() *MemoryRows {
	return &MemoryRows{rows: map[string]guard.Row{}, now: time.Now}
}

func (s *MemoryRows) Load(_ context.Context, id string) (guard.Row, bool, error) {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return guard.Row{}, false, nil
	}
	return cloneRow(row), true, nil
}

func (s *MemoryRows) List(_ context.Context) ([]guard.Row, error) {
	s.mu.RLock()
	out := make([]guard.Row, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, cloneRow(row))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryRows) Insert(_ context.Context, id string, payload []byte) (guard.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[id]; exists {
		return guard.Row{}, false, nil
	}
	row := guard.Row{
		ID:        id,
		Payload:   cloneBytes(payload),
		Version:   guard.InitialVersion,
		UpdatedAt: s.now().UTC(),
	}
	s.rows[id] = row
	return cloneRow(row), true, nil
}

func (s *MemoryRows) Swap(_ context.Context, id string, expected int64, payload []byte) (guard.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.rows[id]
	if !exists || current.Version != expected {
		return guard.Row{}, false, nil
	}
	row := guard.Row{
		ID:        id,
		Payload:   cloneBytes(payload),
		Version:   current.Version + 1,
		UpdatedAt: s.now().UTC(),
	}
	s.rows[id] = row
	return cloneRow(row), true, nil
}

func (s *MemoryRows) Remove(_ context.Context, id string, expected int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.rows[id]
	if !exists || current.Version != expected {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func cloneRow(row guard.Row) guard.Row {
	row.Payload = cloneBytes(row.Payload)
	return row
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
