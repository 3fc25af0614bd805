package guard

import (
	"context"
	"time"
)

// Row is the storage-level shape of every versioned record: an opaque payload
// stamped with its current version.
type Row struct {
	ID        string
	Payload   []byte
	Version   int64
	UpdatedAt time.Time
}

// RowStore is the atomic conditional-update primitive durable storage must
// provide. Each method is a single atomic step; none of them blocks other
// writers beyond the duration of that step.
type RowStore interface {
	// Load returns the row stored under id, or ok=false when absent.
	Load(ctx context.Context, id string) (row Row, ok bool, err error)
	// List returns every row in the store ordered by id.
	List(ctx context.Context) ([]Row, error)
	// Insert stores payload at InitialVersion only if no row exists under id.
	Insert(ctx context.Context, id string, payload []byte) (row Row, ok bool, err error)
	// Swap replaces the payload and increments the version only if the stored
	// version equals expected. ok=false means zero rows matched.
	Swap(ctx context.Context, id string, expected int64, payload []byte) (row Row, ok bool, err error)
	// Remove deletes the row only if the stored version equals expected.
	Remove(ctx context.Context, id string, expected int64) (ok bool, err error)
}

// Disambiguate turns a zero-row conditional update into the matching error:
// NOT_FOUND when the row is gone, VERSION_CONFLICT when it moved on.
func Disambiguate(ctx context.Context, rows RowStore, entity, id string, expected int64) error {
	current, ok, err := rows.Load(ctx, id)
	if err != nil {
		return Internal(entity, id, err)
	}
	if !ok {
		return NotFound(entity, id)
	}
	return VersionConflict(entity, id, expected, current.Version)
}
