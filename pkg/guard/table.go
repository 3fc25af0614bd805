package guard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Stamped is satisfied by pointers to entity structs that carry their own id
// and version fields. Table stamps both after every load and mutation so the
// payload never has to be trusted for them.
type Stamped[T any] interface {
	*T
	Stamp(id string, version int64)
}

// Mutator edits an entity in place. Returning an error aborts the mutation
// before anything is written.
type Mutator[T any] func(*T) error

// Check inspects the current entity before a removal.
type Check[T any] func(T) error

// Table applies the version guard to one entity type stored as JSON rows.
type Table[T any, P Stamped[T]] struct {
	rows   RowStore
	entity string
}

// NewTable binds entity to rows.
func NewTable[T any, P Stamped[T]](rows RowStore, entity string) *Table[T, P] {
	return &Table[T, P]{rows: rows, entity: entity}
}

// Entity returns the name used in errors for this table.
func (t *Table[T, P]) Entity() string {
	return t.entity
}

// Insert stores value under id at InitialVersion.
func (t *Table[T, P]) Insert(ctx context.Context, id string, value T) (T, error) {
	var zero T
	if strings.TrimSpace(id) == "" {
		return zero, Validation(t.entity, id, "id is required")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	row, ok, err := t.rows.Insert(ctx, id, payload)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	if !ok {
		return zero, BusinessConflict(t.entity, id, "already exists")
	}
	return t.decode(row)
}

// Get loads one entity.
func (t *Table[T, P]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	row, ok, err := t.rows.Load(ctx, id)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	if !ok {
		return zero, NotFound(t.entity, id)
	}
	return t.decode(row)
}

// List loads every entity ordered by id.
func (t *Table[T, P]) List(ctx context.Context) ([]T, error) {
	rows, err := t.rows.List(ctx)
	if err != nil {
		return nil, Internal(t.entity, "", err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		value, err := t.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

// Update runs mutate against the row at expected and stores the result with
// the version incremented by one. The version is compared before mutate runs,
// so business rules only ever see the state the caller observed.
func (t *Table[T, P]) Update(ctx context.Context, id string, expected int64, mutate Mutator[T]) (T, error) {
	var zero T
	if err := Expect(expected).Validate(); err != nil {
		return zero, t.retarget(err, id)
	}
	current, err := t.loadAt(ctx, id, expected)
	if err != nil {
		return zero, err
	}
	if mutate != nil {
		if err := mutate(&current); err != nil {
			return zero, t.retarget(err, id)
		}
	}
	P(&current).Stamp(id, expected)
	payload, err := json.Marshal(current)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	row, ok, err := t.rows.Swap(ctx, id, expected, payload)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	if !ok {
		return zero, Disambiguate(ctx, t.rows, t.entity, id, expected)
	}
	return t.decode(row)
}

// Delete removes the row at expected once check accepts the current entity.
func (t *Table[T, P]) Delete(ctx context.Context, id string, expected int64, check Check[T]) error {
	if err := Expect(expected).Validate(); err != nil {
		return t.retarget(err, id)
	}
	current, err := t.loadAt(ctx, id, expected)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(current); err != nil {
			return t.retarget(err, id)
		}
	}
	ok, err := t.rows.Remove(ctx, id, expected)
	if err != nil {
		return Internal(t.entity, id, err)
	}
	if !ok {
		return Disambiguate(ctx, t.rows, t.entity, id, expected)
	}
	return nil
}

func (t *Table[T, P]) loadAt(ctx context.Context, id string, expected int64) (T, error) {
	var zero T
	row, ok, err := t.rows.Load(ctx, id)
	if err != nil {
		return zero, Internal(t.entity, id, err)
	}
	if !ok {
		return zero, NotFound(t.entity, id)
	}
	if row.Version != expected {
		return zero, VersionConflict(t.entity, id, expected, row.Version)
	}
	return t.decode(row)
}

func (t *Table[T, P]) decode(row Row) (T, error) {
	var value T
	if err := json.Unmarshal(row.Payload, &value); err != nil {
		return value, Internal(t.entity, row.ID, err)
	}
	P(&value).Stamp(row.ID, row.Version)
	return value, nil
}

// retarget fills in the entity and id on guard errors raised by callbacks
// that did not know them.
func (t *Table[T, P]) retarget(err error, id string) error {
	var guardErr *Error
	if !errors.As(err, &guardErr) {
		return err
	}
	if guardErr.Entity == "" || guardErr.Entity == "version" {
		guardErr.Entity = t.entity
	}
	if guardErr.ID == "" {
		guardErr.ID = id
	}
	return err
}
