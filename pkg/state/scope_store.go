package state

import (
	"context"
	"fmt"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
)

// ScopeStore maps (key, scope, owner) to a versioned value on top of a
// guard.RowStore. Every write is one conditional update against the row.
type ScopeStore struct {
	rows guard.RowStore
}

// NewScopeStore binds a ScopeStore to rows.
func NewScopeStore(rows guard.RowStore) *ScopeStore {
	return &ScopeStore{rows: rows}
}

// Get loads the row addressed by ref.
func (s *ScopeStore) Get(ctx context.Context, ref Ref) (Record, bool, error) {
	id, err := ref.Identifier()
	if err != nil {
		return Record{}, false, err
	}
	row, ok, err := s.rows.Load(ctx, id)
	if err != nil {
		return Record{}, false, guard.Internal(EntitySetting, id, err)
	}
	if !ok {
		return Record{}, false, nil
	}
	record, err := decodeRecord(row)
	if err != nil {
		return Record{}, false, guard.Internal(EntitySetting, id, err)
	}
	return record, true, nil
}

// ListAll loads every stored override in one pass. A row that fails to
// decode does not fail the listing: it is returned with Err set so resolution
// can discard it for its key alone. Rows whose ID is not a setting identifier
// are skipped.
func (s *ScopeStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.rows.List(ctx)
	if err != nil {
		return nil, guard.Internal(EntitySetting, "", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRecord(row)
		if err != nil {
			broken, ok := brokenRecord(row, err)
			if !ok {
				continue
			}
			record = broken
		}
		out = append(out, record)
	}
	return out, nil
}

// WriteWithVersion stores value at ref if the current version equals
// expected.Version. A create expectation succeeds only while the row is
// absent; a racing creator receives VERSION_CONFLICT. Version 1 without the
// create flag also creates an absent row, any other version against an absent
// row is NOT_FOUND.
func (s *ScopeStore) WriteWithVersion(ctx context.Context, ref Ref, expected guard.Expected, value settings.Value) (Record, error) {
	id, err := ref.Identifier()
	if err != nil {
		return Record{}, err
	}
	if err := expected.Validate(); err != nil {
		return Record{}, retarget(err, id)
	}
	if value.IsZero() {
		return Record{}, guard.Validation(EntitySetting, id, "value is required")
	}
	body, err := encodeRecord(ref, value)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, id, err)
	}

	if expected.Create {
		return s.create(ctx, id, body)
	}

	row, ok, err := s.rows.Swap(ctx, id, expected.Version, body)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, id, err)
	}
	if ok {
		return s.decode(row)
	}

	current, exists, err := s.rows.Load(ctx, id)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, id, err)
	}
	if exists {
		return Record{}, guard.VersionConflict(EntitySetting, id, expected.Version, current.Version)
	}
	if expected.Version == guard.InitialVersion {
		return s.create(ctx, id, body)
	}
	return Record{}, guard.NotFound(EntitySetting, id)
}

// Reset removes the row at ref if its version equals expected, so the key
// falls back to the next weaker scope.
func (s *ScopeStore) Reset(ctx context.Context, ref Ref, expected int64) error {
	id, err := ref.Identifier()
	if err != nil {
		return err
	}
	if err := guard.Expect(expected).Validate(); err != nil {
		return retarget(err, id)
	}
	ok, err := s.rows.Remove(ctx, id, expected)
	if err != nil {
		return guard.Internal(EntitySetting, id, err)
	}
	if !ok {
		return guard.Disambiguate(ctx, s.rows, EntitySetting, id, expected)
	}
	return nil
}

func (s *ScopeStore) create(ctx context.Context, id string, body []byte) (Record, error) {
	row, ok, err := s.rows.Insert(ctx, id, body)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, id, err)
	}
	if ok {
		return s.decode(row)
	}
	current, exists, err := s.rows.Load(ctx, id)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, id, err)
	}
	if !exists {
		// removed between the failed insert and the load
		return Record{}, guard.VersionConflict(EntitySetting, id, guard.InitialVersion, 0)
	}
	conflict := guard.VersionConflict(EntitySetting, id, guard.InitialVersion, current.Version)
	conflict.Message = fmt.Sprintf("version conflict: row already exists at version %d", current.Version)
	return Record{}, conflict
}

func (s *ScopeStore) decode(row guard.Row) (Record, error) {
	record, err := decodeRecord(row)
	if err != nil {
		return Record{}, guard.Internal(EntitySetting, row.ID, err)
	}
	return record, nil
}

func retarget(err error, id string) error {
	if guardErr, ok := err.(*guard.Error); ok {
		guardErr.Entity = EntitySetting
		guardErr.ID = id
	}
	return err
}
