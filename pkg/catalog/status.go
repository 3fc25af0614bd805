package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-settings/pkg/guard"
)

const EntityStatus = "status"

// Status is one entry of a workflow status catalog. The default status cannot
// be deactivated or deleted.
type Status struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Label     string `json:"label"`
	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"isActive"`
	IsDefault bool   `json:"isDefault"`
	Version   int64  `json:"version"`
}

func (s *Status) Stamp(id string, version int64) {
	s.ID = id
	s.Version = version
}

// StatusInput creates a status.
type StatusInput struct {
	Code      string `json:"code" validate:"required,max=64"`
	Label     string `json:"label" validate:"required,max=200"`
	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"isActive"`
	IsDefault bool   `json:"isDefault"`
}

// StatusPatch updates the editable fields of a status. Nil fields are left
// unchanged.
type StatusPatch struct {
	Code      *string `json:"code,omitempty"`
	Label     *string `json:"label,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

// Statuses manages the status catalog. Code uniqueness and the single
// default are checked under mu, so they hold for writers sharing one
// Statuses. Separate processes writing the same rows are not serialized.
type Statuses struct {
	table *guard.Table[Status, *Status]
	obs   observer
	mu    sync.Mutex
}

// NewStatuses binds the catalog to rows.
func NewStatuses(rows guard.RowStore, opts ...Option) *Statuses {
	return &Statuses{
		table: guard.NewTable[Status, *Status](rows, EntityStatus),
		obs:   newObserver(opts),
	}
}

// List returns every status ordered by sort order, then code.
func (s *Statuses) List(ctx context.Context) ([]Status, error) {
	out, err := s.table.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// Get loads one status.
func (s *Statuses) Get(ctx context.Context, id string) (Status, error) {
	return s.table.Get(ctx, id)
}

// Create adds a status at version 1. Codes are unique and there is at most
// one default status, which is always active.
func (s *Statuses) Create(ctx context.Context, in StatusInput) (status Status, err error) {
	m := mutation{entity: EntityStatus, op: "created", actor: actorFrom(ctx)}
	defer func() {
		m.id, m.version = status.ID, status.Version
		m.metadata = map[string]any{"code": status.Code}
		s.obs.done(ctx, m, err)
	}()

	in.Code = strings.TrimSpace(in.Code)
	in.Label = strings.TrimSpace(in.Label)
	if in.Code == "" || in.Label == "" {
		return Status{}, guard.Validation(EntityStatus, "", "code and label are required")
	}
	if in.IsDefault && !in.IsActive {
		return Status{}, guard.Validation(EntityStatus, "", "the default status must be active")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.table.List(ctx)
	if err != nil {
		return Status{}, err
	}
	for _, other := range existing {
		if strings.EqualFold(other.Code, in.Code) {
			return Status{}, guard.BusinessConflict(EntityStatus, other.ID, "code %q is already used", in.Code)
		}
		if in.IsDefault && other.IsDefault {
			return Status{}, guard.BusinessConflict(EntityStatus, other.ID, "status %q is already the default", other.Code)
		}
	}
	return s.table.Insert(ctx, uuid.NewString(), Status{
		Code:      in.Code,
		Label:     in.Label,
		SortOrder: in.SortOrder,
		IsActive:  in.IsActive,
		IsDefault: in.IsDefault,
	})
}

// Update edits code, label or sort order at the observed version.
func (s *Statuses) Update(ctx context.Context, id string, version int64, patch StatusPatch) (status Status, err error) {
	m := mutation{entity: EntityStatus, op: "updated", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = status.Version
		s.obs.done(ctx, m, err)
	}()

	if patch.Code != nil {
		code := strings.TrimSpace(*patch.Code)
		if code == "" {
			return Status{}, guard.Validation(EntityStatus, id, "code must not be empty")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		existing, err := s.table.List(ctx)
		if err != nil {
			return Status{}, err
		}
		for _, other := range existing {
			if other.ID != id && strings.EqualFold(other.Code, code) {
				return Status{}, guard.BusinessConflict(EntityStatus, id, "code %q is already used", code)
			}
		}
	}
	if patch.Label != nil && strings.TrimSpace(*patch.Label) == "" {
		return Status{}, guard.Validation(EntityStatus, id, "label must not be empty")
	}
	return s.table.Update(ctx, id, version, func(current *Status) error {
		if patch.Code != nil {
			current.Code = strings.TrimSpace(*patch.Code)
		}
		if patch.Label != nil {
			current.Label = strings.TrimSpace(*patch.Label)
		}
		if patch.SortOrder != nil {
			current.SortOrder = *patch.SortOrder
		}
		return nil
	})
}

// ToggleActive flips IsActive at the observed version. The default status
// cannot be deactivated.
func (s *Statuses) ToggleActive(ctx context.Context, id string, version int64) (status Status, err error) {
	m := mutation{entity: EntityStatus, op: "toggled", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = status.Version
		m.metadata = map[string]any{"isActive": status.IsActive}
		s.obs.done(ctx, m, err)
	}()

	return s.table.Update(ctx, id, version, func(current *Status) error {
		if current.IsDefault && current.IsActive {
			return guard.BusinessConflict(EntityStatus, id, "the default status %q cannot be deactivated", current.Code)
		}
		current.IsActive = !current.IsActive
		return nil
	})
}

// Delete removes a status at the observed version. The default status cannot
// be deleted.
func (s *Statuses) Delete(ctx context.Context, id string, version int64) (err error) {
	m := mutation{entity: EntityStatus, op: "deleted", id: id, version: version, actor: actorFrom(ctx)}
	defer func() { s.obs.done(ctx, m, err) }()

	return s.table.Delete(ctx, id, version, func(current Status) error {
		if current.IsDefault {
			return guard.BusinessConflict(EntityStatus, id, "the default status %q cannot be deleted", current.Code)
		}
		return nil
	})
}
