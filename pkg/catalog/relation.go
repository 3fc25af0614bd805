package catalog

import (
	"context"
	"slices"
	"strings"

	"github.com/goliatone/go-settings/pkg/guard"
)

const EntityRelation = "relation"

// RelationSet is a named, ordered set of member ids. Adding a member that is
// already present or removing one that is gone is a business conflict: the
// caller acted on a membership it no longer sees.
type RelationSet struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	Version int64    `json:"version"`
}

func (r *RelationSet) Stamp(id string, version int64) {
	r.ID = id
	r.Version = version
}

// Has reports whether member belongs to the set.
func (r RelationSet) Has(member string) bool {
	return slices.Contains(r.Members, member)
}

// Relations manages relation sets.
type Relations struct {
	table *guard.Table[RelationSet, *RelationSet]
	obs   observer
}

func NewRelations(rows guard.RowStore, opts ...Option) *Relations {
	return &Relations{
		table: guard.NewTable[RelationSet, *RelationSet](rows, EntityRelation),
		obs:   newObserver(opts),
	}
}

func (r *Relations) Get(ctx context.Context, id string) (RelationSet, error) {
	return r.table.Get(ctx, id)
}

func (r *Relations) List(ctx context.Context) ([]RelationSet, error) {
	return r.table.List(ctx)
}

// Create stores a new set at version 1. Duplicate members are rejected.
func (r *Relations) Create(ctx context.Context, id string, members []string) (set RelationSet, err error) {
	m := mutation{entity: EntityRelation, op: "created", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = set.Version
		r.obs.done(ctx, m, err)
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return RelationSet{}, guard.Validation(EntityRelation, "", "id is required")
	}
	clean := make([]string, 0, len(members))
	for _, member := range members {
		member = strings.TrimSpace(member)
		if member == "" {
			return RelationSet{}, guard.Validation(EntityRelation, id, "members must not be empty")
		}
		if slices.Contains(clean, member) {
			return RelationSet{}, guard.Validation(EntityRelation, id, "member %q is listed twice", member)
		}
		clean = append(clean, member)
	}
	return r.table.Insert(ctx, id, RelationSet{Members: clean})
}

// AddMember appends member at the observed version.
func (r *Relations) AddMember(ctx context.Context, id string, version int64, member string) (set RelationSet, err error) {
	m := mutation{entity: EntityRelation, op: "member_added", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = set.Version
		m.metadata = map[string]any{"member": member}
		r.obs.done(ctx, m, err)
	}()

	member = strings.TrimSpace(member)
	if member == "" {
		return RelationSet{}, guard.Validation(EntityRelation, id, "member is required")
	}
	return r.table.Update(ctx, id, version, func(current *RelationSet) error {
		if current.Has(member) {
			return guard.BusinessConflict(EntityRelation, id, "member %q is already present", member)
		}
		current.Members = append(current.Members, member)
		return nil
	})
}

// RemoveMember drops member at the observed version.
func (r *Relations) RemoveMember(ctx context.Context, id string, version int64, member string) (set RelationSet, err error) {
	m := mutation{entity: EntityRelation, op: "member_removed", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = set.Version
		m.metadata = map[string]any{"member": member}
		r.obs.done(ctx, m, err)
	}()

	member = strings.TrimSpace(member)
	if member == "" {
		return RelationSet{}, guard.Validation(EntityRelation, id, "member is required")
	}
	return r.table.Update(ctx, id, version, func(current *RelationSet) error {
		idx := slices.Index(current.Members, member)
		if idx < 0 {
			return guard.BusinessConflict(EntityRelation, id, "member %q was already removed", member)
		}
		current.Members = slices.Delete(current.Members, idx, idx+1)
		return nil
	})
}
