package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"

	"github.com/goliatone/go-settings/pkg/guard"
)

const EntityTemplate = "template"

// Template is a named text/template body. Bodies are parsed on every write so
// a stored template always renders or fails only on its data.
type Template struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Body      string `json:"body"`
	IsDefault bool   `json:"isDefault"`
	Version   int64  `json:"version"`
}

func (t *Template) Stamp(id string, version int64) {
	t.ID = id
	t.Version = version
}

// TemplateInput creates a template.
type TemplateInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	Body      string `json:"body" validate:"required"`
	IsDefault bool   `json:"isDefault"`
}

// TemplatePatch updates a template. Nil fields are left unchanged.
type TemplatePatch struct {
	Name *string `json:"name,omitempty"`
	Body *string `json:"body,omitempty"`
}

// Templates manages the template catalog. The single default is checked
// under mu together with the insert.
type Templates struct {
	table *guard.Table[Template, *Template]
	obs   observer
	mu    sync.Mutex
}

func NewTemplates(rows guard.RowStore, opts ...Option) *Templates {
	return &Templates{
		table: guard.NewTable[Template, *Template](rows, EntityTemplate),
		obs:   newObserver(opts),
	}
}

func (t *Templates) Get(ctx context.Context, id string) (Template, error) {
	return t.table.Get(ctx, id)
}

func (t *Templates) List(ctx context.Context) ([]Template, error) {
	return t.table.List(ctx)
}

// Create stores a template at version 1. At most one template is the default.
func (t *Templates) Create(ctx context.Context, in TemplateInput) (tpl Template, err error) {
	m := mutation{entity: EntityTemplate, op: "created", actor: actorFrom(ctx)}
	defer func() {
		m.id, m.version = tpl.ID, tpl.Version
		m.metadata = map[string]any{"name": tpl.Name}
		t.obs.done(ctx, m, err)
	}()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Template{}, guard.Validation(EntityTemplate, "", "name is required")
	}
	if err := parseBody(in.Name, in.Body); err != nil {
		return Template{}, guard.Validation(EntityTemplate, "", "%v", err)
	}
	if in.IsDefault {
		t.mu.Lock()
		defer t.mu.Unlock()
		existing, err := t.table.List(ctx)
		if err != nil {
			return Template{}, err
		}
		for _, other := range existing {
			if other.IsDefault {
				return Template{}, guard.BusinessConflict(EntityTemplate, other.ID, "template %q is already the default", other.Name)
			}
		}
	}
	return t.table.Insert(ctx, uuid.NewString(), Template{
		Name:      in.Name,
		Body:      in.Body,
		IsDefault: in.IsDefault,
	})
}

// Update edits name or body at the observed version.
func (t *Templates) Update(ctx context.Context, id string, version int64, patch TemplatePatch) (tpl Template, err error) {
	m := mutation{entity: EntityTemplate, op: "updated", id: id, actor: actorFrom(ctx)}
	defer func() {
		m.version = tpl.Version
		t.obs.done(ctx, m, err)
	}()

	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return Template{}, guard.Validation(EntityTemplate, id, "name must not be empty")
	}
	if patch.Body != nil {
		if err := parseBody(id, *patch.Body); err != nil {
			return Template{}, guard.Validation(EntityTemplate, id, "%v", err)
		}
	}
	return t.table.Update(ctx, id, version, func(current *Template) error {
		if patch.Name != nil {
			current.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Body != nil {
			current.Body = *patch.Body
		}
		return nil
	})
}

// Delete removes a template at the observed version. The default template
// cannot be deleted.
func (t *Templates) Delete(ctx context.Context, id string, version int64) (err error) {
	m := mutation{entity: EntityTemplate, op: "deleted", id: id, version: version, actor: actorFrom(ctx)}
	defer func() { t.obs.done(ctx, m, err) }()

	return t.table.Delete(ctx, id, version, func(current Template) error {
		if current.IsDefault {
			return guard.BusinessConflict(EntityTemplate, id, "the default template %q cannot be deleted", current.Name)
		}
		return nil
	})
}

// Render executes the stored body against data. Missing keys are errors.
func (t *Templates) Render(ctx context.Context, id string, data map[string]any) (string, error) {
	tpl, err := t.table.Get(ctx, id)
	if err != nil {
		return "", err
	}
	parsed, err := template.New(tpl.Name).Option("missingkey=error").Parse(tpl.Body)
	if err != nil {
		return "", guard.Internal(EntityTemplate, id, err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		return "", guard.Validation(EntityTemplate, id, "render: %v", err)
	}
	return buf.String(), nil
}

func parseBody(name, body string) error {
	if strings.TrimSpace(body) == "" {
		return errEmptyBody
	}
	_, err := template.New(name).Parse(body)
	return err
}

var errEmptyBody = errors.New("body is required")
