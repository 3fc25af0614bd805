package catalog

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/goliatone/go-settings/pkg/guard"
)

// Recorder observes catalog mutations.
type Recorder interface {
	ObserveMutation(entity, op string, code guard.Code)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMutation(string, string, guard.Code) {}

// Option configures a catalog service.
type Option func(*observer)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmitter publishes "<entity>.<op>" events for committed mutations.
func WithEmitter(emitter *activity.Emitter) Option {
	return func(o *observer) {
		o.emitter = emitter
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(o *observer) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// observer fans a mutation outcome out to logs, metrics and activity hooks.
type observer struct {
	logger   *slog.Logger
	emitter  *activity.Emitter
	recorder Recorder
}

func newObserver(opts []Option) observer {
	o := observer{logger: slog.Default(), recorder: nopRecorder{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

type mutation struct {
	entity   string
	op       string
	id       string
	actor    string
	version  int64
	metadata map[string]any
}

func (o observer) done(ctx context.Context, m mutation, err error) {
	code := guard.CodeOf(err)
	o.recorder.ObserveMutation(m.entity, m.op, code)
	if err != nil {
		attrs := []any{"entity", m.entity, "op", m.op, "id", m.id, "code", code, "error", err}
		if code == guard.CodeInternal {
			o.logger.Error("catalog mutation failed", attrs...)
		} else {
			o.logger.Warn("catalog mutation rejected", attrs...)
		}
		return
	}
	o.logger.Info("catalog mutation applied", "entity", m.entity, "op", m.op, "id", m.id, "version", m.version)
	event := activity.BuildEntityEvent(activity.EntityEventInput{
		ActorID:  m.actor,
		Entity:   m.entity,
		Op:       m.op,
		ID:       m.id,
		Version:  m.version,
		Metadata: m.metadata,
	})
	if err := o.emitter.Emit(ctx, event); err != nil {
		o.logger.Warn("catalog activity hook failed", "verb", event.Verb, "id", m.id, "error", err)
	}
}

type actorKey struct{}

// WithActor tags ctx with the account performing a mutation.
func WithActor(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, actorKey{}, accountID)
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
