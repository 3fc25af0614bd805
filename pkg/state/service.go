package state

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/goliatone/go-settings/pkg/guard"
)

// Recorder observes settings writes. internal/metrics provides the
// prometheus implementation.
type Recorder interface {
	ObserveSettingWrite(scope settings.ScopeType, code guard.Code, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSettingWrite(settings.ScopeType, guard.Code, time.Duration) {}

// WriteRequest is one settings write. Value is the decoded JSON payload; it is
// parsed against the definition before storage is touched.
type WriteRequest struct {
	Key      string
	Scope    settings.ScopeType
	Value    any
	Expected guard.Expected
}

// ResetRequest removes one override.
type ResetRequest struct {
	Key     string
	Scope   settings.ScopeType
	Version int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEmitter publishes settings.updated and settings.reset events.
func WithEmitter(emitter *activity.Emitter) ServiceOption {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// Service is the server side of the settings path: it resolves tables for an
// identity and applies versioned writes through the ScopeStore.
type Service struct {
	catalog  atomic.Pointer[settings.Catalog]
	store    *ScopeStore
	logger   *slog.Logger
	emitter  *activity.Emitter
	recorder Recorder
}

// NewService wires a catalog to a store.
func NewService(catalog *settings.Catalog, store *ScopeStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	s.catalog.Store(catalog)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Catalog returns the definition catalog.
func (s *Service) Catalog() *settings.Catalog {
	return s.catalog.Load()
}

// SwapCatalog replaces the definitions used by later calls. Stored rows are
// untouched; rows for keys the new catalog no longer defines are ignored.
func (s *Service) SwapCatalog(catalog *settings.Catalog) {
	if catalog != nil {
		s.catalog.Store(catalog)
	}
}

// Table resolves every definition for identity from one listing of the store.
func (s *Service) Table(ctx context.Context, identity settings.Identity) ([]settings.ResolvedSetting, error) {
	records, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	return s.Catalog().Resolve(Scoped(records), identity), nil
}

// Trace reports the per-scope provenance of key for identity.
func (s *Service) Trace(ctx context.Context, key string, identity settings.Identity) (settings.Trace, error) {
	catalog := s.Catalog()
	if _, ok := catalog.Lookup(key); !ok {
		return settings.Trace{}, guard.Validation(EntitySetting, key, "unknown setting %q", key)
	}
	records, err := s.records(ctx)
	if err != nil {
		return settings.Trace{}, err
	}
	return catalog.Trace(key, Scoped(records), identity)
}

func (s *Service) records(ctx context.Context) ([]Record, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Err != nil {
			s.logger.Warn("settings row unreadable",
				"key", record.Key,
				"scope", record.Scope,
				"owner", record.OwnerID,
				"version", record.Version,
				"error", record.Err,
			)
		}
	}
	return records, nil
}

// Write validates and stores one override, then returns the refreshed table.
// USER writes always target identity's own row.
func (s *Service) Write(ctx context.Context, identity settings.Identity, req WriteRequest) ([]settings.ResolvedSetting, error) {
	start := time.Now()
	record, previous, err := s.write(ctx, identity, req)
	s.recorder.ObserveSettingWrite(req.Scope, guard.CodeOf(err), time.Since(start))
	if err != nil {
		s.logFailure("settings write rejected", req.Key, req.Scope, req.Expected.String(), err)
		return nil, err
	}

	s.logger.Info("settings write applied",
		"key", record.Key,
		"scope", record.Scope,
		"owner", record.OwnerID,
		"version", record.Version,
	)
	event := activity.BuildSettingUpdatedEvent(activity.SettingEventInput{
		ActorID:  identity.AccountID,
		Key:      record.Key,
		Scope:    string(record.Scope),
		OwnerID:  record.OwnerID,
		OldValue: previous,
		NewValue: record.Value.Interface(),
		Version:  record.Version,
	})
	s.emit(ctx, event)
	return s.Table(ctx, identity)
}

func (s *Service) write(ctx context.Context, identity settings.Identity, req WriteRequest) (Record, any, error) {
	catalog := s.Catalog()
	ref, err := s.ref(catalog, identity, req.Key, req.Scope)
	if err != nil {
		return Record{}, nil, err
	}
	if err := req.Expected.Validate(); err != nil {
		return Record{}, nil, retarget(err, req.Key)
	}
	value, err := catalog.Parse(req.Key, req.Scope, req.Value)
	if err != nil {
		return Record{}, nil, guard.Validation(EntitySetting, req.Key, "%v", err)
	}

	// the previous value only feeds the activity event; a failed read must
	// not block the write
	var previous any
	current, ok, err := s.store.Get(ctx, ref)
	switch {
	case err != nil:
		s.logger.Warn("settings previous value unavailable",
			"key", ref.Key,
			"scope", ref.Scope,
			"owner", ref.OwnerID,
			"error", err,
		)
	case ok:
		previous = current.Value.Interface()
	}
	record, err := s.store.WriteWithVersion(ctx, ref, req.Expected, value)
	if err != nil {
		return Record{}, nil, err
	}
	return record, previous, nil
}

// Reset removes one override at the observed version and returns the
// refreshed table.
func (s *Service) Reset(ctx context.Context, identity settings.Identity, req ResetRequest) ([]settings.ResolvedSetting, error) {
	start := time.Now()
	err := s.reset(ctx, identity, req)
	s.recorder.ObserveSettingWrite(req.Scope, guard.CodeOf(err), time.Since(start))
	if err != nil {
		s.logFailure("settings reset rejected", req.Key, req.Scope, guard.Expect(req.Version).String(), err)
		return nil, err
	}
	s.logger.Info("settings override reset", "key", req.Key, "scope", req.Scope, "version", req.Version)

	owner := ""
	if req.Scope == settings.ScopeUser {
		owner = identity.AccountID
	}
	s.emit(ctx, activity.BuildSettingResetEvent(activity.SettingEventInput{
		ActorID: identity.AccountID,
		Key:     req.Key,
		Scope:   string(req.Scope),
		OwnerID: owner,
		Version: req.Version,
	}))
	return s.Table(ctx, identity)
}

func (s *Service) reset(ctx context.Context, identity settings.Identity, req ResetRequest) error {
	ref, err := s.ref(s.Catalog(), identity, req.Key, req.Scope)
	if err != nil {
		return err
	}
	return s.store.Reset(ctx, ref, req.Version)
}

func (s *Service) ref(catalog *settings.Catalog, identity settings.Identity, key string, scope settings.ScopeType) (Ref, error) {
	def, ok := catalog.Lookup(key)
	if !ok {
		return Ref{}, guard.Validation(EntitySetting, key, "unknown setting %q", key)
	}
	switch scope {
	case settings.ScopeGlobal, settings.ScopeUser:
	default:
		return Ref{}, guard.Validation(EntitySetting, key, "scopeType must be GLOBAL or USER, got %q", scope)
	}
	if !def.Allows(scope) {
		return Ref{}, guard.Validation(EntitySetting, key, "setting %q cannot be set at %s scope", key, scope)
	}
	ref := Ref{Key: key, Scope: scope}
	if scope == settings.ScopeUser {
		if identity.AccountID == "" {
			return Ref{}, guard.Validation(EntitySetting, key, "USER writes require an account")
		}
		ref.OwnerID = identity.AccountID
	}
	return ref, ref.Validate()
}

func (s *Service) emit(ctx context.Context, event activity.Event) {
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger.Warn("settings activity hook failed", "verb", event.Verb, "object", event.ObjectID, "error", err)
	}
}

func (s *Service) logFailure(msg, key string, scope settings.ScopeType, expected string, err error) {
	code := guard.CodeOf(err)
	attrs := []any{"key", key, "scope", scope, "expected", expected, "code", code, "error", err}
	if code == guard.CodeInternal {
		s.logger.Error(msg, attrs...)
		return
	}
	s.logger.Warn(msg, attrs...)
}
