package coordinator

import (
	"context"
	"log/slog"
	"sync"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
)

// Request is a write as sent to a Backend.
type Request struct {
	Key      string             `json:"key"`
	Scope    settings.ScopeType `json:"scopeType"`
	Value    any                `json:"value"`
	Expected guard.Expected     `json:"-"`
}

// Backend is the settings surface the coordinator talks to. Both calls return
// the full resolved table for the caller's identity. Errors must classify
// through guard.CodeOf.
type Backend interface {
	Fetch(ctx context.Context) ([]settings.ResolvedSetting, error)
	Write(ctx context.Context, req Request) ([]settings.ResolvedSetting, error)
}

// Recorder observes submissions. code is empty on success.
type Recorder interface {
	ObserveAttempt(attempt int, code guard.Code)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(int, guard.Code) {}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// WithObserver is called after every state transition.
func WithObserver(fn func(key string, status Status)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

// Result describes a finished write.
type Result struct {
	Table    []settings.ResolvedSetting
	Final    Status
	Attempts int
	Path     []State
}

// Coordinator applies settings writes with the single conflict retry. It
// keeps the last table it saw so the version for the next write comes from
// what the caller was shown.
type Coordinator struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder
	observer func(string, Status)

	mu    sync.RWMutex
	table []settings.ResolvedSetting
}

func New(backend Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:  backend,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Table returns the last known table.
func (c *Coordinator) Table() []settings.ResolvedSetting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]settings.ResolvedSetting(nil), c.table...)
}

// Refresh fetches and remembers the full table.
func (c *Coordinator) Refresh(ctx context.Context) ([]settings.ResolvedSetting, error) {
	table, err := c.backend.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.remember(table)
	return table, nil
}

// Set writes value for key at scope. A VERSION_CONFLICT on the first
// submission triggers one refetch and one resubmission; any failure after
// that is returned unchanged.
func (c *Coordinator) Set(ctx context.Context, key string, scope settings.ScopeType, value any) (Result, error) {
	if len(c.Table()) == 0 {
		if _, err := c.Refresh(ctx); err != nil {
			return Result{Final: Status{State: StateFailed}}, err
		}
	}

	result := Result{}
	status := Status{State: StateIdle}
	advance := func(event Event) error {
		next, err := Transition(status, event)
		if err != nil {
			return err
		}
		status = next
		result.Path = append(result.Path, next.State)
		if c.observer != nil {
			c.observer(key, next)
		}
		return nil
	}
	finish := func(err error) (Result, error) {
		result.Final = status
		result.Attempts = status.Attempt
		return result, err
	}

	if err := advance(EventSubmit); err != nil {
		return finish(err)
	}
	for {
		expected := ExpectedFor(c.Table(), key, scope)
		table, err := c.backend.Write(ctx, Request{Key: key, Scope: scope, Value: value, Expected: expected})
		code := guard.CodeOf(err)
		c.recorder.ObserveAttempt(status.Attempt, code)
		if err == nil {
			c.remember(table)
			result.Table = table
			if terr := advance(EventSucceeded); terr != nil {
				return finish(terr)
			}
			c.logger.Info("settings write committed", "key", key, "scope", scope, "attempts", status.Attempt)
			return finish(nil)
		}
		if !guard.Retryable(err) {
			_ = advance(EventFailed)
			c.logger.Warn("settings write failed", "key", key, "scope", scope, "expected", expected.String(), "code", code, "error", err)
			return finish(err)
		}
		if terr := advance(EventConflict); terr != nil {
			return finish(terr)
		}
		if status.State == StateFailed {
			c.logger.Warn("settings write conflicted after retry", "key", key, "scope", scope, "expected", expected.String())
			return finish(err)
		}
		c.logger.Info("settings write conflicted, refetching", "key", key, "scope", scope, "expected", expected.String())
		if _, ferr := c.Refresh(ctx); ferr != nil {
			_ = advance(EventFailed)
			return finish(ferr)
		}
		if terr := advance(EventRefetched); terr != nil {
			return finish(terr)
		}
	}
}

func (c *Coordinator) remember(table []settings.ResolvedSetting) {
	c.mu.Lock()
	c.table = append([]settings.ResolvedSetting(nil), table...)
	c.mu.Unlock()
}

// ExpectedFor picks the version to send for key at scope: the row version the
// table shows, or create intent when that scope has no row.
func ExpectedFor(table []settings.ResolvedSetting, key string, scope settings.ScopeType) guard.Expected {
	for _, setting := range table {
		if setting.Key != key {
			continue
		}
		if version := setting.VersionFor(scope); version > 0 {
			return guard.Expect(version)
		}
		break
	}
	return guard.ExpectCreate()
}
