package coordinator

import (
	"context"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/state"
)

// ServiceBackend runs the coordinator in-process against a state.Service.
type ServiceBackend struct {
	Service  *state.Service
	Identity settings.Identity
}

var _ Backend = ServiceBackend{}

func (b ServiceBackend) Fetch(ctx context.Context) ([]settings.ResolvedSetting, error) {
	return b.Service.Table(ctx, b.Identity)
}

func (b ServiceBackend) Write(ctx context.Context, req Request) ([]settings.ResolvedSetting, error) {
	return b.Service.Write(ctx, b.Identity, state.WriteRequest{
		Key:      req.Key,
		Scope:    req.Scope,
		Value:    req.Value,
		Expected: req.Expected,
	})
}
