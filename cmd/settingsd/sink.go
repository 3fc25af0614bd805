package main

import (
	"context"
	"log/slog"

	usertypes "github.com/goliatone/go-users/pkg/types"
)

// logSink is the go-users activity sink used when no database sink is
// configured. It writes every record to the log.
type logSink struct {
	logger *slog.Logger
}

var _ usertypes.ActivitySink = logSink{}

func (s logSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.logger.Info("activity",
		"verb", record.Verb,
		"object_type", record.ObjectType,
		"object_id", record.ObjectID,
		"channel", record.Channel,
		"actor_id", record.ActorID.String(),
		"data", record.Data,
	)
	return nil
}
