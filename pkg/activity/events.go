package activity

import (
	"fmt"
	"strings"
	"time"
)

const (
	VerbSettingUpdated = "settings.updated"
	VerbSettingReset   = "settings.reset"

	ObjectTypeSetting = "setting"
)

// SettingEventInput describes a committed settings write.
type SettingEventInput struct {
	ActorID    string
	Key        string
	Scope      string
	OwnerID    string
	OldValue   any
	NewValue   any
	Version    int64
	Channel    string
	OccurredAt time.Time
}

// BuildSettingUpdatedEvent builds the event for a stored override.
func BuildSettingUpdatedEvent(input SettingEventInput) Event {
	return buildSettingEvent(VerbSettingUpdated, input)
}

// BuildSettingResetEvent builds the event for a removed override.
func BuildSettingResetEvent(input SettingEventInput) Event {
	return buildSettingEvent(VerbSettingReset, input)
}

func buildSettingEvent(verb string, input SettingEventInput) Event {
	metadata := map[string]any{
		"key":   input.Key,
		"scope": input.Scope,
	}
	if input.OwnerID != "" {
		metadata["owner_id"] = input.OwnerID
	}
	if input.OldValue != nil {
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata["new_value"] = input.NewValue
	}

	objectID := strings.ToLower(strings.TrimSpace(input.Scope)) + "/" + strings.TrimSpace(input.Key)
	if input.OwnerID != "" {
		objectID = fmt.Sprintf("user/%s/%s", strings.TrimSpace(input.OwnerID), strings.TrimSpace(input.Key))
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.OwnerID),
		ObjectType: ObjectTypeSetting,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Version:    input.Version,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// EntityEventInput describes a committed mutation of a versioned catalog
// entity.
type EntityEventInput struct {
	ActorID    string
	Entity     string
	Op         string
	ID         string
	Version    int64
	Metadata   map[string]any
	Channel    string
	OccurredAt time.Time
}

// BuildEntityEvent builds a "<entity>.<op>" event, e.g. "status.updated".
func BuildEntityEvent(input EntityEventInput) Event {
	entity := strings.TrimSpace(input.Entity)
	return Event{
		Verb:       entity + "." + strings.TrimSpace(input.Op),
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: entity,
		ObjectID:   strings.TrimSpace(input.ID),
		Channel:    strings.TrimSpace(input.Channel),
		Version:    input.Version,
		Metadata:   cloneMap(input.Metadata),
		OccurredAt: input.OccurredAt,
	}
}
