package activity

import (
	"strings"
	"time"
)

// Save lifecycle verbs.
const (
	VerbSaveCreated   = "save.created"
	VerbSaveLoaded    = "save.loaded"
	VerbSaveRejected  = "save.rejected"
	VerbSavePersisted = "save.persisted"
	VerbSaveDeleted   = "save.deleted"

	ObjectTypeSave = "save"
)

// SaveEventInput carries the fields shared by save lifecycle events.
type SaveEventInput struct {
	ActorID    string
	SaveID     string
	Name       string
	ModID      string
	ModVersion string
	// Reason explains a rejection or a substituted save.
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildSaveEvent constructs an event for verb about the save in input.
func BuildSaveEvent(verb string, input SaveEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	set("name", input.Name)
	set("mod_id", input.ModID)
	set("mod_version", input.ModVersion)
	set("reason", input.Reason)

	objectID := strings.TrimSpace(input.SaveID)
	if objectID == "" {
		objectID = ObjectTypeSave
	}
	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: ObjectTypeSave,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
