package domain

import "time"

type NoteEventType string

const (
	NoteEventUpdated NoteEventType = "note_updated"
	NoteEventDeleted NoteEventType = "note_deleted"
	NoteEventShared  NoteEventType = "note_shared"
)

// NoteEvent is pushed to connected members of a note's audience after a committed change.
type NoteEvent struct {
	Type       NoteEventType `json:"type"`
	NoteID     string        `json:"note_id"`
	Title      string        `json:"title"`
	Actor      UserRef       `json:"actor"`
	OccurredAt time.Time     `json:"occurred_at"`
}
