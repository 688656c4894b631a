package domain

import "time"

// NoteVersion is an immutable snapshot of a note's content taken before an update.
type NoteVersion struct {
	ID         string    `json:"id"`
	NoteID     string    `json:"note"`
	Number     int       `json:"number"`
	Content    string    `json:"content"`
	RecordedAt time.Time `json:"recorded_at"`
}
