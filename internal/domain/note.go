package domain

import "time"

const MaxTitleLength = 255

type Note struct {
	ID         string    `json:"id"`
	Owner      UserRef   `json:"owner"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SharedWith []UserRef `json:"shared_with"`
}

func (n *Note) IsOwner(userID string) bool {
	return n.Owner.ID == userID
}

func (n *Note) IsSharedWith(userID string) bool {
	for _, u := range n.SharedWith {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Audience is the owner followed by every share-list member.
func (n *Note) Audience() []string {
	ids := make([]string, 0, len(n.SharedWith)+1)
	ids = append(ids, n.Owner.ID)
	for _, u := range n.SharedWith {
		ids = append(ids, u.ID)
	}
	return ids
}

func (n *Note) Clone() *Note {
	c := *n
	c.SharedWith = make([]UserRef, len(n.SharedWith))
	copy(c.SharedWith, n.SharedWith)
	return &c
}

type CreateNoteRequest struct {
	Title   string `json:"title" validate:"required,notblank,max=255"`
	Content string `json:"content" validate:"required,notblank"`
}

// UpdateNoteRequest carries only the fields present in the request body.
type UpdateNoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type ShareNoteRequest struct {
	NoteID string   `json:"note_id"`
	Users  []string `json:"users"`
}
