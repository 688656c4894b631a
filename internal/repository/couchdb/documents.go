package couchdb

import (
	"strings"
	"time"

	"notes-server/internal/domain"
)

const (
	typeUser  = "user"
	typeNote  = "note"
	typeClaim = "claim"
)

type userDoc struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// claimDoc reserves a username or email. CouchDB rejects a second document
// with the same id, which gives uniqueness without a unique index.
type claimDoc struct {
	ID     string `json:"_id"`
	Rev    string `json:"_rev,omitempty"`
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type versionDoc struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	Content    string    `json:"content"`
	RecordedAt time.Time `json:"recorded_at"`
}

type noteDoc struct {
	ID         string           `json:"_id"`
	Rev        string           `json:"_rev,omitempty"`
	Type       string           `json:"type"`
	NoteID     string           `json:"note_id"`
	Owner      domain.UserRef   `json:"owner"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	SharedWith []domain.UserRef `json:"shared_with"`
	Versions   []versionDoc     `json:"versions"`
}

func userDocID(id string) string { return "user:" + id }

func noteDocID(id string) string { return "note:" + id }

func usernameClaimID(username string) string { return "username:" + strings.ToLower(username) }

func emailClaimID(email string) string { return "email:" + strings.ToLower(email) }

func newUserDoc(u *domain.User) *userDoc {
	return &userDoc{
		ID:        userDocID(u.ID),
		Type:      typeUser,
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:        d.UserID,
		Username:  d.Username,
		Email:     d.Email,
		Password:  d.Password,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newNoteDoc(n *domain.Note) *noteDoc {
	shared := append([]domain.UserRef{}, n.SharedWith...)
	return &noteDoc{
		ID:         noteDocID(n.ID),
		Type:       typeNote,
		NoteID:     n.ID,
		Owner:      n.Owner,
		Title:      n.Title,
		Content:    n.Content,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
		SharedWith: shared,
		Versions:   []versionDoc{},
	}
}

func (d *noteDoc) toDomain() *domain.Note {
	return &domain.Note{
		ID:         d.NoteID,
		Owner:      d.Owner,
		Title:      d.Title,
		Content:    d.Content,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		SharedWith: append([]domain.UserRef{}, d.SharedWith...),
	}
}

func (d *noteDoc) isSharedWith(userID string) bool {
	for _, u := range d.SharedWith {
		if u.ID == userID {
			return true
		}
	}
	return false
}

func (d *noteDoc) history() []*domain.NoteVersion {
	history := make([]*domain.NoteVersion, 0, len(d.Versions))
	for _, v := range d.Versions {
		history = append(history, &domain.NoteVersion{
			ID:         v.ID,
			NoteID:     d.NoteID,
			Number:     v.Number,
			Content:    v.Content,
			RecordedAt: v.RecordedAt,
		})
	}
	return history
}
