package postgres

import (
	"time"

	"notes-server/internal/domain"
)

// userModel's username and email are unique regardless of case; see caseInsensitiveIndexes.
type userModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"type:varchar(150);not null"`
	Email     string    `gorm:"type:varchar(254);not null"`
	Password  string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (userModel) TableName() string {
	return "users"
}

type noteModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"type:uuid;not null;index"`
	Owner     userModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Title     string    `gorm:"type:varchar(255);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (noteModel) TableName() string {
	return "notes"
}

// noteShareModel is one row of a note's share list. CreatedAt preserves the order users were added.
type noteShareModel struct {
	NoteID    string    `gorm:"type:uuid;primaryKey"`
	Note      noteModel `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
	UserID    string    `gorm:"type:uuid;primaryKey;index"`
	User      userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"not null"`
}

func (noteShareModel) TableName() string {
	return "note_shares"
}

type noteVersionModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	NoteID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_note_versions_note_number,priority:1"`
	Note       noteModel `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
	Number     int       `gorm:"not null;uniqueIndex:idx_note_versions_note_number,priority:2"`
	Content    string    `gorm:"type:text;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (noteVersionModel) TableName() string {
	return "note_versions"
}

func toUserModel(u *domain.User) *userModel {
	return &userModel{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (m *userModel) toDomain() *domain.User {
	return &domain.User{
		ID:        m.ID,
		Username:  m.Username,
		Email:     m.Email,
		Password:  m.Password,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toNoteModel(n *domain.Note) *noteModel {
	return &noteModel{
		ID:        n.ID,
		OwnerID:   n.Owner.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (m *noteModel) toDomain(owner domain.UserRef, shares []domain.UserRef) *domain.Note {
	if shares == nil {
		shares = []domain.UserRef{}
	}
	return &domain.Note{
		ID:         m.ID,
		Owner:      owner,
		Title:      m.Title,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		SharedWith: shares,
	}
}

func (m *noteVersionModel) toDomain() *domain.NoteVersion {
	return &domain.NoteVersion{
		ID:         m.ID,
		NoteID:     m.NoteID,
		Number:     m.Number,
		Content:    m.Content,
		RecordedAt: m.RecordedAt,
	}
}
