package repository

import (
	"context"
	"errors"

	"notes-server/internal/domain"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
	// ErrDuplicateUser is returned when a unique constraint fires and the backend cannot tell which one.
	ErrDuplicateUser = errors.New("user already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// FindByUsernames returns the users that exist, keyed by username.
	FindByUsernames(ctx context.Context, usernames []string) (map[string]*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	// FindByID locks the note for the rest of the transaction when called inside one.
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	ListAccessible(ctx context.Context, userID string) ([]*domain.Note, error)
	Update(ctx context.Context, note *domain.Note) error
	// Delete removes the note together with its share rows and versions.
	Delete(ctx context.Context, id string) error
	AddShares(ctx context.Context, noteID string, users []domain.UserRef) error
}

type NoteVersionRepository interface {
	Record(ctx context.Context, version *domain.NoteVersion) error
	// History lists versions oldest first.
	History(ctx context.Context, noteID string) ([]*domain.NoteVersion, error)
}

type Store interface {
	Users() UserRepository
	Notes() NoteRepository
	Versions() NoteVersionRepository
	// WithinTransaction runs fn against a transactional view of the store.
	// Everything fn writes commits together or not at all.
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
