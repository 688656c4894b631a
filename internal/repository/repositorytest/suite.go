// Package repositorytest holds behaviour every repository.Store backend must share.
package repositorytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a store built by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("user uniqueness", func(t *testing.T) { testUserUniqueness(t, newStore(t)) })
	t.Run("user lookups", func(t *testing.T) { testUserLookups(t, newStore(t)) })
	t.Run("note round trip", func(t *testing.T) { testNoteRoundTrip(t, newStore(t)) })
	t.Run("list accessible", func(t *testing.T) { testListAccessible(t, newStore(t)) })
	t.Run("shares", func(t *testing.T) { testShares(t, newStore(t)) })
	t.Run("versions", func(t *testing.T) { testVersions(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func NewUser(t *testing.T, s repository.Store, username string) *domain.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     username + "@example.com",
		Password:  "hashed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func NewNote(t *testing.T, s repository.Store, owner *domain.User, title string) *domain.Note {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	n := &domain.Note{
		ID:         uuid.New().String(),
		Owner:      owner.Ref(),
		Title:      title,
		Content:    "content of " + title,
		CreatedAt:  now,
		UpdatedAt:  now,
		SharedWith: []domain.UserRef{},
	}
	require.NoError(t, s.Notes().Create(context.Background(), n))
	return n
}

func testUserUniqueness(t *testing.T, s repository.Store) {
	ctx := context.Background()
	NewUser(t, s, "alice")

	err := s.Users().Create(ctx, &domain.User{
		ID: uuid.New().String(), Username: "alice", Email: "other@example.com", Password: "x",
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicateUsername) || errors.Is(err, repository.ErrDuplicateUser), "got %v", err)

	err = s.Users().Create(ctx, &domain.User{
		ID: uuid.New().String(), Username: "alice2", Email: "alice@example.com", Password: "x",
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateUser), "got %v", err)

	err = s.Users().Create(ctx, &domain.User{
		ID: uuid.New().String(), Username: "Alice", Email: "third@example.com", Password: "x",
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicateUsername) || errors.Is(err, repository.ErrDuplicateUser), "usernames differing only in case: got %v", err)

	err = s.Users().Create(ctx, &domain.User{
		ID: uuid.New().String(), Username: "alice3", Email: "Alice@Example.com", Password: "x",
	})
	assert.True(t, errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateUser), "emails differing only in case: got %v", err)

	exists, err := s.Users().UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Users().EmailExists(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Users().UsernameExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testUserLookups(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	NewUser(t, s, "bob")

	got, err := s.Users().FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hashed", got.Password)

	got, err = s.Users().FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.Email)

	_, err = s.Users().FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Users().FindByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	found, err := s.Users().FindByUsernames(ctx, []string{"alice", "ghost", "bob"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, alice.ID, found["alice"].ID)
	assert.NotContains(t, found, "ghost")
}

func testNoteRoundTrip(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	note := NewNote(t, s, alice, "Groceries")

	got, err := s.Notes().FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Ref(), got.Owner)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, note.Content, got.Content)
	assert.Empty(t, got.SharedWith)
	assert.WithinDuration(t, note.CreatedAt, got.CreatedAt, time.Millisecond)

	got.Title = "Shopping"
	got.Content = "eggs"
	got.UpdatedAt = note.UpdatedAt.Add(time.Second)
	require.NoError(t, s.Notes().Update(ctx, got))

	again, err := s.Notes().FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", again.Title)
	assert.Equal(t, "eggs", again.Content)
	assert.Equal(t, alice.Ref(), again.Owner)

	_, err = s.Notes().FindByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = s.Notes().Update(ctx, &domain.Note{ID: uuid.New().String(), Title: "x", Content: "y"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testListAccessible(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	bob := NewUser(t, s, "bob")
	carol := NewUser(t, s, "carol")

	older := NewNote(t, s, alice, "older")
	newer := NewNote(t, s, alice, "newer")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Minute)
	require.NoError(t, s.Notes().Update(ctx, newer))
	bobs := NewNote(t, s, bob, "bobs")
	require.NoError(t, s.Notes().AddShares(ctx, bobs.ID, []domain.UserRef{alice.Ref()}))

	notes, err := s.Notes().ListAccessible(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	ids := []string{notes[0].ID, notes[1].ID, notes[2].ID}
	assert.ElementsMatch(t, []string{older.ID, newer.ID, bobs.ID}, ids)
	for i := 1; i < len(notes); i++ {
		assert.False(t, notes[i].UpdatedAt.After(notes[i-1].UpdatedAt), "notes not sorted by updated_at desc")
	}

	notes, err = s.Notes().ListAccessible(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func testShares(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	bob := NewUser(t, s, "bob")
	carol := NewUser(t, s, "carol")
	note := NewNote(t, s, alice, "shared")

	require.NoError(t, s.Notes().AddShares(ctx, note.ID, []domain.UserRef{bob.Ref(), alice.Ref()}))
	require.NoError(t, s.Notes().AddShares(ctx, note.ID, []domain.UserRef{bob.Ref(), carol.Ref()}))

	got, err := s.Notes().FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRef{bob.Ref(), carol.Ref()}, got.SharedWith)

	err = s.Notes().AddShares(ctx, uuid.New().String(), []domain.UserRef{bob.Ref()})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testVersions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	note := NewNote(t, s, alice, "versioned")
	other := NewNote(t, s, alice, "other")

	for _, content := range []string{"v1", "v2", "v3"} {
		v := &domain.NoteVersion{NoteID: note.ID, Content: content}
		require.NoError(t, s.Versions().Record(ctx, v))
		assert.NotEmpty(t, v.ID)
		assert.False(t, v.RecordedAt.IsZero())
	}
	require.NoError(t, s.Versions().Record(ctx, &domain.NoteVersion{NoteID: other.ID, Content: "o1"}))

	history, err := s.Versions().History(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, v := range history {
		assert.Equal(t, i+1, v.Number)
		assert.Equal(t, note.ID, v.NoteID)
	}
	assert.Equal(t, "v1", history[0].Content)
	assert.Equal(t, "v3", history[2].Content)

	err = s.Versions().Record(ctx, &domain.NoteVersion{NoteID: uuid.New().String(), Content: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	empty, err := s.Versions().History(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteCascades(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	bob := NewUser(t, s, "bob")
	note := NewNote(t, s, alice, "doomed")
	keep := NewNote(t, s, alice, "kept")

	require.NoError(t, s.Notes().AddShares(ctx, note.ID, []domain.UserRef{bob.Ref()}))
	require.NoError(t, s.Versions().Record(ctx, &domain.NoteVersion{NoteID: note.ID, Content: "old"}))
	require.NoError(t, s.Versions().Record(ctx, &domain.NoteVersion{NoteID: keep.ID, Content: "old"}))

	require.NoError(t, s.Notes().Delete(ctx, note.ID))

	_, err := s.Notes().FindByID(ctx, note.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	history, err := s.Versions().History(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	kept, err := s.Versions().History(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	visible, err := s.Notes().ListAccessible(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)

	assert.ErrorIs(t, s.Notes().Delete(ctx, note.ID), repository.ErrNotFound)
}

func testRollback(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	bob := NewUser(t, s, "bob")
	note := NewNote(t, s, alice, "atomic")
	boom := errors.New("boom")

	err := s.WithinTransaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Notes().FindByID(ctx, note.ID)
		if err != nil {
			return err
		}
		if err := tx.Versions().Record(ctx, &domain.NoteVersion{NoteID: note.ID, Content: locked.Content}); err != nil {
			return err
		}
		locked.Content = "changed"
		if err := tx.Notes().Update(ctx, locked); err != nil {
			return err
		}
		if err := tx.Notes().AddShares(ctx, note.ID, []domain.UserRef{bob.Ref()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Notes().FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Content, got.Content)
	assert.Empty(t, got.SharedWith)

	history, err := s.Versions().History(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	err = s.WithinTransaction(ctx, func(tx repository.Store) error {
		return tx.Versions().Record(ctx, &domain.NoteVersion{NoteID: note.ID, Content: note.Content})
	})
	require.NoError(t, err)

	history, err = s.Versions().History(ctx, note.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
