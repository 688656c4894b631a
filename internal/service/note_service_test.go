package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"notes-server/internal/domain"
	"notes-server/internal/repository"
	"notes-server/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

type notification struct {
	recipients []string
	event      *domain.NoteEvent
}

func (n *recordingNotifier) Publish(recipients []string, event *domain.NoteEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{recipients: recipients, event: event})
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// faultyStore fails selected writes after the real store has accepted everything before them.
type faultyStore struct {
	repository.Store
	failRecord bool
	failUpdate bool
}

func (f *faultyStore) Notes() repository.NoteRepository {
	return &faultyNotes{NoteRepository: f.Store.Notes(), failUpdate: f.failUpdate}
}

func (f *faultyStore) Versions() repository.NoteVersionRepository {
	return &faultyVersions{NoteVersionRepository: f.Store.Versions(), failRecord: f.failRecord}
}

func (f *faultyStore) WithinTransaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.WithinTransaction(ctx, func(tx repository.Store) error {
		return fn(&faultyStore{Store: tx, failRecord: f.failRecord, failUpdate: f.failUpdate})
	})
}

type faultyNotes struct {
	repository.NoteRepository
	failUpdate bool
}

func (f *faultyNotes) Update(ctx context.Context, note *domain.Note) error {
	if f.failUpdate {
		return errors.New("update failed")
	}
	return f.NoteRepository.Update(ctx, note)
}

type faultyVersions struct {
	repository.NoteVersionRepository
	failRecord bool
}

func (f *faultyVersions) Record(ctx context.Context, v *domain.NoteVersion) error {
	if f.failRecord {
		return errors.New("record failed")
	}
	return f.NoteVersionRepository.Record(ctx, v)
}

type noteFixture struct {
	store    *memory.Store
	svc      *NoteService
	notifier *recordingNotifier
	owner    *domain.User
	editor   *domain.User
	stranger *domain.User
}

func newNoteFixture(t testing.TB) *noteFixture {
	store := memory.New()
	notifier := &recordingNotifier{}
	f := &noteFixture{
		store:    store,
		svc:      NewNoteService(store, notifier, nil),
		notifier: notifier,
	}
	f.owner = f.addUser(t, "owner")
	f.editor = f.addUser(t, "editor")
	f.stranger = f.addUser(t, "stranger")
	return f
}

func (f *noteFixture) addUser(t testing.TB, username string) *domain.User {
	u := &domain.User{Username: username, Email: username + "@example.com", Password: "hashed"}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *noteFixture) createNote(t testing.TB) *domain.Note {
	note, err := f.svc.Create(context.Background(), f.owner.ID, &domain.CreateNoteRequest{
		Title:   "Groceries",
		Content: "milk",
	})
	require.NoError(t, err)
	return note
}

func (f *noteFixture) sharedNote(t testing.TB) *domain.Note {
	note := f.createNote(t)
	_, err := f.svc.Share(context.Background(), f.owner.ID, &domain.ShareNoteRequest{
		NoteID: note.ID,
		Users:  []string{f.editor.Username},
	})
	require.NoError(t, err)
	return note
}

func strPtr(s string) *string { return &s }

func TestNoteService_Create(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *domain.CreateNoteRequest
		wantMsg string
	}{
		{
			name: "valid note",
			req:  &domain.CreateNoteRequest{Title: "Title", Content: "Body"},
		},
		{
			name:    "empty title",
			req:     &domain.CreateNoteRequest{Title: "", Content: "Body"},
			wantMsg: "Title field is required.",
		},
		{
			name:    "blank content",
			req:     &domain.CreateNoteRequest{Title: "Title", Content: "   "},
			wantMsg: "Content field is required.",
		},
		{
			name:    "title too long",
			req:     &domain.CreateNoteRequest{Title: strings.Repeat("x", domain.MaxTitleLength+1), Content: "Body"},
			wantMsg: "Title must be at most 255 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, err := f.svc.Create(ctx, f.owner.ID, tt.req)

			if tt.wantMsg != "" {
				require.ErrorIs(t, err, ErrValidation)
				assert.Equal(t, tt.wantMsg, err.Error())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, f.owner.Ref(), note.Owner)
			assert.Empty(t, note.SharedWith)
			assert.False(t, note.CreatedAt.IsZero())
			assert.Equal(t, note.CreatedAt, note.UpdatedAt)
		})
	}
}

func TestNoteService_CreateThenGet(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newNoteFixture(t)
		ctx := context.Background()
		title := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 .,!?-]{0,60}`).Draw(rt, "title")
		content := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 \n.,!?-]{0,200}`).Draw(rt, "content")

		created, err := f.svc.Create(ctx, f.owner.ID, &domain.CreateNoteRequest{Title: title, Content: content})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		got, err := f.svc.Get(ctx, f.owner.ID, created.ID)
		if err != nil {
			rt.Fatalf("get: %v", err)
		}
		if got.Title != title || got.Content != content {
			rt.Fatalf("got (%q, %q), want (%q, %q)", got.Title, got.Content, title, content)
		}
	})
}

func TestNoteService_Get(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	tests := []struct {
		name    string
		userID  string
		noteID  string
		wantErr error
	}{
		{"owner", f.owner.ID, note.ID, nil},
		{"shared user", f.editor.ID, note.ID, nil},
		{"stranger", f.stranger.ID, note.ID, ErrPermissionDenied},
		{"missing note", f.owner.ID, "missing", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Get(ctx, tt.userID, tt.noteID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, note.ID, got.ID)
		})
	}
}

func TestNoteService_List(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	shared := f.sharedNote(t)
	f.createNote(t)

	owned, err := f.svc.List(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	visible, err := f.svc.List(ctx, f.editor.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, shared.ID, visible[0].ID)

	none, err := f.svc.List(ctx, f.stranger.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNoteService_Update(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	updated, err := f.svc.Update(ctx, f.editor.ID, note.ID, &domain.UpdateNoteRequest{Content: strPtr("eggs")})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Title)
	assert.Equal(t, "eggs", updated.Content)
	assert.True(t, updated.UpdatedAt.After(note.UpdatedAt) || updated.UpdatedAt.Equal(note.UpdatedAt))

	history, err := f.svc.History(ctx, f.owner.ID, note.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "milk", history[0].Content)
	assert.Equal(t, 1, history[0].Number)

	last := f.notifier.last()
	assert.Equal(t, domain.NoteEventUpdated, last.event.Type)
	assert.Equal(t, f.editor.Ref(), last.event.Actor)
	assert.ElementsMatch(t, []string{f.owner.ID, f.editor.ID}, last.recipients)
}

func TestNoteService_UpdateErrors(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	tests := []struct {
		name    string
		userID  string
		noteID  string
		req     *domain.UpdateNoteRequest
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing note",
			userID:  f.owner.ID,
			noteID:  "missing",
			req:     &domain.UpdateNoteRequest{Content: strPtr("x")},
			wantErr: ErrNotFound,
			wantMsg: "Note not found.",
		},
		{
			name:    "stranger",
			userID:  f.stranger.ID,
			noteID:  note.ID,
			req:     &domain.UpdateNoteRequest{Content: strPtr("x")},
			wantErr: ErrPermissionDenied,
			wantMsg: "You do not have permission to edit this note.",
		},
		{
			name:    "stranger with invalid body still gets 403",
			userID:  f.stranger.ID,
			noteID:  note.ID,
			req:     &domain.UpdateNoteRequest{Title: strPtr("")},
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "empty title",
			userID:  f.owner.ID,
			noteID:  note.ID,
			req:     &domain.UpdateNoteRequest{Title: strPtr("")},
			wantErr: ErrValidation,
			wantMsg: "Title field is required.",
		},
		{
			name:    "empty content",
			userID:  f.editor.ID,
			noteID:  note.ID,
			req:     &domain.UpdateNoteRequest{Content: strPtr("")},
			wantErr: ErrValidation,
			wantMsg: "Content field is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, tt.userID, tt.noteID, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}

	got, err := f.svc.Get(ctx, f.owner.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "milk", got.Content)

	history, err := f.svc.History(ctx, f.owner.ID, note.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNoteService_UpdateAppendsPriorContent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newNoteFixture(t)
		ctx := context.Background()
		note := f.sharedNote(t)

		contents := rapid.SliceOfN(rapid.StringMatching(`[a-z][a-z ]{0,30}`), 1, 8).Draw(rt, "contents")
		expected := []string{}
		current := note.Content

		for i, content := range contents {
			before, err := f.svc.History(ctx, f.owner.ID, note.ID)
			if err != nil {
				rt.Fatalf("history: %v", err)
			}

			userID := f.owner.ID
			if rapid.Bool().Draw(rt, "by_editor") {
				userID = f.editor.ID
			}
			if _, err := f.svc.Update(ctx, userID, note.ID, &domain.UpdateNoteRequest{Content: strPtr(content)}); err != nil {
				rt.Fatalf("update %d: %v", i, err)
			}

			after, err := f.svc.History(ctx, f.owner.ID, note.ID)
			if err != nil {
				rt.Fatalf("history: %v", err)
			}
			if len(after) != len(before)+1 {
				rt.Fatalf("history grew from %d to %d", len(before), len(after))
			}
			newest := after[len(after)-1]
			if newest.Content != current {
				rt.Fatalf("newest version %q, want prior content %q", newest.Content, current)
			}
			if newest.Number != len(after) {
				rt.Fatalf("newest version number %d, want %d", newest.Number, len(after))
			}

			expected = append(expected, current)
			current = content
		}

		final, err := f.svc.History(ctx, f.owner.ID, note.ID)
		if err != nil {
			rt.Fatalf("history: %v", err)
		}
		for i, v := range final {
			if v.Content != expected[i] {
				rt.Fatalf("version %d = %q, want %q", i, v.Content, expected[i])
			}
		}
	})
}

func TestNoteService_UpdateIsAtomic(t *testing.T) {
	tests := []struct {
		name  string
		store func(repository.Store) repository.Store
	}{
		{
			name: "version record fails",
			store: func(s repository.Store) repository.Store {
				return &faultyStore{Store: s, failRecord: true}
			},
		},
		{
			name: "note update fails after version is recorded",
			store: func(s repository.Store) repository.Store {
				return &faultyStore{Store: s, failUpdate: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNoteFixture(t)
			ctx := context.Background()
			note := f.createNote(t)
			published := f.notifier.count()

			faulty := NewNoteService(tt.store(f.store), f.notifier, nil)
			_, err := faulty.Update(ctx, f.owner.ID, note.ID, &domain.UpdateNoteRequest{Content: strPtr("changed")})
			require.Error(t, err)

			got, err := f.svc.Get(ctx, f.owner.ID, note.ID)
			require.NoError(t, err)
			assert.Equal(t, "milk", got.Content)

			history, err := f.svc.History(ctx, f.owner.ID, note.ID)
			require.NoError(t, err)
			assert.Empty(t, history)
			assert.Equal(t, published, f.notifier.count())
		})
	}
}

func TestNoteService_Delete(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	_, err := f.svc.Update(ctx, f.owner.ID, note.ID, &domain.UpdateNoteRequest{Content: strPtr("eggs")})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.editor.ID, note.ID, &domain.UpdateNoteRequest{Title: strPtr("Shopping")})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.editor.ID, note.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "You do not have permission to delete this note.", err.Error())

	err = f.svc.Delete(ctx, f.stranger.ID, note.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, f.svc.Delete(ctx, f.owner.ID, note.ID))

	_, err = f.svc.Get(ctx, f.owner.ID, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	versions, err := f.store.Versions().History(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	last := f.notifier.last()
	assert.Equal(t, domain.NoteEventDeleted, last.event.Type)
	assert.ElementsMatch(t, []string{f.owner.ID, f.editor.ID}, last.recipients)

	err = f.svc.Delete(ctx, f.owner.ID, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNoteService_Share(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.createNote(t)
	carol := f.addUser(t, "carol")

	shared, err := f.svc.Share(ctx, f.owner.ID, &domain.ShareNoteRequest{
		NoteID: note.ID,
		Users:  []string{f.editor.Username, f.owner.Username, f.editor.Username},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRef{f.editor.Ref()}, shared.SharedWith)

	shared, err = f.svc.Share(ctx, f.owner.ID, &domain.ShareNoteRequest{
		NoteID: note.ID,
		Users:  []string{carol.Username, f.editor.Username},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRef{f.editor.Ref(), carol.Ref()}, shared.SharedWith)

	stored, err := f.svc.Get(ctx, carol.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.SharedWith, stored.SharedWith)

	last := f.notifier.last()
	assert.Equal(t, domain.NoteEventShared, last.event.Type)
	assert.ElementsMatch(t, []string{f.owner.ID, f.editor.ID, carol.ID}, last.recipients)
}

func TestNoteService_ShareErrors(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	tests := []struct {
		name    string
		userID  string
		req     *domain.ShareNoteRequest
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing note",
			userID:  f.owner.ID,
			req:     &domain.ShareNoteRequest{NoteID: "missing", Users: []string{"stranger"}},
			wantErr: ErrNotFound,
			wantMsg: "Note not found.",
		},
		{
			name:    "editor cannot share",
			userID:  f.editor.ID,
			req:     &domain.ShareNoteRequest{NoteID: note.ID, Users: []string{"stranger"}},
			wantErr: ErrPermissionDenied,
			wantMsg: "You do not have permission to share this note.",
		},
		{
			name:    "unknown user aborts the batch",
			userID:  f.owner.ID,
			req:     &domain.ShareNoteRequest{NoteID: note.ID, Users: []string{"stranger", "ghost", "phantom"}},
			wantErr: ErrNotFound,
			wantMsg: "User ghost not found.",
		},
		{
			name:    "empty user list",
			userID:  f.owner.ID,
			req:     &domain.ShareNoteRequest{NoteID: note.ID},
			wantErr: ErrValidation,
			wantMsg: "Users field is required.",
		},
		{
			name:    "missing note is reported before an empty user list",
			userID:  f.owner.ID,
			req:     &domain.ShareNoteRequest{NoteID: "missing", Users: []string{}},
			wantErr: ErrNotFound,
			wantMsg: "Note not found.",
		},
		{
			name:    "stranger is denied before an empty user list",
			userID:  f.stranger.ID,
			req:     &domain.ShareNoteRequest{NoteID: note.ID, Users: []string{}},
			wantErr: ErrPermissionDenied,
			wantMsg: "You do not have permission to share this note.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Share(ctx, tt.userID, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}

	got, err := f.svc.Get(ctx, f.owner.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRef{f.editor.Ref()}, got.SharedWith)
}

func TestNoteService_ShareNeverIncludesOwner(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newNoteFixture(t)
		ctx := context.Background()
		note := f.createNote(t)
		pool := []string{f.owner.Username, f.editor.Username, f.stranger.Username}

		batches := rapid.IntRange(1, 5).Draw(rt, "batches")
		for i := 0; i < batches; i++ {
			users := rapid.SliceOfN(rapid.SampledFrom(pool), 1, 6).Draw(rt, "users")
			shared, err := f.svc.Share(ctx, f.owner.ID, &domain.ShareNoteRequest{NoteID: note.ID, Users: users})
			if err != nil {
				rt.Fatalf("share: %v", err)
			}

			seen := map[string]bool{}
			for _, u := range shared.SharedWith {
				if u.ID == f.owner.ID {
					rt.Fatalf("owner in share list")
				}
				if seen[u.ID] {
					rt.Fatalf("user %s shared twice", u.Username)
				}
				seen[u.ID] = true
			}
		}
	})
}

func TestNoteService_StrangerIsDeniedEverything(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	_, err := f.svc.Get(ctx, f.stranger.ID, note.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Update(ctx, f.stranger.ID, note.ID, &domain.UpdateNoteRequest{Content: strPtr("x")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Share(ctx, f.stranger.ID, &domain.ShareNoteRequest{NoteID: note.ID, Users: []string{"stranger"}})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = f.svc.Delete(ctx, f.stranger.ID, note.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.History(ctx, f.stranger.ID, note.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "You do not have permission to access the version history of this note.", err.Error())
}

func TestNoteService_History(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	note := f.sharedNote(t)

	history, err := f.svc.History(ctx, f.editor.ID, note.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, err = f.svc.History(ctx, f.owner.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
