// Package memory is a process-local Store. It backs DB_DRIVER=memory and the test suites.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	users    map[string]*domain.User
	notes    map[string]*domain.Note
	versions map[string][]*domain.NoteVersion
}

func newState() *state {
	return &state{
		users:    make(map[string]*domain.User),
		notes:    make(map[string]*domain.Note),
		versions: make(map[string][]*domain.NoteVersion),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		cu := *u
		c.users[id] = &cu
	}
	for id, n := range s.notes {
		c.notes[id] = n.Clone()
	}
	for id, vs := range s.versions {
		c.versions[id] = append([]*domain.NoteVersion(nil), vs...)
	}
	return c
}

// Store keeps everything behind one mutex. A transaction holds the mutex for
// its whole duration and restores the previous state if fn fails.
type Store struct {
	mu   *sync.Mutex
	st   **state
	inTx bool
}

func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, st: &st}
}

func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

func (s *Store) Notes() repository.NoteRepository { return &noteRepo{s} }

func (s *Store) Versions() repository.NoteVersionRepository { return &versionRepo{s} }

func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.st).clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// read runs fn with the state locked unless the caller already holds the lock.
func (s *Store) read(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.st)
}

// write runs fn atomically: outside a transaction a failed fn leaves state untouched.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if s.inTx {
		return fn(*s.st)
	}
	return s.WithinTransaction(ctx, func(tx repository.Store) error {
		return fn(*tx.(*Store).st)
	})
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.s.write(ctx, func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Username, user.Username) {
				return repository.ErrDuplicateUsername
			}
			if strings.EqualFold(u.Email, user.Email) {
				return repository.ErrDuplicateEmail
			}
		}
		if user.ID == "" {
			user.ID = uuid.New().String()
		}
		u := *user
		st.users[u.ID] = &u
		return nil
	})
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var found *domain.User
	err := r.s.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		cu := *u
		found = &cu
		return nil
	})
	return found, err
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var found *domain.User
	err := r.s.read(func(st *state) error {
		for _, u := range st.users {
			if u.Username == username {
				cu := *u
				found = &cu
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

func (r *userRepo) FindByUsernames(ctx context.Context, usernames []string) (map[string]*domain.User, error) {
	wanted := make(map[string]bool, len(usernames))
	for _, name := range usernames {
		wanted[name] = true
	}
	found := make(map[string]*domain.User, len(usernames))
	err := r.s.read(func(st *state) error {
		for _, u := range st.users {
			if wanted[u.Username] {
				cu := *u
				found[u.Username] = &cu
			}
		}
		return nil
	})
	return found, err
}

func (r *userRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	exists := false
	err := r.s.read(func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Username, username) {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (r *userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	exists := false
	err := r.s.read(func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

type noteRepo struct{ s *Store }

func (r *noteRepo) Create(ctx context.Context, note *domain.Note) error {
	return r.s.write(ctx, func(st *state) error {
		if note.ID == "" {
			note.ID = uuid.New().String()
		}
		st.notes[note.ID] = note.Clone()
		return nil
	})
}

func (r *noteRepo) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var found *domain.Note
	err := r.s.read(func(st *state) error {
		n, ok := st.notes[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = n.Clone()
		return nil
	})
	return found, err
}

func (r *noteRepo) ListAccessible(ctx context.Context, userID string) ([]*domain.Note, error) {
	var notes []*domain.Note
	err := r.s.read(func(st *state) error {
		for _, n := range st.notes {
			if n.IsOwner(userID) || n.IsSharedWith(userID) {
				notes = append(notes, n.Clone())
			}
		}
		return nil
	})
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes, err
}

func (r *noteRepo) Update(ctx context.Context, note *domain.Note) error {
	return r.s.write(ctx, func(st *state) error {
		existing, ok := st.notes[note.ID]
		if !ok {
			return repository.ErrNotFound
		}
		updated := existing.Clone()
		updated.Title = note.Title
		updated.Content = note.Content
		updated.UpdatedAt = note.UpdatedAt
		st.notes[note.ID] = updated
		return nil
	})
}

func (r *noteRepo) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.notes[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.notes, id)
		delete(st.versions, id)
		return nil
	})
}

func (r *noteRepo) AddShares(ctx context.Context, noteID string, users []domain.UserRef) error {
	return r.s.write(ctx, func(st *state) error {
		existing, ok := st.notes[noteID]
		if !ok {
			return repository.ErrNotFound
		}
		updated := existing.Clone()
		for _, u := range users {
			if u.ID == updated.Owner.ID || updated.IsSharedWith(u.ID) {
				continue
			}
			updated.SharedWith = append(updated.SharedWith, u)
		}
		st.notes[noteID] = updated
		return nil
	})
}

type versionRepo struct{ s *Store }

func (r *versionRepo) Record(ctx context.Context, version *domain.NoteVersion) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.notes[version.NoteID]; !ok {
			return repository.ErrNotFound
		}
		if version.ID == "" {
			version.ID = uuid.New().String()
		}
		if version.RecordedAt.IsZero() {
			version.RecordedAt = time.Now()
		}
		version.Number = len(st.versions[version.NoteID]) + 1
		v := *version
		st.versions[version.NoteID] = append(st.versions[version.NoteID], &v)
		return nil
	})
}

func (r *versionRepo) History(ctx context.Context, noteID string) ([]*domain.NoteVersion, error) {
	var history []*domain.NoteVersion
	err := r.s.read(func(st *state) error {
		history = make([]*domain.NoteVersion, 0, len(st.versions[noteID]))
		for _, v := range st.versions[noteID] {
			cv := *v
			history = append(history, &cv)
		}
		return nil
	})
	return history, err
}
