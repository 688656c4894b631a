package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"notes-server/internal/domain"
	"notes-server/internal/policy"
	"notes-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const noteNotFoundMessage = "Note not found."

var denialMessages = map[policy.Action]string{
	policy.ActionRead:   "You do not have permission to access this note.",
	policy.ActionWrite:  "You do not have permission to edit this note.",
	policy.ActionShare:  "You do not have permission to share this note.",
	policy.ActionDelete: "You do not have permission to delete this note.",
}

const historyDeniedMessage = "You do not have permission to access the version history of this note."

// Notifier receives events for changes that have been committed.
type Notifier interface {
	Publish(recipients []string, event *domain.NoteEvent)
}

type NoteService struct {
	store    repository.Store
	notifier Notifier
	logger   *zap.Logger
}

func NewNoteService(store repository.Store, notifier Notifier, logger *zap.Logger) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteService{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *NoteService) Create(ctx context.Context, userID string, req *domain.CreateNoteRequest) (*domain.Note, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}

	owner, err := s.actor(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := &domain.Note{
		ID:         uuid.New().String(),
		Owner:      owner,
		Title:      req.Title,
		Content:    req.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
		SharedWith: []domain.UserRef{},
	}

	if err := s.store.Notes().Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.logger.Info("note created", zap.String("note_id", note.ID), zap.String("owner_id", owner.ID))
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*domain.Note, error) {
	note, err := s.authorize(ctx, s.store, userID, noteID, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	return note, nil
}

// List returns every note the user owns or has been shared, most recently updated first.
func (s *NoteService) List(ctx context.Context, userID string) ([]*domain.Note, error) {
	notes, err := s.store.Notes().ListAccessible(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	if notes == nil {
		notes = []*domain.Note{}
	}
	return notes, nil
}

// Update records the note's current content in its history and then applies the
// request, all in one transaction. Fields absent from the request are left as they are.
func (s *NoteService) Update(ctx context.Context, userID, noteID string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	var (
		updated *domain.Note
		actor   domain.UserRef
	)

	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		note, err := s.authorize(ctx, tx, userID, noteID, policy.ActionWrite)
		if err != nil {
			return err
		}

		if req.Title != nil {
			if err := validateTitle(*req.Title); err != nil {
				return err
			}
		}
		if req.Content != nil {
			if err := validateContent(*req.Content); err != nil {
				return err
			}
		}

		if actor, err = s.actor(ctx, tx, userID); err != nil {
			return err
		}

		if err := tx.Versions().Record(ctx, &domain.NoteVersion{
			NoteID:  note.ID,
			Content: note.Content,
		}); err != nil {
			return fmt.Errorf("failed to record note version: %w", err)
		}

		if req.Title != nil {
			note.Title = *req.Title
		}
		if req.Content != nil {
			note.Content = *req.Content
		}
		note.UpdatedAt = time.Now().UTC()

		if err := tx.Notes().Update(ctx, note); err != nil {
			return fmt.Errorf("failed to update note: %w", err)
		}

		updated = note
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("note updated", zap.String("note_id", updated.ID), zap.String("user_id", userID))
	s.publish(updated.Audience(), domain.NoteEventUpdated, updated, actor)
	return updated, nil
}

func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	var (
		deleted *domain.Note
		actor   domain.UserRef
	)

	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		note, err := s.authorize(ctx, tx, userID, noteID, policy.ActionDelete)
		if err != nil {
			return err
		}
		actor = note.Owner

		if err := tx.Notes().Delete(ctx, note.ID); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}

		deleted = note
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("note deleted", zap.String("note_id", deleted.ID), zap.String("user_id", userID))
	s.publish(deleted.Audience(), domain.NoteEventDeleted, deleted, actor)
	return nil
}

// Share checks the note and the caller's rights before the request fields, then
// resolves every username before touching the note. If any is unknown the
// first missing one is reported and nothing is shared. The owner and users who
// already have access are skipped.
func (s *NoteService) Share(ctx context.Context, userID string, req *domain.ShareNoteRequest) (*domain.Note, error) {
	var (
		shared *domain.Note
		actor  domain.UserRef
	)

	err := s.store.WithinTransaction(ctx, func(tx repository.Store) error {
		note, err := s.authorize(ctx, tx, userID, req.NoteID, policy.ActionShare)
		if err != nil {
			return err
		}
		if len(req.Users) == 0 {
			return validationError("Users field is required.")
		}
		actor = note.Owner

		found, err := tx.Users().FindByUsernames(ctx, req.Users)
		if err != nil {
			return fmt.Errorf("failed to resolve usernames: %w", err)
		}

		seen := make(map[string]bool, len(req.Users))
		additions := make([]domain.UserRef, 0, len(req.Users))
		for _, username := range req.Users {
			user, ok := found[username]
			if !ok {
				return notFoundError(fmt.Sprintf("User %s not found.", username))
			}
			if seen[user.ID] || note.IsOwner(user.ID) || note.IsSharedWith(user.ID) {
				continue
			}
			seen[user.ID] = true
			additions = append(additions, user.Ref())
		}

		if len(additions) > 0 {
			if err := tx.Notes().AddShares(ctx, note.ID, additions); err != nil {
				return fmt.Errorf("failed to share note: %w", err)
			}
			note.SharedWith = append(note.SharedWith, additions...)
		}

		shared = note
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("note shared",
		zap.String("note_id", shared.ID),
		zap.Int("shared_with", len(shared.SharedWith)),
	)
	s.publish(shared.Audience(), domain.NoteEventShared, shared, actor)
	return shared, nil
}

func (s *NoteService) History(ctx context.Context, userID, noteID string) ([]*domain.NoteVersion, error) {
	note, err := s.find(ctx, s.store, noteID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(userID, note, policy.ActionRead).Allowed() {
		return nil, permissionDenied(historyDeniedMessage)
	}

	versions, err := s.store.Versions().History(ctx, note.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load note history: %w", err)
	}
	if versions == nil {
		versions = []*domain.NoteVersion{}
	}
	return versions, nil
}

func (s *NoteService) find(ctx context.Context, store repository.Store, noteID string) (*domain.Note, error) {
	note, err := store.Notes().FindByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(noteNotFoundMessage)
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return note, nil
}

func (s *NoteService) authorize(ctx context.Context, store repository.Store, userID, noteID string, action policy.Action) (*domain.Note, error) {
	note, err := s.find(ctx, store, noteID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(userID, note, action).Allowed() {
		return nil, permissionDenied(denialMessages[action])
	}
	return note, nil
}

func (s *NoteService) actor(ctx context.Context, store repository.Store, userID string) (domain.UserRef, error) {
	user, err := store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UserRef{}, credentialsError("User not found")
		}
		return domain.UserRef{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user.Ref(), nil
}

func (s *NoteService) publish(recipients []string, eventType domain.NoteEventType, note *domain.Note, actor domain.UserRef) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(recipients, &domain.NoteEvent{
		Type:       eventType,
		NoteID:     note.ID,
		Title:      note.Title,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	})
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return validationError("Title field is required.")
	}
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return validationError(fmt.Sprintf("Title must be at most %d characters.", domain.MaxTitleLength))
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return validationError("Content field is required.")
	}
	return nil
}
