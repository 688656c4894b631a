package couchdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"

	"github.com/google/uuid"
)

type noteRepository struct {
	store *Store
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	return r.store.run(ctx, func(uow *unitOfWork) error {
		uow.put(newNoteDoc(note))
		return nil
	})
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var note *domain.Note
	err := r.store.run(ctx, func(uow *unitOfWork) error {
		doc, err := uow.load(ctx, id)
		if err != nil {
			return err
		}
		note = doc.toDomain()
		return nil
	})
	return note, err
}

func (r *noteRepository) ListAccessible(ctx context.Context, userID string) ([]*domain.Note, error) {
	query := map[string]any{
		"selector": map[string]any{
			"type": typeNote,
			"$or": []any{
				map[string]any{"owner.id": userID},
				map[string]any{"shared_with": map[string]any{
					"$elemMatch": map[string]any{"id": userID},
				}},
			},
		},
	}

	rows := r.store.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []*domain.Note{}
	for rows.Next() {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, doc.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes, nil
}

func (r *noteRepository) Update(ctx context.Context, note *domain.Note) error {
	return r.store.run(ctx, func(uow *unitOfWork) error {
		doc, err := uow.load(ctx, note.ID)
		if err != nil {
			return err
		}
		doc.Title = note.Title
		doc.Content = note.Content
		doc.UpdatedAt = note.UpdatedAt
		uow.put(doc)
		return nil
	})
}

// Delete removes the note document. Its versions live inside it and go with it.
func (r *noteRepository) Delete(ctx context.Context, id string) error {
	return r.store.run(ctx, func(uow *unitOfWork) error {
		if _, err := uow.load(ctx, id); err != nil {
			return err
		}
		uow.remove(id)
		return nil
	})
}

func (r *noteRepository) AddShares(ctx context.Context, noteID string, users []domain.UserRef) error {
	return r.store.run(ctx, func(uow *unitOfWork) error {
		doc, err := uow.load(ctx, noteID)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.ID == doc.Owner.ID || doc.isSharedWith(u.ID) {
				continue
			}
			doc.SharedWith = append(doc.SharedWith, u)
		}
		uow.put(doc)
		return nil
	})
}

type noteVersionRepository struct {
	store *Store
}

func (r *noteVersionRepository) Record(ctx context.Context, version *domain.NoteVersion) error {
	return r.store.run(ctx, func(uow *unitOfWork) error {
		doc, err := uow.load(ctx, version.NoteID)
		if err != nil {
			return err
		}

		if version.ID == "" {
			version.ID = uuid.New().String()
		}
		if version.RecordedAt.IsZero() {
			version.RecordedAt = time.Now().UTC()
		}
		version.Number = len(doc.Versions) + 1

		doc.Versions = append(doc.Versions, versionDoc{
			ID:         version.ID,
			Number:     version.Number,
			Content:    version.Content,
			RecordedAt: version.RecordedAt,
		})
		uow.put(doc)
		return nil
	})
}

func (r *noteVersionRepository) History(ctx context.Context, noteID string) ([]*domain.NoteVersion, error) {
	var history []*domain.NoteVersion
	err := r.store.run(ctx, func(uow *unitOfWork) error {
		doc, err := uow.load(ctx, noteID)
		if err != nil {
			return err
		}
		history = doc.history()
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return []*domain.NoteVersion{}, nil
	}
	return history, err
}
