package couchdb

import (
	"context"
	"fmt"

	"notes-server/internal/repository"

	"github.com/go-kivik/kivik/v4"
)

// unitOfWork caches the note documents a transaction touches and writes the
// changed ones on commit, each guarded by the revision it was read at.
type unitOfWork struct {
	db      *kivik.DB
	notes   map[string]*noteDoc
	dirty   map[string]bool
	deleted map[string]bool
	order   []string
}

func newUnitOfWork(db *kivik.DB) *unitOfWork {
	return &unitOfWork{
		db:      db,
		notes:   make(map[string]*noteDoc),
		dirty:   make(map[string]bool),
		deleted: make(map[string]bool),
	}
}

func (u *unitOfWork) load(ctx context.Context, noteID string) (*noteDoc, error) {
	if u.deleted[noteID] {
		return nil, repository.ErrNotFound
	}
	if doc, ok := u.notes[noteID]; ok {
		return doc, nil
	}

	var doc noteDoc
	if err := u.db.Get(ctx, noteDocID(noteID)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if doc.Type != typeNote {
		return nil, repository.ErrNotFound
	}

	u.notes[noteID] = &doc
	return &doc, nil
}

func (u *unitOfWork) put(doc *noteDoc) {
	if _, ok := u.notes[doc.NoteID]; !ok || !u.dirty[doc.NoteID] {
		u.order = append(u.order, doc.NoteID)
	}
	u.notes[doc.NoteID] = doc
	u.dirty[doc.NoteID] = true
	delete(u.deleted, doc.NoteID)
}

func (u *unitOfWork) remove(noteID string) {
	if !u.dirty[noteID] {
		u.order = append(u.order, noteID)
	}
	u.dirty[noteID] = true
	u.deleted[noteID] = true
}

func (u *unitOfWork) commit(ctx context.Context) error {
	for _, id := range u.order {
		if !u.dirty[id] {
			continue
		}
		doc := u.notes[id]

		if u.deleted[id] {
			if doc == nil || doc.Rev == "" {
				continue
			}
			if _, err := u.db.Delete(ctx, doc.ID, doc.Rev); err != nil {
				return fmt.Errorf("failed to delete note: %w", err)
			}
			continue
		}

		rev, err := u.db.Put(ctx, doc.ID, doc)
		if err != nil {
			return fmt.Errorf("failed to save note: %w", err)
		}
		doc.Rev = rev
	}
	u.dirty = make(map[string]bool)
	u.order = nil
	return nil
}
