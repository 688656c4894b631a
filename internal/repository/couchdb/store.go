// Package couchdb keeps users and notes in a single CouchDB database.
//
// A note document embeds its share list and version history, so every write
// to a note is one document update guarded by its revision.
package couchdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"notes-server/internal/repository"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	// MaxRetries bounds how often a transaction is replayed after a revision conflict.
	MaxRetries int
}

func (o Options) URL() string {
	u := url.URL{
		Scheme: "http",
		Host:   o.Host + ":" + o.Port,
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	return u.String()
}

type Store struct {
	client     *kivik.Client
	db         *kivik.DB
	log        *zap.Logger
	maxRetries int
	uow        *unitOfWork
}

// Open connects, creates the database when missing and ensures the Mango indexes exist.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	client, err := kivik.New("couch", opts.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, opts.Name); err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		if log != nil {
			log.Info("created database", zap.String("database", opts.Name))
		}
	}

	s := New(client, opts.Name, opts.MaxRetries, log)
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func New(client *kivik.Client, dbName string, maxRetries int, log *zap.Logger) *Store {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:     client,
		db:         client.DB(dbName),
		log:        log,
		maxRetries: maxRetries,
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		name   string
		fields []string
	}{
		{"by-owner", []string{"type", "owner.id"}},
		{"by-username", []string{"type", "username"}},
	}
	for _, idx := range indexes {
		if err := s.db.CreateIndex(ctx, "notes-server", idx.name, map[string]any{"fields": idx.fields}); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *Store) Users() repository.UserRepository {
	return &userRepository{db: s.db}
}

func (s *Store) Notes() repository.NoteRepository {
	return &noteRepository{store: s}
}

func (s *Store) Versions() repository.NoteVersionRepository {
	return &noteVersionRepository{store: s}
}

// WithinTransaction buffers note writes made by fn and saves them when fn
// succeeds. If another writer updated one of the documents first, fn is run
// again against fresh copies, up to the configured number of retries.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.run(ctx, func(uow *unitOfWork) error {
		if uow == s.uow {
			return fn(s)
		}
		return fn(&Store{client: s.client, db: s.db, log: s.log, maxRetries: s.maxRetries, uow: uow})
	})
}

func (s *Store) run(ctx context.Context, fn func(uow *unitOfWork) error) error {
	if s.uow != nil {
		return fn(s.uow)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		uow := newUnitOfWork(s.db)
		if err := fn(uow); err != nil {
			return err
		}

		err := uow.commit(ctx)
		if err == nil {
			return nil
		}
		if !isConflict(err) || attempt >= s.maxRetries {
			return err
		}
		s.log.Debug("retrying after revision conflict", zap.Int("attempt", attempt+1))
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("couchdb is not reachable")
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}
