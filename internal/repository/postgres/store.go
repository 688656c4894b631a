// Package postgres stores users, notes, share lists and versions in PostgreSQL through GORM.
package postgres

import (
	"context"
	"fmt"
	"time"

	"notes-server/internal/repository"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

type Store struct {
	db   *gorm.DB
	inTx bool
}

// Open connects and configures the pool. SQL is logged through log at warn level and above.
func Open(opts Options, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: newGormLogger(log, opts.SlowThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Index names keep "username" and "email" so classifyUserError can tell them apart.
var caseInsensitiveIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))`,
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&userModel{},
			&noteModel{},
			&noteShareModel{},
			&noteVersionModel{},
		); err != nil {
			return fmt.Errorf("failed to migrate tables: %w", err)
		}
		for _, stmt := range caseInsensitiveIndexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create user index: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Users() repository.UserRepository {
	return &userRepository{db: s.db}
}

func (s *Store) Notes() repository.NoteRepository {
	return &noteRepository{db: s.db, lock: s.inTx}
}

func (s *Store) Versions() repository.NoteVersionRepository {
	return &noteVersionRepository{db: s.db}
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger(log *zap.Logger, slow time.Duration) logger.Interface {
	if log == nil {
		return logger.Discard
	}
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		},
	)
}
