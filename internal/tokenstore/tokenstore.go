// Package tokenstore remembers revoked token ids until the tokens would have expired anyway.
package tokenstore

import (
	"context"
	"time"
)

type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Close() error
}
