// Package redislock implements the run lease on Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/leasehold/internal/ports/secondary"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease re-acquired by another process is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrLeaseLost is returned on release when the lease expired and was
// possibly taken by another holder before the run finished.
var ErrLeaseLost = errors.New("lease expired before release")

// scriptClient is the subset of *redis.Client used by Lease.
type scriptClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Lease implements secondary.RunLock with SET NX PX and a compare-and-delete release.
type Lease struct {
	client scriptClient
}

// New creates a Lease over client.
func New(client scriptClient) *Lease {
	return &Lease{client: client}
}

// Acquire implements secondary.RunLock.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lease ttl must be positive, got %s", ttl)
	}
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("failed to release lease %s: %w", key, err)
		}
		if n == 0 {
			return ErrLeaseLost
		}
		return nil
	}
	return release, true, nil
}

// Ensure Lease implements the interface
var _ secondary.RunLock = (*Lease)(nil)
