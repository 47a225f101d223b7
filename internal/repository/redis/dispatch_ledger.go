package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ritaorion/district5b-portal/internal/core/port"
)

const defaultLedgerTTL = 7 * 24 * time.Hour

// DispatchLedger remembers delivered notification keys with SETNX so a message
// redelivered by the broker is sent at most once.
type DispatchLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewDispatchLedger constructs a ledger storing claims under prefix for ttl.
func NewDispatchLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *DispatchLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &DispatchLedger{client: client, prefix: prefix, ttl: ttl}
}

// Claim returns true only for the first caller presenting the key.
func (l *DispatchLedger) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release forgets the claim.
func (l *DispatchLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (l *DispatchLedger) key(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}

var _ port.DispatchLedger = (*DispatchLedger)(nil)
