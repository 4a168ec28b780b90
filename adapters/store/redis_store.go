package store

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/forum/ports"
	"github.com/redis/go-redis/v9"
)

// RedisLedger is a Redis implementation of the NonceLedger interface
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLedger creates a new Redis nonce ledger
func NewRedisLedger(client redis.UniversalClient) ports.NonceLedger {
	return &RedisLedger{
		client: client,
		prefix: "forum:nonce:spent:",
	}
}

// IsSpent checks if a nonce was already consumed
func (l *RedisLedger) IsSpent(ctx context.Context, nonce string) (bool, error) {
	val, err := l.client.Exists(ctx, l.prefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return val > 0, nil
}

// Consume marks a nonce as spent, reporting whether this call was the first
func (l *RedisLedger) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	// SETNX makes concurrent completions with one nonce race on a single key
	fresh, err := l.client.SetNX(ctx, l.prefix+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}
	return fresh, nil
}
