package ports

import (
	"context"
	"time"
)

// NonceLedger records spent nonces for replay protection
type NonceLedger interface {
	IsSpent(ctx context.Context, nonce string) (bool, error)
	// Consume marks nonce as spent for ttl. fresh is false when it was already spent.
	Consume(ctx context.Context, nonce string, ttl time.Duration) (fresh bool, err error)
}
