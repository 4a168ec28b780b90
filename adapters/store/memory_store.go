package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/forum/ports"
)

// MemoryLedger is an in-memory implementation of the NonceLedger interface
type MemoryLedger struct {
	spent map[string]time.Time
	mu    sync.Mutex
	now   func() time.Time
}

// NewMemoryLedger creates a new in-memory nonce ledger
func NewMemoryLedger() ports.NonceLedger {
	return newMemoryLedger(time.Now)
}

func newMemoryLedger(now func() time.Time) *MemoryLedger {
	return &MemoryLedger{
		spent: make(map[string]time.Time),
		now:   now,
	}
}

// IsSpent checks if a nonce was already consumed
func (l *MemoryLedger) IsSpent(ctx context.Context, nonce string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, exists := l.spent[nonce]
	if !exists {
		return false, nil
	}
	if !l.now().Before(expiry) {
		delete(l.spent, nonce)
		return false, nil
	}
	return true, nil
}

// Consume marks a nonce as spent, reporting whether this call was the first
func (l *MemoryLedger) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if expiry, exists := l.spent[nonce]; exists && now.Before(expiry) {
		return false, nil
	}
	l.spent[nonce] = now.Add(ttl)
	return true, nil
}

// evict drops entries whose replay window has passed
func (l *MemoryLedger) evict(now time.Time) {
	for nonce, expiry := range l.spent {
		if !now.Before(expiry) {
			delete(l.spent, nonce)
		}
	}
}
