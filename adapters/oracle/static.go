package oracle

import (
	"context"
	"strings"
	"sync"

	"github.com/layer-3/forum/ports"
)

// StaticOracle reports a fixed set of addresses as verified.
// It backs local mode where no chain endpoint is configured.
type StaticOracle struct {
	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewStaticOracle creates an oracle verifying the given addresses
func NewStaticOracle(addresses ...string) *StaticOracle {
	o := &StaticOracle{verified: make(map[string]struct{})}
	for _, addr := range addresses {
		o.Set(addr, true)
	}
	return o
}

var _ ports.IdentityOracle = (*StaticOracle)(nil)

// IsVerified reports whether address is in the verified set
func (o *StaticOracle) IsVerified(ctx context.Context, address string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.verified[strings.ToLower(address)]
	return ok, nil
}

// Set grants or revokes verification of address
func (o *StaticOracle) Set(address string, verified bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if verified {
		o.verified[strings.ToLower(address)] = struct{}{}
	} else {
		delete(o.verified, strings.ToLower(address))
	}
}
