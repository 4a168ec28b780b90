package ports

import (
	"context"

	"github.com/layer-3/forum/core"
)

// SignatureVerifier validates a wallet-signed sign-in message against a nonce.
// A returned error means the verifier itself failed, not that the signature is bad.
type SignatureVerifier interface {
	Verify(ctx context.Context, payload core.SignedPayload, nonce string) (core.SignatureResult, error)
}

// IdentityOracle reports whether an address completed biometric identity proofing
type IdentityOracle interface {
	IsVerified(ctx context.Context, address string) (bool, error)
}
