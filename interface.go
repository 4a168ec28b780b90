package forum

import (
	"context"

	"github.com/layer-3/forum/core"
)

// SignedPayload is the wallet response to a sign-in request
type SignedPayload = core.SignedPayload

// Client represents the public interface for signing in to a forum server
type Client interface {
	// Nonce requests a single-use sign-in nonce
	Nonce(ctx context.Context) (string, error)

	// CompleteAuth submits the signed sign-in message. With skipVerification the
	// identity check is deferred to CreateSession.
	CompleteAuth(ctx context.Context, payload SignedPayload, nonce string, skipVerification bool) (*LoginResult, error)

	// CreateSession finishes a deferred sign-in
	CreateSession(ctx context.Context, address string) (*LoginResult, error)

	// Session reports the current session
	Session(ctx context.Context) (*SessionInfo, error)

	// Logout ends the session
	Logout(ctx context.Context) error
}

// LoginResult is returned by a successful sign-in
type LoginResult struct {
	Address       string
	Verified      bool
	SessionIssued bool
}

// SessionInfo describes the session of the client
type SessionInfo struct {
	IsAuthenticated     bool   `json:"isAuthenticated"`
	Address             string `json:"address,omitempty"`
	Verified            bool   `json:"verified,omitempty"`
	VerificationMessage string `json:"verificationMessage,omitempty"`
}
