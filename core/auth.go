package core

import "time"

const (
	// NonceTTL bounds how long an issued nonce may be redeemed
	NonceTTL = 10 * time.Minute
	// SessionTTL is the hard session lifetime, no sliding renewal
	SessionTTL = 7 * 24 * time.Hour
	// PendingAuthTTL bounds the deferred-verification window
	PendingAuthTTL = 5 * time.Minute
)

// Nonce represents a single-use authentication challenge
type Nonce struct {
	Value     string    // Random hex value to be embedded in the signed message
	IssuedAt  time.Time // When the nonce was created
	ExpiresAt time.Time // When the nonce cookie expires
}

// SignedPayload is the wallet output of a sign-in request.
// The auth core never interprets it, it is handed to the SignatureVerifier as-is.
type SignedPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Version   int    `json:"version"`
}

// SignatureResult is what a SignatureVerifier reports for a payload
type SignatureResult struct {
	IsValid bool
	Address string // Signer address, may be empty even when IsValid is true
}

// Session represents an authenticated, authorized browser
type Session struct {
	ID              string    // Unique session identifier
	Address         string    // Wallet address of the user
	IsAuthenticated bool      // Always true for issued sessions
	IsVerified      bool      // Verification snapshot at issue time, display hint only
	AuthenticatedAt time.Time // When the session was created
	ExpiresAt       time.Time // When the session cookie expires
}

// PendingAuth proves that an address completed signature verification
// while its identity check was deferred to the caller.
type PendingAuth struct {
	ID        string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the request-scoped view of a restored session.
// Verified always reflects the live oracle check of the current request.
type Principal struct {
	Address         string
	Verified        bool
	Bypassed        bool
	AuthenticatedAt time.Time
}

// AuthEventKind enumerates published auth lifecycle events
type AuthEventKind string

const (
	AuthEventLogin          AuthEventKind = "login"
	AuthEventLogout         AuthEventKind = "logout"
	AuthEventSessionRevoked AuthEventKind = "session_revoked"
)

// AuthEvent notifies other instances about auth lifecycle changes
type AuthEvent struct {
	ID       string        `json:"id"`
	Kind     AuthEventKind `json:"kind"`
	Address  string        `json:"address"`
	Verified bool          `json:"verified"`
	At       time.Time     `json:"at"`
}
