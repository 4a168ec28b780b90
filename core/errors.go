package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidNonce           = errors.New("invalid or missing nonce")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrVerificationRequired   = errors.New("verification required")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenExpired           = errors.New("token has expired")
	ErrInvalidTransition      = errors.New("invalid login state transition")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrEditWindowClosed       = errors.New("message can no longer be edited")
	ErrConflict               = errors.New("document changed concurrently")
)

// Reason is the stable, machine-readable failure code surfaced to clients
type Reason string

const (
	ReasonInvalidNonce           Reason = "INVALID_NONCE"
	ReasonInvalidSignature       Reason = "INVALID_SIGNATURE"
	ReasonMalformedPayload       Reason = "MALFORMED_PAYLOAD"
	ReasonVerificationRequired   Reason = "VERIFICATION_REQUIRED"
	ReasonAuthenticationRequired Reason = "AUTHENTICATION_REQUIRED"
	ReasonInternal               Reason = "INTERNAL"
)

// Err returns the sentinel error behind a reason
func (r Reason) Err() error {
	switch r {
	case ReasonInvalidNonce:
		return ErrInvalidNonce
	case ReasonInvalidSignature:
		return ErrInvalidSignature
	case ReasonMalformedPayload:
		return ErrMalformedPayload
	case ReasonVerificationRequired:
		return ErrVerificationRequired
	case ReasonAuthenticationRequired:
		return ErrAuthenticationRequired
	default:
		return errors.New("internal error")
	}
}

// AuthError is returned by every failing branch of the login flow
type AuthError struct {
	Reason  Reason
	Address string // Set once the signer is known
	Cause   error
}

func NewAuthError(reason Reason, cause error) *AuthError {
	return &AuthError{Reason: reason, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return string(e.Reason)
}

func (e *AuthError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Reason.Err(), e.Cause}
	}
	return []error{e.Reason.Err()}
}

// ReasonOf extracts the failure reason of err, ReasonInternal when unknown
func ReasonOf(err error) Reason {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	switch {
	case errors.Is(err, ErrInvalidNonce):
		return ReasonInvalidNonce
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrMalformedPayload):
		return ReasonMalformedPayload
	case errors.Is(err, ErrVerificationRequired):
		return ReasonVerificationRequired
	case errors.Is(err, ErrAuthenticationRequired):
		return ReasonAuthenticationRequired
	}
	return ReasonInternal
}
