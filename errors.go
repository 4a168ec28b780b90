package forum

import (
	"errors"
	"fmt"

	"github.com/layer-3/forum/core"
)

var (
	// ErrInvalidNonce is returned when the nonce is missing, expired or already used
	ErrInvalidNonce = core.ErrInvalidNonce

	// ErrInvalidSignature is returned when the signed message does not verify
	ErrInvalidSignature = core.ErrInvalidSignature

	// ErrMalformedPayload is returned when the signed payload carries no address
	ErrMalformedPayload = core.ErrMalformedPayload

	// ErrVerificationRequired is returned when the address is not identity verified
	ErrVerificationRequired = core.ErrVerificationRequired

	// ErrAuthenticationRequired is returned when no valid session or pending sign-in exists
	ErrAuthenticationRequired = core.ErrAuthenticationRequired

	// ErrInvalidRequest is returned for rejected requests without a sign-in reason
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServer is returned for server failures
	ErrServer = errors.New("server error")
)

// APIError is a failed API response
type APIError struct {
	StatusCode int
	Reason     core.Reason
	Message    string
	// Hint explains how to get verified, set with ErrVerificationRequired
	Hint string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("forum: %d %s: %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("forum: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Reason {
	case core.ReasonInvalidNonce, core.ReasonInvalidSignature, core.ReasonMalformedPayload,
		core.ReasonVerificationRequired, core.ReasonAuthenticationRequired:
		return e.Reason.Err()
	}
	if e.StatusCode >= 500 {
		return ErrServer
	}
	return ErrInvalidRequest
}
