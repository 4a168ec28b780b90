package core

import (
	"crypto/subtle"
	"fmt"
)

// LoginState is a node of the sign-in state machine
type LoginState int

const (
	StateIdle LoginState = iota
	StateNonceRequested
	StateWalletSigning
	StateSignatureSubmitted
	StateSignatureVerified
	StateNonceConsumed
	StateVerificationChecked
	StateAllowed
	StateDenied
	StateDeferred
	StateSessionIssued
	StateRejected
)

var stateNames = map[LoginState]string{
	StateIdle:                "IDLE",
	StateNonceRequested:      "NONCE_REQUESTED",
	StateWalletSigning:       "WALLET_SIGNING",
	StateSignatureSubmitted:  "SIGNATURE_SUBMITTED",
	StateSignatureVerified:   "SIGNATURE_VERIFIED",
	StateNonceConsumed:       "NONCE_CONSUMED",
	StateVerificationChecked: "VERIFICATION_CHECKED",
	StateAllowed:             "ALLOWED",
	StateDenied:              "DENIED",
	StateDeferred:            "DEFERRED",
	StateSessionIssued:       "SESSION_ISSUED",
	StateRejected:            "REJECTED",
}

func (s LoginState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoginState(%d)", int(s))
}

// Terminal reports whether no further event is accepted
func (s LoginState) Terminal() bool {
	switch s {
	case StateDenied, StateDeferred, StateSessionIssued, StateRejected:
		return true
	}
	return false
}

// LoginEvent is an input of the state machine
type LoginEvent interface {
	loginEvent()
}

type (
	// EventNonceRequested starts a new attempt
	EventNonceRequested struct{}

	// EventNonceIssued carries the freshly generated nonce
	EventNonceIssued struct {
		Nonce string
	}

	// EventPayloadSubmitted carries the completion request and the server-side nonce state.
	// StoredNonce is empty when the nonce cookie is absent or expired.
	EventPayloadSubmitted struct {
		Payload           SignedPayload
		Nonce             string
		StoredNonce       string
		NonceSpent        bool
		DeferVerification bool
	}

	// EventSignatureChecked carries the verifier result.
	// Err is set only for verifier transport failures.
	EventSignatureChecked struct {
		Result SignatureResult
		Err    error
	}

	// EventNonceConsumed reports whether this attempt was the first to spend the nonce
	EventNonceConsumed struct {
		Fresh bool
		Err   error
	}

	// EventIdentityChecked carries the already fail-closed oracle answer
	EventIdentityChecked struct {
		Verified bool
	}

	// EventPolicyDecided carries the allow-list decision
	EventPolicyDecided struct {
		Allowed bool
	}

	// EventSessionStored acknowledges the session cookie write
	EventSessionStored struct {
		Err error
	}

	// EventPendingStored acknowledges the pending-auth cookie write
	EventPendingStored struct {
		Err error
	}
)

func (EventNonceRequested) loginEvent()   {}
func (EventNonceIssued) loginEvent()      {}
func (EventPayloadSubmitted) loginEvent() {}
func (EventSignatureChecked) loginEvent() {}
func (EventNonceConsumed) loginEvent()    {}
func (EventIdentityChecked) loginEvent()  {}
func (EventPolicyDecided) loginEvent()    {}
func (EventSessionStored) loginEvent()    {}
func (EventPendingStored) loginEvent()    {}

// Effect is an instruction for the driver of the state machine
type Effect interface {
	effect()
}

type (
	EffectIssueNonce struct{}

	EffectStoreNonce struct {
		Nonce string
	}

	EffectVerifySignature struct {
		Payload SignedPayload
		Nonce   string
	}

	EffectConsumeNonce struct {
		Nonce string
	}

	EffectCheckIdentity struct {
		Address string
	}

	EffectApplyPolicy struct {
		Address  string
		Verified bool
	}

	EffectIssueSession struct {
		Address  string
		Verified bool
	}

	EffectIssuePending struct {
		Address string
	}

	EffectFail struct {
		Reason  Reason
		Address string
		Cause   error
	}

	EffectComplete struct {
		Address       string
		Verified      bool
		SessionIssued bool
	}
)

func (EffectIssueNonce) effect()      {}
func (EffectStoreNonce) effect()      {}
func (EffectVerifySignature) effect() {}
func (EffectConsumeNonce) effect()    {}
func (EffectCheckIdentity) effect()   {}
func (EffectApplyPolicy) effect()     {}
func (EffectIssueSession) effect()    {}
func (EffectIssuePending) effect()    {}
func (EffectFail) effect()            {}
func (EffectComplete) effect()        {}

// LoginMachine is the pure sign-in state machine.
// It performs no I/O: every side effect is returned to the caller,
// which reports the outcome back as the next event.
type LoginMachine struct {
	state    LoginState
	nonce    string
	deferred bool
	address  string
	verified bool
}

// NewLoginMachine returns a machine in StateIdle
func NewLoginMachine() *LoginMachine {
	return &LoginMachine{state: StateIdle}
}

// ResumeLoginMachine returns a machine waiting for the wallet signature,
// the server side of an attempt whose nonce was issued by an earlier request.
func ResumeLoginMachine() *LoginMachine {
	return &LoginMachine{state: StateWalletSigning}
}

// ResumeDeferredMachine continues an attempt whose identity check was deferred.
// The signature and nonce were already settled by the earlier request, so the
// machine starts at StateNonceConsumed with the identity check as its first effect.
func ResumeDeferredMachine(address string) (*LoginMachine, []Effect) {
	m := &LoginMachine{state: StateNonceConsumed, address: address}
	return m, []Effect{EffectCheckIdentity{Address: address}}
}

func (m *LoginMachine) State() LoginState {
	return m.state
}

// Step applies ev and returns the new state with the effects to execute, in order
func (m *LoginMachine) Step(ev LoginEvent) (LoginState, []Effect) {
	if m.state.Terminal() {
		return m.state, []Effect{EffectFail{Reason: ReasonInternal, Cause: ErrInvalidTransition}}
	}

	switch e := ev.(type) {
	case EventNonceRequested:
		if m.state != StateIdle {
			return m.invalid(ev)
		}
		return m.to(StateNonceRequested, EffectIssueNonce{})

	case EventNonceIssued:
		if m.state != StateNonceRequested {
			return m.invalid(ev)
		}
		if e.Nonce == "" {
			return m.fail(ReasonInternal, fmt.Errorf("empty nonce issued"))
		}
		return m.to(StateWalletSigning, EffectStoreNonce{Nonce: e.Nonce})

	case EventPayloadSubmitted:
		if m.state != StateWalletSigning {
			return m.invalid(ev)
		}
		if e.StoredNonce == "" || e.NonceSpent ||
			subtle.ConstantTimeCompare([]byte(e.StoredNonce), []byte(e.Nonce)) != 1 {
			return m.fail(ReasonInvalidNonce, nil)
		}
		m.nonce = e.Nonce
		m.deferred = e.DeferVerification
		return m.to(StateSignatureSubmitted, EffectVerifySignature{Payload: e.Payload, Nonce: e.Nonce})

	case EventSignatureChecked:
		if m.state != StateSignatureSubmitted {
			return m.invalid(ev)
		}
		if e.Err != nil {
			return m.fail(ReasonInternal, e.Err)
		}
		if !e.Result.IsValid {
			return m.fail(ReasonInvalidSignature, nil)
		}
		if e.Result.Address == "" {
			return m.fail(ReasonMalformedPayload, fmt.Errorf("verified payload carries no address"))
		}
		m.address = e.Result.Address
		return m.to(StateSignatureVerified, EffectConsumeNonce{Nonce: m.nonce})

	case EventNonceConsumed:
		if m.state != StateSignatureVerified {
			return m.invalid(ev)
		}
		if e.Err != nil {
			return m.fail(ReasonInternal, e.Err)
		}
		if !e.Fresh {
			return m.fail(ReasonInvalidNonce, fmt.Errorf("nonce already spent"))
		}
		if m.deferred {
			return m.to(StateDeferred, EffectIssuePending{Address: m.address})
		}
		return m.to(StateNonceConsumed, EffectCheckIdentity{Address: m.address})

	case EventIdentityChecked:
		if m.state != StateNonceConsumed {
			return m.invalid(ev)
		}
		m.verified = e.Verified
		return m.to(StateVerificationChecked, EffectApplyPolicy{Address: m.address, Verified: e.Verified})

	case EventPolicyDecided:
		if m.state != StateVerificationChecked {
			return m.invalid(ev)
		}
		if !e.Allowed {
			m.state = StateDenied
			return m.state, []Effect{EffectFail{Reason: ReasonVerificationRequired, Address: m.address}}
		}
		return m.to(StateAllowed, EffectIssueSession{Address: m.address, Verified: m.verified})

	case EventSessionStored:
		if m.state != StateAllowed {
			return m.invalid(ev)
		}
		if e.Err != nil {
			return m.fail(ReasonInternal, e.Err)
		}
		return m.to(StateSessionIssued, EffectComplete{Address: m.address, Verified: m.verified, SessionIssued: true})
	}

	return m.invalid(ev)
}

// StepDeferred acknowledges the pending-auth write of a deferred attempt.
// StateDeferred is terminal for the machine, so the acknowledgement only selects the result.
func (m *LoginMachine) StepDeferred(e EventPendingStored) []Effect {
	if m.state != StateDeferred {
		return []Effect{EffectFail{Reason: ReasonInternal, Cause: ErrInvalidTransition}}
	}
	if e.Err != nil {
		return []Effect{EffectFail{Reason: ReasonInternal, Address: m.address, Cause: e.Err}}
	}
	return []Effect{EffectComplete{Address: m.address}}
}

func (m *LoginMachine) to(state LoginState, effects ...Effect) (LoginState, []Effect) {
	m.state = state
	return m.state, effects
}

func (m *LoginMachine) fail(reason Reason, cause error) (LoginState, []Effect) {
	m.state = StateRejected
	return m.state, []Effect{EffectFail{Reason: reason, Address: m.address, Cause: cause}}
}

func (m *LoginMachine) invalid(ev LoginEvent) (LoginState, []Effect) {
	return m.fail(ReasonInternal, fmt.Errorf("%w: %T in %s", ErrInvalidTransition, ev, m.state))
}
