package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const nonceBytes = 16

// UserRecorder lazily creates and refreshes the profile of a signed-in address
type UserRecorder interface {
	TouchUser(ctx context.Context, address string, verified bool) error
}

// AuthDependencies are the adapters the AuthService drives
type AuthDependencies struct {
	Codec    ports.SessionCodec
	Ledger   ports.NonceLedger
	Verifier ports.SignatureVerifier
	Oracle   ports.IdentityOracle
	Policy   core.AllowList
	Events   ports.EventPublisher
	Users    UserRecorder // Optional
}

// CompleteRequest is the body of a sign-in completion
type CompleteRequest struct {
	Payload          core.SignedPayload
	Nonce            string
	SkipVerification bool
}

// LoginResult describes a finished sign-in attempt
type LoginResult struct {
	Address       string
	Verified      bool
	SessionIssued bool
}

// AuthService handles authentication business logic.
// It runs the login state machine and owns the session cookie lifecycle.
type AuthService struct {
	codec    ports.SessionCodec
	ledger   ports.NonceLedger
	verifier ports.SignatureVerifier
	oracle   ports.IdentityOracle
	policy   core.AllowList
	eventPub ports.EventPublisher
	users    UserRecorder
	logger   zerolog.Logger

	random io.Reader
	now    func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(deps AuthDependencies, logger zerolog.Logger) *AuthService {
	return &AuthService{
		codec:    deps.Codec,
		ledger:   deps.Ledger,
		verifier: deps.Verifier,
		oracle:   deps.Oracle,
		policy:   deps.Policy,
		eventPub: deps.Events,
		users:    deps.Users,
		logger:   logger.With().Str("component", "auth").Logger(),
		random:   rand.Reader,
		now:      time.Now,
	}
}

// IssueNonce generates a new nonce and stores it in the nonce cookie
func (s *AuthService) IssueNonce(ctx context.Context, jar ports.CookieJar) (*core.Nonce, error) {
	m := core.NewLoginMachine()
	_, effects := m.Step(core.EventNonceRequested{})

	var nonce *core.Nonce
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]

		switch e := eff.(type) {
		case core.EffectIssueNonce:
			value, err := s.randomHex()
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to generate nonce")
				return nil, core.NewAuthError(core.ReasonInternal, err)
			}
			now := s.now()
			nonce = &core.Nonce{Value: value, IssuedAt: now, ExpiresAt: now.Add(core.NonceTTL)}
			_, effects = m.Step(core.EventNonceIssued{Nonce: value})
		case core.EffectStoreNonce:
			jar.SetNonce(e.Nonce, core.NonceTTL)
		case core.EffectFail:
			return nil, core.NewAuthError(e.Reason, e.Cause)
		}
	}

	nonceIssued.Inc()
	return nonce, nil
}

// CompleteAuthentication verifies a signed sign-in payload against the nonce cookie.
// On success a session cookie is set, or a pending-auth cookie when verification is deferred.
func (s *AuthService) CompleteAuthentication(ctx context.Context, jar ports.CookieJar, req CompleteRequest) (*LoginResult, error) {
	stored, _ := jar.Nonce()

	spent := false
	if stored != "" {
		var err error
		if spent, err = s.ledger.IsSpent(ctx, stored); err != nil {
			return nil, s.reject(core.EffectFail{Reason: core.ReasonInternal, Cause: fmt.Errorf("failed to check nonce ledger: %w", err)})
		}
	}

	m := core.ResumeLoginMachine()
	_, effects := m.Step(core.EventPayloadSubmitted{
		Payload:           req.Payload,
		Nonce:             req.Nonce,
		StoredNonce:       stored,
		NonceSpent:        spent,
		DeferVerification: req.SkipVerification,
	})

	return s.drive(ctx, jar, m, effects)
}

// CreateSession finishes a deferred sign-in for address.
// The pending-auth cookie proves the earlier signature check and is cleared on every outcome.
func (s *AuthService) CreateSession(ctx context.Context, jar ports.CookieJar, address string) (*LoginResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: address is required", core.ErrInvalidInput)
	}

	token, ok := jar.Pending()
	jar.ClearPending()
	if !ok {
		return nil, s.reject(core.EffectFail{Reason: core.ReasonAuthenticationRequired, Address: address, Cause: errors.New("no pending sign-in")})
	}

	pending, err := s.codec.DecodePending(token)
	if err != nil {
		return nil, s.reject(core.EffectFail{Reason: core.ReasonAuthenticationRequired, Address: address, Cause: err})
	}
	if !core.SameAddress(pending.Address, address) {
		return nil, s.reject(core.EffectFail{Reason: core.ReasonAuthenticationRequired, Address: address, Cause: errors.New("pending sign-in belongs to another address")})
	}

	m, effects := core.ResumeDeferredMachine(pending.Address)
	return s.drive(ctx, jar, m, effects)
}

// drive executes effects of m until the attempt completes or fails
func (s *AuthService) drive(ctx context.Context, jar ports.CookieJar, m *core.LoginMachine, effects []core.Effect) (*LoginResult, error) {
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]

		var ev core.LoginEvent
		switch e := eff.(type) {
		case core.EffectVerifySignature:
			res, err := s.verifier.Verify(ctx, e.Payload, e.Nonce)
			if err != nil {
				err = fmt.Errorf("failed to verify signature: %w", err)
			}
			ev = core.EventSignatureChecked{Result: res, Err: err}

		case core.EffectConsumeNonce:
			jar.ClearNonce()
			fresh, err := s.ledger.Consume(ctx, e.Nonce, core.NonceTTL)
			if err != nil {
				err = fmt.Errorf("failed to consume nonce: %w", err)
			}
			ev = core.EventNonceConsumed{Fresh: fresh, Err: err}

		case core.EffectCheckIdentity:
			ev = core.EventIdentityChecked{Verified: s.checkIdentity(ctx, e.Address)}

		case core.EffectApplyPolicy:
			ev = core.EventPolicyDecided{Allowed: s.policy.IsAllowed(e.Address, e.Verified)}

		case core.EffectIssueSession:
			ev = core.EventSessionStored{Err: s.issueSession(jar, e.Address, e.Verified)}

		case core.EffectIssuePending:
			effects = append(effects, m.StepDeferred(core.EventPendingStored{Err: s.issuePending(jar, e.Address)})...)
			continue

		case core.EffectFail:
			if e.Reason == core.ReasonVerificationRequired {
				jar.ClearSession()
			}
			return nil, s.reject(e)

		case core.EffectComplete:
			return s.complete(ctx, e), nil
		}

		_, next := m.Step(ev)
		effects = append(effects, next...)
	}

	return nil, s.reject(core.EffectFail{Reason: core.ReasonInternal, Cause: fmt.Errorf("login stopped in %s", m.State())})
}

func (s *AuthService) issueSession(jar ports.CookieJar, address string, verified bool) error {
	now := s.now()
	token, err := s.codec.EncodeSession(&core.Session{
		ID:              uuid.New().String(),
		Address:         address,
		IsAuthenticated: true,
		IsVerified:      verified,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(core.SessionTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	jar.SetSession(token, core.SessionTTL)
	return nil
}

func (s *AuthService) issuePending(jar ports.CookieJar, address string) error {
	now := s.now()
	token, err := s.codec.EncodePending(&core.PendingAuth{
		ID:        uuid.New().String(),
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(core.PendingAuthTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to encode pending sign-in: %w", err)
	}

	jar.SetPending(token, core.PendingAuthTTL)
	return nil
}

func (s *AuthService) complete(ctx context.Context, e core.EffectComplete) *LoginResult {
	if !e.SessionIssued {
		loginTotal.WithLabelValues("deferred").Inc()
		s.logger.Info().Str("address", e.Address).Msg("Signature verified, identity check deferred")
		return &LoginResult{Address: e.Address}
	}

	loginTotal.WithLabelValues("success").Inc()
	s.logger.Info().Str("address", e.Address).Bool("verified", e.Verified).Msg("Session issued")

	s.touchUser(ctx, e.Address, e.Verified)
	s.publish(ctx, core.AuthEventLogin, e.Address, e.Verified)

	return &LoginResult{Address: e.Address, Verified: e.Verified, SessionIssued: true}
}

// reject logs a failed attempt and converts it into an AuthError
func (s *AuthService) reject(e core.EffectFail) error {
	loginTotal.WithLabelValues(strings.ToLower(string(e.Reason))).Inc()

	event := s.logger.Warn()
	if e.Reason == core.ReasonInternal {
		event = s.logger.Error()
	}
	event.Err(e.Cause).Str("reason", string(e.Reason)).Str("address", e.Address).Msg("Sign-in rejected")

	return &core.AuthError{Reason: e.Reason, Address: e.Address, Cause: e.Cause}
}

// RestoreSession reads the session cookie and re-authorizes it against the live oracle.
// Unreadable or no longer authorized sessions are cleared and reported as
// core.ErrAuthenticationRequired.
func (s *AuthService) RestoreSession(ctx context.Context, jar ports.CookieJar) (*core.Principal, error) {
	token, ok := jar.Session()
	if !ok {
		sessionRestoreTotal.WithLabelValues("absent").Inc()
		return nil, core.ErrAuthenticationRequired
	}

	session, err := s.codec.DecodeSession(token)
	if err != nil {
		jar.ClearSession()
		sessionRestoreTotal.WithLabelValues("corrupted").Inc()
		s.logger.Warn().Err(err).Msg("Cleared unreadable session")
		return nil, core.ErrAuthenticationRequired
	}

	verified := s.checkIdentity(ctx, session.Address)
	if !s.policy.IsAllowed(session.Address, verified) {
		jar.ClearSession()
		sessionRestoreTotal.WithLabelValues("revoked").Inc()
		s.logger.Warn().Str("address", session.Address).Msg("Session revoked, address no longer allowed")
		s.publish(ctx, core.AuthEventSessionRevoked, session.Address, false)
		return nil, core.ErrAuthenticationRequired
	}

	sessionRestoreTotal.WithLabelValues("restored").Inc()
	s.touchUser(ctx, session.Address, verified)

	return &core.Principal{
		Address:         session.Address,
		Verified:        verified,
		Bypassed:        s.policy.IsBypassed(session.Address),
		AuthenticatedAt: session.AuthenticatedAt,
	}, nil
}

// Logout clears the session and pending cookies. It never fails.
func (s *AuthService) Logout(ctx context.Context, jar ports.CookieJar) error {
	var address string
	if token, ok := jar.Session(); ok {
		if session, err := s.codec.DecodeSession(token); err == nil {
			address = session.Address
		}
	}

	jar.ClearSession()
	jar.ClearPending()

	if address != "" {
		s.publish(ctx, core.AuthEventLogout, address, false)
	}
	return nil
}

// VerificationMessage returns the remediation hint for address
func (s *AuthService) VerificationMessage(address string, verified bool) string {
	return s.policy.Message(address, verified)
}

// checkIdentity queries the oracle and fails closed
func (s *AuthService) checkIdentity(ctx context.Context, address string) bool {
	timer := prometheus.NewTimer(identityCheckDuration)
	verified, err := s.oracle.IsVerified(ctx, address)
	timer.ObserveDuration()

	if err != nil {
		identityCheckTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("address", address).Msg("Identity check failed, treating address as unverified")
		return false
	}
	if verified {
		identityCheckTotal.WithLabelValues("verified").Inc()
	} else {
		identityCheckTotal.WithLabelValues("unverified").Inc()
	}
	return verified
}

func (s *AuthService) touchUser(ctx context.Context, address string, verified bool) {
	if s.users == nil {
		return
	}
	if err := s.users.TouchUser(ctx, address, verified); err != nil {
		s.logger.Warn().Err(err).Str("address", address).Msg("Failed to record user activity")
	}
}

func (s *AuthService) publish(ctx context.Context, kind core.AuthEventKind, address string, verified bool) {
	if s.eventPub == nil {
		return
	}
	event := core.AuthEvent{
		ID:       uuid.New().String(),
		Kind:     kind,
		Address:  address,
		Verified: verified,
		At:       s.now().UTC(),
	}
	if err := s.eventPub.PublishAuth(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to publish auth event")
	}
}

func (s *AuthService) randomHex() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
