package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
)

const AudienceSession = "session:access"
const AudiencePending = "session:pending"

// JWTCodec implements the SessionCodec interface using ES256 JWTs
type JWTCodec struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTCodec creates a new JWT session codec
func NewJWTCodec(signKey *ecdsa.PrivateKey) ports.SessionCodec {
	return &JWTCodec{signKey: signKey}
}

// EncodeSession converts a Session to a signed token
func (j *JWTCodec) EncodeSession(session *core.Session) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.AuthenticatedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Address:         session.Address,
		IsAuthenticated: session.IsAuthenticated,
		IsVerified:      session.IsVerified,
		AuthenticatedAt: session.AuthenticatedAt.UnixMilli(),
	}

	return j.sign(claims)
}

// DecodeSession parses a session token
func (j *JWTCodec) DecodeSession(tokenStr string) (*core.Session, error) {
	claims := &SessionClaims{}
	if err := j.parse(tokenStr, claims, AudienceSession); err != nil {
		return nil, err
	}

	if !claims.IsAuthenticated || claims.Address == "" || !strings.EqualFold(claims.Address, claims.Subject) {
		return nil, fmt.Errorf("session claims are inconsistent: %w", core.ErrInvalidToken)
	}

	session := &core.Session{
		ID:              claims.ID,
		Address:         claims.Address,
		IsAuthenticated: claims.IsAuthenticated,
		IsVerified:      claims.IsVerified,
		AuthenticatedAt: time.UnixMilli(claims.AuthenticatedAt).UTC(),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

// EncodePending converts a PendingAuth to a signed token
func (j *JWTCodec) EncodePending(pending *core.PendingAuth) (string, error) {
	claims := PendingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pending.Address,
			ID:        pending.ID,
			ExpiresAt: jwt.NewNumericDate(pending.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(pending.IssuedAt),
			Audience:  jwt.ClaimStrings{AudiencePending},
		},
	}

	return j.sign(claims)
}

// DecodePending parses a pending-auth token
func (j *JWTCodec) DecodePending(tokenStr string) (*core.PendingAuth, error) {
	claims := &PendingClaims{}
	if err := j.parse(tokenStr, claims, AudiencePending); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("pending token has no subject: %w", core.ErrInvalidToken)
	}

	pending := &core.PendingAuth{
		ID:      claims.ID,
		Address: claims.Subject,
	}
	if claims.IssuedAt != nil {
		pending.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		pending.ExpiresAt = claims.ExpiresAt.Time
	}

	return pending, nil
}

func (j *JWTCodec) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

func (j *JWTCodec) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("failed to parse token: %w", core.ErrTokenExpired)
		}
		return fmt.Errorf("failed to parse token: %w: %w", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}

	return nil
}
