package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/forum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xAbC0000000000000000000000000000000001234"

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSessionRoundTrip(t *testing.T) {
	codec := NewJWTCodec(newTestKey(t))
	now := time.Now().Truncate(time.Second)

	token, err := codec.EncodeSession(&core.Session{
		ID:              "sid-1",
		Address:         testAddress,
		IsAuthenticated: true,
		IsVerified:      true,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(core.SessionTTL),
	})
	require.NoError(t, err)

	session, err := codec.DecodeSession(token)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", session.ID)
	assert.Equal(t, testAddress, session.Address)
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.IsVerified)
	assert.True(t, session.AuthenticatedAt.Equal(now))
	assert.True(t, session.ExpiresAt.Equal(now.Add(core.SessionTTL)))
}

func TestSessionRejectsForeignKey(t *testing.T) {
	issuer := NewJWTCodec(newTestKey(t))
	reader := NewJWTCodec(newTestKey(t))
	now := time.Now()

	token, err := issuer.EncodeSession(&core.Session{
		Address:         testAddress,
		IsAuthenticated: true,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = reader.DecodeSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionRejectsTamperedToken(t *testing.T) {
	codec := NewJWTCodec(newTestKey(t))
	now := time.Now()

	token, err := codec.EncodeSession(&core.Session{
		Address:         testAddress,
		IsAuthenticated: true,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = codec.DecodeSession(token[:len(token)-4] + "AAAA")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = codec.DecodeSession(`{"address":"0x1","isAuthenticated":true}`)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionExpired(t *testing.T) {
	codec := NewJWTCodec(newTestKey(t))
	past := time.Now().Add(-8 * 24 * time.Hour)

	token, err := codec.EncodeSession(&core.Session{
		Address:         testAddress,
		IsAuthenticated: true,
		AuthenticatedAt: past,
		ExpiresAt:       past.Add(core.SessionTTL),
	})
	require.NoError(t, err)

	_, err = codec.DecodeSession(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestPendingIsNotASession(t *testing.T) {
	codec := NewJWTCodec(newTestKey(t))
	now := time.Now()

	token, err := codec.EncodePending(&core.PendingAuth{
		ID:        "p-1",
		Address:   testAddress,
		IssuedAt:  now,
		ExpiresAt: now.Add(core.PendingAuthTTL),
	})
	require.NoError(t, err)

	pending, err := codec.DecodePending(token)
	require.NoError(t, err)
	assert.Equal(t, testAddress, pending.Address)
	assert.Equal(t, "p-1", pending.ID)

	_, err = codec.DecodeSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionRejectsOtherAlgorithms(t *testing.T) {
	codec := NewJWTCodec(newTestKey(t))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testAddress,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Address:         testAddress,
		IsAuthenticated: true,
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = codec.DecodeSession(signed)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
