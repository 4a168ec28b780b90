package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the session cookie fields
type SessionClaims struct {
	jwt.RegisteredClaims
	Address         string `json:"address"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsVerified      bool   `json:"isVerified"`
	AuthenticatedAt int64  `json:"authenticatedAt"` // unix millis
}

// PendingClaims are just the standard claims, the subject is the signer address
type PendingClaims struct {
	jwt.RegisteredClaims
}
