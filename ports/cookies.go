package ports

import "time"

// CookieJar is the request-scoped cookie state of one browser
type CookieJar interface {
	Nonce() (string, bool)
	SetNonce(value string, ttl time.Duration)
	ClearNonce()

	Session() (string, bool)
	SetSession(token string, ttl time.Duration)
	ClearSession()

	Pending() (string, bool)
	SetPending(token string, ttl time.Duration)
	ClearPending()
}
