package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/forum/ports"
)

const (
	NonceCookie   = "siwe-nonce"
	SessionCookie = "session"
	PendingCookie = "pending-auth"

	jarKey = "cookieJar"
)

// CookieOptions apply to every cookie the API writes
type CookieOptions struct {
	Secure bool
	Domain string
}

// cookieJar is the ports.CookieJar of one gin request.
// Writes are visible to later reads of the same request.
type cookieJar struct {
	c       *gin.Context
	opts    CookieOptions
	written map[string]string
}

// jarFor returns the jar of c, shared by middleware and handlers
func jarFor(c *gin.Context, opts CookieOptions) *cookieJar {
	if v, ok := c.Get(jarKey); ok {
		return v.(*cookieJar)
	}
	jar := &cookieJar{c: c, opts: opts, written: map[string]string{}}
	c.Set(jarKey, jar)
	return jar
}

func (j *cookieJar) read(name string) (string, bool) {
	if v, ok := j.written[name]; ok {
		return v, v != ""
	}
	v, err := j.c.Cookie(name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (j *cookieJar) write(name, value string, ttl time.Duration) {
	j.written[name] = value
	j.c.SetSameSite(http.SameSiteStrictMode)
	j.c.SetCookie(name, value, int(ttl/time.Second), "/", j.opts.Domain, j.opts.Secure, true)
}

func (j *cookieJar) clear(name string) {
	j.written[name] = ""
	j.c.SetSameSite(http.SameSiteStrictMode)
	j.c.SetCookie(name, "", -1, "/", j.opts.Domain, j.opts.Secure, true)
}

func (j *cookieJar) Nonce() (string, bool)                  { return j.read(NonceCookie) }
func (j *cookieJar) SetNonce(v string, ttl time.Duration)   { j.write(NonceCookie, v, ttl) }
func (j *cookieJar) ClearNonce()                            { j.clear(NonceCookie) }
func (j *cookieJar) Session() (string, bool)                { return j.read(SessionCookie) }
func (j *cookieJar) SetSession(v string, ttl time.Duration) { j.write(SessionCookie, v, ttl) }
func (j *cookieJar) ClearSession()                          { j.clear(SessionCookie) }
func (j *cookieJar) Pending() (string, bool)                { return j.read(PendingCookie) }
func (j *cookieJar) SetPending(v string, ttl time.Duration) { j.write(PendingCookie, v, ttl) }
func (j *cookieJar) ClearPending()                          { j.clear(PendingCookie) }

var _ ports.CookieJar = (*cookieJar)(nil)
