package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/service"
	"github.com/rs/zerolog"
)

const principalKey = "principal"

// SessionMiddleware restores the session cookie and sets the request principal
func SessionMiddleware(authService *service.AuthService, cookies CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authService.RestoreSession(c.Request.Context(), jarFor(c, cookies))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Authentication required",
				"reason": core.ReasonAuthenticationRequired,
			})
			return
		}

		c.Set(principalKey, principal)

		c.Next()
	}
}

// principalFrom returns the principal set by SessionMiddleware
func principalFrom(c *gin.Context) *core.Principal {
	return c.MustGet(principalKey).(*core.Principal)
}

// RequestLogger writes one access log event per request
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
