package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/service"
)

// AuthHandlers contains HTTP handlers for the sign-in endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     CookieOptions
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies CookieOptions) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
	}
}

// Nonce issues a single-use sign-in nonce
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.IssueNonce(c.Request.Context(), jarFor(c, h.cookies))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce.Value})
}

// CompleteSIWE verifies a signed sign-in message and opens a session
func (h *AuthHandlers) CompleteSIWE(c *gin.Context) {
	var req struct {
		Payload          core.SignedPayload `json:"payload"`
		Nonce            string             `json:"nonce"`
		SkipVerification bool               `json:"skipVerification"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.CompleteAuthentication(c.Request.Context(), jarFor(c, h.cookies), service.CompleteRequest{
		Payload:          req.Payload,
		Nonce:            req.Nonce,
		SkipVerification: req.SkipVerification,
	})
	if err != nil {
		h.authError(c, err)
		return
	}

	h.loginResponse(c, result)
}

// CreateSession finishes a sign-in whose identity check was deferred
func (h *AuthHandlers) CreateSession(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.CreateSession(c.Request.Context(), jarFor(c, h.cookies), req.Address)
	if err != nil {
		h.authError(c, err)
		return
	}

	h.loginResponse(c, result)
}

// Session reports the current session. It never fails.
func (h *AuthHandlers) Session(c *gin.Context) {
	principal, err := h.authService.RestoreSession(c.Request.Context(), jarFor(c, h.cookies))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"isAuthenticated":     true,
		"address":             principal.Address,
		"verified":            principal.Verified,
		"verificationMessage": h.authService.VerificationMessage(principal.Address, principal.Verified),
	})
}

// Logout clears the session cookies
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), jarFor(c, h.cookies)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health is the liveness probe
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) loginResponse(c *gin.Context, result *service.LoginResult) {
	body := gin.H{
		"success":  true,
		"address":  result.Address,
		"verified": result.Verified,
	}
	if !result.SessionIssued {
		body["sessionIssued"] = false
	}
	c.JSON(http.StatusOK, body)
}

// authError maps sign-in failures to their HTTP status and stable reason
func (h *AuthHandlers) authError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address is required"})
		return
	}

	reason := core.ReasonOf(err)
	statusCode := http.StatusInternalServerError
	errorMsg := "Authentication failed"

	switch reason {
	case core.ReasonInvalidNonce:
		statusCode = http.StatusBadRequest
		errorMsg = "Invalid or missing nonce"
	case core.ReasonInvalidSignature:
		statusCode = http.StatusBadRequest
		errorMsg = "Invalid signature"
	case core.ReasonMalformedPayload:
		statusCode = http.StatusBadRequest
		errorMsg = "No address in signed payload"
	case core.ReasonAuthenticationRequired:
		statusCode = http.StatusUnauthorized
		errorMsg = "Authentication required"
	case core.ReasonVerificationRequired:
		var authErr *core.AuthError
		var address string
		if errors.As(err, &authErr) {
			address = authErr.Address
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error":         "ORB verification required",
			"reason":        reason,
			"isOrbVerified": false,
			"message":       h.authService.VerificationMessage(address, false),
		})
		return
	}

	c.JSON(statusCode, gin.H{"error": errorMsg, "reason": reason})
}
