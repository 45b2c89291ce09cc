package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/services"

	"github.com/gin-gonic/gin"
)

type TokenHandler struct {
	tokenService *services.TokenService
	config       *config.Config
	metrics      metrics.Recorder
}

func NewTokenHandler(
	ts *services.TokenService,
	cfg *config.Config,
	m metrics.Recorder,
) *TokenHandler {
	return &TokenHandler{
		tokenService: ts,
		config:       cfg,
		metrics:      m,
	}
}

// clientCredentials normalizes client authentication: HTTP Basic wins over
// form-body credentials (RFC 6749 §2.3.1).
func clientCredentials(c *gin.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// Token handles POST /oauth/token for all supported grant types.
func (h *TokenHandler) Token(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)

	req := services.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CodeVerifier: c.PostForm("code_verifier"),
		RefreshToken: c.PostForm("refresh_token"),
		Scope:        c.PostForm("scope"),
	}

	start := time.Now()
	resp, err := h.tokenService.Exchange(c.Request.Context(), req)
	if err != nil {
		h.tokenError(c, req.GrantType, err)
		return
	}

	h.metrics.RecordTokenIssued("access", req.GrantType, time.Since(start))
	if resp.RefreshToken != "" {
		h.metrics.RecordTokenIssued("refresh", req.GrantType, 0)
	}
	if req.GrantType == string(services.GrantRefreshToken) {
		h.metrics.RecordTokenRefresh(true)
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

// tokenError maps service errors onto the RFC 6749 §5.2 error taxonomy.
func (h *TokenHandler) tokenError(c *gin.Context, grantType string, err error) {
	if grantType == string(services.GrantRefreshToken) {
		h.metrics.RecordTokenRefresh(false)
	}

	switch {
	case errors.Is(err, services.ErrInvalidClient):
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
	case errors.Is(err, services.ErrUnsupportedGrantType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, client_credentials, refresh_token",
		})
	case errors.Is(err, services.ErrUnauthorizedClient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unauthorized_client",
			"error_description": "Client is not allowed to use this grant type",
		})
	case errors.Is(err, services.ErrInvalidAuthCodeScope):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_scope",
			"error_description": "Requested scope exceeds what the client may be granted",
		})
	case errors.Is(err, services.ErrInvalidGrant):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "The provided grant is invalid, expired, or revoked",
		})
	case errors.Is(err, services.ErrInvalidCodeVerifier):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "PKCE verification failed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token request could not be processed",
		})
	}
}

// Introspect handles POST /oauth/introspect (RFC 7662). The endpoint is
// client-authenticated; the result never errors for unknown tokens.
func (h *TokenHandler) Introspect(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)
	if _, err := h.tokenService.AuthenticateClient(clientID, clientSecret); err != nil {
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	result := h.tokenService.Introspect(c.Request.Context(), c.PostForm("token"))
	h.metrics.RecordIntrospection(result.Active)
	c.JSON(http.StatusOK, result)
}

// Revoke handles POST /oauth/revoke (RFC 7009). Revocation of unknown tokens
// still answers 200.
func (h *TokenHandler) Revoke(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)
	if _, err := h.tokenService.AuthenticateClient(clientID, clientSecret); err != nil {
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	plain := c.PostForm("token")
	hint := c.PostForm("token_type_hint")
	if err := h.tokenService.Revoke(c.Request.Context(), plain, hint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Revocation could not be processed",
		})
		return
	}

	if hint == "refresh_token" {
		h.metrics.RecordTokenRevoked("refresh")
	} else {
		h.metrics.RecordTokenRevoked("access")
	}
	c.Status(http.StatusOK)
}
