package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/middleware"
	"github.com/authhub/authhub/internal/services"

	"github.com/gin-gonic/gin"
)

// Caps on attacker-controlled parameters echoed back in redirects.
const (
	maxStateLength = 512
	maxNonceLength = 512
)

type AuthorizationHandler struct {
	authService *services.AuthorizationService
	config      *config.Config
	metrics     metrics.Recorder
}

func NewAuthorizationHandler(
	as *services.AuthorizationService,
	cfg *config.Config,
	m metrics.Recorder,
) *AuthorizationHandler {
	return &AuthorizationHandler{
		authService: as,
		config:      cfg,
		metrics:     m,
	}
}

// errorCode maps a validation error to its RFC 6749 error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return "unsupported_response_type"
	case errors.Is(err, services.ErrUnauthorizedClient):
		return "unauthorized_client"
	case errors.Is(err, services.ErrInvalidAuthCodeScope):
		return "invalid_scope"
	case errors.Is(err, services.ErrAccessDeniedConsent):
		return "access_denied"
	case errors.Is(err, services.ErrInvalidRedirectURI),
		errors.Is(err, services.ErrInvalidAuthCodeRequest):
		return "invalid_request"
	default:
		return "server_error"
	}
}

// redirectWithParams appends query parameters to a client redirect URI.
func redirectWithParams(redirectURI string, params map[string]string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// failAuthorize delivers a validation error. If the redirect URI is
// registered for the client the error rides a 302 back to the client;
// otherwise it must not be redirected and becomes a JSON body.
func (h *AuthorizationHandler) failAuthorize(
	c *gin.Context,
	clientID, redirectURI, state string,
	err error,
) {
	code := errorCode(err)
	h.metrics.RecordAuthorizationRequest(code)

	if h.authService.CanRedirect(clientID, redirectURI) {
		c.Redirect(http.StatusFound, redirectWithParams(redirectURI, map[string]string{
			"error":             code,
			"error_description": err.Error(),
			"state":             state,
		}))
		return
	}

	status := http.StatusBadRequest
	if code == "server_error" {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": err.Error(),
	})
}

// Authorize handles GET /oauth/authorize. Anonymous users are sent to the
// login page with a return URL. Pre-existing consent covering the requested
// scopes short-circuits straight to a code redirect; otherwise the external
// consent UI takes over.
func (h *AuthorizationHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	state := c.Query("state")
	nonce := c.Query("nonce")

	if len(state) > maxStateLength || len(nonce) > maxNonceLength {
		h.failAuthorize(c, "", "", "", services.ErrInvalidAuthCodeRequest)
		return
	}

	req, err := h.authService.ValidateAuthorizationRequest(
		clientID,
		redirectURI,
		c.Query("response_type"),
		c.Query("scope"),
		c.Query("code_challenge"),
		c.Query("code_challenge_method"),
	)
	if err != nil {
		h.failAuthorize(c, clientID, redirectURI, state, err)
		return
	}
	req.State = state
	req.Nonce = nonce

	userID, ok := middleware.SessionUser(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login?redirect="+url.QueryEscape(c.Request.URL.String()))
		return
	}

	// Consent short-circuit
	if h.config.ConsentRemember && h.authService.HasConsent(userID, clientID, req.Scopes) {
		code, err := h.authService.CreateAuthorizationCode(
			c.Request.Context(),
			clientID, userID, req.RedirectURI, req.Scopes,
			req.CodeChallenge, req.CodeChallengeMethod, req.Nonce,
		)
		if err != nil {
			h.failAuthorize(c, clientID, redirectURI, state, err)
			return
		}
		h.metrics.RecordAuthorizationRequest("success")
		c.Redirect(http.StatusFound, redirectWithParams(req.RedirectURI, map[string]string{
			"code":  code,
			"state": state,
		}))
		return
	}

	// No covering consent: hand the request to the external consent UI,
	// which answers with POST /oauth/authorize.
	h.metrics.RecordAuthorizationRequest("consent_required")
	c.JSON(http.StatusOK, gin.H{
		"consent_required":      true,
		"client_id":             clientID,
		"client_name":           req.Client.ClientName,
		"redirect_uri":          req.RedirectURI,
		"scope":                 req.Scopes,
		"state":                 state,
		"code_challenge":        req.CodeChallenge,
		"code_challenge_method": req.CodeChallengeMethod,
		"nonce":                 nonce,
	})
}

// consentDecision is the POST /oauth/authorize body submitted by the consent UI.
type consentDecision struct {
	ClientID            string `json:"client_id" binding:"required"`
	RedirectURI         string `json:"redirect_uri" binding:"required"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Nonce               string `json:"nonce"`
	Approved            bool   `json:"approved"`
}

// ConsentDecision handles POST /oauth/authorize. Returns the redirect URI the
// consent UI should navigate to, for both approval and denial.
func (h *AuthorizationHandler) ConsentDecision(c *gin.Context) {
	var body consentDecision
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id and redirect_uri are required",
		})
		return
	}

	if len(body.State) > maxStateLength || len(body.Nonce) > maxNonceLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "state or nonce too long",
		})
		return
	}

	// Re-validate: the decision must not widen what the GET leg validated.
	req, err := h.authService.ValidateAuthorizationRequest(
		body.ClientID,
		body.RedirectURI,
		"code",
		body.Scope,
		body.CodeChallenge,
		body.CodeChallengeMethod,
	)
	if err != nil {
		h.failAuthorize(c, body.ClientID, body.RedirectURI, body.State, err)
		return
	}

	userID, ok := middleware.SessionUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "access_denied",
			"error_description": "authentication required",
		})
		return
	}

	if !body.Approved {
		h.metrics.RecordConsentDecision(false)
		c.JSON(http.StatusOK, gin.H{
			"redirect_uri": redirectWithParams(req.RedirectURI, map[string]string{
				"error":             "access_denied",
				"error_description": "The user denied the request",
				"state":             body.State,
			}),
		})
		return
	}

	if err := h.authService.GrantConsent(c.Request.Context(), userID, body.ClientID, req.Scopes); err != nil {
		h.failAuthorize(c, body.ClientID, body.RedirectURI, body.State, err)
		return
	}
	h.metrics.RecordConsentDecision(true)

	code, err := h.authService.CreateAuthorizationCode(
		c.Request.Context(),
		body.ClientID, userID, req.RedirectURI, req.Scopes,
		req.CodeChallenge, req.CodeChallengeMethod, body.Nonce,
	)
	if err != nil {
		h.failAuthorize(c, body.ClientID, body.RedirectURI, body.State, err)
		return
	}

	h.metrics.RecordAuthorizationRequest("success")
	c.JSON(http.StatusOK, gin.H{
		"redirect_uri": redirectWithParams(req.RedirectURI, map[string]string{
			"code":  code,
			"state": body.State,
		}),
	})
}
