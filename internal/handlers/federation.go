package handlers

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/store"

	"github.com/gin-gonic/gin"
)

// FederationHandler drives the browser-redirect flow against external
// identity providers.
type FederationHandler struct {
	store       *store.Store
	broker      *federation.Broker
	userService *services.UserService
	sessions    *auth.SessionManager
	config      *config.Config
	metrics     metrics.Recorder
}

func NewFederationHandler(
	s *store.Store,
	b *federation.Broker,
	us *services.UserService,
	sm *auth.SessionManager,
	cfg *config.Config,
	m metrics.Recorder,
) *FederationHandler {
	return &FederationHandler{
		store:       s,
		broker:      b,
		userService: us,
		sessions:    sm,
		config:      cfg,
		metrics:     m,
	}
}

// callbackURL builds the local redirect_uri registered with the provider.
func (h *FederationHandler) callbackURL(slug string) string {
	return h.config.BaseURL + "/auth/" + slug + "/callback"
}

// loginFailure sends the browser back to the login page with a generic error.
// Provider failures never surface raw to the user.
func (h *FederationHandler) loginFailure(c *gin.Context, slug string, reason string, err error) {
	log.Printf("[Federation] Login via %s failed (%s): %v", slug, reason, err)
	h.metrics.RecordFederatedCallback(slug, false)
	c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("Login with "+slug+" failed"))
}

// Login handles GET /auth/:provider/login. It stores the state cookie and
// redirects the browser to the provider's authorization endpoint.
func (h *FederationHandler) Login(c *gin.Context) {
	slug := c.Param("provider")
	provider, err := h.store.GetProviderBySlug(slug)
	if err != nil || !provider.Enabled {
		c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("Unknown login provider"))
		return
	}

	returnTo := c.Query("redirect")
	if !auth.IsRedirectSafe(returnTo, h.config.BaseURL) {
		returnTo = ""
	}

	st, err := federation.NewLoginState(slug, returnTo)
	if err != nil {
		h.loginFailure(c, slug, "state generation", err)
		return
	}

	authURL, err := h.broker.AuthCodeURL(c.Request.Context(), provider, h.callbackURL(slug), st)
	if err != nil {
		h.loginFailure(c, slug, "endpoint resolution", err)
		return
	}

	if err := federation.WriteStateCookie(c.Writer, st, h.config.FederationStateTTL, h.config.IsProduction); err != nil {
		h.loginFailure(c, slug, "state cookie", err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles GET /auth/:provider/callback. The state cookie is cleared
// before any validation so a state can never be replayed.
func (h *FederationHandler) Callback(c *gin.Context) {
	slug := c.Param("provider")
	st, err := federation.ReadStateCookie(
		c.Request, slug, c.Query("state"), h.config.FederationStateTTL,
	)
	federation.ClearStateCookie(c.Writer, slug, h.config.IsProduction)
	if err != nil {
		h.loginFailure(c, slug, "state validation", err)
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		h.loginFailure(c, slug, "provider error", &providerError{code: errParam})
		return
	}
	code := c.Query("code")
	if code == "" {
		h.loginFailure(c, slug, "missing code", nil)
		return
	}

	provider, err := h.store.GetProviderBySlug(slug)
	if err != nil || !provider.Enabled {
		h.loginFailure(c, slug, "provider lookup", err)
		return
	}

	endpoints, err := h.broker.Resolve(c.Request.Context(), provider)
	if err != nil {
		h.loginFailure(c, slug, "endpoint resolution", err)
		return
	}

	start := time.Now()
	tok, err := h.broker.Exchange(c.Request.Context(), provider, endpoints, h.callbackURL(slug), code)
	if err != nil {
		h.loginFailure(c, slug, "code exchange", err)
		return
	}

	identity, err := h.broker.ExtractIdentity(c.Request.Context(), provider, endpoints, tok, st.Nonce)
	h.metrics.RecordExternalAPICall(slug, time.Since(start))
	if err != nil {
		h.loginFailure(c, slug, "identity extraction", err)
		return
	}

	user, err := h.userService.ResolveFederatedUser(c.Request.Context(), provider, identity)
	if err != nil {
		h.loginFailure(c, slug, "account resolution", err)
		return
	}

	if err := h.sessions.Issue(c, user); err != nil {
		h.loginFailure(c, slug, "session issuance", err)
		return
	}

	h.metrics.RecordFederatedCallback(slug, true)
	h.metrics.RecordLogin(slug, true)
	c.Redirect(http.StatusFound, h.sessions.SafeRedirect(st.ReturnTo, "/"))
}

// providerError wraps the error query parameter a provider sent back.
type providerError struct {
	code string
}

func (e *providerError) Error() string {
	return "provider returned error: " + e.code
}
