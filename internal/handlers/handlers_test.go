package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/keys"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testApp wires the full HTTP surface against an in-memory store, mirroring
// the production router without rate limiting.
type testApp struct {
	store    *store.Store
	config   *config.Config
	keychain *keys.Keychain
	tokens   *services.TokenService
	authSvc  *services.AuthorizationService
	router   *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		ServerAddr:             ":0",
		BaseURL:                "https://auth.example.com",
		SessionSecret:          "test-session-secret",
		SessionMaxAge:          3600,
		AuthCodeExpiration:     5 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 30 * 24 * time.Hour,
		IDTokenExpiration:      15 * time.Minute,
		ConsentRemember:        true,
		FederationTimeout:      5 * time.Second,
		FederationStateTTL:     10 * time.Minute,
		DiscoveryCacheTTL:      time.Hour,
	}

	kc, err := keys.Load(filepath.Join(t.TempDir(), "signing.pem"))
	require.NoError(t, err)
	signer := token.NewSigner(kc, cfg.BaseURL)

	authSvc := services.NewAuthorizationService(s, cfg)
	tokens := services.NewTokenService(s, cfg, signer, authSvc)
	users := services.NewUserService(s)
	sessionMgr := auth.NewSessionManager(cfg.BaseURL)

	outbound := &http.Client{Timeout: cfg.FederationTimeout}
	resolver := federation.NewResolver(
		cache.NewMemoryCache[federation.DiscoveryDocument](), outbound, cfg.DiscoveryCacheTTL,
	)
	broker := federation.NewBroker(resolver, outbound)

	recorder := metrics.NewNoopMetrics()
	authzHandler := NewAuthorizationHandler(authSvc, cfg, recorder)
	tokenHandler := NewTokenHandler(tokens, cfg, recorder)
	oidcHandler := NewOIDCHandler(tokens, users, kc, recorder)
	authHandler := NewAuthHandler(s, users, sessionMgr, cfg, recorder)
	fedHandler := NewFederationHandler(s, broker, users, sessionMgr, cfg, recorder)

	r := gin.New()
	r.Use(auth.NewSessionStore("authhub_session", cfg.SessionSecret, cfg.SessionMaxAge, false))

	r.GET("/.well-known/openid-configuration", oidcHandler.Discovery)
	r.GET("/.well-known/jwks.json", oidcHandler.JWKS)

	oauthGroup := r.Group("/oauth")
	{
		oauthGroup.GET("/authorize", authzHandler.Authorize)
		oauthGroup.POST("/authorize", authzHandler.ConsentDecision)
		oauthGroup.POST("/token", tokenHandler.Token)
		oauthGroup.POST("/introspect", tokenHandler.Introspect)
		oauthGroup.POST("/revoke", tokenHandler.Revoke)
		oauthGroup.GET("/userinfo", oidcHandler.UserInfo)
		oauthGroup.POST("/userinfo", oidcHandler.UserInfo)
	}

	r.GET("/login", authHandler.LoginPage)
	r.POST("/login", authHandler.Login)
	r.GET("/logout", authHandler.Logout)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/:provider/login", fedHandler.Login)
		authGroup.GET("/:provider/callback", fedHandler.Callback)
	}

	return &testApp{
		store:    s,
		config:   cfg,
		keychain: kc,
		tokens:   tokens,
		authSvc:  authSvc,
		router:   r,
	}
}

func (a *testApp) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{
		UUID:         uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		FullName:     "Test " + username,
	}
	require.NoError(t, a.store.CreateUser(user))
	return user
}

func (a *testApp) createClient(t *testing.T, confidential bool) (*models.OAuthClient, string) {
	t.Helper()
	client := &models.OAuthClient{
		ClientID:     uuid.New().String(),
		ClientName:   "Test App",
		Scopes:       "openid profile email offline_access read write",
		GrantTypes:   "authorization_code refresh_token client_credentials",
		RedirectURIs: models.StringArray{"https://app.example.com/callback"},
		Confidential: confidential,
		IsActive:     true,
	}
	secret := ""
	if confidential {
		var err error
		secret, err = client.GenerateClientSecret(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, a.store.CreateClient(client))
	return client, secret
}

// login drives POST /login and returns the session cookies.
func (a *testApp) login(t *testing.T, username, password string) []*http.Cookie {
	t.Helper()
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code, "login should succeed: %s", w.Body.String())
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// get performs a GET with optional session cookies.
func (a *testApp) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	a.router.ServeHTTP(w, req)
	return w
}

// postForm performs a form POST with optional session cookies.
func (a *testApp) postForm(
	path string,
	form url.Values,
	cookies []*http.Cookie,
) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	a.router.ServeHTTP(w, req)
	return w
}

// postJSON performs a JSON POST with optional session cookies.
func (a *testApp) postJSON(
	path, body string,
	cookies []*http.Cookie,
) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	a.router.ServeHTTP(w, req)
	return w
}
