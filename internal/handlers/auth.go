package handlers

import (
	"html/template"
	"net/http"

	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// loginPageTemplate is the minimal local login form. The consent UI and any
// richer account pages live in the surrounding application; this form only
// exists so the authorization flows are drivable without one.
var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="redirect" value="{{.Redirect}}">
  <label>Username <input type="text" name="username" autofocus></label>
  <label>Password <input type="password" name="password"></label>
  <button type="submit">Sign in</button>
</form>
{{range .Providers}}
<p><a href="/auth/{{.Slug}}/login?redirect={{$.Redirect}}">Sign in with {{.DisplayName}}</a></p>
{{end}}
</body>
</html>
`))

type loginPageData struct {
	Error     string
	Redirect  string
	Providers []models.AuthProvider
}

type AuthHandler struct {
	store       *store.Store
	userService *services.UserService
	sessions    *auth.SessionManager
	config      *config.Config
	metrics     metrics.Recorder
}

func NewAuthHandler(
	s *store.Store,
	us *services.UserService,
	sm *auth.SessionManager,
	cfg *config.Config,
	m metrics.Recorder,
) *AuthHandler {
	return &AuthHandler{
		store:       s,
		userService: us,
		sessions:    sm,
		config:      cfg,
		metrics:     m,
	}
}

func (h *AuthHandler) renderLogin(c *gin.Context, status int, errMsg, redirect string) {
	providers, err := h.store.ListEnabledProviders()
	if err != nil {
		providers = nil
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = loginPageTemplate.Execute(c.Writer, loginPageData{
		Error:     errMsg,
		Redirect:  redirect,
		Providers: providers,
	})
}

// LoginPage handles GET /login. A provider marked auto_launch short-circuits
// straight to its federated flow unless an error is being shown or local
// login was requested explicitly.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("user_id") != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	redirect := c.Query("redirect")
	if !auth.IsRedirectSafe(redirect, h.config.BaseURL) {
		redirect = ""
	}
	errMsg := c.Query("error")

	if errMsg == "" && c.Query("local") == "" {
		if providers, err := h.store.ListEnabledProviders(); err == nil {
			for _, p := range providers {
				if p.AutoLaunch {
					c.Redirect(http.StatusFound, "/auth/"+p.Slug+"/login?redirect="+redirect)
					return
				}
			}
		}
	}

	h.renderLogin(c, http.StatusOK, errMsg, redirect)
}

// Login handles the POST /login form submission.
func (h *AuthHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	redirect := c.PostForm("redirect")
	if !auth.IsRedirectSafe(redirect, h.config.BaseURL) {
		redirect = ""
	}

	user, err := h.userService.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		h.metrics.RecordLogin("local", false)
		h.renderLogin(c, http.StatusUnauthorized, "Invalid username or password", redirect)
		return
	}

	if err := h.sessions.Issue(c, user); err != nil {
		h.renderLogin(c, http.StatusInternalServerError, "Failed to create session", redirect)
		return
	}

	h.metrics.RecordLogin("local", true)
	c.Redirect(http.StatusFound, h.sessions.SafeRedirect(redirect, "/"))
}

// Logout clears the session and redirects to login
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Clear(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save session",
		})
		return
	}
	h.metrics.RecordLogout()
	c.Redirect(http.StatusFound, "/login")
}
