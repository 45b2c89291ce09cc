package auth

import (
	"net/url"
	"strings"

	"github.com/authhub/authhub/internal/middleware"
	"github.com/authhub/authhub/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SessionManager issues and clears browser sessions. Both the local login
// form and federated callbacks end a successful authentication here.
type SessionManager struct {
	baseURL string
}

func NewSessionManager(baseURL string) *SessionManager {
	return &SessionManager{baseURL: baseURL}
}

// NewSessionStore builds the cookie-backed session middleware.
func NewSessionStore(name, secret string, maxAge int, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
	})
	return sessions.Sessions(name, store)
}

// Issue creates a session for the user and persists it to the cookie.
func (m *SessionManager) Issue(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.UUID)
	session.Set(middleware.SessionUsername, user.Username)
	return session.Save()
}

// Clear drops the session.
func (m *SessionManager) Clear(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// SafeRedirect returns target when it is safe to redirect to, or fallback
// otherwise.
func (m *SessionManager) SafeRedirect(target, fallback string) string {
	if IsRedirectSafe(target, m.baseURL) && target != "" {
		return target
	}
	return fallback
}

// IsRedirectSafe validates that a redirect URL is safe to use.
// It only allows:
// 1. Relative paths starting with "/" but not "//"
// 2. Absolute URLs that match the baseURL host
func IsRedirectSafe(redirectURL, baseURL string) bool {
	// Empty redirect is safe (will use default)
	if redirectURL == "" {
		return true
	}

	// Must not contain newlines or carriage returns (header injection)
	if strings.ContainsAny(redirectURL, "\r\n") {
		return false
	}

	// Check if it's a relative path
	if strings.HasPrefix(redirectURL, "/") {
		// Reject protocol-relative URLs like "//evil.com"
		if strings.HasPrefix(redirectURL, "//") {
			return false
		}
		// Reject backslash variations like "/\evil.com"
		if strings.Contains(redirectURL, "\\") {
			return false
		}
		return true
	}

	// If it's an absolute URL, parse and validate against baseURL
	parsedRedirect, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}

	// Reject javascript:, data:, and other non-http(s) schemes
	if parsedRedirect.Scheme != "" && parsedRedirect.Scheme != "http" &&
		parsedRedirect.Scheme != "https" {
		return false
	}

	// If there's a host specified, it must match baseURL
	if parsedRedirect.Host != "" {
		parsedBase, err := url.Parse(baseURL)
		if err != nil {
			return false
		}
		if parsedRedirect.Host != parsedBase.Host {
			return false
		}
	}

	return true
}
