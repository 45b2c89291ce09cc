package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/authhub/authhub/internal/middleware"
	"github.com/authhub/authhub/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://auth.example.com"

func TestIsRedirectSafe(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     bool
	}{
		{"Empty", "", true},
		{"RelativePath", "/dashboard", true},
		{"RelativeWithQuery", "/oauth/authorize?client_id=abc", true},
		{"ProtocolRelative", "//evil.com", false},
		{"BackslashVariant", "/\\evil.com", false},
		{"HeaderInjection", "/dash\r\nSet-Cookie: x=1", false},
		{"SameHostAbsolute", "https://auth.example.com/home", true},
		{"ForeignHost", "https://evil.com/phish", false},
		{"JavascriptScheme", "javascript:alert(1)", false},
		{"DataScheme", "data:text/html,hi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRedirectSafe(tt.redirect, testBaseURL))
		})
	}
}

func TestSafeRedirectFallback(t *testing.T) {
	m := NewSessionManager(testBaseURL)

	assert.Equal(t, "/dashboard", m.SafeRedirect("/dashboard", "/"))
	assert.Equal(t, "/", m.SafeRedirect("", "/"))
	assert.Equal(t, "/", m.SafeRedirect("https://evil.com", "/"))
}

func TestSessionIssueAndClear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewSessionManager(testBaseURL)

	r := gin.New()
	r.Use(NewSessionStore("authhub_session", "test-secret", 3600, false))
	r.GET("/issue", func(c *gin.Context) {
		err := m.Issue(c, &models.User{UUID: "uuid-1", Username: "alice"})
		require.NoError(t, err)
		c.Status(http.StatusOK)
	})
	r.GET("/whoami", func(c *gin.Context) {
		session := sessions.Default(c)
		id := session.Get(middleware.SessionUserID)
		if id == nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, id.(string))
	})
	r.GET("/clear", func(c *gin.Context) {
		require.NoError(t, m.Clear(c))
		c.Status(http.StatusOK)
	})

	// Issue
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/issue", nil))
	require.Equal(t, http.StatusOK, w.Code)
	issued := w.Result().Cookies()
	require.NotEmpty(t, issued)

	withCookies := func(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		r.ServeHTTP(w, req)
		return w
	}

	// Session resolves the user
	w = withCookies("/whoami", issued)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uuid-1", w.Body.String())

	// Clear invalidates it
	w = withCookies("/clear", issued)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := w.Result().Cookies()

	w = withCookies("/whoami", cleared)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
