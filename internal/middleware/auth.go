package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionUserID   = "user_id"
	SessionUsername = "username"
)

// SessionUser returns the logged-in user's ID from the session, if any.
// Handlers decide themselves how to treat anonymous requests: the authorize
// endpoint validates parameters first and then redirects to login, the
// consent endpoint answers 401.
func SessionUser(c *gin.Context) (string, bool) {
	v := sessions.Default(c).Get(SessionUserID)
	id, ok := v.(string)
	return id, ok && id != ""
}
