package federation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/authhub/authhub/internal/util"
)

var (
	ErrStateCookieMissing = errors.New("login state cookie missing")
	ErrStateMismatch      = errors.New("login state mismatch")
	ErrStateExpired       = errors.New("login state expired")
)

// LoginState is the per-attempt payload carried in a short-lived, per-provider,
// path-scoped, httpOnly cookie between the initiate and callback legs. The
// state value doubles as the CSRF token: its exact equality with the query
// parameter is the integrity check.
type LoginState struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Provider string `json:"provider"`
	ReturnTo string `json:"return_to,omitempty"`
	IssuedAt int64  `json:"iat"`
}

// NewLoginState generates a fresh state/nonce pair for a login attempt.
func NewLoginState(providerSlug, returnTo string) (*LoginState, error) {
	state, err := util.CryptoRandomHex(32)
	if err != nil {
		return nil, err
	}
	nonce, err := util.CryptoRandomHex(32)
	if err != nil {
		return nil, err
	}
	return &LoginState{
		State:    state,
		Nonce:    nonce,
		Provider: providerSlug,
		ReturnTo: returnTo,
		IssuedAt: time.Now().Unix(),
	}, nil
}

// stateCookieName returns the per-provider cookie name.
func stateCookieName(providerSlug string) string {
	return "authhub_login_" + providerSlug
}

// stateCookiePath scopes the cookie to the provider's own callback path.
func stateCookiePath(providerSlug string) string {
	return "/auth/" + providerSlug
}

// WriteStateCookie persists the login state for the callback leg.
func WriteStateCookie(w http.ResponseWriter, st *LoginState, ttl time.Duration, secure bool) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(st.Provider),
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     stateCookiePath(st.Provider),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearStateCookie deletes the login state cookie. Called unconditionally on
// first callback use, before any validation outcome, so a state can never be
// replayed.
func ClearStateCookie(w http.ResponseWriter, providerSlug string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(providerSlug),
		Value:    "",
		Path:     stateCookiePath(providerSlug),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadStateCookie loads and validates the login state for a callback.
// queryState must equal the stored state exactly and the stored provider must
// match the path's provider slug; anything else aborts the login.
func ReadStateCookie(r *http.Request, providerSlug, queryState string, ttl time.Duration) (*LoginState, error) {
	c, err := r.Cookie(stateCookieName(providerSlug))
	if err != nil {
		return nil, ErrStateCookieMissing
	}

	payload, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, ErrStateMismatch
	}
	var st LoginState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, ErrStateMismatch
	}

	if st.State == "" || queryState == "" || st.State != queryState {
		return nil, ErrStateMismatch
	}
	if st.Provider != providerSlug {
		return nil, ErrStateMismatch
	}
	if time.Since(time.Unix(st.IssuedAt, 0)) > ttl {
		return nil, ErrStateExpired
	}
	return &st, nil
}
