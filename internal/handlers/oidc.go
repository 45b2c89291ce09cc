package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/keys"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/util"

	"github.com/gin-gonic/gin"
)

// discoveryCacheMaxAge is the Cache-Control lifetime for the well-known
// documents; both are stable for the process lifetime.
const discoveryCacheMaxAge = "public, max-age=3600"

// OIDCHandler serves OIDC Discovery, JWKS and the UserInfo endpoint.
type OIDCHandler struct {
	tokenService *services.TokenService
	userService  *services.UserService
	keychain     *keys.Keychain
	metrics      metrics.Recorder
}

// NewOIDCHandler creates a new OIDCHandler.
func NewOIDCHandler(
	ts *services.TokenService,
	us *services.UserService,
	kc *keys.Keychain,
	m metrics.Recorder,
) *OIDCHandler {
	return &OIDCHandler{
		tokenService: ts,
		userService:  us,
		keychain:     kc,
		metrics:      m,
	}
}

// discoveryMetadata holds the OIDC Provider Metadata returned by the discovery endpoint.
type discoveryMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
}

// requestIssuer computes the effective external origin of the request,
// honoring reverse-proxy forwarding headers.
func requestIssuer(c *gin.Context) string {
	return util.RequestOrigin(
		c.GetHeader("X-Forwarded-Proto"),
		c.GetHeader("X-Forwarded-Host"),
		c.Request.Host,
		c.Request.TLS != nil,
	)
}

// Discovery handles GET /.well-known/openid-configuration.
func (h *OIDCHandler) Discovery(c *gin.Context) {
	base := requestIssuer(c)
	meta := discoveryMetadata{
		Issuer:                           base,
		AuthorizationEndpoint:            base + "/oauth/authorize",
		TokenEndpoint:                    base + "/oauth/token",
		UserinfoEndpoint:                 base + "/oauth/userinfo",
		JWKSURI:                          base + "/.well-known/jwks.json",
		RevocationEndpoint:               base + "/oauth/revoke",
		IntrospectionEndpoint:            base + "/oauth/introspect",
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported: []string{
			"openid",
			"profile",
			"email",
			"offline_access",
			"read",
			"write",
		},
		TokenEndpointAuthMethods: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
		GrantTypesSupported: []string{
			"authorization_code",
			"client_credentials",
			"refresh_token",
		},
		ClaimsSupported: []string{
			"sub",
			"iss",
			"aud",
			"name",
			"preferred_username",
			"email",
			"email_verified",
			"nonce",
			"at_hash",
		},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
	}
	c.Header("Cache-Control", discoveryCacheMaxAge)
	c.JSON(http.StatusOK, meta)
}

// JWKS handles GET /.well-known/jwks.json, serving the public signing keys.
func (h *OIDCHandler) JWKS(c *gin.Context) {
	c.Header("Cache-Control", discoveryCacheMaxAge)
	c.JSON(http.StatusOK, h.keychain.PublicJWKS())
}

// UserInfo handles GET|POST /oauth/userinfo (OIDC Core 1.0 §5.3).
func (h *OIDCHandler) UserInfo(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "Bearer token required",
		})
		return
	}
	bearer := strings.TrimPrefix(authHeader, "Bearer ")

	start := time.Now()
	userID, clientID, scopes, err := h.tokenService.VerifyBearer(c.Request.Context(), bearer)
	if err != nil {
		h.metrics.RecordTokenValidation("invalid", time.Since(start))
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "Token is invalid or expired",
		})
		return
	}
	h.metrics.RecordTokenValidation("valid", time.Since(start))

	// Client-credentials tokens have no user behind them.
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{
			"sub": clientID,
			"iss": requestIssuer(c),
		})
		return
	}

	user, err := h.userService.GetUserByUUID(userID)
	if err != nil {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "User not found",
		})
		return
	}

	c.JSON(http.StatusOK, buildUserInfoClaims(
		userID,
		requestIssuer(c),
		scopes,
		user.FullName,
		user.Username,
		user.Email,
		user.UpdatedAt,
	))
}

// buildUserInfoClaims constructs UserInfo response claims based on the granted scopes.
// sub and iss are always included. profile and email scopes gate their respective claims.
func buildUserInfoClaims(
	userID string,
	issuer string,
	scopes string,
	fullName string,
	username string,
	email string,
	updatedAt time.Time,
) map[string]any {
	scopeSet := parseScopeSet(scopes)

	claims := map[string]any{
		"sub": userID,
		"iss": issuer,
	}

	if scopeSet["profile"] {
		claims["name"] = fullName
		claims["preferred_username"] = username
		claims["updated_at"] = updatedAt.Unix()
	}

	if scopeSet["email"] {
		claims["email"] = email
		claims["email_verified"] = true
	}

	return claims
}

// parseScopeSet converts a space-separated scope string into a boolean set.
func parseScopeSet(scopes string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Fields(scopes) {
		set[s] = true
	}
	return set
}
