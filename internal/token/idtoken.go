package token

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IDTokenParams holds all data needed to generate an OIDC ID Token (OIDC Core 1.0 §2).
type IDTokenParams struct {
	Subject  string
	Audience string // client_id of the relying party
	Expiry   time.Duration
	AuthTime time.Time
	Nonce    string
	AtHash   string

	// Profile claims, released according to the granted scopes
	Name              string
	PreferredUsername string
	Email             string
	EmailVerified     bool
}

// GenerateIDToken creates a signed RS256 JWT ID Token for the given params.
// ID tokens are never stored; they are short-lived and not revocable.
func (s *Signer) GenerateIDToken(params IDTokenParams) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":       s.issuer,
		"sub":       params.Subject,
		"aud":       params.Audience,
		"exp":       now.Add(params.Expiry).Unix(),
		"iat":       now.Unix(),
		"auth_time": params.AuthTime.Unix(),
		"jti":       uuid.New().String(),
	}

	if params.Nonce != "" {
		claims["nonce"] = params.Nonce
	}
	if params.AtHash != "" {
		claims["at_hash"] = params.AtHash
	}

	// Profile claims
	if params.Name != "" {
		claims["name"] = params.Name
	}
	if params.PreferredUsername != "" {
		claims["preferred_username"] = params.PreferredUsername
	}

	// Email claims
	if params.Email != "" {
		claims["email"] = params.Email
		claims["email_verified"] = params.EmailVerified
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keychain.KeyID()
	tokenString, err := token.SignedString(s.keychain.Private())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return tokenString, nil
}

// ComputeAtHash computes the at_hash claim value per OIDC Core 1.0 §3.3.2.11.
// at_hash = base64url( left-most 128 bits of SHA-256( ASCII(access_token) ) )
func ComputeAtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}

// ScopeSet parses a space-separated scope string into a boolean lookup map.
func ScopeSet(scopes string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Fields(scopes) {
		set[s] = true
	}
	return set
}
