package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/keys"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer produces and verifies RS256 JWTs with the server's signing key.
// It covers the signed access-token representation and OIDC ID tokens; the
// opaque representation never passes through here.
type Signer struct {
	keychain *keys.Keychain
	issuer   string
}

// NewSigner creates a signer bound to the given keychain and issuer URL.
func NewSigner(keychain *keys.Keychain, issuer string) *Signer {
	return &Signer{keychain: keychain, issuer: issuer}
}

// Issuer returns the iss value stamped into every token.
func (s *Signer) Issuer() string {
	return s.issuer
}

// AccessTokenParams holds the data for a signed access token.
type AccessTokenParams struct {
	Subject  string // user UUID; empty for client_credentials
	ClientID string
	Scopes   string // space-separated
	Expiry   time.Duration
}

// AccessTokenClaims is the verified view of a signed access token.
type AccessTokenClaims struct {
	Subject   string
	ClientID  string
	Scopes    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JTI       string
}

// SignAccessToken creates a signed JWT access token. Signed tokens are never
// persisted, so they cannot be revoked before expiry and introspection
// reports them inactive.
func (s *Signer) SignAccessToken(params AccessTokenParams) (string, error) {
	now := time.Now()
	sub := params.Subject
	if sub == "" {
		// client_credentials: the client is its own subject
		sub = params.ClientID
	}
	claims := jwt.MapClaims{
		"iss":       s.issuer,
		"sub":       sub,
		"aud":       params.ClientID,
		"client_id": params.ClientID,
		"scope":     params.Scopes,
		"typ":       "access",
		"exp":       now.Add(params.Expiry).Unix(),
		"iat":       now.Unix(),
		"jti":       uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keychain.KeyID()
	tokenString, err := token.SignedString(s.keychain.Private())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return tokenString, nil
}

// VerifyAccessToken parses and verifies a signed access token. The caller
// decides whether the string even looks like a JWT; anything that fails here
// is simply not a valid signed token.
func (s *Signer) VerifyAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.keychain.Public(), nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	// ID tokens verify against the same key; reject them as bearer credentials
	if typ, _ := claims["typ"].(string); typ != "access" {
		return nil, ErrNotAccessToken
	}

	sub, _ := claims["sub"].(string)
	clientID, _ := claims["client_id"].(string)
	scopes, _ := claims["scope"].(string)
	jti, _ := claims["jti"].(string)

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	iat, _ := claims["iat"].(float64)

	// client_credentials stamps the client as its own subject
	if sub == clientID {
		sub = ""
	}

	return &AccessTokenClaims{
		Subject:   sub,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: time.Unix(int64(exp), 0),
		IssuedAt:  time.Unix(int64(iat), 0),
		JTI:       jti,
	}, nil
}

// LooksLikeJWT reports whether the bearer string has the three-segment shape
// of a compact JWS. Used to route verification between the signed and opaque
// paths without a database round trip.
func LooksLikeJWT(tokenString string) bool {
	return strings.Count(tokenString, ".") == 2
}
