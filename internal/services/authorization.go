package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/token"
	"github.com/authhub/authhub/internal/util"

	"github.com/google/uuid"
)

// Authorization Code Flow errors
var (
	ErrInvalidAuthCodeRequest  = errors.New("invalid_request")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrAccessDeniedConsent     = errors.New("access_denied")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidAuthCodeScope    = errors.New("invalid_scope")
	ErrInvalidRedirectURI      = errors.New("invalid redirect_uri")
	ErrAuthCodeNotFound        = errors.New("authorization code not found")
	ErrAuthCodeExpired         = errors.New("authorization code expired")
	ErrAuthCodeAlreadyUsed     = errors.New("authorization code already used")
	ErrInvalidCodeVerifier     = errors.New("invalid code_verifier")
)

// AuthorizationRequest holds validated parameters for an authorization request
type AuthorizationRequest struct {
	Client              *models.OAuthClient
	RedirectURI         string
	Scopes              string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// AuthorizationService manages the OAuth 2.0 Authorization Code Flow (RFC 6749)
type AuthorizationService struct {
	store  *store.Store
	config *config.Config
}

func NewAuthorizationService(s *store.Store, cfg *config.Config) *AuthorizationService {
	return &AuthorizationService{store: s, config: cfg}
}

// ValidateAuthorizationRequest validates all parameters of an incoming
// authorization request. Returns the parsed AuthorizationRequest on success.
func (s *AuthorizationService) ValidateAuthorizationRequest(
	clientID, redirectURI, responseType, scope, codeChallenge, codeChallengeMethod string,
) (*AuthorizationRequest, error) {
	// 1. response_type must be "code"
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	// 2. Client must exist and be active
	client, err := s.store.GetClient(clientID)
	if err != nil || !client.IsActive {
		return nil, ErrUnauthorizedClient
	}

	// 3. Client must be permitted the authorization_code grant
	if !client.AllowsGrantType("authorization_code") {
		return nil, ErrUnauthorizedClient
	}

	// 4. redirect_uri must exactly match one of the registered URIs
	if redirectURI == "" || !client.HasRedirectURI(redirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	// 5. Requested scopes must all be in the client's allowed set
	if scope != "" && !isScopeSubset(client.Scopes, scope) {
		return nil, ErrInvalidAuthCodeScope
	}
	if scope == "" {
		scope = client.Scopes // Default to all client scopes
	}

	// 6. PKCE: when a challenge is present a valid method is required
	if codeChallenge != "" {
		if codeChallengeMethod != "S256" && codeChallengeMethod != "plain" {
			return nil, ErrInvalidAuthCodeRequest
		}
	} else if codeChallengeMethod != "" {
		return nil, ErrInvalidAuthCodeRequest
	}

	return &AuthorizationRequest{
		Client:              client,
		RedirectURI:         redirectURI,
		Scopes:              scope,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}, nil
}

// CanRedirect reports whether an authorization error may be delivered to
// redirectURI. The client must exist and the URI must be registered; callers
// that cannot be redirected safely get a JSON error body instead.
func (s *AuthorizationService) CanRedirect(clientID, redirectURI string) bool {
	if clientID == "" || redirectURI == "" {
		return false
	}
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return false
	}
	return client.HasRedirectURI(redirectURI)
}

// HasConsent reports whether a prior consent for the (user, client) pair
// already covers every requested scope. When it does the caller mints a code
// without showing the consent screen.
func (s *AuthorizationService) HasConsent(userID, clientID, scopes string) bool {
	consent, err := s.store.GetUserConsent(userID, clientID)
	if err != nil {
		return false
	}
	return isScopeSubset(consent.Scopes, scopes)
}

// GrantConsent records the user's approval, merging the newly granted scopes
// into any existing consent.
func (s *AuthorizationService) GrantConsent(
	ctx context.Context,
	userID, clientID, scopes string,
) error {
	_, err := s.store.UpsertUserConsent(userID, clientID, strings.Fields(scopes))
	if err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}
	return nil
}

// CreateAuthorizationCode generates a one-time authorization code and saves
// it to the database. Returns the plaintext code to be sent in the redirect.
func (s *AuthorizationService) CreateAuthorizationCode(
	ctx context.Context,
	clientID, userID, redirectURI, scopes, codeChallenge, codeChallengeMethod, nonce string,
) (string, error) {
	plainCode, err := util.CryptoRandomHex(64)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	record := &models.AuthorizationCode{
		UUID:                uuid.New().String(),
		CodeHash:            util.SHA256Hex(plainCode),
		ClientID:            clientID,
		UserID:              userID,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Nonce:               nonce,
		ExpiresAt:           time.Now().Add(s.config.AuthCodeExpiration),
	}

	if err := s.store.CreateAuthorizationCode(record); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}
	return plainCode, nil
}

// ExchangeCode validates a plaintext authorization code and marks it used.
// Client authentication has already happened at the token endpoint; this
// checks everything bound to the code itself. The code is marked used only
// after every check passes, as a single conditional update, so concurrent
// exchanges cannot both succeed.
func (s *AuthorizationService) ExchangeCode(
	ctx context.Context,
	plainCode, clientID, redirectURI, codeVerifier string,
) (*models.AuthorizationCode, error) {
	record, err := s.store.GetAuthorizationCodeByHash(util.SHA256Hex(plainCode))
	if err != nil {
		return nil, ErrAuthCodeNotFound
	}

	if record.IsUsed() {
		return nil, ErrAuthCodeAlreadyUsed
	}
	if record.IsExpired() {
		return nil, ErrAuthCodeExpired
	}
	if record.ClientID != clientID {
		return nil, ErrAuthCodeNotFound // Don't reveal the code exists for another client
	}
	if record.RedirectURI != redirectURI {
		return nil, ErrInvalidRedirectURI
	}

	// PKCE: a stored challenge binds the exchange to the original caller
	if record.CodeChallenge != "" {
		if !verifyPKCE(record.CodeChallenge, record.CodeChallengeMethod, codeVerifier) {
			return nil, ErrInvalidCodeVerifier
		}
	}

	// Mark as used atomically (WHERE used_at IS NULL ensures only one
	// concurrent request wins; the loser receives ErrCodeAlreadyUsed).
	now := time.Now()
	if err := s.store.MarkAuthorizationCodeUsed(record.ID); err != nil {
		if errors.Is(err, store.ErrCodeAlreadyUsed) {
			return nil, ErrAuthCodeAlreadyUsed
		}
		return nil, fmt.Errorf("failed to mark code as used: %w", err)
	}
	record.UsedAt = &now // Reflect DB state in the returned struct

	return record, nil
}

// verifyPKCE validates code_verifier against the stored code_challenge (RFC 7636)
func verifyPKCE(codeChallenge, method, codeVerifier string) bool {
	if codeVerifier == "" {
		return false
	}
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return computed == codeChallenge
	case "plain", "":
		return codeVerifier == codeChallenge
	default:
		return false
	}
}

// isScopeSubset reports whether every scope in requested appears in allowed.
func isScopeSubset(allowed, requested string) bool {
	set := token.ScopeSet(allowed)
	for _, sc := range strings.Fields(requested) {
		if !set[sc] {
			return false
		}
	}
	return true
}
