package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/token"
	"github.com/authhub/authhub/internal/util"

	"github.com/google/uuid"
)

// Token endpoint errors
var (
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrInvalidTokenScope    = errors.New("invalid scope requested")
)

// GrantType is the closed set of supported grant types. Parsing happens once
// at the endpoint boundary; everything past it switches exhaustively.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
)

// ParseGrantType maps the wire value onto the closed enum.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(s) {
	case GrantAuthorizationCode, GrantClientCredentials, GrantRefreshToken:
		return GrantType(s), nil
	default:
		return "", ErrUnsupportedGrantType
	}
}

// TokenRequest carries the form parameters of a token endpoint call, with
// Basic-auth client credentials already normalized into ClientID/ClientSecret.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the success body of the token endpoint (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}

// TokenService exchanges codes, refresh tokens and client credentials for
// tokens, and drives introspection and revocation.
type TokenService struct {
	store   *store.Store
	config  *config.Config
	signer  *token.Signer
	authSvc *AuthorizationService
}

func NewTokenService(
	s *store.Store,
	cfg *config.Config,
	signer *token.Signer,
	authSvc *AuthorizationService,
) *TokenService {
	return &TokenService{store: s, config: cfg, signer: signer, authSvc: authSvc}
}

// AuthenticateClient validates client credentials. Confidential clients must
// present a matching secret; public clients are exempt from secret checks.
func (s *TokenService) AuthenticateClient(clientID, clientSecret string) (*models.OAuthClient, error) {
	if clientID == "" {
		return nil, ErrInvalidClient
	}
	client, err := s.store.GetClient(clientID)
	if err != nil || !client.IsActive {
		return nil, ErrInvalidClient
	}
	if client.Confidential {
		if clientSecret == "" || !client.ValidateClientSecret([]byte(clientSecret)) {
			return nil, ErrInvalidClient
		}
	}
	return client, nil
}

// Exchange is the single token endpoint entry point, dispatching on the
// parsed grant type after client authentication.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	grant, err := ParseGrantType(req.GrantType)
	if err != nil {
		return nil, err
	}

	client, err := s.AuthenticateClient(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType(string(grant)) {
		return nil, ErrUnauthorizedClient
	}

	switch grant {
	case GrantAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, client, req)
	case GrantClientCredentials:
		return s.exchangeClientCredentials(ctx, client, req)
	case GrantRefreshToken:
		return s.exchangeRefreshToken(ctx, client, req)
	}
	return nil, ErrUnsupportedGrantType
}

func (s *TokenService) exchangeAuthorizationCode(
	ctx context.Context,
	client *models.OAuthClient,
	req TokenRequest,
) (*TokenResponse, error) {
	code, err := s.authSvc.ExchangeCode(ctx, req.Code, client.ClientID, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		// Collapse the code-level failures into the RFC taxonomy
		switch {
		case errors.Is(err, ErrAuthCodeNotFound),
			errors.Is(err, ErrAuthCodeExpired),
			errors.Is(err, ErrAuthCodeAlreadyUsed),
			errors.Is(err, ErrInvalidCodeVerifier),
			errors.Is(err, ErrInvalidRedirectURI):
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		default:
			return nil, err
		}
	}

	return s.issueTokens(ctx, client, code.UserID, code.Scopes, code.Nonce, true)
}

func (s *TokenService) exchangeClientCredentials(
	ctx context.Context,
	client *models.OAuthClient,
	req TokenRequest,
) (*TokenResponse, error) {
	scopes := req.Scope
	if scopes == "" {
		scopes = client.Scopes
	} else if !isScopeSubset(client.Scopes, scopes) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthCodeScope, ErrInvalidTokenScope)
	}

	// No user and no refresh token on this grant
	return s.issueTokens(ctx, client, "", scopes, "", false)
}

func (s *TokenService) exchangeRefreshToken(
	ctx context.Context,
	client *models.OAuthClient,
	req TokenRequest,
) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidGrant
	}
	record, err := s.store.GetRefreshTokenByHash(util.SHA256Hex(req.RefreshToken))
	if err != nil {
		return nil, ErrInvalidGrant
	}
	// The token must belong to the requesting client
	if record.ClientID != client.ClientID {
		return nil, ErrInvalidGrant
	}
	if !record.IsActive() {
		return nil, ErrInvalidGrant
	}

	// The caller may narrow the scopes of the new access token; anything
	// outside the original grant is rejected. No escalation path exists here.
	scopes := record.Scopes
	if req.Scope != "" {
		if !isScopeSubset(record.Scopes, req.Scope) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAuthCodeScope, ErrInvalidTokenScope)
		}
		scopes = req.Scope
	}

	resp, err := s.issueTokens(ctx, client, record.UserID, scopes, "", false)
	if err != nil {
		return nil, err
	}

	// No rotation: the same refresh token remains valid and is echoed back
	resp.RefreshToken = record.RawToken
	if resp.RefreshToken == "" {
		resp.RefreshToken = req.RefreshToken
	}
	if err := s.store.TouchRefreshToken(record.ID); err != nil {
		return nil, fmt.Errorf("failed to record refresh token use: %w", err)
	}
	return resp, nil
}

// issueTokens mints the access token (signed when the grant includes openid,
// opaque otherwise), the ID token when applicable, and a refresh token when
// the grant allows one.
func (s *TokenService) issueTokens(
	ctx context.Context,
	client *models.OAuthClient,
	userID, scopes, nonce string,
	allowRefresh bool,
) (*TokenResponse, error) {
	granted := token.ScopeSet(scopes)

	resp := &TokenResponse{
		TokenType: "Bearer",
		ExpiresIn: int64(s.config.AccessTokenExpiration.Seconds()),
		Scope:     scopes,
	}

	var accessTokenID string
	if granted["openid"] {
		// Signed representation: self-contained, never stored, not revocable
		signed, err := s.signer.SignAccessToken(token.AccessTokenParams{
			Subject:  userID,
			ClientID: client.ClientID,
			Scopes:   scopes,
			Expiry:   s.config.AccessTokenExpiration,
		})
		if err != nil {
			return nil, err
		}
		resp.AccessToken = signed

		// No ID token without a user: client_credentials grants can carry
		// the openid scope but have no subject to assert.
		if userID != "" {
			idToken, err := s.generateIDToken(client, userID, granted, nonce, signed)
			if err != nil {
				return nil, err
			}
			resp.IDToken = idToken
		}
	} else {
		// Opaque representation: store-backed, revocable, introspectable
		plain, hash, err := token.NewOpaque()
		if err != nil {
			return nil, err
		}
		record := &models.AccessToken{
			ID:        uuid.New().String(),
			TokenHash: hash,
			RawToken:  plain,
			TokenType: "Bearer",
			ClientID:  client.ClientID,
			UserID:    userID,
			Scopes:    scopes,
			ExpiresAt: time.Now().Add(s.config.AccessTokenExpiration),
		}
		if err := s.store.CreateAccessToken(record); err != nil {
			return nil, fmt.Errorf("failed to save access token: %w", err)
		}
		resp.AccessToken = plain
		accessTokenID = record.ID
	}

	if allowRefresh && userID != "" &&
		granted["offline_access"] && client.AllowsGrantType(string(GrantRefreshToken)) {
		plain, hash, err := token.NewOpaque()
		if err != nil {
			return nil, err
		}
		record := &models.RefreshToken{
			ID:            uuid.New().String(),
			TokenHash:     hash,
			RawToken:      plain,
			AccessTokenID: accessTokenID,
			ClientID:      client.ClientID,
			UserID:        userID,
			Scopes:        scopes,
			ExpiresAt:     time.Now().Add(s.config.RefreshTokenExpiration),
		}
		if err := s.store.CreateRefreshToken(record); err != nil {
			return nil, fmt.Errorf("failed to save refresh token: %w", err)
		}
		resp.RefreshToken = plain
	}

	return resp, nil
}

func (s *TokenService) generateIDToken(
	client *models.OAuthClient,
	userID string,
	granted map[string]bool,
	nonce, accessToken string,
) (string, error) {
	params := token.IDTokenParams{
		Subject:  userID,
		Audience: client.ClientID,
		Expiry:   s.config.IDTokenExpiration,
		AuthTime: time.Now(),
		Nonce:    nonce,
		AtHash:   token.ComputeAtHash(accessToken),
	}

	if userID != "" {
		user, err := s.store.GetUserByUUID(userID)
		if err != nil {
			return "", fmt.Errorf("failed to load user for id token: %w", err)
		}
		if granted["profile"] {
			params.Name = user.FullName
			params.PreferredUsername = user.Username
		}
		if granted["email"] {
			params.Email = user.Email
			params.EmailVerified = true
		}
	}

	return s.signer.GenerateIDToken(params)
}

// IntrospectionResult is the RFC 7662 response shape.
type IntrospectionResult struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// Introspect looks up a token strictly as an opaque store-backed access
// token. Anything else, including valid signed tokens and refresh tokens,
// reports active:false. Lookup failures never surface as errors.
func (s *TokenService) Introspect(ctx context.Context, plainToken string) *IntrospectionResult {
	if plainToken == "" || token.LooksLikeJWT(plainToken) {
		return &IntrospectionResult{Active: false}
	}
	record, err := s.store.GetAccessTokenByHash(util.SHA256Hex(plainToken))
	if err != nil || !record.IsActive() {
		return &IntrospectionResult{Active: false}
	}

	result := &IntrospectionResult{
		Active:    true,
		Scope:     record.Scopes,
		ClientID:  record.ClientID,
		Sub:       record.UserID,
		TokenType: record.TokenType,
		Exp:       record.ExpiresAt.Unix(),
		Iat:       record.CreatedAt.Unix(),
	}
	if record.UserID != "" {
		if user, err := s.store.GetUserByUUID(record.UserID); err == nil {
			result.Username = user.Username
		}
	}
	return result
}

// Revoke terminates a token (RFC 7009). The optional hint orders the search;
// absent a hint access tokens are tried first, then refresh tokens. Unknown
// tokens are not an error: revocation always reports success.
func (s *TokenService) Revoke(ctx context.Context, plainToken, tokenTypeHint string) error {
	if plainToken == "" || token.LooksLikeJWT(plainToken) {
		// Signed tokens are not store-backed and cannot be revoked
		return nil
	}
	hash := util.SHA256Hex(plainToken)

	if tokenTypeHint == "refresh_token" {
		if revoked, err := s.revokeRefreshByHash(hash); err != nil || revoked {
			return err
		}
		_, err := s.revokeAccessByHash(hash)
		return err
	}

	if revoked, err := s.revokeAccessByHash(hash); err != nil || revoked {
		return err
	}
	_, err := s.revokeRefreshByHash(hash)
	return err
}

func (s *TokenService) revokeAccessByHash(hash string) (bool, error) {
	record, err := s.store.GetAccessTokenByHash(hash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.store.RevokeAccessToken(record.ID); err != nil {
		return false, err
	}
	// Refresh tokens minted alongside this access token die with it
	if err := s.store.RevokeRefreshTokensForAccessToken(record.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *TokenService) revokeRefreshByHash(hash string) (bool, error) {
	record, err := s.store.GetRefreshTokenByHash(hash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.store.RevokeRefreshToken(record.ID); err != nil {
		return false, err
	}
	// The access token it was issued with is revoked too
	if record.AccessTokenID != "" {
		if _, err := s.store.RevokeAccessToken(record.AccessTokenID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// VerifyBearer resolves a presented bearer credential to (userID, clientID,
// scopes), accepting both representations. Used by the userinfo endpoint and
// the resource middleware.
func (s *TokenService) VerifyBearer(ctx context.Context, bearer string) (userID, clientID, scopes string, err error) {
	if token.LooksLikeJWT(bearer) {
		claims, err := s.signer.VerifyAccessToken(bearer)
		if err != nil {
			return "", "", "", err
		}
		return claims.Subject, claims.ClientID, claims.Scopes, nil
	}

	record, err := s.store.GetAccessTokenByHash(util.SHA256Hex(bearer))
	if err != nil || !record.IsActive() {
		return "", "", "", token.ErrInvalidToken
	}
	return record.UserID, record.ClientID, record.Scopes, nil
}

// CleanupExpired removes expired codes and tokens. Run periodically from the
// bootstrap maintenance loop.
func (s *TokenService) CleanupExpired(ctx context.Context) {
	for name, fn := range map[string]func() error{
		"authorization codes": s.store.DeleteExpiredAuthorizationCodes,
		"access tokens":       s.store.DeleteExpiredAccessTokens,
		"refresh tokens":      s.store.DeleteExpiredRefreshTokens,
	} {
		if err := fn(); err != nil {
			logCleanupFailure(name, err)
		}
	}
}

func logCleanupFailure(what string, err error) {
	log.Printf("[TokenService] Failed to delete expired %s: %v", what, err)
}
