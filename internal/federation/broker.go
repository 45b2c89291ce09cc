package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/services"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrExchangeFailed = errors.New("provider token exchange failed")
	ErrNoIdentity     = errors.New("no identity could be extracted from provider response")
	ErrUserinfoFailed = errors.New("userinfo failed")
	ErrIDTokenVerify  = errors.New("id token verification failed")
)

// Broker runs the outbound half of a federated login: code exchange against
// the provider's token endpoint and identity extraction from the result.
type Broker struct {
	resolver *Resolver
	client   *http.Client
}

func NewBroker(resolver *Resolver, client *http.Client) *Broker {
	return &Broker{resolver: resolver, client: client}
}

// Resolve exposes endpoint resolution to the handlers.
func (b *Broker) Resolve(ctx context.Context, provider *models.AuthProvider) (*Endpoints, error) {
	return b.resolver.Resolve(ctx, provider)
}

// oauthConfig builds the x/oauth2 client configuration for a provider.
func oauthConfig(provider *models.AuthProvider, endpoints *Endpoints, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       strings.Fields(provider.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.AuthorizeURL,
			TokenURL: endpoints.TokenURL,
		},
	}
}

// AuthCodeURL builds the provider authorization URL for the initiate leg.
// The nonce rides along only for OIDC providers.
func (b *Broker) AuthCodeURL(
	ctx context.Context,
	provider *models.AuthProvider,
	redirectURL string,
	st *LoginState,
) (string, error) {
	endpoints, err := b.resolver.Resolve(ctx, provider)
	if err != nil {
		return "", err
	}

	cfg := oauthConfig(provider, endpoints, redirectURL)
	var opts []oauth2.AuthCodeOption
	if provider.IsOIDC() {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", st.Nonce))
	}
	return cfg.AuthCodeURL(st.State, opts...), nil
}

// Exchange trades the callback code for provider tokens, honoring the
// provider's Accept header quirk.
func (b *Broker) Exchange(
	ctx context.Context,
	provider *models.AuthProvider,
	endpoints *Endpoints,
	redirectURL, code string,
) (*oauth2.Token, error) {
	client := b.client
	if provider.RequireAcceptJSON {
		client = &http.Client{
			Transport: &acceptJSONTransport{base: b.client.Transport},
			Timeout:   b.client.Timeout,
		}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := oauthConfig(provider, endpoints, redirectURL).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return tok, nil
}

// acceptJSONTransport forces an Accept: application/json header on every
// request. Some providers (GitHub) answer the token endpoint with
// form-encoded bodies unless asked for JSON explicitly.
type acceptJSONTransport struct {
	base http.RoundTripper
}

func (t *acceptJSONTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Accept", "application/json")
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// ExtractIdentity produces the canonical subject/username/email triple for a
// login. An ID token verified against the provider's JWKS is preferred; the
// UserInfo endpoint is the fallback when no ID token or no subject was
// obtained.
func (b *Broker) ExtractIdentity(
	ctx context.Context,
	provider *models.AuthProvider,
	endpoints *Endpoints,
	tok *oauth2.Token,
	expectedNonce string,
) (services.ExternalIdentity, error) {
	var identity services.ExternalIdentity

	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" && endpoints.JWKSURL != "" {
		extracted, err := b.verifyIDToken(ctx, provider, endpoints, raw, expectedNonce)
		if err != nil {
			return identity, err
		}
		identity = extracted
	}

	if identity.Subject == "" {
		if endpoints.UserinfoURL == "" {
			return identity, ErrNoIdentity
		}
		extracted, err := b.fetchUserinfo(ctx, endpoints, tok)
		if err != nil {
			return identity, err
		}
		identity = extracted
	}

	if identity.Subject == "" {
		return identity, ErrNoIdentity
	}

	// Optional enrichment: a missing email is not fatal but worth one extra
	// call on providers known to hide it.
	if identity.Email == "" && isGitHubAPI(endpoints.UserinfoURL) {
		if email, err := b.fetchGitHubPrimaryEmail(ctx, tok); err == nil {
			identity.Email = email
		} else {
			log.Printf("[Federation] Email enrichment failed for %s: %v", provider.Slug, err)
		}
	}

	return identity, nil
}

// idTokenClaims is the claim subset extracted from external ID tokens.
type idTokenClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// verifyIDToken checks the external ID token's signature against the
// provider's published keys. Issuer handling follows the provider's policy:
// strict fails on any mismatch, lenient logs and tolerates it (trailing-slash
// variance between registration and token is common in the wild).
func (b *Broker) verifyIDToken(
	ctx context.Context,
	provider *models.AuthProvider,
	endpoints *Endpoints,
	rawIDToken, expectedNonce string,
) (services.ExternalIdentity, error) {
	var identity services.ExternalIdentity

	ctx = oidc.ClientContext(ctx, b.client)
	keySet := oidc.NewRemoteKeySet(ctx, endpoints.JWKSURL)
	verifier := oidc.NewVerifier(endpoints.Issuer, keySet, &oidc.Config{
		ClientID:        provider.ClientID,
		SkipIssuerCheck: provider.IssuerPolicy != models.IssuerPolicyStrict,
	})

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity, fmt.Errorf("%w: %v", ErrIDTokenVerify, err)
	}

	if provider.IssuerPolicy != models.IssuerPolicyStrict {
		want := strings.TrimSuffix(endpoints.Issuer, "/")
		got := strings.TrimSuffix(idToken.Issuer, "/")
		if want != got {
			log.Printf("[Federation] Issuer mismatch for %s: want %q got %q (policy lenient, continuing)",
				provider.Slug, endpoints.Issuer, idToken.Issuer)
		}
	}

	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return identity, fmt.Errorf("%w: nonce mismatch", ErrIDTokenVerify)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return identity, fmt.Errorf("%w: %v", ErrIDTokenVerify, err)
	}

	return services.ExternalIdentity{
		Subject:  idToken.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Name:     claims.Name,
	}, nil
}

// userinfoResponse accepts the field spellings seen across providers:
// sub/id for the subject, preferred_username/login/username for the handle.
type userinfoResponse struct {
	Sub               string          `json:"sub"`
	ID                json.RawMessage `json:"id"`
	Login             string          `json:"login"`
	Username          string          `json:"username"`
	PreferredUsername string          `json:"preferred_username"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
}

func (b *Broker) fetchUserinfo(
	ctx context.Context,
	endpoints *Endpoints,
	tok *oauth2.Token,
) (services.ExternalIdentity, error) {
	var identity services.ExternalIdentity

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoints.UserinfoURL, nil)
	if err != nil {
		return identity, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return identity, fmt.Errorf("%w: %v", ErrUserinfoFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return identity, fmt.Errorf("%w: %s - %s", ErrUserinfoFailed, resp.Status, string(body))
	}

	var ui userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return identity, fmt.Errorf("%w: %v", ErrUserinfoFailed, err)
	}

	subject := ui.Sub
	if subject == "" && len(ui.ID) > 0 {
		// Numeric IDs (GitHub) arrive as JSON numbers
		subject = strings.Trim(string(ui.ID), `"`)
		if _, err := strconv.ParseFloat(subject, 64); err != nil && subject == "null" {
			subject = ""
		}
	}

	username := ui.PreferredUsername
	if username == "" {
		username = ui.Login
	}
	if username == "" {
		username = ui.Username
	}

	return services.ExternalIdentity{
		Subject:  subject,
		Username: username,
		Email:    ui.Email,
		Name:     ui.Name,
	}, nil
}
