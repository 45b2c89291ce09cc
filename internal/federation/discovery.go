package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/models"
)

// DiscoveryDocument is the subset of OIDC provider metadata the broker needs.
// Field names follow the wire format so the document can be cached as-is.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Endpoints is the resolved set of provider endpoints a login attempt runs
// against: statically configured values merged over discovered ones.
type Endpoints struct {
	Issuer       string
	AuthorizeURL string
	TokenURL     string
	UserinfoURL  string
	JWKSURL      string
}

var ErrEndpointsUnresolved = errors.New("provider endpoints could not be resolved")

// Resolver turns an AuthProvider registration into concrete endpoints,
// running OIDC discovery with a short-TTL cache when the registration is
// issuer-based.
type Resolver struct {
	cache  cache.Cache[DiscoveryDocument]
	client *http.Client
	ttl    time.Duration
}

func NewResolver(c cache.Cache[DiscoveryDocument], client *http.Client, ttl time.Duration) *Resolver {
	return &Resolver{cache: c, client: client, ttl: ttl}
}

// Resolve returns the endpoints for a provider. Static configuration takes
// precedence over discovery; when discovery fails, statically configured
// endpoints serve as the fallback.
func (r *Resolver) Resolve(ctx context.Context, provider *models.AuthProvider) (*Endpoints, error) {
	static := &Endpoints{
		Issuer:       provider.Issuer,
		AuthorizeURL: provider.AuthorizeURL,
		TokenURL:     provider.TokenURL,
		UserinfoURL:  provider.UserinfoURL,
		JWKSURL:      provider.JWKSURL,
	}

	if !provider.IsOIDC() {
		if static.AuthorizeURL == "" || static.TokenURL == "" {
			return nil, fmt.Errorf("%w: provider %s has no issuer and incomplete static endpoints",
				ErrEndpointsUnresolved, provider.Slug)
		}
		return static, nil
	}

	doc, err := cache.GetWithFetch(ctx, r.cache, provider.Issuer, r.ttl, r.fetchDocument)
	if err != nil {
		// Transient discovery failure: degrade to static configuration
		if static.AuthorizeURL != "" && static.TokenURL != "" {
			log.Printf("[Federation] Discovery failed for %s, using static endpoints: %v",
				provider.Slug, err)
			return static, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrEndpointsUnresolved, err)
	}

	resolved := &Endpoints{
		Issuer:       doc.Issuer,
		AuthorizeURL: doc.AuthorizationEndpoint,
		TokenURL:     doc.TokenEndpoint,
		UserinfoURL:  doc.UserinfoEndpoint,
		JWKSURL:      doc.JWKSURI,
	}
	// Static values win over discovered ones
	if static.AuthorizeURL != "" {
		resolved.AuthorizeURL = static.AuthorizeURL
	}
	if static.TokenURL != "" {
		resolved.TokenURL = static.TokenURL
	}
	if static.UserinfoURL != "" {
		resolved.UserinfoURL = static.UserinfoURL
	}
	if static.JWKSURL != "" {
		resolved.JWKSURL = static.JWKSURL
	}
	if resolved.Issuer == "" {
		resolved.Issuer = provider.Issuer
	}

	if resolved.AuthorizeURL == "" || resolved.TokenURL == "" {
		return nil, fmt.Errorf("%w: discovery document for %s lacks core endpoints",
			ErrEndpointsUnresolved, provider.Slug)
	}
	return resolved, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, issuer string) (DiscoveryDocument, error) {
	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return DiscoveryDocument{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return DiscoveryDocument{}, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DiscoveryDocument{}, fmt.Errorf("discovery endpoint returned %s", resp.Status)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return DiscoveryDocument{}, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return doc, nil
}
