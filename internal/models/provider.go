package models

import "time"

// Issuer policy constants for external ID-token validation.
const (
	IssuerPolicyStrict  = "strict"  // issuer mismatch fails the login
	IssuerPolicyLenient = "lenient" // mismatch is logged and tolerated
)

// User match field constants for linking federated accounts to local ones.
const (
	MatchFieldEmail    = "email"
	MatchFieldUsername = "username"
)

// AuthProvider is a registered external identity provider (OIDC or plain
// OAuth2). Slug is the public routing key used in /auth/:provider paths.
type AuthProvider struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Slug        string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`

	// Issuer is used both for endpoint discovery and for loose issuer-match
	// validation of returned ID tokens.
	Issuer       string
	ClientID     string `gorm:"not null"`
	ClientSecret string `gorm:"not null"`
	Scopes       string `gorm:"not null;default:'openid profile email'"`

	// Statically configured endpoints. When set they take precedence over
	// discovery; they also serve as the fallback when discovery fails.
	AuthorizeURL string
	TokenURL     string
	UserinfoURL  string
	JWKSURL      string

	// Accept header quirk: some providers (GitHub) return form-encoded token
	// responses unless asked for JSON explicitly.
	RequireAcceptJSON bool `gorm:"not null;default:false"`

	UserMatchField string `gorm:"not null;default:'email'"` // "email" or "username"
	AutoRegister   bool   `gorm:"not null;default:true"`
	AutoLaunch     bool   `gorm:"not null;default:false"`
	IssuerPolicy   string `gorm:"not null;default:'lenient'"` // "strict" or "lenient"

	Enabled   bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOIDC reports whether the provider supports OIDC discovery.
func (p *AuthProvider) IsOIDC() bool {
	return p.Issuer != ""
}

func (AuthProvider) TableName() string {
	return "auth_providers"
}

// FederatedIdentity links a local user to a (provider, subject) pair from an
// external IdP. The first successful login for a pair creates this link
// permanently; it is the canonical login key thereafter, taking precedence
// over email/username matching.
type FederatedIdentity struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ProviderSlug string `gorm:"not null;uniqueIndex:idx_provider_subject"`
	Subject      string `gorm:"not null;uniqueIndex:idx_provider_subject"`
	UserID       string `gorm:"not null;index"`

	// Snapshot for display/audit; not used for login resolution.
	Username string
	Email    string

	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (FederatedIdentity) TableName() string {
	return "federated_identities"
}
