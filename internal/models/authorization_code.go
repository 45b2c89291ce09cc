package models

import "time"

// AuthorizationCode stores OAuth 2.0 authorization codes (RFC 6749).
// Codes are short-lived and single-use; only the SHA-256 hash of the
// plaintext code is persisted.
type AuthorizationCode struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"`

	CodeHash string `gorm:"uniqueIndex;not null"` // SHA256(plainCode)

	ClientID string `gorm:"not null;index"`
	UserID   string `gorm:"not null;index"`

	// Pinned at issuance, re-checked at exchange.
	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"`

	// PKCE (RFC 7636)
	CodeChallenge       string `gorm:"default:''"` // empty = PKCE not used
	CodeChallengeMethod string `gorm:"default:''"` // "S256" or "plain"

	// OIDC nonce, echoed into the ID token.
	Nonce string `gorm:"default:''"`

	ExpiresAt time.Time
	UsedAt    *time.Time // Set atomically upon exchange; prevents replay
	CreatedAt time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
