package models

import "time"

// AccessToken is the store-backed, opaque access-token representation.
// Signed (JWT) access tokens are never persisted: the two representations are
// mutually exclusive, chosen by the presence of the openid scope at issuance.
// A signed token is therefore non-revocable and invisible to introspection.
type AccessToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(opaque token)
	RawToken  string `gorm:"-"`                    // In-memory only; never persisted
	TokenType string `gorm:"not null;default:'Bearer'"`
	ClientID  string `gorm:"not null;index"`
	UserID    string `gorm:"index"` // empty for client_credentials tokens
	Scopes    string `gorm:"not null"`
	ExpiresAt time.Time
	RevokedAt *time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *AccessToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token is neither revoked nor expired.
func (t *AccessToken) IsActive() bool {
	return !t.IsRevoked() && !t.IsExpired()
}

func (AccessToken) TableName() string {
	return "access_tokens"
}

// RefreshToken is a long-lived credential used to obtain new access tokens.
// Issued only when the client supports the refresh_token grant and the
// offline_access scope was granted. Refresh does not rotate the token.
type RefreshToken struct {
	ID            string `gorm:"primaryKey"`
	TokenHash     string `gorm:"uniqueIndex;not null"`
	RawToken      string `gorm:"-"` // In-memory only; never persisted
	AccessTokenID string `gorm:"index"`
	ClientID      string `gorm:"not null;index"`
	UserID        string `gorm:"not null;index"`
	Scopes        string `gorm:"not null"`
	ExpiresAt     time.Time
	RevokedAt     *time.Time `gorm:"index"`
	LastUsedAt    *time.Time
	CreatedAt     time.Time
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsActive() bool {
	return !t.IsRevoked() && !t.IsExpired()
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
