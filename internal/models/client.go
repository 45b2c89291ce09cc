package models

import (
	"context"
	"database/sql/driver"
	"encoding/base32"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// OAuthClient is a registered OAuth 2.0 client application.
type OAuthClient struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"`
	ClientID     string      `gorm:"uniqueIndex;not null"`
	ClientSecret string      `gorm:"not null"` // bcrypt hashed secret
	ClientName   string      `gorm:"not null"`
	Description  string      `gorm:"type:text"`
	Scopes       string      `gorm:"not null"` // space-separated allowed scopes
	GrantTypes   string      `gorm:"not null;default:'authorization_code'"`
	RedirectURIs StringArray `gorm:"type:json"`
	Confidential bool        `gorm:"not null;default:true"`
	IsActive     bool        `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GenerateClientSecret generates a fresh client secret, stores its bcrypt hash
// on the model, and returns the plaintext for one-time display.
func (c *OAuthClient) GenerateClientSecret(ctx context.Context) (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	// Prefix makes the secret recognizable to code scanners.
	clientSecret := "ahs_" + base32Lower.EncodeToString(rBytes)

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	c.ClientSecret = string(hashedSecret)
	return clientSecret, nil
}

// ValidateClientSecret validates the given secret against the stored hash.
func (c *OAuthClient) ValidateClientSecret(secret []byte) bool {
	if len(c.ClientSecret) == 0 || len(secret) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), secret) == nil
}

// AllowsGrantType reports whether the client is permitted the given grant type.
func (c *OAuthClient) AllowsGrantType(grantType string) bool {
	for _, g := range strings.Fields(c.GrantTypes) {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
// No prefix or suffix tolerance.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// TableName overrides the table name used by OAuthClient to `oauth_clients`.
func (OAuthClient) TableName() string {
	return "oauth_clients"
}

// StringArray is a custom type for []string stored as JSON in the database.
type StringArray []string

// Scan implements sql.Scanner.
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
}

// Value implements driver.Valuer.
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}
