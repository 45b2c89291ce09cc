package store

import (
	"errors"
	"time"

	"github.com/authhub/authhub/internal/models"

	"gorm.io/gorm"
)

// Access token operations. Only opaque tokens live here; signed JWT access
// tokens are never persisted.

func (s *Store) CreateAccessToken(token *models.AccessToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetAccessTokenByHash(hash string) (*models.AccessToken, error) {
	var t models.AccessToken
	if err := s.db.Where("token_hash = ?", hash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

// RevokeAccessToken marks the token revoked with a single conditional UPDATE.
// It reports whether this call performed the revocation; false means the
// token was already revoked. Revocation is idempotent, so callers treat both
// outcomes as success.
func (s *Store) RevokeAccessToken(id string) (bool, error) {
	res := s.db.Model(&models.AccessToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeleteExpiredAccessTokens() error {
	return s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.AccessToken{}).Error
}

// Refresh token operations

func (s *Store) CreateRefreshToken(token *models.RefreshToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetRefreshTokenByHash(hash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := s.db.Where("token_hash = ?", hash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

// RevokeRefreshToken marks the refresh token revoked; same conditional UPDATE
// contract as RevokeAccessToken.
func (s *Store) RevokeRefreshToken(id string) (bool, error) {
	res := s.db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RevokeRefreshTokensForAccessToken revokes all live refresh tokens that were
// minted alongside the given access token.
func (s *Store) RevokeRefreshTokensForAccessToken(accessTokenID string) error {
	return s.db.Model(&models.RefreshToken{}).
		Where("access_token_id = ? AND revoked_at IS NULL", accessTokenID).
		Update("revoked_at", time.Now()).Error
}

// TouchRefreshToken records a successful use of the refresh token.
func (s *Store) TouchRefreshToken(id string) error {
	return s.db.Model(&models.RefreshToken{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

func (s *Store) DeleteExpiredRefreshTokens() error {
	return s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.RefreshToken{}).Error
}

// CountActiveAccessTokens counts persisted access tokens that are neither
// revoked nor expired. Signed JWT tokens are invisible to this count.
func (s *Store) CountActiveAccessTokens() (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessToken{}).
		Where("revoked_at IS NULL AND expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}

// CountActiveRefreshTokens counts refresh tokens that are neither revoked nor
// expired.
func (s *Store) CountActiveRefreshTokens() (int64, error) {
	var count int64
	err := s.db.Model(&models.RefreshToken{}).
		Where("revoked_at IS NULL AND expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}
