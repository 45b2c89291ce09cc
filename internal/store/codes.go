package store

import (
	"errors"
	"time"

	"github.com/authhub/authhub/internal/models"

	"gorm.io/gorm"
)

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

// GetAuthorizationCodeByHash looks up a code by the SHA-256 hash of its
// plaintext value.
func (s *Store) GetAuthorizationCodeByHash(hash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", hash).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &code, nil
}

// MarkAuthorizationCodeUsed consumes a code with a single conditional UPDATE.
// Exactly one of any number of concurrent exchanges wins; the losers get
// ErrCodeAlreadyUsed.
func (s *Store) MarkAuthorizationCodeUsed(id uint) error {
	res := s.db.Model(&models.AuthorizationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes() error {
	return s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.AuthorizationCode{}).Error
}
