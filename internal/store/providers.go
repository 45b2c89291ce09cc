package store

import (
	"errors"
	"time"

	"github.com/authhub/authhub/internal/models"

	"gorm.io/gorm"
)

// Auth provider operations

func (s *Store) GetProviderBySlug(slug string) (*models.AuthProvider, error) {
	var provider models.AuthProvider
	if err := s.db.Where("slug = ?", slug).First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &provider, nil
}

func (s *Store) ListEnabledProviders() ([]models.AuthProvider, error) {
	var providers []models.AuthProvider
	err := s.db.Where("enabled = ?", true).Order("slug").Find(&providers).Error
	return providers, err
}

func (s *Store) CreateProvider(provider *models.AuthProvider) error {
	return s.db.Create(provider).Error
}

func (s *Store) UpdateProvider(provider *models.AuthProvider) error {
	return s.db.Save(provider).Error
}

// Federated identity operations

// GetFederatedIdentity looks up the canonical (provider, subject) -> user
// link.
func (s *Store) GetFederatedIdentity(providerSlug, subject string) (*models.FederatedIdentity, error) {
	var identity models.FederatedIdentity
	err := s.db.Where("provider_slug = ? AND subject = ?", providerSlug, subject).
		First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &identity, nil
}

func (s *Store) CreateFederatedIdentity(identity *models.FederatedIdentity) error {
	return s.db.Create(identity).Error
}

// TouchFederatedIdentity refreshes the identity's profile snapshot and login
// timestamp after a successful federated callback.
func (s *Store) TouchFederatedIdentity(id uint, username, email string) error {
	return s.db.Model(&models.FederatedIdentity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"username":      username,
			"email":         email,
			"last_login_at": time.Now(),
		}).Error
}

func (s *Store) ListFederatedIdentitiesByUser(userID string) ([]models.FederatedIdentity, error) {
	var identities []models.FederatedIdentity
	err := s.db.Where("user_id = ?", userID).
		Order("provider_slug").Find(&identities).Error
	return identities, err
}
