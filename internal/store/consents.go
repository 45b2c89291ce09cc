package store

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Consent operations

func (s *Store) GetUserConsent(userID, clientID string) (*models.UserConsent, error) {
	var consent models.UserConsent
	err := s.db.Where("user_id = ? AND client_id = ?", userID, clientID).
		First(&consent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &consent, nil
}

// UpsertUserConsent records the user's approval of the given scopes for the
// client. An ON CONFLICT DO NOTHING seed collapses concurrent first-time
// grants to one row, and the merge reads that row with FOR UPDATE, so two
// concurrent grants never lose each other's scopes (under READ COMMITTED a
// plain read would let the later write drop the other's merge).
func (s *Store) UpsertUserConsent(userID, clientID string, scopes []string) (*models.UserConsent, error) {
	var consent models.UserConsent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		seed := models.UserConsent{
			UUID:      uuid.New().String(),
			UserID:    userID,
			ClientID:  clientID,
			Scopes:    "",
			GrantedAt: time.Now(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "client_id"}},
			DoNothing: true,
		}).Create(&seed).Error
		if err != nil {
			return err
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND client_id = ?", userID, clientID).
			First(&consent).Error
		if err != nil {
			return err
		}
		consent.Scopes = unionScopes(consent.Scopes, scopes)
		return tx.Save(&consent).Error
	})
	if err != nil {
		return nil, err
	}
	return &consent, nil
}

func (s *Store) DeleteUserConsent(userID, clientID string) error {
	return s.db.Where("user_id = ? AND client_id = ?", userID, clientID).
		Delete(&models.UserConsent{}).Error
}

// unionScopes merges the new scopes into the stored space-separated set.
// Output is sorted so the column stays deterministic across merges.
func unionScopes(stored string, added []string) string {
	seen := make(map[string]struct{})
	for _, s := range strings.Fields(stored) {
		seen[s] = struct{}{}
	}
	for _, s := range added {
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	merged := make([]string, 0, len(seen))
	for s := range seen {
		merged = append(merged, s)
	}
	sort.Strings(merged)
	return strings.Join(merged, " ")
}
