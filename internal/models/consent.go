package models

import "time"

// UserConsent records a user's approval of a client's requested scopes.
// There is at most one record per (UserID, ClientID) pair; re-granting merges
// the new scopes into the existing set and never shrinks it.
type UserConsent struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"`

	UserID   string `gorm:"not null;uniqueIndex:idx_user_client"`
	ClientID string `gorm:"not null;uniqueIndex:idx_user_client"`

	Scopes    string `gorm:"not null"`
	GrantedAt time.Time
	UpdatedAt time.Time
}

func (UserConsent) TableName() string {
	return "user_consents"
}
