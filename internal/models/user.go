package models

import "time"

// User is the local account record. AuthHub treats user management as the
// surrounding application's concern; this core reads users, links federated
// identities to them, and auto-registers accounts on first federated login.
//
// Other tables reference users by UUID, never by the numeric row id.
type User struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"`

	Username string `gorm:"uniqueIndex;not null"`
	Email    string `gorm:"uniqueIndex;not null"`

	// Bcrypt hash. Auto-registered federated users get a random password
	// they can never type, so the account is federated-only until reset.
	PasswordHash string

	FullName string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}
