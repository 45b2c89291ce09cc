package store

import (
	"log"

	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// sqlite allows a single writer; one pooled connection avoids
		// SQLITE_BUSY under concurrent writes and keeps :memory: databases
		// on one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.OAuthClient{},
		&models.AuthorizationCode{},
		&models.AccessToken{},
		&models.RefreshToken{},
		&models.UserConsent{},
		&models.AuthProvider{},
		&models.FederatedIdentity{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// SeedDefaults creates the default admin user on a fresh database.
// When adminPassword is empty a random one is generated and printed once.
func (s *Store) SeedDefaults(adminPassword string) error {
	var userCount int64
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount > 0 {
		return nil
	}

	generated := false
	if adminPassword == "" {
		random, err := util.CryptoRandomHex(16)
		if err != nil {
			return err
		}
		adminPassword = random
		generated = true
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{
		UUID:         uuid.New().String(),
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: string(hash),
		FullName:     "Administrator",
	}
	if err := s.db.Create(user).Error; err != nil {
		return err
	}
	if generated {
		log.Printf("[Store] Created default user: admin / %s", adminPassword)
	} else {
		log.Printf("[Store] Created default user: admin")
	}
	return nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
