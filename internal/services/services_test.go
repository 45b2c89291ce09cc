package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/keys"
	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	store   *store.Store
	config  *config.Config
	signer  *token.Signer
	authSvc *AuthorizationService
	tokens  *TokenService
	users   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                "https://auth.example.com",
		AuthCodeExpiration:     5 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 30 * 24 * time.Hour,
		IDTokenExpiration:      15 * time.Minute,
	}

	kc, err := keys.Load(filepath.Join(t.TempDir(), "signing.pem"))
	require.NoError(t, err)
	signer := token.NewSigner(kc, cfg.BaseURL)

	authSvc := NewAuthorizationService(s, cfg)
	return &testEnv{
		store:   s,
		config:  cfg,
		signer:  signer,
		authSvc: authSvc,
		tokens:  NewTokenService(s, cfg, signer, authSvc),
		users:   NewUserService(s),
	}
}

func (e *testEnv) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{
		UUID:         uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		FullName:     "Test " + username,
	}
	require.NoError(t, e.store.CreateUser(user))
	return user
}

// createClient registers a confidential client and returns it with the
// plaintext secret.
func (e *testEnv) createClient(t *testing.T, confidential bool) (*models.OAuthClient, string) {
	t.Helper()
	client := &models.OAuthClient{
		ClientID:     uuid.New().String(),
		ClientName:   "Test App",
		Scopes:       "openid profile email offline_access read write",
		GrantTypes:   "authorization_code refresh_token client_credentials",
		RedirectURIs: models.StringArray{"https://app.example.com/callback"},
		Confidential: confidential,
		IsActive:     true,
	}
	secret := ""
	if confidential {
		var err error
		secret, err = client.GenerateClientSecret(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, e.store.CreateClient(client))
	return client, secret
}
