package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/authhub/authhub/internal/models"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationDisabled = errors.New("auto-registration disabled for provider")
)

// ExternalIdentity is the canonical triple extracted from a federated login,
// regardless of whether it came from an ID token or a UserInfo response.
type ExternalIdentity struct {
	Subject  string
	Username string
	Email    string
	Name     string
}

// UserService owns local credential checks and the mapping of federated
// identities onto local user accounts.
type UserService struct {
	store *store.Store
}

func NewUserService(s *store.Store) *UserService {
	return &UserService{store: s}
}

// Authenticate verifies a local username/password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		// Burn a comparison anyway so missing and wrong-password cases cost
		// the same.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMye.IjefuPkM.yYtmW/kCYmVrWTImuMLVa"),
			[]byte(password))
		return nil, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		// Federated-only account; no password login possible
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetUserByUUID(id string) (*models.User, error) {
	user, err := s.store.GetUserByUUID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ResolveFederatedUser maps an external identity onto a local user.
// Resolution order: existing FederatedIdentity link, then match by the
// provider's configured field, then auto-registration when enabled. The
// (provider, subject) link created here is permanent and takes precedence
// over email/username matching on every later login.
func (s *UserService) ResolveFederatedUser(
	ctx context.Context,
	provider *models.AuthProvider,
	identity ExternalIdentity,
) (*models.User, error) {
	if link, err := s.store.GetFederatedIdentity(provider.Slug, identity.Subject); err == nil {
		user, err := s.store.GetUserByUUID(link.UserID)
		if err != nil {
			return nil, fmt.Errorf("federated identity points at missing user %s: %w", link.UserID, err)
		}
		if err := s.store.TouchFederatedIdentity(link.ID, identity.Username, identity.Email); err != nil {
			log.Printf("[UserService] Failed to update federated identity %d: %v", link.ID, err)
		}
		return user, nil
	}

	// No link yet: try to match an existing local account
	user, err := s.matchLocalUser(provider, identity)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	if user == nil {
		if !provider.AutoRegister {
			return nil, ErrRegistrationDisabled
		}
		user, err = s.registerFederatedUser(ctx, provider, identity)
		if err != nil {
			return nil, err
		}
	}

	link := &models.FederatedIdentity{
		ProviderSlug: provider.Slug,
		Subject:      identity.Subject,
		UserID:       user.UUID,
		Username:     identity.Username,
		Email:        identity.Email,
	}
	if err := s.store.CreateFederatedIdentity(link); err != nil {
		return nil, fmt.Errorf("failed to link federated identity: %w", err)
	}
	if err := s.store.TouchFederatedIdentity(link.ID, identity.Username, identity.Email); err != nil {
		log.Printf("[UserService] Failed to stamp federated login: %v", err)
	}
	return user, nil
}

func (s *UserService) matchLocalUser(
	provider *models.AuthProvider,
	identity ExternalIdentity,
) (*models.User, error) {
	switch provider.UserMatchField {
	case models.MatchFieldUsername:
		if identity.Username == "" {
			return nil, store.ErrRecordNotFound
		}
		return s.store.GetUserByUsername(identity.Username)
	default:
		if identity.Email == "" {
			return nil, store.ErrRecordNotFound
		}
		return s.store.GetUserByEmail(identity.Email)
	}
}

// registerFederatedUser creates a local account for a first-time federated
// login. The password hash is random and non-recoverable: the account can
// only ever log in through the provider.
func (s *UserService) registerFederatedUser(
	ctx context.Context,
	provider *models.AuthProvider,
	identity ExternalIdentity,
) (*models.User, error) {
	username := deriveUsername(identity)

	taken, err := s.store.UsernameTaken(username)
	if err != nil {
		return nil, err
	}
	if taken {
		// One retry with a short random suffix
		suffix, err := util.CryptoRandomHex(4)
		if err != nil {
			return nil, err
		}
		username = username + "-" + suffix
	}

	randomSecret, err := util.CryptoRandomHex(32)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(randomSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	email := identity.Email
	if email == "" {
		// Unique placeholder; the column is unique and not null
		email = username + "@" + provider.Slug + ".invalid"
	}

	user := &models.User{
		UUID:         uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     identity.Name,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to auto-register user: %w", err)
	}
	log.Printf("[UserService] Auto-registered user %s via provider %s", username, provider.Slug)
	return user, nil
}

// deriveUsername picks a username for auto-registration: the provider's
// username, else the email local-part, else a subject-derived name.
func deriveUsername(identity ExternalIdentity) string {
	if identity.Username != "" {
		return identity.Username
	}
	if identity.Email != "" {
		if at := strings.Index(identity.Email, "@"); at > 0 {
			return identity.Email[:at]
		}
	}
	sub := identity.Subject
	if len(sub) > 12 {
		sub = sub[:12]
	}
	return "user-" + sub
}
