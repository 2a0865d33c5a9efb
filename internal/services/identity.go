// identity.go implements account registration, login, and bearer token
// management. Registration also creates the user's personal organization,
// named after the username, with the user as canonical owner.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agent-registry/agent-registry/internal/auth"
	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/db/repositories"
	"github.com/agent-registry/agent-registry/internal/validation"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// IdentityUserStore is the user persistence the identity service needs.
// CreateUserWithOrganization must create the user, their personal org, and
// the owner membership atomically.
type IdentityUserStore interface {
	CreateUserWithOrganization(ctx context.Context, user *models.User, org *models.Organization) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// IdentityOrgStore checks organization name availability at registration time.
type IdentityOrgStore interface {
	GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
}

// IdentityTokenStore is the token persistence the identity service needs.
type IdentityTokenStore interface {
	CreateToken(ctx context.Context, token *models.AuthToken) error
	ListTokensForUser(ctx context.Context, userID string) ([]*models.AuthToken, error)
	DeleteToken(ctx context.Context, tokenID, userID string) error
}

// IdentityService handles registration, login, and token lifecycle
type IdentityService struct {
	users  IdentityUserStore
	orgs   IdentityOrgStore
	tokens IdentityTokenStore
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(users IdentityUserStore, orgs IdentityOrgStore, tokens IdentityTokenStore) *IdentityService {
	return &IdentityService{users: users, orgs: orgs, tokens: tokens}
}

// Credentials is the result of a successful register or login: the user plus
// a freshly issued plaintext token. The plaintext is never retrievable again.
type Credentials struct {
	User  *models.User
	Token string
}

// Register creates a new account and its personal organization, then issues a
// bearer token. The username doubles as the personal organization's name, so
// it must satisfy organization naming rules and be free in both namespaces.
func (s *IdentityService) Register(ctx context.Context, email, username, password string) (*Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if err := validation.ValidateEmail(email); err != nil {
		return nil, BadRequest("%v", err)
	}
	if err := validation.ValidateOrgName(username); err != nil {
		return nil, BadRequest("invalid username: %v", err)
	}
	if len(password) < MinPasswordLength {
		return nil, BadRequest("password must be at least %d characters", MinPasswordLength)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, Internal(err, "failed to check email")
	}
	if existing != nil {
		return nil, Conflict("email already registered")
	}

	existing, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, Internal(err, "failed to check username")
	}
	if existing != nil {
		return nil, Conflict("username already taken")
	}

	org, err := s.orgs.GetOrganizationByName(ctx, username)
	if err != nil {
		return nil, Internal(err, "failed to check organization name")
	}
	if org != nil {
		return nil, Conflict("organization name already taken")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, Internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}
	personalOrg := &models.Organization{Name: username}

	// The pre-checks above are an optimization; the unique constraints are
	// the backstop. A registration that loses the insert race is a conflict,
	// not a server fault.
	if err := s.users.CreateUserWithOrganization(ctx, user, personalOrg); err != nil {
		if errors.Is(err, repositories.ErrIdentityTaken) {
			return nil, Conflict("email, username, or organization name already taken")
		}
		return nil, Internal(err, "failed to create user")
	}

	_, plaintext, err := s.issueToken(ctx, user.ID, "default", nil)
	if err != nil {
		return nil, err
	}

	return &Credentials{User: user, Token: plaintext}, nil
}

// Login verifies credentials and issues a new bearer token. The same message
// is returned for unknown email and wrong password so login cannot be used to
// probe which emails are registered.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, Internal(err, "failed to look up user")
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, Unauthorized("invalid email or password")
	}

	_, plaintext, err := s.issueToken(ctx, user.ID, "login", nil)
	if err != nil {
		return nil, err
	}

	return &Credentials{User: user, Token: plaintext}, nil
}

// CreateToken issues a named token for the user, optionally with an expiry.
func (s *IdentityService) CreateToken(ctx context.Context, userID, name string, expiresAt *time.Time) (*models.AuthToken, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", BadRequest("token name is required")
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, "", BadRequest("token expiry must be in the future")
	}

	return s.issueToken(ctx, userID, name, expiresAt)
}

// ListTokens returns the user's tokens. Hashes never leave the service layer.
func (s *IdentityService) ListTokens(ctx context.Context, userID string) ([]*models.AuthToken, error) {
	tokens, err := s.tokens.ListTokensForUser(ctx, userID)
	if err != nil {
		return nil, Internal(err, "failed to list tokens")
	}
	return tokens, nil
}

// DeleteToken revokes one of the user's tokens. A token owned by another user
// looks nonexistent, never forbidden.
func (s *IdentityService) DeleteToken(ctx context.Context, tokenID, userID string) error {
	if err := s.tokens.DeleteToken(ctx, tokenID, userID); err != nil {
		if errors.Is(err, repositories.ErrTokenNotFound) {
			return NotFound("token not found")
		}
		return Internal(err, "failed to delete token")
	}
	return nil
}

func (s *IdentityService) issueToken(ctx context.Context, userID, name string, expiresAt *time.Time) (*models.AuthToken, string, error) {
	plaintext, err := auth.GenerateToken()
	if err != nil {
		return nil, "", Internal(err, "failed to generate token")
	}

	token := &models.AuthToken{
		UserID:      userID,
		Name:        name,
		TokenHash:   auth.HashToken(plaintext),
		TokenPrefix: auth.DisplayPrefix(plaintext),
		ExpiresAt:   expiresAt,
	}
	if err := s.tokens.CreateToken(ctx, token); err != nil {
		return nil, "", Internal(err, "failed to store token")
	}

	return token, plaintext, nil
}
