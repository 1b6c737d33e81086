package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quickfood/quickfood-backend/internal/shared"
	"github.com/quickfood/quickfood-backend/internal/token"
	"github.com/quickfood/quickfood-backend/internal/users"
)

// CredentialStore is the slice of the user store the service needs.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (users.User, error)
}

// RoleResolver reports a user's current active role name, empty when none.
type RoleResolver interface {
	ActiveRoleName(ctx context.Context, userID uuid.UUID) (string, error)
}

// TokenPair is the credential pair minted at login. Role is the snapshot
// embedded in the access token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Role         string
}

// Service wraps authentication business rules.
type Service struct {
	store      CredentialStore
	roles      RoleResolver
	codec      *token.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService constructs a new Service.
func NewService(store CredentialStore, roles RoleResolver, codec *token.Codec, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{store: store, roles: roles, codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Authenticate validates email/password credentials. Every failure surfaces
// as ErrInvalidCredentials: a missing account, a wrong password and a
// disabled account are indistinguishable to the caller. The disabled check
// runs after credential verification so timing does not leak existence
// either.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// MintPair mints the access+refresh pair. The access token embeds the user's
// current active role name; the refresh token carries only the subject.
// Either both tokens are produced or neither.
func (s *Service) MintPair(ctx context.Context, user users.User) (TokenPair, error) {
	role, err := s.roles.ActiveRoleName(ctx, user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: resolve role snapshot: %w", err)
	}
	access, err := s.codec.Encode(user.ID, role, token.KindAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Encode(user.ID, "", token.KindRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, Role: role}, nil
}

// MintAccess mints a single access token. Used on the refresh path, which
// does not rotate the refresh token.
func (s *Service) MintAccess(ctx context.Context, user users.User) (string, error) {
	role, err := s.roles.ActiveRoleName(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("auth: resolve role snapshot: %w", err)
	}
	return s.codec.Encode(user.ID, role, token.KindAccess, s.accessTTL)
}

// ValidateToken decodes the token and re-resolves its subject. A successful
// decode does not imply the user still exists or is still active.
func (s *Service) ValidateToken(ctx context.Context, tokenString string, kind token.Kind) (users.User, *token.Claims, error) {
	claims, err := s.codec.Decode(tokenString, kind)
	if err != nil {
		return users.User{}, nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return users.User{}, nil, shared.ErrTokenMalformed
	}
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return users.User{}, nil, shared.ErrUserNotFound
	}
	if !user.IsActive {
		return users.User{}, nil, shared.ErrAccountDisabled
	}
	return user, claims, nil
}

// CurrentRole re-resolves the user's active role name from the role store.
func (s *Service) CurrentRole(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.roles.ActiveRoleName(ctx, userID)
}

// AccessTTL exposes the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }
