package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quickfood/quickfood-backend/internal/shared"
)

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Service handles account business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new active account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user := User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(in.Email),
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
	}
	return s.repo.Create(ctx, user)
}

// Get fetches an account by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile updates the caller's mutable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName, phone string) (User, error) {
	return s.repo.UpdateProfile(ctx, id, firstName, lastName, phone)
}

// ChangePassword verifies the current password before re-hashing and storing
// the new one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return shared.ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// Deactivate disables an account. Outstanding tokens keep verifying until
// they expire, but validation re-resolves the account and rejects disabled
// subjects, so the lockout takes effect on the next request.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}
