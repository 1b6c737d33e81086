package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// User represents a platform account. Accounts are never hard-deleted;
// administrative deactivation flips IsActive off.
type User struct {
	ID              uuid.UUID
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	Phone           string
	IsActive        bool
	IsEmailVerified bool
	IsPhoneVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FullName returns the user's display name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

var emailFolder = cases.Fold()

// NormalizeEmail lowercases an address with Unicode case folding so email
// uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}
