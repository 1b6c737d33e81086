package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. The same error covers a
	// missing user, a wrong password and a disabled account so the login
	// response cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the subject account has been deactivated.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrUserNotFound indicates a token subject that no longer resolves.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenExpired indicates a token past its expiry instant.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenMalformed indicates an unparseable or tampered token.
	ErrTokenMalformed = errors.New("token is malformed")
	// ErrWrongTokenKind indicates a token presented for the wrong use.
	ErrWrongTokenKind = errors.New("wrong token kind")
	// ErrRefreshInvalid indicates the refresh leg of a transparent refresh failed.
	ErrRefreshInvalid = errors.New("refresh token is invalid or expired")
	// ErrPermissionDenied indicates the caller's role grants no access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrWrongPassword indicates a password change with an incorrect current
	// password. Distinct from ErrInvalidCredentials: the caller is already
	// authenticated, so the response may be specific.
	ErrWrongPassword = errors.New("the old password is incorrect")
	// ErrEmailTaken indicates a registration with an already used email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNoActiveRole indicates the user has no active role assignment.
	ErrNoActiveRole = errors.New("no active role")
)
