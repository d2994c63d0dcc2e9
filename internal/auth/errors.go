package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// User-safe failures. These are the only errors the HTTP layer maps to
// responses; anything else is an internal error and stays opaque.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountInactive      = errors.New("account is not active")
	ErrEmailTaken           = errors.New("email already registered")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrWeakPassword         = errors.New("password must contain at least 8 characters, including uppercase, lowercase, number, and special character")
	ErrPasswordMismatch     = errors.New("password confirmation does not match")
	ErrSamePassword         = errors.New("new password must be different from current password")
	ErrMissingToken         = errors.New("access token is required")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrRevokedToken         = errors.New("token has been revoked")
	ErrForbidden            = errors.New("insufficient privileges")
)

// ErrAccountLocked reports a lockout with the remaining wait. The wait is
// operationally necessary information, not a sensitive leak.
type ErrAccountLocked struct {
	UnlockIn int64 // seconds
}

func (e ErrAccountLocked) Error() string {
	minutes := int64(math.Ceil(float64(e.UnlockIn) / 60))
	return fmt.Sprintf("account is locked, try again in %d minutes", minutes)
}

// RetryAfter returns the lock remainder as a duration, never below a second.
func (e ErrAccountLocked) RetryAfter() time.Duration {
	if e.UnlockIn < 1 {
		return time.Second
	}
	return time.Duration(e.UnlockIn) * time.Second
}
