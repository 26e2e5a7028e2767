package security

import (
	"fmt"
	"time"

	"github.com/forkline-erp/forkline/internal/shared"
)

// Lockout policy for PIN verification.
const (
	// MaxFailedAttempts is the number of consecutive failures before a lock.
	MaxFailedAttempts = 5
	// LockDuration is how long a locked user must wait.
	LockDuration = 15 * time.Minute
)

// Credential is the stored PIN verifier for one user.
type Credential struct {
	UserID         int64
	PINHash        string
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether the credential is locked at the given instant.
func (c Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// Verification failures.
var (
	// ErrPINMismatch indicates the supplied PIN did not match.
	ErrPINMismatch = fmt.Errorf("%w: incorrect PIN", shared.ErrForbidden)
	// ErrLocked indicates the user is in the lockout window.
	ErrLocked = fmt.Errorf("%w: too many failed PIN attempts, try again later", shared.ErrForbidden)
	// ErrPINNotConfigured indicates the user has no PIN set up.
	ErrPINNotConfigured = fmt.Errorf("%w: PIN not configured", shared.ErrValidation)
)
