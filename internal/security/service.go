package security

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/forkline-erp/forkline/internal/shared"
)

// RepositoryPort describes credential storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records every verification attempt.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service verifies payment PINs and enforces the lockout policy.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// VerifyPIN checks the 4-digit PIN for the user. A lock is a hard
// failure regardless of the supplied PIN; the 5th consecutive mismatch
// sets the lock; success resets the counter. Every attempt is written
// to the action log, independent of the lockout state.
//
// The mismatch outcome is carried outside the transaction callback: the
// counter increment and the locked_until stamp must commit even though
// the verification itself fails.
func (s *Service) VerifyPIN(ctx context.Context, userID int64, pin string, meta map[string]any) error {
	if !validPIN(pin) {
		s.logAttempt(ctx, userID, shared.OutcomeFailure, "malformed pin", meta)
		return fmt.Errorf("%w: PIN must be 4 digits", shared.ErrValidation)
	}
	now := s.now()
	var verifyErr error
	txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cred, err := tx.GetCredentialForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if cred.Locked(now) {
			verifyErr = ErrLocked
			return nil
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cred.PINHash), []byte(pin)); err != nil {
			attempts := cred.FailedAttempts + 1
			var lockedUntil *time.Time
			if attempts >= MaxFailedAttempts {
				until := now.Add(LockDuration)
				lockedUntil = &until
			}
			if err := tx.SetFailedAttempts(ctx, userID, attempts, lockedUntil); err != nil {
				return err
			}
			verifyErr = ErrPINMismatch
			return nil
		}
		return tx.SetFailedAttempts(ctx, userID, 0, nil)
	})
	if txErr != nil {
		verifyErr = txErr
	}
	outcome := shared.OutcomeSuccess
	detail := ""
	if verifyErr != nil {
		outcome = shared.OutcomeFailure
		detail = shared.UserSafeMessage(verifyErr)
	}
	s.logAttempt(ctx, userID, outcome, detail, meta)
	return verifyErr
}

func (s *Service) logAttempt(ctx context.Context, userID int64, outcome, detail string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.IdentityFromContext(ctx)
	merged := map[string]any{}
	for k, v := range meta {
		merged[k] = v
	}
	if detail != "" {
		merged["detail"] = detail
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    "pin.verify",
		Entity:    "pin_credential",
		EntityID:  fmt.Sprintf("%d", userID),
		Outcome:   outcome,
		Meta:      merged,
		At:        s.now(),
	})
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
