package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/forkline-erp/forkline/internal/shared"
)

type fakeCredentials struct {
	creds map[int64]*Credential
}

func newFakeCredentials(t *testing.T, userID int64, pin string) *fakeCredentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	return &fakeCredentials{creds: map[int64]*Credential{
		userID: {UserID: userID, PINHash: string(hash)},
	}}
}

// WithTx mirrors the repository's rollback semantics: an error from the
// callback discards every write made inside it.
func (f *fakeCredentials) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]*Credential, len(f.creds))
	for id, cred := range f.creds {
		copied := *cred
		snapshot[id] = &copied
	}
	if err := fn(ctx, f); err != nil {
		f.creds = snapshot
		return err
	}
	return nil
}

func (f *fakeCredentials) GetCredentialForUpdate(ctx context.Context, userID int64) (Credential, error) {
	cred, ok := f.creds[userID]
	if !ok {
		return Credential{}, ErrPINNotConfigured
	}
	return *cred, nil
}

func (f *fakeCredentials) SetFailedAttempts(ctx context.Context, userID int64, attempts int, lockedUntil *time.Time) error {
	cred, ok := f.creds[userID]
	if !ok {
		return ErrPINNotConfigured
	}
	cred.FailedAttempts = attempts
	cred.LockedUntil = lockedUntil
	return nil
}

type attemptLog struct {
	entries []shared.AuditLog
}

func (l *attemptLog) Record(ctx context.Context, log shared.AuditLog) error {
	l.entries = append(l.entries, log)
	return nil
}

func TestVerifyPINSuccessResetsCounter(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	svc := NewService(repo, nil)

	require.ErrorIs(t, svc.VerifyPIN(context.Background(), 7, "0000", nil), ErrPINMismatch)
	require.Equal(t, 1, repo.creds[7].FailedAttempts)

	require.NoError(t, svc.VerifyPIN(context.Background(), 7, "4321", nil))
	require.Equal(t, 0, repo.creds[7].FailedAttempts)
	require.Nil(t, repo.creds[7].LockedUntil)
}

func TestVerifyPINLocksAfterFiveFailures(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	svc := NewService(repo, nil)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return base })

	for i := 0; i < MaxFailedAttempts; i++ {
		require.ErrorIs(t, svc.VerifyPIN(context.Background(), 7, "0000", nil), ErrPINMismatch)
	}
	require.NotNil(t, repo.creds[7].LockedUntil)
	require.Equal(t, base.Add(LockDuration), *repo.creds[7].LockedUntil)

	// Even the correct PIN is refused while the lock holds.
	require.ErrorIs(t, svc.VerifyPIN(context.Background(), 7, "4321", nil), ErrLocked)

	// After the window the correct PIN goes through and clears the state.
	svc.WithNow(func() time.Time { return base.Add(LockDuration + time.Second) })
	require.NoError(t, svc.VerifyPIN(context.Background(), 7, "4321", nil))
	require.Equal(t, 0, repo.creds[7].FailedAttempts)
	require.Nil(t, repo.creds[7].LockedUntil)
}

func TestVerifyPINMalformed(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	svc := NewService(repo, nil)

	for _, pin := range []string{"", "123", "12345", "12a4", "١٢٣٤"} {
		err := svc.VerifyPIN(context.Background(), 7, pin, nil)
		require.ErrorIs(t, err, shared.ErrValidation, "pin %q", pin)
	}
	// Malformed input never touches the failure counter.
	require.Equal(t, 0, repo.creds[7].FailedAttempts)
}

func TestVerifyPINMissingCredential(t *testing.T) {
	repo := &fakeCredentials{creds: map[int64]*Credential{}}
	svc := NewService(repo, nil)

	err := svc.VerifyPIN(context.Background(), 99, "1234", nil)
	require.ErrorIs(t, err, ErrPINNotConfigured)
}

func TestVerifyPINAuditsEveryAttempt(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	audit := &attemptLog{}
	svc := NewService(repo, audit)

	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 5, Name: "Pat"})
	require.Error(t, svc.VerifyPIN(ctx, 7, "0000", map[string]any{"supplier_id": int64(3)}))
	require.NoError(t, svc.VerifyPIN(ctx, 7, "4321", nil))

	require.Len(t, audit.entries, 2)
	require.Equal(t, shared.OutcomeFailure, audit.entries[0].Outcome)
	require.Equal(t, "pin.verify", audit.entries[0].Action)
	require.Equal(t, int64(3), audit.entries[0].Meta["supplier_id"])
	require.Equal(t, shared.OutcomeSuccess, audit.entries[1].Outcome)
	require.Equal(t, int64(5), audit.entries[1].ActorID)
}

func TestFailedAttemptCommitsDespiteMismatch(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	svc := NewService(repo, nil)

	// The mismatch error must not roll back the counter write; if it
	// did, no number of wrong PINs would ever lock the user.
	for i := 1; i <= MaxFailedAttempts; i++ {
		require.ErrorIs(t, svc.VerifyPIN(context.Background(), 7, "9999", nil), ErrPINMismatch)
		require.Equal(t, i, repo.creds[7].FailedAttempts)
	}
	require.NotNil(t, repo.creds[7].LockedUntil)
}

func TestFailureCountSurvivesWrongThenWrong(t *testing.T) {
	repo := newFakeCredentials(t, 7, "4321")
	svc := NewService(repo, nil)

	require.Error(t, svc.VerifyPIN(context.Background(), 7, "1111", nil))
	require.Error(t, svc.VerifyPIN(context.Background(), 7, "2222", nil))
	require.Equal(t, 2, repo.creds[7].FailedAttempts)
	require.Nil(t, repo.creds[7].LockedUntil)

	var forbidden error = svc.VerifyPIN(context.Background(), 7, "3333", nil)
	require.True(t, errors.Is(forbidden, shared.ErrForbidden))
	require.Equal(t, 3, repo.creds[7].FailedAttempts)
}
