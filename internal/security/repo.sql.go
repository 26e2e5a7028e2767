package security

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes the credential operations used in a verification.
type TxRepository interface {
	GetCredentialForUpdate(ctx context.Context, userID int64) (Credential, error)
	SetFailedAttempts(ctx context.Context, userID int64, attempts int, lockedUntil *time.Time) error
}

// Repository persists PIN credentials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a transaction. The credential row
// lock makes concurrent attempts against one user serialize.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("security repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepository) GetCredentialForUpdate(ctx context.Context, userID int64) (Credential, error) {
	var cred Credential
	err := r.tx.QueryRow(ctx, `SELECT user_id, pin_hash, failed_attempts, locked_until FROM pin_credentials WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&cred.UserID, &cred.PINHash, &cred.FailedAttempts, &cred.LockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrPINNotConfigured
		}
		return Credential{}, err
	}
	return cred, nil
}

func (r *txRepository) SetFailedAttempts(ctx context.Context, userID int64, attempts int, lockedUntil *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE pin_credentials SET failed_attempts=$1, locked_until=$2 WHERE user_id=$3`, attempts, lockedUntil, userID)
	return err
}
