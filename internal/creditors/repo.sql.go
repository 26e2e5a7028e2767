package creditors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/shared"
)

// RecordEntryTx appends one ledger entry inside the caller's
// transaction. The supplier row is locked first so the read-balance /
// write-entry pair serializes per supplier; the stored balance is
// prev + credit - debit.
func RecordEntryTx(ctx context.Context, tx pgx.Tx, e Entry) (Entry, error) {
	var supplierID int64
	err := tx.QueryRow(ctx, `SELECT id FROM suppliers WHERE id=$1 FOR UPDATE`, e.SupplierID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, e.SupplierID)
		}
		return Entry{}, err
	}

	prev, err := latestBalanceTx(ctx, tx, e.OutletID, e.SupplierID)
	if err != nil {
		return Entry{}, err
	}
	e.Balance = prev + e.Credit - e.Debit
	if e.Date.IsZero() {
		e.Date = time.Now()
	}

	err = tx.QueryRow(ctx, `INSERT INTO creditor_ledger_entries
  (outlet_id, supplier_id, entry_date, particulars, ref_type, ref_id, debit, credit, balance,
   payment_method, paid_by_id, paid_by_name, pin_verified, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
RETURNING id, created_at`,
		e.OutletID, e.SupplierID, e.Date, e.Particulars, e.RefType, nullInt(e.RefID),
		e.Debit, e.Credit, e.Balance,
		e.PaymentMethod, nullInt(e.PaidByID), e.PaidByName, e.PINVerified, e.Notes).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func latestBalanceTx(ctx context.Context, tx pgx.Tx, outletID, supplierID int64) (float64, error) {
	var balance float64
	err := tx.QueryRow(ctx, `SELECT balance FROM creditor_ledger_entries
WHERE outlet_id=$1 AND supplier_id=$2
ORDER BY id DESC LIMIT 1`, outletID, supplierID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// TxRepository groups transactional ledger operations.
type TxRepository interface {
	Record(ctx context.Context, e Entry) (Entry, error)
	CurrentBalance(ctx context.Context, outletID, supplierID int64) (float64, error)
	LockSupplier(ctx context.Context, supplierID int64) error
}

// Repository persists the creditor ledger in PostgreSQL.
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

func (r *txRepository) Record(ctx context.Context, e Entry) (Entry, error) {
	return RecordEntryTx(ctx, r.tx, e)
}

func (r *txRepository) CurrentBalance(ctx context.Context, outletID, supplierID int64) (float64, error) {
	return latestBalanceTx(ctx, r.tx, outletID, supplierID)
}

func (r *txRepository) LockSupplier(ctx context.Context, supplierID int64) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM suppliers WHERE id=$1 FOR UPDATE`, supplierID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: supplier %d", shared.ErrNotFound, supplierID)
	}
	return err
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("creditors repository not initialised")
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

const selectEntry = `SELECT id, outlet_id, supplier_id, entry_date, particulars,
  COALESCE(ref_type, ''), COALESCE(ref_id, 0), debit, credit, balance,
  COALESCE(payment_method, ''), COALESCE(paid_by_id, 0), COALESCE(paid_by_name, ''),
  pin_verified, COALESCE(notes, ''), created_at
FROM creditor_ledger_entries`

// ListEntries reads the ledger for one supplier at an outlet, oldest
// first so the running balance reads naturally.
func (r *Repository) ListEntries(ctx context.Context, outletID, supplierID int64, filter LedgerFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, selectEntry+`
WHERE outlet_id=$1 AND supplier_id=$2
  AND entry_date BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY id
LIMIT $5`, outletID, supplierID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BalanceSummaries reads the latest stored balance per supplier at an
// outlet.
func (r *Repository) BalanceSummaries(ctx context.Context, outletID int64) ([]BalanceSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (e.supplier_id) e.supplier_id, s.name, e.balance
FROM creditor_ledger_entries e
JOIN suppliers s ON s.id = e.supplier_id
WHERE e.outlet_id=$1
ORDER BY e.supplier_id, e.id DESC`, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := []BalanceSummary{}
	for rows.Next() {
		var s BalanceSummary
		if err := rows.Scan(&s.SupplierID, &s.SupplierName, &s.Balance); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ManagerIDs resolves the alert recipients for an outlet: its managers
// plus the tenant-wide roles.
func (r *Repository) ManagerIDs(ctx context.Context, outletID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users
WHERE role IN ('OWNER', 'ADMIN') OR (role = 'MANAGER' AND outlet_id = $1)`, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.OutletID, &e.SupplierID, &e.Date, &e.Particulars,
		&e.RefType, &e.RefID, &e.Debit, &e.Credit, &e.Balance,
		&e.PaymentMethod, &e.PaidByID, &e.PaidByName, &e.PINVerified, &e.Notes, &e.CreatedAt)
	return e, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
