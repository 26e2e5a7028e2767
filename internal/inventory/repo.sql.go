package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/shared"
)

// ApplyTx mutates an item's denormalized stock counter and appends the
// matching stock move inside the caller's transaction. The item row is
// locked first so concurrent mutations serialize; the version column is
// bumped as a change stamp.
func ApplyTx(ctx context.Context, tx pgx.Tx, m Movement) error {
	if !m.Ref.Valid() {
		return fmt.Errorf("%w: invalid item reference", shared.ErrValidation)
	}
	if m.Qty == 0 {
		return fmt.Errorf("%w: quantity must be non zero", shared.ErrValidation)
	}
	table := "products"
	if m.Ref.Kind == catalog.KindIngredient {
		table = "ingredients"
	}

	var current float64
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT current_stock FROM %s WHERE id=$1 FOR UPDATE`, table), m.Ref.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", shared.ErrNotFound, m.Ref)
		}
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET current_stock = current_stock + $1, version = version + 1 WHERE id=$2`, table), m.Qty, m.Ref.ID); err != nil {
		return err
	}

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	_, err = tx.Exec(ctx, `INSERT INTO stock_moves (outlet_id, item_kind, item_id, qty, move_type, move_date, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`, m.OutletID, string(m.Ref.Kind), m.Ref.ID, m.Qty, string(m.Type), date, m.Note)
	return err
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Apply(ctx context.Context, m Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Apply(ctx context.Context, m Movement) error {
	return ApplyTx(ctx, r.tx, m)
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
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

// ListMoves reads the movement log, newest first.
func (r *Repository) ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, outlet_id, item_kind, item_id, qty, move_type, move_date, note, created_at
FROM stock_moves
WHERE ($1 = 0 OR outlet_id = $1)
  AND ($2 = '' OR item_kind = $2)
  AND ($3 = 0 OR item_id = $3)
  AND move_date BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY move_date DESC, id DESC
LIMIT $6`, filter.OutletID, string(filter.Ref.Kind), filter.Ref.ID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	moves := []StockMove{}
	for rows.Next() {
		var m StockMove
		var kind string
		if err := rows.Scan(&m.ID, &m.OutletID, &kind, &m.Ref.ID, &m.Qty, &m.Type, &m.Date, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Ref.Kind = catalog.ItemKind(kind)
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return moves, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
