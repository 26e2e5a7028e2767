package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/shared"
)

// TxRepository groups the operations available inside one transaction.
// Stock deltas and status flips that belong together commit together.
type TxRepository interface {
	CreateTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertItem(ctx context.Context, item Item) error
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	ListItems(ctx context.Context, transferID int64) ([]Item, error)
	SetApprovedQty(ctx context.Context, transferID, itemID int64, qty float64) error
	SetReceivedQty(ctx context.Context, transferID, itemID int64, qty float64) error
	MarkApproved(ctx context.Context, id, approverID int64) error
	MarkRejected(ctx context.Context, id, rejecterID int64, reason string) error
	MarkShipped(ctx context.Context, id int64, shippedAt time.Time) error
	MarkReceived(ctx context.Context, id, receiverID int64, receivedAt time.Time) error
	MarkCancelled(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	FindProductBySKU(ctx context.Context, outletID int64, sku string) (catalog.Product, error)
	Apply(ctx context.Context, m inventory.Movement) error
}

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
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

// GetTransfer loads a transfer and its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, []Item, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, selectTransfer+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
		}
		return Transfer{}, nil, err
	}
	rows, err := r.pool.Query(ctx, selectItems, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	items, err := collectItems(rows)
	if err != nil {
		return Transfer{}, nil, err
	}
	return t, items, nil
}

// ListTransfers lists transfers touching an outlet, newest first.
func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectTransfer+`
WHERE ($1 = 0 OR source_outlet_id = $1 OR dest_outlet_id = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, filter.OutletID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

const selectTransfer = `SELECT id, org_id, source_outlet_id, dest_outlet_id,
  requester_id, COALESCE(approver_id, 0), COALESCE(rejecter_id, 0), COALESCE(receiver_id, 0),
  status, COALESCE(notes, ''), COALESCE(reject_reason, ''), created_at, shipped_at, received_at
FROM stock_transfers`

const selectItems = `SELECT id, transfer_id, product_id, product_name, qty_requested, qty_approved, qty_received
FROM stock_transfer_items WHERE transfer_id=$1 ORDER BY id`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.OrgID, &t.SourceID, &t.DestID,
		&t.RequesterID, &t.ApproverID, &t.RejecterID, &t.ReceiverID,
		&t.Status, &t.Notes, &t.RejectReason, &t.CreatedAt, &t.ShippedAt, &t.ReceivedAt)
	return t, err
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.Name, &it.QtyRequested, &it.QtyApproved, &it.QtyReceived); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) CreateTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (org_id, source_outlet_id, dest_outlet_id, requester_id, status, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
RETURNING id`, t.OrgID, t.SourceID, t.DestID, t.RequesterID, string(t.Status), t.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_transfer_items (transfer_id, product_id, product_name, qty_requested)
VALUES ($1,$2,$3,$4)`, item.TransferID, item.ProductID, item.Name, item.QtyRequested)
	return err
}

// GetTransferForUpdate locks the transfer row so concurrent transitions
// serialize: the status check and the update that follows see the same
// row.
func (r *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, selectTransfer+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *txRepository) ListItems(ctx context.Context, transferID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, selectItems, transferID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *txRepository) SetApprovedQty(ctx context.Context, transferID, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transfer_items SET qty_approved=$1 WHERE id=$2 AND transfer_id=$3`, qty, itemID, transferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepository) SetReceivedQty(ctx context.Context, transferID, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transfer_items SET qty_received=$1 WHERE id=$2 AND transfer_id=$3`, qty, itemID, transferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepository) MarkApproved(ctx context.Context, id, approverID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1, approver_id=$2 WHERE id=$3`,
		string(StatusApproved), approverID, id)
	return err
}

func (r *txRepository) MarkRejected(ctx context.Context, id, rejecterID int64, reason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1, rejecter_id=$2, reject_reason=$3 WHERE id=$4`,
		string(StatusRejected), rejecterID, reason, id)
	return err
}

func (r *txRepository) MarkShipped(ctx context.Context, id int64, shippedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1, shipped_at=$2 WHERE id=$3`,
		string(StatusShipped), shippedAt, id)
	return err
}

func (r *txRepository) MarkReceived(ctx context.Context, id, receiverID int64, receivedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1, receiver_id=$2, received_at=$3 WHERE id=$4`,
		string(StatusReceived), receiverID, receivedAt, id)
	return err
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$1 WHERE id=$2`,
		string(StatusCancelled), id)
	return err
}

func (r *txRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	err := r.tx.QueryRow(ctx, `SELECT id, outlet_id, COALESCE(sku, ''), name, unit, COALESCE(supplier_id, 0), current_stock, version
FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.OutletID, &p.SKU, &p.Name, &p.Unit, &p.SupplierID, &p.CurrentStock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return catalog.Product{}, err
	}
	return p, nil
}

func (r *txRepository) FindProductBySKU(ctx context.Context, outletID int64, sku string) (catalog.Product, error) {
	if sku == "" {
		return catalog.Product{}, fmt.Errorf("%w: empty sku", shared.ErrNotFound)
	}
	var p catalog.Product
	err := r.tx.QueryRow(ctx, `SELECT id, outlet_id, sku, name, unit, COALESCE(supplier_id, 0), current_stock, version
FROM products WHERE outlet_id=$1 AND sku=$2`, outletID, sku).
		Scan(&p.ID, &p.OutletID, &p.SKU, &p.Name, &p.Unit, &p.SupplierID, &p.CurrentStock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, fmt.Errorf("%w: no product with sku %q at outlet %d", shared.ErrNotFound, sku, outletID)
		}
		return catalog.Product{}, err
	}
	return p, nil
}

func (r *txRepository) Apply(ctx context.Context, m inventory.Movement) error {
	return inventory.ApplyTx(ctx, r.tx, m)
}
