package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/accounting"
	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/creditors"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/platform/db"
	"github.com/forkline-erp/forkline/internal/shared"
)

// TxRepository groups the operations available inside one transaction.
// Receiving composes stock mutation, journal posting and creditor entry
// through this surface so everything commits together.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, item OrderItem) error
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	AddReceivedQty(ctx context.Context, orderID, itemID int64, qty float64) error
	SetStatus(ctx context.Context, orderID int64, status OrderStatus) error
	Apply(ctx context.Context, m inventory.Movement) error
	PostJournal(ctx context.Context, input accounting.PostingInput) (int64, error)
	RecordCreditorEntry(ctx context.Context, e creditors.Entry) (creditors.Entry, error)
}

// Repository persists purchase orders in PostgreSQL.
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
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// WithSerializableTx executes the callback at serializable isolation.
// Serialization failures come back as retryable conflicts.
func (r *Repository) WithSerializableTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent receipt, retry", shared.ErrConflict)
	}
	return err
}

const selectOrder = `SELECT id, outlet_id, supplier_id, status, total, COALESCE(supplier_message, ''), created_at
FROM purchase_orders`

const selectOrderItems = `SELECT id, order_id, item_kind, item_id, item_name, qty_ordered, unit_cost, line_total, qty_received
FROM purchase_order_items WHERE order_id=$1 ORDER BY id`

// GetOrder loads one order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, nil, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return Order{}, nil, err
	}
	rows, err := r.pool.Query(ctx, selectOrderItems, id)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := collectOrderItems(rows)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

// ListOrders lists orders newest first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectOrder+`
WHERE ($1 = 0 OR outlet_id = $1)
  AND ($2 = 0 OR supplier_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.OutletID, filter.SupplierID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OutletID, &o.SupplierID, &o.Status, &o.Total, &o.SupplierMessage, &o.CreatedAt)
	return o, err
}

func collectOrderItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		var kind string
		if err := rows.Scan(&it.ID, &it.OrderID, &kind, &it.Ref.ID, &it.Name, &it.QtyOrdered, &it.UnitCost, &it.LineTotal, &it.QtyReceived); err != nil {
			return nil, err
		}
		it.Ref.Kind = catalog.ItemKind(kind)
		items = append(items, it)
	}
	return items, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (outlet_id, supplier_id, status, total, supplier_message, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())
RETURNING id`, o.OutletID, o.SupplierID, string(o.Status), o.Total, o.SupplierMessage).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item OrderItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_items (order_id, item_kind, item_id, item_name, qty_ordered, unit_cost, line_total, qty_received)
VALUES ($1,$2,$3,$4,$5,$6,$7,0)`,
		item.OrderID, string(item.Ref.Kind), item.Ref.ID, item.Name, item.QtyOrdered, item.UnitCost, item.LineTotal)
	return err
}

// GetOrderForUpdate locks the order row for the duration of receiving.
func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, selectOrder+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return Order{}, err
	}
	return o, nil
}

func (r *txRepository) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.tx.Query(ctx, selectOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	return collectOrderItems(rows)
}

func (r *txRepository) AddReceivedQty(ctx context.Context, orderID, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET qty_received = qty_received + $1 WHERE id=$2 AND order_id=$3`,
		qty, itemID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepository) SetStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1 WHERE id=$2`, string(status), orderID)
	return err
}

func (r *txRepository) Apply(ctx context.Context, m inventory.Movement) error {
	return inventory.ApplyTx(ctx, r.tx, m)
}

func (r *txRepository) PostJournal(ctx context.Context, input accounting.PostingInput) (int64, error) {
	return accounting.PostEntryTx(ctx, r.tx, input)
}

func (r *txRepository) RecordCreditorEntry(ctx context.Context, e creditors.Entry) (creditors.Entry, error) {
	return creditors.RecordEntryTx(ctx, r.tx, e)
}
