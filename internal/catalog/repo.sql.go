package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/shared"
)

// Repository exposes catalog read paths used for validation and grouping.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOutlet loads one outlet.
func (r *Repository) GetOutlet(ctx context.Context, id int64) (Outlet, error) {
	var o Outlet
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, name FROM outlets WHERE id=$1`, id).
		Scan(&o.ID, &o.OrgID, &o.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Outlet{}, fmt.Errorf("%w: outlet %d", shared.ErrNotFound, id)
		}
		return Outlet{}, err
	}
	return o, nil
}

// GetSupplier loads one supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, name, COALESCE(phone, '') FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.OrgID, &s.Name, &s.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
		}
		return Supplier{}, err
	}
	return s, nil
}

// GetItems prefetches the referenced products and ingredients in two
// batch queries so bulk flows avoid a lookup per item. Missing
// references are simply absent from the result map.
func (r *Repository) GetItems(ctx context.Context, refs []ItemRef) (map[ItemRef]Item, error) {
	var productIDs, ingredientIDs []int64
	for _, ref := range refs {
		switch ref.Kind {
		case KindProduct:
			productIDs = append(productIDs, ref.ID)
		case KindIngredient:
			ingredientIDs = append(ingredientIDs, ref.ID)
		}
	}
	items := make(map[ItemRef]Item, len(refs))
	if len(productIDs) > 0 {
		rows, err := r.pool.Query(ctx, `SELECT id, outlet_id, name, unit, COALESCE(supplier_id, 0), current_stock
FROM products WHERE id = ANY($1)`, productIDs)
		if err != nil {
			return nil, err
		}
		if err := collectItems(rows, KindProduct, items); err != nil {
			return nil, err
		}
	}
	if len(ingredientIDs) > 0 {
		rows, err := r.pool.Query(ctx, `SELECT id, outlet_id, name, unit, COALESCE(supplier_id, 0), current_stock
FROM ingredients WHERE id = ANY($1)`, ingredientIDs)
		if err != nil {
			return nil, err
		}
		if err := collectItems(rows, KindIngredient, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func collectItems(rows pgx.Rows, kind ItemKind, into map[ItemRef]Item) error {
	defer rows.Close()
	for rows.Next() {
		var item Item
		var id int64
		if err := rows.Scan(&id, &item.OutletID, &item.Name, &item.Unit, &item.SupplierID, &item.CurrentStock); err != nil {
			return err
		}
		item.Ref = ItemRef{Kind: kind, ID: id}
		into[item.Ref] = item
	}
	return rows.Err()
}

// GetProduct loads one product with its stock counters.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, outlet_id, COALESCE(sku, ''), name, unit, COALESCE(supplier_id, 0), current_stock, version
FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.OutletID, &p.SKU, &p.Name, &p.Unit, &p.SupplierID, &p.CurrentStock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return Product{}, err
	}
	return p, nil
}

// FindProductBySKU resolves the product at an outlet sharing a SKU.
// Used to map a shipped product onto its destination counterpart.
func (r *Repository) FindProductBySKU(ctx context.Context, outletID int64, sku string) (Product, error) {
	if sku == "" {
		return Product{}, fmt.Errorf("%w: empty sku", shared.ErrNotFound)
	}
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, outlet_id, sku, name, unit, COALESCE(supplier_id, 0), current_stock, version
FROM products WHERE outlet_id=$1 AND sku=$2`, outletID, sku).
		Scan(&p.ID, &p.OutletID, &p.SKU, &p.Name, &p.Unit, &p.SupplierID, &p.CurrentStock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: no product with sku %q at outlet %d", shared.ErrNotFound, sku, outletID)
		}
		return Product{}, err
	}
	return p, nil
}
