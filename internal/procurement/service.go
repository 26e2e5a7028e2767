package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forkline-erp/forkline/internal/accounting"
	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/creditors"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/shared"
)

// receiveTimeout bounds the serializable receiving transaction.
const receiveTimeout = 10 * time.Second

// RepositoryPort describes order storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithSerializableTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
}

// CatalogPort exposes the catalog lookups used during order creation.
type CatalogPort interface {
	GetOutlet(ctx context.Context, id int64) (catalog.Outlet, error)
	GetSupplier(ctx context.Context, id int64) (catalog.Supplier, error)
	GetItems(ctx context.Context, refs []catalog.ItemRef) (map[catalog.ItemRef]catalog.Item, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed receive requests. Implemented by
// shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns purchase order business rules.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithIdempotency attaches the replay guard for receive requests.
func (s *Service) WithIdempotency(store IdempotencyPort) *Service {
	s.idempotency = store
	return s
}

// CreateOrders is the bulk auto-generation path: the flat item list is
// grouped by each item's supplier and one DRAFT order is written per
// supplier. Items whose supplier cannot be resolved are dropped; cost
// is unknown at this point so every unit cost is zero.
func (s *Service) CreateOrders(ctx context.Context, outletID int64, items []BulkItemInput) ([]Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one item", shared.ErrValidation)
	}
	if _, err := s.catalog.GetOutlet(ctx, outletID); err != nil {
		return nil, err
	}
	refs := make([]catalog.ItemRef, 0, len(items))
	for _, line := range items {
		if !line.Ref.Valid() || line.Qty <= 0 {
			return nil, fmt.Errorf("%w: each item needs a valid reference and a positive quantity", shared.ErrValidation)
		}
		refs = append(refs, line.Ref)
	}
	resolved, err := s.catalog.GetItems(ctx, refs)
	if err != nil {
		return nil, err
	}

	type group struct {
		lines []messageLine
		items []OrderItem
	}
	groups := map[int64]*group{}
	var supplierOrder []int64
	for _, line := range items {
		item, ok := resolved[line.Ref]
		if !ok || item.SupplierID == 0 {
			s.logger.Warn("bulk order: item dropped, no supplier",
				slog.String("ref", line.Ref.String()))
			continue
		}
		g, ok := groups[item.SupplierID]
		if !ok {
			g = &group{}
			groups[item.SupplierID] = g
			supplierOrder = append(supplierOrder, item.SupplierID)
		}
		g.lines = append(g.lines, messageLine{Name: item.Name, Qty: line.Qty, Unit: item.Unit})
		g.items = append(g.items, OrderItem{Ref: line.Ref, Name: item.Name, QtyOrdered: line.Qty})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no item resolved to a supplier", shared.ErrValidation)
	}

	now := s.now()
	var orders []Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, supplierID := range supplierOrder {
			g := groups[supplierID]
			order := Order{
				OutletID:        outletID,
				SupplierID:      supplierID,
				Status:          StatusDraft,
				SupplierMessage: supplierMessage(g.lines, now),
			}
			id, err := tx.InsertOrder(ctx, order)
			if err != nil {
				return err
			}
			order.ID = id
			for _, item := range g.items {
				item.OrderID = id
				if err := tx.InsertItem(ctx, item); err != nil {
					return err
				}
			}
			orders = append(orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		s.recordAudit(ctx, "po.create", order.ID, map[string]any{"supplier_id": order.SupplierID, "bulk": true})
	}
	return orders, nil
}

// CreateOrder is the manual single-supplier path with caller-supplied
// costs and status.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if len(input.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one item", shared.ErrValidation)
	}
	if err := validateStatus(input.Status); err != nil {
		return Order{}, err
	}
	if _, err := s.catalog.GetOutlet(ctx, input.OutletID); err != nil {
		return Order{}, err
	}
	if _, err := s.catalog.GetSupplier(ctx, input.SupplierID); err != nil {
		return Order{}, err
	}
	refs := make([]catalog.ItemRef, 0, len(input.Items))
	for _, line := range input.Items {
		if !line.Ref.Valid() || line.Qty <= 0 || line.UnitCost < 0 {
			return Order{}, fmt.Errorf("%w: each item needs a valid reference, positive quantity and non-negative cost", shared.ErrValidation)
		}
		refs = append(refs, line.Ref)
	}
	resolved, err := s.catalog.GetItems(ctx, refs)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	var total float64
	var lines []messageLine
	orderItems := make([]OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		item, ok := resolved[line.Ref]
		if !ok {
			return Order{}, fmt.Errorf("%w: %s", shared.ErrNotFound, line.Ref)
		}
		lineTotal := line.Qty * line.UnitCost
		total += lineTotal
		lines = append(lines, messageLine{Name: item.Name, Qty: line.Qty, Unit: item.Unit})
		orderItems = append(orderItems, OrderItem{
			Ref:        line.Ref,
			Name:       item.Name,
			QtyOrdered: line.Qty,
			UnitCost:   line.UnitCost,
			LineTotal:  lineTotal,
		})
	}

	order := Order{
		OutletID:        input.OutletID,
		SupplierID:      input.SupplierID,
		Status:          input.Status,
		Total:           total,
		SupplierMessage: supplierMessage(lines, now),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for _, item := range orderItems {
			item.OrderID = id
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "po.create", order.ID, map[string]any{"supplier_id": order.SupplierID, "total": total})
	return order, nil
}

// ReceiveOrder books arrived goods. Everything happens in one
// serializable transaction: per line the item row is locked, the stock
// counter incremented and a PURCHASE move appended; afterwards the
// order status is recomputed and, when the received value is positive,
// a balanced journal entry (inventory asset against accounts payable)
// and a creditor purchase entry are written. A serialization conflict
// surfaces as a retryable conflict error. A client-supplied key guards
// replays: the key is claimed up front and released again if the
// receive fails, so a retry with the same key can go through.
func (s *Service) ReceiveOrder(ctx context.Context, orderID int64, key string, received []ReceiveLineInput) (Order, error) {
	if len(received) == 0 {
		return Order{}, fmt.Errorf("%w: nothing to receive", shared.ErrValidation)
	}
	actor := shared.IdentityFromContext(ctx)
	now := s.now()

	ctx, cancel := context.WithTimeout(ctx, receiveTimeout)
	defer cancel()

	claimed := false
	if s.idempotency != nil && key != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.receive"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Order{}, fmt.Errorf("%w: receive request already processed", shared.ErrConflict)
			}
			return Order{}, err
		}
		claimed = true
	}

	var result Order
	err := s.repo.WithSerializableTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccessOutlet(order.OutletID) {
			return fmt.Errorf("%w: receiving requires access to the order's outlet", shared.ErrForbidden)
		}
		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*OrderItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		var receivedValue float64
		for _, line := range received {
			item, ok := byID[line.ItemID]
			if !ok {
				return fmt.Errorf("%w: order item %d", shared.ErrNotFound, line.ItemID)
			}
			if line.Qty <= 0 {
				return fmt.Errorf("%w: received quantity must be positive", shared.ErrValidation)
			}
			if err := tx.Apply(ctx, inventory.Movement{
				OutletID: order.OutletID,
				Ref:      item.Ref,
				Qty:      line.Qty,
				Type:     inventory.MovePurchase,
				Date:     now,
				Note:     fmt.Sprintf("PO #%d receipt", orderID),
			}); err != nil {
				return err
			}
			if err := tx.AddReceivedQty(ctx, orderID, line.ItemID, line.Qty); err != nil {
				return err
			}
			item.QtyReceived += line.Qty
			receivedValue += line.Qty * item.UnitCost
		}

		var totalOrdered, totalReceived float64
		for i := range items {
			totalOrdered += items[i].QtyOrdered
			totalReceived += items[i].QtyReceived
		}
		status := order.Status
		switch {
		case totalReceived >= totalOrdered:
			status = StatusReceived
		case totalReceived > 0:
			status = StatusPartiallyReceived
		}
		if status != order.Status {
			if err := tx.SetStatus(ctx, orderID, status); err != nil {
				return err
			}
			order.Status = status
		}

		if receivedValue > 0 {
			if _, err := tx.PostJournal(ctx, accounting.PostingInput{
				Date:         now,
				SourceModule: "procurement",
				SourceID:     uuid.New(),
				Memo:         fmt.Sprintf("Goods receipt PO #%d", orderID),
				PostedBy:     actor.UserID,
				Lines: []accounting.PostingLineInput{
					{AccountCode: accounting.AccountInventoryAsset, Debit: receivedValue},
					{AccountCode: accounting.AccountAccountsPayable, Credit: receivedValue},
				},
			}); err != nil {
				return err
			}
			if _, err := tx.RecordCreditorEntry(ctx, creditors.Entry{
				OutletID:    order.OutletID,
				SupplierID:  order.SupplierID,
				Date:        now,
				Particulars: fmt.Sprintf("Goods receipt PO #%d", orderID),
				RefType:     creditors.RefPurchaseOrder,
				RefID:       orderID,
				Credit:      receivedValue,
			}); err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		if claimed {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Order{}, err
	}
	s.recordAudit(ctx, "po.receive", orderID, map[string]any{"lines": len(received), "status": string(result.Status)})
	return result, nil
}

// GetOrder loads one order with its items.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, []OrderItem, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders lists orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.IdentityFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  fmt.Sprintf("%d", orderID),
		Outcome:   shared.OutcomeSuccess,
		Meta:      meta,
	})
}
