package transfers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, []Item, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// CatalogPort exposes the read lookups used outside transactions.
type CatalogPort interface {
	GetOutlet(ctx context.Context, id int64) (catalog.Outlet, error)
	GetItems(ctx context.Context, refs []catalog.ItemRef) (map[catalog.ItemRef]catalog.Item, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// StrictQuantities rejects approvals above the requested quantity.
	// Off by default: each step is an independent declaration and
	// discrepancies stay visible to the humans reviewing the transfer.
	StrictQuantities bool
}

// Service runs the transfer state machine.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditPort
	logger  *slog.Logger
	cfg     ServiceConfig
	now     func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates the request and persists the transfer with its items
// in REQUESTED. No stock moves yet: a request is not a commitment.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if len(input.Items) == 0 {
		return Transfer{}, fmt.Errorf("%w: transfer needs at least one item", shared.ErrValidation)
	}
	if input.SourceID == input.DestID {
		return Transfer{}, fmt.Errorf("%w: source and destination outlet must differ", shared.ErrValidation)
	}
	source, err := s.catalog.GetOutlet(ctx, input.SourceID)
	if err != nil {
		return Transfer{}, err
	}
	dest, err := s.catalog.GetOutlet(ctx, input.DestID)
	if err != nil {
		return Transfer{}, err
	}
	if source.OrgID != dest.OrgID {
		return Transfer{}, fmt.Errorf("%w: outlets belong to different organizations", shared.ErrValidation)
	}

	refs := make([]catalog.ItemRef, 0, len(input.Items))
	for _, line := range input.Items {
		if line.ProductID == 0 || line.Qty <= 0 {
			return Transfer{}, fmt.Errorf("%w: each item needs a product and a positive quantity", shared.ErrValidation)
		}
		refs = append(refs, catalog.ProductRef(line.ProductID))
	}
	products, err := s.catalog.GetItems(ctx, refs)
	if err != nil {
		return Transfer{}, err
	}

	actor := shared.IdentityFromContext(ctx)
	transfer := Transfer{
		OrgID:       source.OrgID,
		SourceID:    source.ID,
		DestID:      dest.ID,
		RequesterID: actor.UserID,
		Status:      StatusRequested,
		Notes:       input.Notes,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		for _, line := range input.Items {
			item, ok := products[catalog.ProductRef(line.ProductID)]
			if !ok {
				return fmt.Errorf("%w: product %d", shared.ErrNotFound, line.ProductID)
			}
			if err := tx.InsertItem(ctx, Item{
				TransferID:   id,
				ProductID:    line.ProductID,
				Name:         item.Name,
				QtyRequested: line.Qty,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, "transfer.create", transfer.ID, map[string]any{"source": transfer.SourceID, "dest": transfer.DestID})
	return transfer, nil
}

// Approve overwrites approved quantities and moves the transfer to
// APPROVED. The approver has full discretion over quantities unless
// StrictQuantities is on.
func (s *Service) Approve(ctx context.Context, transferID int64, items []ApproveItemInput) error {
	actor := shared.IdentityFromContext(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusRequested {
			return fmt.Errorf("%w: cannot approve transfer in %s status", shared.ErrInvalidState, transfer.Status)
		}
		if !actor.CanAccessOutlet(transfer.SourceID) {
			return fmt.Errorf("%w: approval requires source outlet access", shared.ErrForbidden)
		}
		existing, err := tx.ListItems(ctx, transferID)
		if err != nil {
			return err
		}
		byID := make(map[int64]Item, len(existing))
		for _, it := range existing {
			byID[it.ID] = it
		}
		for _, line := range items {
			it, ok := byID[line.ItemID]
			if !ok {
				return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, line.ItemID)
			}
			if line.Qty < 0 {
				return fmt.Errorf("%w: approved quantity cannot be negative", shared.ErrValidation)
			}
			if s.cfg.StrictQuantities && line.Qty > it.QtyRequested {
				return fmt.Errorf("%w: approved quantity %.2f exceeds requested %.2f", shared.ErrValidation, line.Qty, it.QtyRequested)
			}
			if err := tx.SetApprovedQty(ctx, transferID, line.ItemID, line.Qty); err != nil {
				return err
			}
		}
		return tx.MarkApproved(ctx, transferID, actor.UserID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "transfer.approve", transferID, map[string]any{"items": len(items)})
	return nil
}

// Reject declines a REQUESTED transfer. Nothing was ever deducted, so
// there is no stock effect.
func (s *Service) Reject(ctx context.Context, transferID int64, reason string) error {
	actor := shared.IdentityFromContext(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusRequested {
			return fmt.Errorf("%w: cannot reject transfer in %s status", shared.ErrInvalidState, transfer.Status)
		}
		if !actor.CanAccessOutlet(transfer.SourceID) {
			return fmt.Errorf("%w: rejection requires source outlet access", shared.ErrForbidden)
		}
		return tx.MarkRejected(ctx, transferID, actor.UserID, reason)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "transfer.reject", transferID, map[string]any{"reason": reason})
	return nil
}

// Cancel withdraws a REQUESTED transfer. Only the original requester
// may cancel.
func (s *Service) Cancel(ctx context.Context, transferID int64) error {
	actor := shared.IdentityFromContext(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusRequested {
			return fmt.Errorf("%w: cannot cancel transfer in %s status", shared.ErrInvalidState, transfer.Status)
		}
		if transfer.RequesterID != actor.UserID {
			return fmt.Errorf("%w: only the requester may cancel", shared.ErrForbidden)
		}
		return tx.MarkCancelled(ctx, transferID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "transfer.cancel", transferID, nil)
	return nil
}

// MarkShipped deducts the approved quantities from the source outlet
// and stamps the shipment. Stock physically leaves here, on approved
// quantity, trusting that shipment follows approval.
func (s *Service) MarkShipped(ctx context.Context, transferID int64) error {
	actor := shared.IdentityFromContext(ctx)
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusApproved {
			return fmt.Errorf("%w: cannot ship transfer in %s status", shared.ErrInvalidState, transfer.Status)
		}
		if !actor.CanAccessOutlet(transfer.SourceID) {
			return fmt.Errorf("%w: shipping requires source outlet access", shared.ErrForbidden)
		}
		items, err := tx.ListItems(ctx, transferID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.QtyApproved == nil || *item.QtyApproved <= 0 {
				continue
			}
			if err := tx.Apply(ctx, inventory.Movement{
				OutletID: transfer.SourceID,
				Ref:      catalog.ProductRef(item.ProductID),
				Qty:      -*item.QtyApproved,
				Type:     inventory.MoveAdjustment,
				Date:     now,
				Note:     fmt.Sprintf("Transfer #%d shipment", transferID),
			}); err != nil {
				return err
			}
		}
		return tx.MarkShipped(ctx, transferID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "transfer.ship", transferID, nil)
	return nil
}

// ConfirmReceipt records received quantities and books them at the
// destination by SKU match. Lines with no matching destination SKU are
// not booked; they are reported and logged rather than failing the
// receipt, matching the long-standing behaviour of the flow.
func (s *Service) ConfirmReceipt(ctx context.Context, transferID int64, items []ReceiveItemInput) (ReceiptResult, error) {
	actor := shared.IdentityFromContext(ctx)
	now := s.now()
	var result ReceiptResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusShipped {
			return fmt.Errorf("%w: cannot receive transfer in %s status", shared.ErrInvalidState, transfer.Status)
		}
		if !actor.CanAccessOutlet(transfer.DestID) {
			return fmt.Errorf("%w: receiving requires destination outlet access", shared.ErrForbidden)
		}
		existing, err := tx.ListItems(ctx, transferID)
		if err != nil {
			return err
		}
		byID := make(map[int64]Item, len(existing))
		for _, it := range existing {
			byID[it.ID] = it
		}
		for _, line := range items {
			item, ok := byID[line.ItemID]
			if !ok {
				return fmt.Errorf("%w: transfer item %d", shared.ErrNotFound, line.ItemID)
			}
			if line.Qty < 0 {
				return fmt.Errorf("%w: received quantity cannot be negative", shared.ErrValidation)
			}
			if err := tx.SetReceivedQty(ctx, transferID, line.ItemID, line.Qty); err != nil {
				return err
			}
			if line.Qty == 0 {
				continue
			}
			source, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			destProduct, err := tx.FindProductBySKU(ctx, transfer.DestID, source.SKU)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					result.Skipped = append(result.Skipped, SkippedLine{
						ItemID:    item.ID,
						ProductID: item.ProductID,
						SKU:       source.SKU,
						Qty:       line.Qty,
					})
					s.logger.Warn("transfer receipt skipped: no destination product with matching sku",
						slog.Int64("transfer_id", transferID),
						slog.Int64("product_id", item.ProductID),
						slog.String("sku", source.SKU))
					continue
				}
				return err
			}
			if err := tx.Apply(ctx, inventory.Movement{
				OutletID: transfer.DestID,
				Ref:      catalog.ProductRef(destProduct.ID),
				Qty:      line.Qty,
				Type:     inventory.MovePurchase,
				Date:     now,
				Note:     fmt.Sprintf("Transfer #%d receipt", transferID),
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkReceived(ctx, transferID, actor.UserID, now); err != nil {
			return err
		}
		transfer.Status = StatusReceived
		transfer.ReceiverID = actor.UserID
		transfer.ReceivedAt = &now
		result.Transfer = transfer
		return nil
	})
	if err != nil {
		return ReceiptResult{}, err
	}
	s.recordAudit(ctx, "transfer.receive", transferID, map[string]any{"skipped": len(result.Skipped)})
	return result, nil
}

// Get loads a transfer with its items.
func (s *Service) Get(ctx context.Context, transferID int64) (Transfer, []Item, error) {
	return s.repo.GetTransfer(ctx, transferID)
}

// List lists transfers matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	return s.repo.ListTransfers(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, transferID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.IdentityFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    action,
		Entity:    "stock_transfer",
		EntityID:  fmt.Sprintf("%d", transferID),
		Meta:      meta,
	})
}
