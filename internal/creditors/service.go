package creditors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/notify"
	"github.com/forkline-erp/forkline/internal/shared"
)

// RepositoryPort describes ledger storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, outletID, supplierID int64, filter LedgerFilter) ([]Entry, error)
	BalanceSummaries(ctx context.Context, outletID int64) ([]BalanceSummary, error)
}

// CatalogPort resolves suppliers.
type CatalogPort interface {
	GetSupplier(ctx context.Context, id int64) (catalog.Supplier, error)
}

// PINVerifier authorizes payments. Implemented by security.Service.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, userID int64, pin string, meta map[string]any) error
}

// RecipientsPort resolves who gets payment alerts for an outlet.
type RecipientsPort interface {
	ManagerIDs(ctx context.Context, outletID int64) ([]int64, error)
}

// AuditPort records ledger mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger entries written.
type MetricsPort interface {
	ObserveLedgerEntry(kind string)
}

// Service owns creditor ledger business rules.
type Service struct {
	repo       RepositoryPort
	catalog    CatalogPort
	pins       PINVerifier
	notifier   notify.Notifier
	recipients RecipientsPort
	audit      AuditPort
	metrics    MetricsPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cat CatalogPort, pins PINVerifier, notifier notify.Notifier, recipients RecipientsPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		catalog:    cat,
		pins:       pins,
		notifier:   notifier,
		recipients: recipients,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// GetLedger reads a supplier's ledger at an outlet, oldest first.
func (s *Service) GetLedger(ctx context.Context, outletID, supplierID int64, filter LedgerFilter) ([]Entry, error) {
	if _, err := s.catalog.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, outletID, supplierID, filter)
}

// GetBalanceSummary reads every supplier's current balance at an
// outlet. Balances come from the latest stored entry, never a live sum.
func (s *Service) GetBalanceSummary(ctx context.Context, outletID int64) ([]BalanceSummary, error) {
	return s.repo.BalanceSummaries(ctx, outletID)
}

// RecordPurchase appends a credit entry growing the payable.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (Entry, error) {
	if input.Amount <= 0 {
		return Entry{}, fmt.Errorf("%w: purchase amount must be positive", shared.ErrValidation)
	}
	if _, err := s.catalog.GetSupplier(ctx, input.SupplierID); err != nil {
		return Entry{}, err
	}
	refType := input.RefType
	if refType == "" {
		refType = RefPurchaseOrder
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.Record(ctx, Entry{
			OutletID:    input.OutletID,
			SupplierID:  input.SupplierID,
			Date:        s.now(),
			Particulars: input.Particulars,
			RefType:     refType,
			RefID:       input.RefID,
			Credit:      input.Amount,
		})
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerEntry("purchase")
	}
	s.recordAudit(ctx, "creditors.purchase", entry, nil)
	return entry, nil
}

// RecordPayment appends a debit entry after PIN authorization. The
// payment may never exceed the current balance; large payments alert
// the outlet's managers.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Entry, error) {
	if input.Amount <= 0 {
		return Entry{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	if input.Method == "" {
		return Entry{}, fmt.Errorf("%w: payment method is required", shared.ErrValidation)
	}
	supplier, err := s.catalog.GetSupplier(ctx, input.SupplierID)
	if err != nil {
		return Entry{}, err
	}
	actor := shared.IdentityFromContext(ctx)
	if err := s.pins.VerifyPIN(ctx, actor.UserID, input.PIN, map[string]any{
		"supplier_id": input.SupplierID,
		"amount":      input.Amount,
	}); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		balance, err := tx.CurrentBalance(ctx, input.OutletID, input.SupplierID)
		if err != nil {
			return err
		}
		if input.Amount > balance {
			return fmt.Errorf("%w: payment %.2f exceeds outstanding balance %.2f", shared.ErrValidation, input.Amount, balance)
		}
		entry, err = tx.Record(ctx, Entry{
			OutletID:      input.OutletID,
			SupplierID:    input.SupplierID,
			Date:          s.now(),
			Particulars:   fmt.Sprintf("Payment to %s", supplier.Name),
			RefType:       RefPayment,
			RefID:         input.RefID,
			Debit:         input.Amount,
			PaymentMethod: input.Method,
			PaidByID:      actor.UserID,
			PaidByName:    actor.Name,
			PINVerified:   true,
			Notes:         input.Notes,
		})
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerEntry("payment")
	}
	s.recordAudit(ctx, "creditors.payment", entry, map[string]any{"method": input.Method})
	s.alertManagers(ctx, supplier, entry)
	return entry, nil
}

// alertManagers notifies the outlet's managers of large payments.
// Delivery is best effort; a failed enqueue never rolls the payment
// back.
func (s *Service) alertManagers(ctx context.Context, supplier catalog.Supplier, entry Entry) {
	if s.notifier == nil || s.recipients == nil || entry.Debit < NotifyThreshold {
		return
	}
	priority := notify.PriorityNormal
	if entry.Debit >= HighPriorityThreshold {
		priority = notify.PriorityHigh
	}
	ids, err := s.recipients.ManagerIDs(ctx, entry.OutletID)
	if err != nil {
		s.logger.Warn("payment alert: resolve recipients", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		err := s.notifier.Send(ctx, notify.Message{
			RecipientID: id,
			Priority:    priority,
			Title:       "Large supplier payment",
			Body:        fmt.Sprintf("%s paid %.2f to %s", entry.PaidByName, entry.Debit, supplier.Name),
			Amount:      entry.Debit,
			Meta: map[string]string{
				"supplier_id": fmt.Sprintf("%d", entry.SupplierID),
				"entry_id":    fmt.Sprintf("%d", entry.ID),
			},
		})
		if err != nil {
			s.logger.Warn("payment alert: enqueue", slog.Int64("recipient_id", id), slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entry Entry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.IdentityFromContext(ctx)
	merged := map[string]any{"supplier_id": entry.SupplierID, "amount": entry.Credit + entry.Debit}
	for k, v := range meta {
		merged[k] = v
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Action:    action,
		Entity:    "creditor_ledger_entry",
		EntityID:  fmt.Sprintf("%d", entry.ID),
		Outcome:   shared.OutcomeSuccess,
		Meta:      merged,
	})
}
