package creditors

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/notify"
	"github.com/forkline-erp/forkline/internal/shared"
)

type fakeLedger struct {
	entries   []Entry
	suppliers map[int64]catalog.Supplier
	nextID    int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{suppliers: map[int64]catalog.Supplier{
		1: {ID: 1, OrgID: 10, Name: "Acme Produce"},
	}}
}

// WithTx mirrors the repository's transaction semantics: an error from
// the callback discards every write made inside it.
func (f *fakeLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entries := len(f.entries)
	nextID := f.nextID
	if err := fn(ctx, f); err != nil {
		f.entries = f.entries[:entries]
		f.nextID = nextID
		return err
	}
	return nil
}

func (f *fakeLedger) Record(ctx context.Context, e Entry) (Entry, error) {
	if _, ok := f.suppliers[e.SupplierID]; !ok {
		return Entry{}, shared.ErrNotFound
	}
	prev, _ := f.CurrentBalance(ctx, e.OutletID, e.SupplierID)
	f.nextID++
	e.ID = f.nextID
	e.Balance = prev + e.Credit - e.Debit
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeLedger) CurrentBalance(ctx context.Context, outletID, supplierID int64) (float64, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.OutletID == outletID && e.SupplierID == supplierID {
			return e.Balance, nil
		}
	}
	return 0, nil
}

func (f *fakeLedger) LockSupplier(ctx context.Context, supplierID int64) error {
	if _, ok := f.suppliers[supplierID]; !ok {
		return shared.ErrNotFound
	}
	return nil
}

func (f *fakeLedger) ListEntries(ctx context.Context, outletID, supplierID int64, filter LedgerFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range f.entries {
		if e.OutletID == outletID && e.SupplierID == supplierID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) BalanceSummaries(ctx context.Context, outletID int64) ([]BalanceSummary, error) {
	seen := map[int64]float64{}
	for _, e := range f.entries {
		if e.OutletID == outletID {
			seen[e.SupplierID] = e.Balance
		}
	}
	var out []BalanceSummary
	for id, balance := range seen {
		out = append(out, BalanceSummary{SupplierID: id, SupplierName: f.suppliers[id].Name, Balance: balance})
	}
	return out, nil
}

func (f *fakeLedger) GetSupplier(ctx context.Context, id int64) (catalog.Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return catalog.Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

type acceptAllPINs struct{}

func (acceptAllPINs) VerifyPIN(ctx context.Context, userID int64, pin string, meta map[string]any) error {
	return nil
}

type capturingNotifier struct {
	messages []notify.Message
}

func (n *capturingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixedRecipients []int64

func (r fixedRecipients) ManagerIDs(ctx context.Context, outletID int64) ([]int64, error) {
	return r, nil
}

func payerCtx() context.Context {
	return shared.ContextWithIdentity(context.Background(), shared.Identity{
		UserID: 5, Name: "Pat", Role: shared.RoleManager, OutletID: 1, OrgID: 10,
	})
}

func newLedgerService(store *fakeLedger, notifier notify.Notifier) *Service {
	return NewService(store, store, acceptAllPINs{}, notifier, fixedRecipients{42}, nil, nil)
}

func TestBalanceRecurrence(t *testing.T) {
	store := newFakeLedger()
	svc := newLedgerService(store, nil)
	ctx := payerCtx()

	for _, amount := range []float64{100, 250, 75} {
		_, err := svc.RecordPurchase(ctx, PurchaseInput{OutletID: 1, SupplierID: 1, Amount: amount, Particulars: "Delivery"})
		require.NoError(t, err)
	}
	_, err := svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 200, Method: "CASH", PIN: "1234"})
	require.NoError(t, err)

	entries, err := svc.GetLedger(ctx, 1, 1, LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	prev := 0.0
	for _, e := range entries {
		require.Equal(t, prev+e.Credit-e.Debit, e.Balance)
		prev = e.Balance
	}
	require.Equal(t, 225.0, entries[3].Balance)
}

func TestPaymentNeverExceedsBalance(t *testing.T) {
	store := newFakeLedger()
	svc := newLedgerService(store, nil)
	ctx := payerCtx()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{OutletID: 1, SupplierID: 1, Amount: 500, Particulars: "Delivery"})
	require.NoError(t, err)

	entry, err := svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 500, Method: "CASH", PIN: "1234"})
	require.NoError(t, err)
	require.Equal(t, 0.0, entry.Balance)
	require.True(t, entry.PINVerified)
	require.Equal(t, "Pat", entry.PaidByName)

	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 1, Method: "CASH", PIN: "1234"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentValidation(t *testing.T) {
	store := newFakeLedger()
	svc := newLedgerService(store, nil)
	ctx := payerCtx()

	_, err := svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: -5, Method: "CASH", PIN: "1234"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 5, PIN: "1234"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 99, Amount: 5, Method: "CASH", PIN: "1234"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLargePaymentAlerts(t *testing.T) {
	store := newFakeLedger()
	notifier := &capturingNotifier{}
	svc := newLedgerService(store, notifier)
	ctx := payerCtx()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{OutletID: 1, SupplierID: 1, Amount: 50000, Particulars: "Bulk order"})
	require.NoError(t, err)

	// Below threshold: no alert.
	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 4999, Method: "CASH", PIN: "1234"})
	require.NoError(t, err)
	require.Empty(t, notifier.messages)

	// At threshold: NORMAL priority.
	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 5000, Method: "CASH", PIN: "1234"})
	require.NoError(t, err)
	require.Len(t, notifier.messages, 1)
	require.Equal(t, notify.PriorityNormal, notifier.messages[0].Priority)
	require.Equal(t, int64(42), notifier.messages[0].RecipientID)

	// At escalation threshold: HIGH priority.
	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 10000, Method: "BANK", PIN: "1234"})
	require.NoError(t, err)
	require.Len(t, notifier.messages, 2)
	require.Equal(t, notify.PriorityHigh, notifier.messages[1].Priority)
	require.Equal(t, 10000.0, notifier.messages[1].Amount)
}

func TestExportLedgerLayout(t *testing.T) {
	store := newFakeLedger()
	svc := newLedgerService(store, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) })
	ctx := payerCtx()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{OutletID: 1, SupplierID: 1, Amount: 500, Particulars: "Veg delivery"})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, PaymentInput{OutletID: 1, SupplierID: 1, Amount: 200, Method: "CASH", PIN: "1234", Notes: "partial"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportLedger(ctx, &buf, 1, 1, LedgerFilter{}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	require.Equal(t, "Acme Produce", lines[0])
	require.Equal(t, "Generated at 2025-03-14T09:30:00Z", lines[1])
	require.Equal(t, "", lines[2])
	require.Equal(t, "Date,Particulars,Debit,Credit,Balance,Payment Method,Paid By,Notes", lines[3])
	require.Equal(t, "2025-03-14,Veg delivery,0.00,500.00,500.00,,,", lines[4])
	require.Equal(t, "2025-03-14,Payment to Acme Produce,200.00,0.00,300.00,CASH,Pat,partial", lines[5])
}
