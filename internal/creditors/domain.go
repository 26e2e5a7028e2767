// Package creditors maintains the per-supplier payable sub-ledger.
// Entries are append-only; the running balance is computed at write
// time and stored on the row, so reads never re-sum history.
package creditors

import "time"

const (
	// NotifyThreshold is the payment amount at which managers are
	// alerted.
	NotifyThreshold = 5000
	// HighPriorityThreshold escalates the alert priority.
	HighPriorityThreshold = 10000
)

// Reference types linking entries back to their source documents.
const (
	RefPurchaseOrder = "PURCHASE_ORDER"
	RefPayment       = "PAYMENT"
)

// Entry is one immutable ledger row. Credit grows the payable, debit
// shrinks it; Balance stores the running balance after this entry.
type Entry struct {
	ID            int64
	OutletID      int64
	SupplierID    int64
	Date          time.Time
	Particulars   string
	RefType       string
	RefID         int64
	Debit         float64
	Credit        float64
	Balance       float64
	PaymentMethod string
	PaidByID      int64
	PaidByName    string
	PINVerified   bool
	Notes         string
	CreatedAt     time.Time
}

// BalanceSummary is the latest stored balance for one supplier at an
// outlet.
type BalanceSummary struct {
	SupplierID   int64
	SupplierName string
	Balance      float64
}

// PurchaseInput records goods received on credit.
type PurchaseInput struct {
	OutletID    int64
	SupplierID  int64
	Amount      float64
	Particulars string
	RefType     string
	RefID       int64
}

// PaymentInput settles part of the payable. The PIN authorizes the
// acting user.
type PaymentInput struct {
	OutletID    int64
	SupplierID  int64
	Amount      float64
	Method      string
	PIN         string
	RefID       int64
	Notes       string
}

// LedgerFilter narrows ledger reads.
type LedgerFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}
