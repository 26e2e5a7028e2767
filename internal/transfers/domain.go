package transfers

import "time"

// Status enumerates the transfer lifecycle.
type Status string

const (
	// StatusRequested is the initial state.
	StatusRequested Status = "REQUESTED"
	// StatusApproved means an approver fixed the quantities to ship.
	StatusApproved Status = "APPROVED"
	// StatusShipped means stock left the source outlet.
	StatusShipped Status = "SHIPPED"
	// StatusReceived is terminal: stock arrived at the destination.
	StatusReceived Status = "RECEIVED"
	// StatusRejected is terminal: the approver declined the request.
	StatusRejected Status = "REJECTED"
	// StatusCancelled is terminal: the requester withdrew the request.
	StatusCancelled Status = "CANCELLED"
)

// Transfer moves stock of one or more products between two outlets of
// the same organization.
type Transfer struct {
	ID           int64
	OrgID        int64
	SourceID     int64
	DestID       int64
	RequesterID  int64
	ApproverID   int64
	RejecterID   int64
	ReceiverID   int64
	Status       Status
	Notes        string
	RejectReason string
	CreatedAt    time.Time
	ShippedAt    *time.Time
	ReceivedAt   *time.Time
}

// Item is one requested product line. The name is snapshotted at
// creation so later renames do not rewrite history. Requested, approved
// and received quantities are independent declarations; the engine does
// not reconcile them.
type Item struct {
	ID           int64
	TransferID   int64
	ProductID    int64
	Name         string
	QtyRequested float64
	QtyApproved  *float64
	QtyReceived  *float64
}

// CreateInput describes a new transfer request.
type CreateInput struct {
	SourceID int64
	DestID   int64
	Notes    string
	Items    []NewItemInput
}

// NewItemInput is one requested line.
type NewItemInput struct {
	ProductID int64
	Qty       float64
}

// ApproveItemInput overwrites one item's approved quantity.
type ApproveItemInput struct {
	ItemID int64
	Qty    float64
}

// ReceiveItemInput records one item's received quantity.
type ReceiveItemInput struct {
	ItemID int64
	Qty    float64
}

// SkippedLine reports a received line whose quantity could not be
// booked at the destination because no product there shares the SKU.
type SkippedLine struct {
	ItemID    int64
	ProductID int64
	SKU       string
	Qty       float64
}

// ReceiptResult is returned by ConfirmReceipt.
type ReceiptResult struct {
	Transfer Transfer
	Skipped  []SkippedLine
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	OutletID int64
	Status   Status
	Limit    int
	Offset   int
}
