package inventory

import (
	"time"

	"github.com/forkline-erp/forkline/internal/catalog"
)

// MoveType enumerates stock movement reason codes.
type MoveType string

const (
	// MovePurchase marks inbound stock from goods receipt.
	MovePurchase MoveType = "PURCHASE"
	// MoveAdjustment marks manual corrections and transfer shipments.
	MoveAdjustment MoveType = "ADJUSTMENT"
	// MoveSale marks stock consumed by sales.
	MoveSale MoveType = "SALE"
	// MoveWaste marks spoilage write-offs.
	MoveWaste MoveType = "WASTE"
)

// StockMove is one append-only audit record. Moves are never updated or
// deleted; current stock lives on the item row, not on this log.
type StockMove struct {
	ID        int64
	OutletID  int64
	Ref       catalog.ItemRef
	Qty       float64
	Type      MoveType
	Date      time.Time
	Note      string
	CreatedAt time.Time
}

// Movement describes one stock mutation. The counter update and the
// move append are issued together, never separately.
type Movement struct {
	OutletID int64
	Ref      catalog.ItemRef
	Qty      float64
	Type     MoveType
	Date     time.Time
	Note     string
}

// MoveFilter narrows ListMoves.
type MoveFilter struct {
	OutletID int64
	Ref      catalog.ItemRef
	From     time.Time
	To       time.Time
	Limit    int
}
