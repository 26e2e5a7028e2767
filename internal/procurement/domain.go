// Package procurement owns purchase orders and the goods receiving
// pipeline.
package procurement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/shared"
)

// OrderStatus enumerates the purchase order lifecycle.
type OrderStatus string

const (
	// StatusDraft is the initial state for auto-generated orders.
	StatusDraft OrderStatus = "DRAFT"
	// StatusSent means the order went out to the supplier.
	StatusSent OrderStatus = "SENT"
	// StatusPartiallyReceived means some but not all goods arrived.
	StatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	// StatusReceived means everything ordered has arrived.
	StatusReceived OrderStatus = "RECEIVED"
)

// Order is one purchase order against a single supplier.
type Order struct {
	ID              int64
	OutletID        int64
	SupplierID      int64
	Status          OrderStatus
	Total           float64
	SupplierMessage string
	CreatedAt       time.Time
}

// OrderItem is one ordered line. The name is snapshotted at creation;
// QtyReceived accumulates across receiving calls.
type OrderItem struct {
	ID          int64
	OrderID     int64
	Ref         catalog.ItemRef
	Name        string
	QtyOrdered  float64
	UnitCost    float64
	LineTotal   float64
	QtyReceived float64
}

// BulkItemInput is one line of the auto-generation path. Cost is
// unknown at this point.
type BulkItemInput struct {
	Ref catalog.ItemRef
	Qty float64
}

// ManualItemInput is one line of the manual entry path.
type ManualItemInput struct {
	Ref      catalog.ItemRef
	Qty      float64
	UnitCost float64
}

// CreateOrderInput describes a manually entered order.
type CreateOrderInput struct {
	OutletID   int64
	SupplierID int64
	Status     OrderStatus
	Items      []ManualItemInput
}

// ReceiveLineInput records arrival of goods against one order item.
type ReceiveLineInput struct {
	ItemID int64
	Qty    float64
}

// ListFilter narrows order listings.
type ListFilter struct {
	OutletID   int64
	SupplierID int64
	Status     OrderStatus
	Limit      int
	Offset     int
}

type messageLine struct {
	Name string
	Qty  float64
	Unit string
}

// supplierMessage renders the human-readable order summary sent to the
// supplier: one "name xqty unit" line per item, trailing date.
func supplierMessage(lines []messageLine, date time.Time) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(fmt.Sprintf("%s x%s %s\n", line.Name, trimQty(line.Qty), line.Unit))
	}
	b.WriteString(date.Format("2006-01-02"))
	return b.String()
}

func trimQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

func validateStatus(status OrderStatus) error {
	if status != StatusDraft && status != StatusSent {
		return fmt.Errorf("%w: new orders must be DRAFT or SENT", shared.ErrValidation)
	}
	return nil
}
