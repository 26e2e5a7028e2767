package catalog

import "fmt"

// ItemKind discriminates the two stocked item families.
type ItemKind string

const (
	// KindProduct references a sellable product row.
	KindProduct ItemKind = "PRODUCT"
	// KindIngredient references a kitchen ingredient row.
	KindIngredient ItemKind = "INGREDIENT"
)

// ItemRef identifies a stocked item. Exactly one family applies; the
// discriminator makes that structural rather than two nullable columns.
type ItemRef struct {
	Kind ItemKind
	ID   int64
}

// ProductRef builds a product reference.
func ProductRef(id int64) ItemRef { return ItemRef{Kind: KindProduct, ID: id} }

// IngredientRef builds an ingredient reference.
func IngredientRef(id int64) ItemRef { return ItemRef{Kind: KindIngredient, ID: id} }

// Valid reports whether the reference names a real family and id.
func (r ItemRef) Valid() bool {
	return r.ID > 0 && (r.Kind == KindProduct || r.Kind == KindIngredient)
}

// String renders the reference for notes and logs.
func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Outlet is a physical location belonging to one organization.
type Outlet struct {
	ID    int64
	OrgID int64
	Name  string
}

// Supplier is an organization-level creditor.
type Supplier struct {
	ID    int64
	OrgID int64
	Name  string
	Phone string
}

// Product carries the denormalized stock counters alongside identity.
type Product struct {
	ID           int64
	OutletID     int64
	SKU          string
	Name         string
	Unit         string
	SupplierID   int64
	CurrentStock float64
	Version      int64
}

// Item is the batch-prefetch view shared by products and ingredients.
type Item struct {
	Ref          ItemRef
	OutletID     int64
	Name         string
	Unit         string
	SupplierID   int64
	CurrentStock float64
}
