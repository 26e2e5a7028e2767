package procurement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/internal/accounting"
	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/creditors"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/shared"
)

type fakeOrderStore struct {
	orders      map[int64]*Order
	items       map[int64][]*OrderItem
	outlets     map[int64]catalog.Outlet
	suppliers   map[int64]catalog.Supplier
	catalogRows map[catalog.ItemRef]catalog.Item
	stock       map[catalog.ItemRef]float64
	moves       []inventory.Movement
	journals    []accounting.PostingInput
	credits     []creditors.Entry
	nextID      int64
	nextItemID  int64
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:      map[int64]*Order{},
		items:       map[int64][]*OrderItem{},
		outlets:     map[int64]catalog.Outlet{1: {ID: 1, OrgID: 10, Name: "Central"}},
		suppliers:   map[int64]catalog.Supplier{},
		catalogRows: map[catalog.ItemRef]catalog.Item{},
		stock:       map[catalog.ItemRef]float64{},
	}
}

func (f *fakeOrderStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return f.withRollback(ctx, fn)
}

func (f *fakeOrderStore) WithSerializableTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return f.withRollback(ctx, fn)
}

// withRollback mirrors the repository's transaction semantics: an error
// from the callback discards every write made inside it.
func (f *fakeOrderStore) withRollback(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders := make(map[int64]*Order, len(f.orders))
	for id, o := range f.orders {
		copied := *o
		orders[id] = &copied
	}
	items := make(map[int64][]*OrderItem, len(f.items))
	for id, list := range f.items {
		copiedList := make([]*OrderItem, len(list))
		for i, it := range list {
			copied := *it
			copiedList[i] = &copied
		}
		items[id] = copiedList
	}
	stock := make(map[catalog.ItemRef]float64, len(f.stock))
	for ref, qty := range f.stock {
		stock[ref] = qty
	}
	moves, journals, credits := len(f.moves), len(f.journals), len(f.credits)
	nextID, nextItemID := f.nextID, f.nextItemID
	if err := fn(ctx, f); err != nil {
		f.orders, f.items, f.stock = orders, items, stock
		f.moves = f.moves[:moves]
		f.journals = f.journals[:journals]
		f.credits = f.credits[:credits]
		f.nextID, f.nextItemID = nextID, nextItemID
		return err
	}
	return nil
}

func (f *fakeOrderStore) GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, nil, shared.ErrNotFound
	}
	items := make([]OrderItem, 0, len(f.items[id]))
	for _, it := range f.items[id] {
		items = append(items, *it)
	}
	return *o, items, nil
}

func (f *fakeOrderStore) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderStore) GetOutlet(ctx context.Context, id int64) (catalog.Outlet, error) {
	o, ok := f.outlets[id]
	if !ok {
		return catalog.Outlet{}, shared.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetSupplier(ctx context.Context, id int64) (catalog.Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return catalog.Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (f *fakeOrderStore) GetItems(ctx context.Context, refs []catalog.ItemRef) (map[catalog.ItemRef]catalog.Item, error) {
	out := map[catalog.ItemRef]catalog.Item{}
	for _, ref := range refs {
		if item, ok := f.catalogRows[ref]; ok {
			out[ref] = item
		}
	}
	return out, nil
}

func (f *fakeOrderStore) InsertOrder(ctx context.Context, o Order) (int64, error) {
	f.nextID++
	o.ID = f.nextID
	o.CreatedAt = time.Now()
	f.orders[o.ID] = &o
	return o.ID, nil
}

func (f *fakeOrderStore) InsertItem(ctx context.Context, item OrderItem) error {
	f.nextItemID++
	item.ID = f.nextItemID
	f.items[item.OrderID] = append(f.items[item.OrderID], &item)
	return nil
}

func (f *fakeOrderStore) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return *o, nil
}

func (f *fakeOrderStore) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(f.items[orderID]))
	for _, it := range f.items[orderID] {
		items = append(items, *it)
	}
	return items, nil
}

func (f *fakeOrderStore) AddReceivedQty(ctx context.Context, orderID, itemID int64, qty float64) error {
	for _, it := range f.items[orderID] {
		if it.ID == itemID {
			it.QtyReceived += qty
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeOrderStore) SetStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	f.orders[orderID].Status = status
	return nil
}

func (f *fakeOrderStore) Apply(ctx context.Context, m inventory.Movement) error {
	if _, ok := f.catalogRows[m.Ref]; !ok {
		return shared.ErrNotFound
	}
	f.stock[m.Ref] += m.Qty
	f.moves = append(f.moves, m)
	return nil
}

func (f *fakeOrderStore) PostJournal(ctx context.Context, input accounting.PostingInput) (int64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	f.journals = append(f.journals, input)
	return int64(len(f.journals)), nil
}

func (f *fakeOrderStore) RecordCreditorEntry(ctx context.Context, e creditors.Entry) (creditors.Entry, error) {
	e.ID = int64(len(f.credits) + 1)
	f.credits = append(f.credits, e)
	return e, nil
}

func seedCatalog(store *fakeOrderStore) {
	store.suppliers[1] = catalog.Supplier{ID: 1, OrgID: 10, Name: "Acme Produce"}
	store.suppliers[2] = catalog.Supplier{ID: 2, OrgID: 10, Name: "Beans Co"}
	store.catalogRows[catalog.ProductRef(100)] = catalog.Item{
		Ref: catalog.ProductRef(100), OutletID: 1, Name: "Tomatoes", Unit: "kg", SupplierID: 1,
	}
	store.catalogRows[catalog.IngredientRef(200)] = catalog.Item{
		Ref: catalog.IngredientRef(200), OutletID: 1, Name: "Coffee Beans", Unit: "kg", SupplierID: 2,
	}
	store.catalogRows[catalog.ProductRef(300)] = catalog.Item{
		Ref: catalog.ProductRef(300), OutletID: 1, Name: "Orphan Item", Unit: "pc", SupplierID: 0,
	}
}

func staffCtx(outletID int64) context.Context {
	return shared.ContextWithIdentity(context.Background(), shared.Identity{
		UserID: 3, Name: "receiver", Role: shared.RoleStaff, OutletID: outletID, OrgID: 10,
	})
}

func TestBulkCreateGroupsBySupplier(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)

	orders, err := svc.CreateOrders(staffCtx(1), 1, []BulkItemInput{
		{Ref: catalog.ProductRef(100), Qty: 12},
		{Ref: catalog.IngredientRef(200), Qty: 5},
		{Ref: catalog.ProductRef(300), Qty: 7}, // no supplier, dropped
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	bySupplier := map[int64]Order{}
	for _, o := range orders {
		require.Equal(t, StatusDraft, o.Status)
		require.Equal(t, 0.0, o.Total)
		bySupplier[o.SupplierID] = o
	}
	require.Contains(t, bySupplier[1].SupplierMessage, "Tomatoes x12 kg")
	require.NotContains(t, bySupplier[1].SupplierMessage, "Coffee Beans")
	require.Contains(t, bySupplier[2].SupplierMessage, "Coffee Beans x5 kg")
	require.NotContains(t, bySupplier[2].SupplierMessage, "Orphan Item")

	// Unit costs start at zero on the auto path.
	for _, it := range store.items[bySupplier[1].ID] {
		require.Equal(t, 0.0, it.UnitCost)
	}
}

func TestBulkCreateNoResolvableSupplier(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)

	_, err := svc.CreateOrders(staffCtx(1), 1, []BulkItemInput{
		{Ref: catalog.ProductRef(300), Qty: 7},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestManualOrderTotals(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })

	order, err := svc.CreateOrder(staffCtx(1), CreateOrderInput{
		OutletID:   1,
		SupplierID: 1,
		Status:     StatusSent,
		Items: []ManualItemInput{
			{Ref: catalog.ProductRef(100), Qty: 10, UnitCost: 2.5},
			{Ref: catalog.IngredientRef(200), Qty: 4, UnitCost: 12},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusSent, order.Status)
	require.Equal(t, 73.0, order.Total)
	require.True(t, strings.HasSuffix(order.SupplierMessage, "2025-06-01"))

	_, err = svc.CreateOrder(staffCtx(1), CreateOrderInput{
		OutletID:   1,
		SupplierID: 1,
		Status:     StatusReceived,
		Items:      []ManualItemInput{{Ref: catalog.ProductRef(100), Qty: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func seedOrder(t *testing.T, store *fakeOrderStore, svc *Service, qty, unitCost float64) (Order, int64) {
	t.Helper()
	order, err := svc.CreateOrder(staffCtx(1), CreateOrderInput{
		OutletID:   1,
		SupplierID: 1,
		Status:     StatusSent,
		Items:      []ManualItemInput{{Ref: catalog.ProductRef(100), Qty: qty, UnitCost: unitCost}},
	})
	require.NoError(t, err)
	return order, store.items[order.ID][0].ID
}

func TestReceiveFullOrder(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	got, err := svc.ReceiveOrder(staffCtx(1), order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: 10}})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.Equal(t, 10.0, store.stock[catalog.ProductRef(100)])
	require.Len(t, store.moves, 1)
	require.Equal(t, inventory.MovePurchase, store.moves[0].Type)

	// One balanced journal: inventory asset against accounts payable.
	require.Len(t, store.journals, 1)
	lines := store.journals[0].Lines
	require.Equal(t, accounting.AccountInventoryAsset, lines[0].AccountCode)
	require.Equal(t, 30.0, lines[0].Debit)
	require.Equal(t, accounting.AccountAccountsPayable, lines[1].AccountCode)
	require.Equal(t, 30.0, lines[1].Credit)

	// Creditor ledger picked up the payable.
	require.Len(t, store.credits, 1)
	require.Equal(t, 30.0, store.credits[0].Credit)
	require.Equal(t, creditors.RefPurchaseOrder, store.credits[0].RefType)
	require.Equal(t, order.ID, store.credits[0].RefID)
}

func TestReceiveProgression(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	got, err := svc.ReceiveOrder(staffCtx(1), order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: 4}})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, got.Status)

	got, err = svc.ReceiveOrder(staffCtx(1), order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: 6}})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.Equal(t, 10.0, store.stock[catalog.ProductRef(100)])
	require.Equal(t, 10.0, store.items[order.ID][0].QtyReceived)
	require.Len(t, store.journals, 2)
}

func TestReceiveAuthorization(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	store.outlets[2] = catalog.Outlet{ID: 2, OrgID: 10, Name: "Branch"}
	svc := NewService(store, store, nil, nil)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	_, err := svc.ReceiveOrder(staffCtx(2), order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: 1}})
	require.ErrorIs(t, err, shared.ErrForbidden)

	admin := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 9, Role: shared.RoleAdmin, OrgID: 10})
	_, err = svc.ReceiveOrder(admin, order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: 1}})
	require.NoError(t, err)
}

type fakeIdempotency struct {
	keys map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]string{}}
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := f.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = module
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func TestReceiveRejectsReplayedKey(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	idem := newFakeIdempotency()
	svc := NewService(store, store, nil, nil).WithIdempotency(idem)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	_, err := svc.ReceiveOrder(staffCtx(1), order.ID, "rcv-1", []ReceiveLineInput{{ItemID: itemID, Qty: 4}})
	require.NoError(t, err)

	// The same key again must not book the goods twice.
	_, err = svc.ReceiveOrder(staffCtx(1), order.ID, "rcv-1", []ReceiveLineInput{{ItemID: itemID, Qty: 4}})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 4.0, store.stock[catalog.ProductRef(100)])
	require.Len(t, store.journals, 1)

	_, err = svc.ReceiveOrder(staffCtx(1), order.ID, "rcv-2", []ReceiveLineInput{{ItemID: itemID, Qty: 6}})
	require.NoError(t, err)
	require.Equal(t, 10.0, store.stock[catalog.ProductRef(100)])
}

func TestReceiveFailureReleasesKeyAndRollsBack(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	idem := newFakeIdempotency()
	svc := NewService(store, store, nil, nil).WithIdempotency(idem)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	// Second line names an unknown item: the whole receive fails, the
	// first line's stock move is rolled back and the key is released.
	_, err := svc.ReceiveOrder(staffCtx(1), order.ID, "rcv-1", []ReceiveLineInput{
		{ItemID: itemID, Qty: 4},
		{ItemID: 999, Qty: 1},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.moves)
	require.Empty(t, store.journals)
	require.Zero(t, store.stock[catalog.ProductRef(100)])
	require.NotContains(t, idem.keys, "rcv-1")

	// A retry with the same key succeeds.
	got, err := svc.ReceiveOrder(staffCtx(1), order.ID, "rcv-1", []ReceiveLineInput{{ItemID: itemID, Qty: 10}})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.Equal(t, 10.0, store.stock[catalog.ProductRef(100)])
}

func TestReceiveValidation(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := NewService(store, store, nil, nil)
	order, itemID := seedOrder(t, store, svc, 10, 3)

	_, err := svc.ReceiveOrder(staffCtx(1), order.ID, "", nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveOrder(staffCtx(1), order.ID, "", []ReceiveLineInput{{ItemID: itemID, Qty: -1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveOrder(staffCtx(1), order.ID, "", []ReceiveLineInput{{ItemID: 999, Qty: 1}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
