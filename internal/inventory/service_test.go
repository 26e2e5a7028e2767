package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/shared"
)

type fakeMoveLog struct {
	moves   []Movement
	applied []StockMove
}

// WithTx mirrors the repository's transaction semantics: an error from
// the callback discards every write made inside it.
func (f *fakeMoveLog) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	moves := len(f.moves)
	applied := len(f.applied)
	if err := fn(ctx, f); err != nil {
		f.moves = f.moves[:moves]
		f.applied = f.applied[:applied]
		return err
	}
	return nil
}

func (f *fakeMoveLog) Apply(ctx context.Context, m Movement) error {
	if !m.Ref.Valid() {
		return shared.ErrValidation
	}
	if m.Qty == 0 {
		return shared.ErrValidation
	}
	f.moves = append(f.moves, m)
	f.applied = append(f.applied, StockMove{
		ID:       int64(len(f.applied) + 1),
		OutletID: m.OutletID,
		Ref:      m.Ref,
		Qty:      m.Qty,
		Type:     m.Type,
		Date:     m.Date,
		Note:     m.Note,
	})
	return nil
}

func (f *fakeMoveLog) ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error) {
	out := []StockMove{}
	for _, m := range f.applied {
		if filter.OutletID != 0 && m.OutletID != filter.OutletID {
			continue
		}
		if filter.Ref.ID != 0 && m.Ref != filter.Ref {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func TestPostAdjustmentDefaultsType(t *testing.T) {
	repo := &fakeMoveLog{}
	svc := NewService(repo, nil)

	err := svc.PostAdjustment(context.Background(), Movement{
		OutletID: 1,
		Ref:      catalog.ProductRef(100),
		Qty:      -2,
		Note:     "stocktake correction",
	})
	require.NoError(t, err)
	require.Len(t, repo.moves, 1)
	require.Equal(t, MoveAdjustment, repo.moves[0].Type)
	require.Equal(t, -2.0, repo.moves[0].Qty)
}

func TestPostAdjustmentRequiresOutlet(t *testing.T) {
	repo := &fakeMoveLog{}
	svc := NewService(repo, nil)

	err := svc.PostAdjustment(context.Background(), Movement{
		Ref: catalog.ProductRef(100),
		Qty: 1,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.moves)
}

func TestPostAdjustmentWasteKeepsType(t *testing.T) {
	repo := &fakeMoveLog{}
	svc := NewService(repo, nil)

	err := svc.PostAdjustment(context.Background(), Movement{
		OutletID: 1,
		Ref:      catalog.IngredientRef(200),
		Qty:      -0.5,
		Type:     MoveWaste,
		Date:     time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Note:     "spoiled batch",
	})
	require.NoError(t, err)
	require.Equal(t, MoveWaste, repo.moves[0].Type)
}

func TestPostAdjustmentCountsMetric(t *testing.T) {
	repo := &fakeMoveLog{}
	counts := map[string]int{}
	svc := NewService(repo, nil).WithMetrics(moveCounter(counts))

	require.NoError(t, svc.PostAdjustment(context.Background(), Movement{
		OutletID: 1, Ref: catalog.ProductRef(100), Qty: 3,
	}))
	require.Error(t, svc.PostAdjustment(context.Background(), Movement{
		OutletID: 1, Ref: catalog.ProductRef(100), Qty: 0,
	}))
	require.Equal(t, map[string]int{"ADJUSTMENT": 1}, counts)
}

type moveCounter map[string]int

func (c moveCounter) ObserveStockMove(moveType string) { c[moveType]++ }

func TestListMovesFilters(t *testing.T) {
	repo := &fakeMoveLog{}
	svc := NewService(repo, nil)

	require.NoError(t, svc.PostAdjustment(context.Background(), Movement{OutletID: 1, Ref: catalog.ProductRef(100), Qty: 5}))
	require.NoError(t, svc.PostAdjustment(context.Background(), Movement{OutletID: 2, Ref: catalog.ProductRef(100), Qty: 3}))
	require.NoError(t, svc.PostAdjustment(context.Background(), Movement{OutletID: 1, Ref: catalog.IngredientRef(200), Qty: -1, Type: MoveWaste}))

	all, err := svc.ListMoves(context.Background(), MoveFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	outletOne, err := svc.ListMoves(context.Background(), MoveFilter{OutletID: 1})
	require.NoError(t, err)
	require.Len(t, outletOne, 2)

	ingredient, err := svc.ListMoves(context.Background(), MoveFilter{Ref: catalog.IngredientRef(200)})
	require.NoError(t, err)
	require.Len(t, ingredient, 1)
	require.Equal(t, MoveWaste, ingredient[0].Type)
}
