package inventory

import (
	"context"
	"fmt"

	"github.com/forkline-erp/forkline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts recorded stock movements.
type MetricsPort interface {
	ObserveStockMove(moveType string)
}

// Service coordinates manual inventory operations. Transfer and
// purchase flows mutate stock through ApplyTx inside their own
// transactions.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

// PostAdjustment applies a manual correction, positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, m Movement) error {
	if m.Type == "" {
		m.Type = MoveAdjustment
	}
	if m.OutletID == 0 {
		return fmt.Errorf("%w: outlet required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Apply(ctx, m)
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveStockMove(string(m.Type))
	}
	if s.audit != nil {
		actor := shared.IdentityFromContext(ctx)
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:   actor.UserID,
			ActorName: actor.Name,
			Action:    "inventory.adjust",
			Entity:    "stock_move",
			EntityID:  m.Ref.String(),
			Meta: map[string]any{
				"outlet_id": m.OutletID,
				"qty":       m.Qty,
				"note":      m.Note,
			},
		})
	}
	return nil
}

// ListMoves reads the movement log.
func (s *Service) ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error) {
	return s.repo.ListMoves(ctx, filter)
}
