package accounting

import (
	"context"
	"fmt"

	"github.com/forkline-erp/forkline/internal/shared"
)

// RepositoryPort abstracts journal storage for Service.
type RepositoryPort interface {
	Post(ctx context.Context, input PostingInput) (int64, error)
	List(ctx context.Context, limit int) ([]JournalEntry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes direct journal posting. The engines post through
// PostEntryTx inside their own transactions instead.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// PostJournal writes one balanced journal entry.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (int64, error) {
	actor := shared.IdentityFromContext(ctx)
	if input.PostedBy == 0 {
		input.PostedBy = actor.UserID
	}
	id, err := s.repo.Post(ctx, input)
	if err != nil {
		return 0, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:   actor.UserID,
			ActorName: actor.Name,
			Action:    "accounting.post",
			Entity:    "journal_entry",
			EntityID:  fmt.Sprintf("%d", id),
			Outcome:   shared.OutcomeSuccess,
			Meta:      map[string]any{"source": input.SourceModule},
		})
	}
	return id, nil
}

// ListJournal reads recent journal entries with their lines.
func (s *Service) ListJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}
