package accounting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/internal/shared"
)

type fakeJournal struct {
	posted []PostingInput
}

func (f *fakeJournal) Post(ctx context.Context, input PostingInput) (int64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	f.posted = append(f.posted, input)
	return int64(len(f.posted)), nil
}

func (f *fakeJournal) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	entries := make([]JournalEntry, 0, len(f.posted))
	for i, in := range f.posted {
		entries = append(entries, JournalEntry{
			ID:           int64(i + 1),
			Date:         in.Date,
			SourceModule: in.SourceModule,
			SourceID:     in.SourceID,
			Memo:         in.Memo,
			PostedBy:     in.PostedBy,
		})
	}
	return entries, nil
}

func TestPostJournalDefaultsPostedBy(t *testing.T) {
	repo := &fakeJournal{}
	svc := NewService(repo, nil)

	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 42, Name: "Sam"})
	id, err := svc.PostJournal(ctx, validPosting())
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Equal(t, int64(42), repo.posted[0].PostedBy)
}

func TestPostJournalKeepsExplicitPostedBy(t *testing.T) {
	repo := &fakeJournal{}
	svc := NewService(repo, nil)

	in := validPosting()
	in.PostedBy = 7
	ctx := shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 42})
	_, err := svc.PostJournal(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(7), repo.posted[0].PostedBy)
}

func TestPostJournalRejectsUnbalanced(t *testing.T) {
	repo := &fakeJournal{}
	svc := NewService(repo, nil)

	in := validPosting()
	in.Lines[0].Debit = 100
	_, err := svc.PostJournal(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.posted)
}
