package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forkline-erp/forkline/internal/shared"
)

// Well-known account codes posted by the engines.
const (
	AccountInventoryAsset  = "1400"
	AccountAccountsPayable = "2100"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountCode string
	Debit       float64
	Credit      float64
}

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountCode string
	Debit       float64
	Credit      float64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate ensures the posting is balanced double-entry.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return fmt.Errorf("%w: journal needs at least two lines", shared.ErrValidation)
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", shared.ErrValidation, idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return fmt.Errorf("%w: journal does not balance (debit %.2f, credit %.2f)", shared.ErrValidation, debit, credit)
	}
	if in.SourceModule == "" {
		return fmt.Errorf("%w: source module required", shared.ErrValidation)
	}
	if in.SourceID == uuid.Nil {
		return fmt.Errorf("%w: source id required", shared.ErrValidation)
	}
	return nil
}
