package accounting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/forkline-erp/forkline/internal/shared"
)

func validPosting() PostingInput {
	return PostingInput{
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		SourceModule: "procurement",
		SourceID:     uuid.New(),
		Memo:         "Goods receipt PO #12",
		Lines: []PostingLineInput{
			{AccountCode: AccountInventoryAsset, Debit: 150},
			{AccountCode: AccountAccountsPayable, Credit: 150},
		},
	}
}

func TestPostingValidateBalanced(t *testing.T) {
	require.NoError(t, validPosting().Validate())
}

func TestPostingValidateRejectsImbalance(t *testing.T) {
	in := validPosting()
	in.Lines[1].Credit = 149.99
	require.ErrorIs(t, in.Validate(), shared.ErrValidation)
}

func TestPostingValidateToleratesRoundingNoise(t *testing.T) {
	in := validPosting()
	in.Lines[0].Debit = 0.1 + 0.2
	in.Lines[1].Credit = 0.3
	require.NoError(t, in.Validate())
}

func TestPostingValidateLineRules(t *testing.T) {
	cases := map[string]func(*PostingInput){
		"single line":      func(in *PostingInput) { in.Lines = in.Lines[:1] },
		"missing account":  func(in *PostingInput) { in.Lines[0].AccountCode = "" },
		"negative debit":   func(in *PostingInput) { in.Lines[0].Debit = -150 },
		"both sides":       func(in *PostingInput) { in.Lines[0].Credit = 150 },
		"no source module": func(in *PostingInput) { in.SourceModule = "" },
		"nil source id":    func(in *PostingInput) { in.SourceID = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validPosting()
			mutate(&in)
			require.ErrorIs(t, in.Validate(), shared.ErrValidation)
		})
	}
}
