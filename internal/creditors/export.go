package creditors

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var exportHeader = []string{"Date", "Particulars", "Debit", "Credit", "Balance", "Payment Method", "Paid By", "Notes"}

// ExportLedger flattens a supplier's ledger to CSV: supplier name line,
// generation timestamp line, blank separator, fixed header, one row per
// entry.
func (s *Service) ExportLedger(ctx context.Context, w io.Writer, outletID, supplierID int64, filter LedgerFilter) error {
	supplier, err := s.catalog.GetSupplier(ctx, supplierID)
	if err != nil {
		return err
	}
	entries, err := s.repo.ListEntries(ctx, outletID, supplierID, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{supplier.Name}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Generated at " + s.now().Format(time.RFC3339)}); err != nil {
		return err
	}
	if err := cw.Write([]string{""}); err != nil {
		return err
	}
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Date.Format("2006-01-02"),
			e.Particulars,
			money(e.Debit),
			money(e.Credit),
			money(e.Balance),
			e.PaymentMethod,
			e.PaidByName,
			e.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
