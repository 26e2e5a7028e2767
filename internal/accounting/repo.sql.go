package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostEntryTx validates and writes a journal entry with its lines
// inside the caller's transaction. Engines use this so stock mutations
// and their ledger postings commit or roll back together.
func PostEntryTx(ctx context.Context, tx pgx.Tx, input PostingInput) (int64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, source_module, source_id, memo, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, date, input.SourceModule, input.SourceID, input.Memo, nullInt(input.PostedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range input.Lines {
		if _, err := tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_code, debit, credit)
VALUES ($1,$2,$3,$4)`, id, line.AccountCode, line.Debit, line.Credit); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Repository persists journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Post writes a journal entry in its own transaction.
func (r *Repository) Post(ctx context.Context, input PostingInput) (int64, error) {
	if r == nil {
		return 0, errors.New("accounting repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, err
	}
	id, err := PostEntryTx(ctx, tx, input)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	return id, tx.Commit(ctx)
}

// List reads journal entries with lines, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_date, source_module, source_id, memo, COALESCE(posted_by, 0), posted_at
FROM journal_entries ORDER BY posted_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.PostedBy, &e.PostedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := r.linesFor(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

func (r *Repository) linesFor(ctx context.Context, journalID int64) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, journal_id, account_code, debit, credit FROM journal_lines WHERE journal_id=$1 ORDER BY id`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountCode, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
