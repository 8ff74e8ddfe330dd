package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/expensebot/internal/domain"
)

const ledgerColumns = `external_id, date, description, amount, source_account,
	category_major, category_minor, memo, is_transfer, is_calculation_target,
	matched_expense_id, created_at`

// SaveLedgerTransaction inserts a ledger transaction if its external_id has
// not been seen before. Returns true when a new row was inserted, false when
// the ID already existed. Re-importing the same CSV is therefore idempotent.
func (s *Store) SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) (bool, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_transactions (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ExternalID, tx.Date, tx.Description, tx.Amount, tx.SourceAccount,
		tx.CategoryMajor, tx.CategoryMinor, tx.Memo,
		boolToInt(tx.IsTransfer), boolToInt(tx.IsCalculationTarget),
		nullString(tx.MatchedExpenseID), tx.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("SaveLedgerTransaction: insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SaveLedgerTransaction: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetLedgerTransaction returns a ledger transaction by external ID,
// or sql.ErrNoRows wrapped when absent.
func (s *Store) GetLedgerTransaction(ctx context.Context, externalID string) (*domain.LedgerTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_transactions WHERE external_id = ?
	`, externalID)

	tx, err := scanLedger(row)
	if err != nil {
		return nil, fmt.Errorf("GetLedgerTransaction: %w", err)
	}
	return tx, nil
}

// LedgerCandidatesInWindow returns unmatched spending transactions whose
// absolute amount equals absAmount and whose date falls within ±days of the
// given date. Transfers and non-calculation-target rows are excluded.
func (s *Store) LedgerCandidatesInWindow(ctx context.Context, date string, absAmount int64, days int) ([]domain.LedgerTransaction, error) {
	base, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, nil // unparsable expense date: no window candidates
	}
	from := base.AddDate(0, 0, -days).Format(domain.DateLayout)
	to := base.AddDate(0, 0, days).Format(domain.DateLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_transactions
		WHERE date BETWEEN ? AND ?
		  AND ABS(amount) = ?
		  AND amount < 0
		  AND matched_expense_id IS NULL
		  AND is_transfer = 0
		  AND is_calculation_target = 1
		ORDER BY date DESC
	`, from, to, absAmount)
	if err != nil {
		return nil, fmt.Errorf("LedgerCandidatesInWindow: query: %w", err)
	}
	defer rows.Close()

	return collectLedger(rows, "LedgerCandidatesInWindow")
}

// LedgerCandidatesByAmount returns unmatched spending transactions matching
// the absolute amount with no date constraint, newest first, capped at limit.
func (s *Store) LedgerCandidatesByAmount(ctx context.Context, absAmount int64, limit int) ([]domain.LedgerTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_transactions
		WHERE ABS(amount) = ?
		  AND amount < 0
		  AND matched_expense_id IS NULL
		  AND is_transfer = 0
		  AND is_calculation_target = 1
		ORDER BY date DESC
		LIMIT ?
	`, absAmount, limit)
	if err != nil {
		return nil, fmt.Errorf("LedgerCandidatesByAmount: query: %w", err)
	}
	defer rows.Close()

	return collectLedger(rows, "LedgerCandidatesByAmount")
}

// MatchExpenseToLedger links an expense and a ledger transaction, updating
// both sides in a single database transaction so neither row is left
// pointing at a partner that does not point back.
func (s *Store) MatchExpenseToLedger(ctx context.Context, expenseID, externalID string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MatchExpenseToLedger: begin: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now().Format(time.RFC3339)

	res, err := dbTx.ExecContext(ctx, `
		UPDATE expenses SET matched = 1, matched_ledger_id = ?, updated_at = ?
		WHERE id = ? AND matched = 0
	`, externalID, now, expenseID)
	if err != nil {
		return fmt.Errorf("MatchExpenseToLedger: update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("MatchExpenseToLedger: expense %s not found or already matched", expenseID)
	}

	res, err = dbTx.ExecContext(ctx, `
		UPDATE ledger_transactions SET matched_expense_id = ?
		WHERE external_id = ? AND matched_expense_id IS NULL
	`, expenseID, externalID)
	if err != nil {
		return fmt.Errorf("MatchExpenseToLedger: update ledger: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("MatchExpenseToLedger: ledger %s not found or already matched", externalID)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("MatchExpenseToLedger: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(r rowScanner) (*domain.LedgerTransaction, error) {
	var (
		tx         domain.LedgerTransaction
		transfer   int
		calcTarget int
		matchedID  sql.NullString
		createdAt  string
	)
	err := r.Scan(
		&tx.ExternalID, &tx.Date, &tx.Description, &tx.Amount, &tx.SourceAccount,
		&tx.CategoryMajor, &tx.CategoryMinor, &tx.Memo, &transfer, &calcTarget,
		&matchedID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	tx.IsTransfer = transfer != 0
	tx.IsCalculationTarget = calcTarget != 0
	if matchedID.Valid {
		tx.MatchedExpenseID = &matchedID.String
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		tx.CreatedAt = ts
	}
	return &tx, nil
}

func collectLedger(rows *sql.Rows, op string) ([]domain.LedgerTransaction, error) {
	var out []domain.LedgerTransaction
	for rows.Next() {
		tx, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
