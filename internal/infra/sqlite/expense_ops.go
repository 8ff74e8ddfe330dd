package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/google/uuid"
)

const expenseColumns = `id, date, store_name, amount, tax_amount, category,
	subcategory, payment_method, receipt_image_path, source, matched,
	matched_ledger_id, created_at, updated_at`

// ExpenseFilter narrows ListExpenses results. Zero values mean "no filter".
type ExpenseFilter struct {
	StoreName  string // case-insensitive exact match
	DatePrefix string // "2024" or "2024-03" to restrict by year/month
	Matched    *bool
	Limit      int
}

// SaveExpense inserts a new expense row. A missing ID is generated;
// timestamps are filled in.
func (s *Store) SaveExpense(ctx context.Context, e *domain.Expense) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.PaymentMethod == "" {
		e.PaymentMethod = domain.PaymentCash
	}
	if e.Source == "" {
		e.Source = domain.SourceManual
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.Date, e.StoreName, e.Amount, nullInt64(e.TaxAmount), e.Category,
		nullString(e.Subcategory), string(e.PaymentMethod),
		nullString(e.ReceiptImagePath), string(e.Source), boolToInt(e.Matched),
		nullString(e.MatchedLedgerID),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("SaveExpense: insert: %w", err)
	}
	return nil
}

// GetExpense returns a single expense by ID.
func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE id = ?
	`, id)

	e, err := scanExpense(row)
	if err != nil {
		return nil, fmt.Errorf("GetExpense: %w", err)
	}
	return e, nil
}

// ListExpenses returns expenses matching the filter, newest first.
func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]domain.Expense, error) {
	var (
		conds  []string
		params []any
	)
	if f.StoreName != "" {
		conds = append(conds, "store_name = ? COLLATE NOCASE")
		params = append(params, strings.TrimSpace(f.StoreName))
	}
	if f.DatePrefix != "" {
		conds = append(conds, "date LIKE ?")
		params = append(params, f.DatePrefix+"%")
	}
	if f.Matched != nil {
		conds = append(conds, "matched = ?")
		params = append(params, boolToInt(*f.Matched))
	}

	q := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		params = append(params, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: scan: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListExpenses: iterate: %w", err)
	}
	return out, nil
}

// UnmatchedExpenses returns expenses that have not been reconciled yet,
// oldest first so long-pending entries surface before fresh ones.
func (s *Store) UnmatchedExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE matched = 0
		ORDER BY date ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("UnmatchedExpenses: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("UnmatchedExpenses: scan: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("UnmatchedExpenses: iterate: %w", err)
	}
	return out, nil
}

// expenseUpdatableFields whitelists columns UpdateExpense may touch.
// Match-state transitions go through MatchExpenseToLedger instead.
var expenseUpdatableFields = map[string]bool{
	"date":           true,
	"store_name":     true,
	"amount":         true,
	"tax_amount":     true,
	"category":       true,
	"subcategory":    true,
	"payment_method": true,
	"matched":        true,
}

// UpdateExpense sets the given columns on an expense. An unknown column name
// is a caller bug and returns an error immediately, before any write.
func (s *Store) UpdateExpense(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var (
		sets   []string
		params []any
	)
	for col, v := range fields {
		if !expenseUpdatableFields[col] {
			return fmt.Errorf("UpdateExpense: invalid field %q", col)
		}
		sets = append(sets, col+" = ?")
		params = append(params, v)
	}
	sets = append(sets, "updated_at = ?")
	params = append(params, time.Now().Format(time.RFC3339), id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?", params...)
	if err != nil {
		return fmt.Errorf("UpdateExpense: exec: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("UpdateExpense: expense %s not found", id)
	}
	return nil
}

func scanExpense(r rowScanner) (*domain.Expense, error) {
	var (
		e           domain.Expense
		taxAmount   sql.NullInt64
		subcategory sql.NullString
		imagePath   sql.NullString
		matchedID   sql.NullString
		payment     string
		source      string
		matched     int
		createdAt   string
		updatedAt   string
	)
	err := r.Scan(
		&e.ID, &e.Date, &e.StoreName, &e.Amount, &taxAmount, &e.Category,
		&subcategory, &payment, &imagePath, &source, &matched,
		&matchedID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if taxAmount.Valid {
		e.TaxAmount = &taxAmount.Int64
	}
	if subcategory.Valid {
		e.Subcategory = &subcategory.String
	}
	if imagePath.Valid {
		e.ReceiptImagePath = &imagePath.String
	}
	if matchedID.Valid {
		e.MatchedLedgerID = &matchedID.String
	}
	e.PaymentMethod = domain.ParsePaymentMethod(payment)
	e.Source = domain.ExpenseSource(source)
	e.Matched = matched != 0
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		e.UpdatedAt = ts
	}
	return &e, nil
}
