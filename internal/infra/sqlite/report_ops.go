package sqlite

import (
	"context"
	"fmt"
)

// CategoryTotal is an aggregate of expenses sharing a category.
type CategoryTotal struct {
	Category string
	Total    int64
	Count    int
}

// CategoryTotals sums expenses per category for dates starting with
// datePrefix ("2024" for a year, "2024-03" for a month), largest first.
func (s *Store) CategoryTotals(ctx context.Context, datePrefix string) ([]CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, SUM(amount) AS total, COUNT(*) AS cnt
		FROM expenses
		WHERE date LIKE ?
		GROUP BY category
		ORDER BY total DESC
	`, datePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("CategoryTotals: query: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, fmt.Errorf("CategoryTotals: scan: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CategoryTotals: iterate: %w", err)
	}
	return out, nil
}

// MatchedCounts returns how many expenses under datePrefix have been
// reconciled against the ledger, along with the total count.
func (s *Store) MatchedCounts(ctx context.Context, datePrefix string) (matched, total int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(matched), 0), COUNT(*)
		FROM expenses
		WHERE date LIKE ?
	`, datePrefix+"%").Scan(&matched, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("MatchedCounts: query: %w", err)
	}
	return matched, total, nil
}

// MonthlyTotals returns expense sums keyed by month ("2024-03") for a year.
func (s *Store) MonthlyTotals(ctx context.Context, year int) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS month, SUM(amount)
		FROM expenses
		WHERE date LIKE ?
		GROUP BY month
		ORDER BY month
	`, fmt.Sprintf("%04d-%%", year))
	if err != nil {
		return nil, fmt.Errorf("MonthlyTotals: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			month string
			total int64
		)
		if err := rows.Scan(&month, &total); err != nil {
			return nil, fmt.Errorf("MonthlyTotals: scan: %w", err)
		}
		out[month] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MonthlyTotals: iterate: %w", err)
	}
	return out, nil
}
