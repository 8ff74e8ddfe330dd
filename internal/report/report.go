// Package report renders expense summaries as plain text and exports
// annual data as CSV for accounting software.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/dvloznov/expensebot/internal/infra/sqlite"
)

// Store provides the aggregates the reports are built from.
type Store interface {
	CategoryTotals(ctx context.Context, datePrefix string) ([]sqlite.CategoryTotal, error)
	MatchedCounts(ctx context.Context, datePrefix string) (matched, total int, err error)
	MonthlyTotals(ctx context.Context, year int) (map[string]int64, error)
	ListExpenses(ctx context.Context, f sqlite.ExpenseFilter) ([]domain.Expense, error)
}

type Generator struct {
	store Store
}

func New(store Store) *Generator {
	return &Generator{store: store}
}

// Monthly renders a per-category breakdown for one month.
func (g *Generator) Monthly(ctx context.Context, year, month int) (string, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)

	totals, err := g.store.CategoryTotals(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("monthly report: %w", err)
	}
	matched, count, err := g.store.MatchedCounts(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("monthly report: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d年%d月 経費レポート\n\n", year, month)
	writeCategoryLines(&b, totals)
	fmt.Fprintf(&b, "\n照合済み: %d/%d件\n", matched, count)
	return b.String(), nil
}

// Annual renders month-by-month totals plus the year's category breakdown.
func (g *Generator) Annual(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("%04d", year)

	byMonth, err := g.store.MonthlyTotals(ctx, year)
	if err != nil {
		return "", fmt.Errorf("annual report: %w", err)
	}
	totals, err := g.store.CategoryTotals(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("annual report: %w", err)
	}
	matched, count, err := g.store.MatchedCounts(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("annual report: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d年 年間経費レポート\n\n", year)

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		fmt.Fprintf(&b, "%s月: %s\n", strings.TrimPrefix(m, prefix+"-"), formatYen(byMonth[m]))
	}

	b.WriteString("\n勘定科目別:\n")
	writeCategoryLines(&b, totals)
	fmt.Fprintf(&b, "\n照合済み: %d/%d件\n", matched, count)
	return b.String(), nil
}

func writeCategoryLines(b *strings.Builder, totals []sqlite.CategoryTotal) {
	var sum int64
	for _, ct := range totals {
		fmt.Fprintf(b, "%s: %s (%d件)\n", ct.Category, formatYen(ct.Total), ct.Count)
		sum += ct.Total
	}
	fmt.Fprintf(b, "合計: %s\n", formatYen(sum))
}

var csvHeader = []string{"日付", "店名", "金額", "税額", "勘定科目", "補助科目", "支払方法", "照合済み"}

// ExportAnnualCSV writes the year's expenses to path. The file starts
// with a UTF-8 BOM so Excel opens the Japanese text correctly.
func (g *Generator) ExportAnnualCSV(ctx context.Context, year int, path string) error {
	expenses, err := g.store.ListExpenses(ctx, sqlite.ExpenseFilter{DatePrefix: fmt.Sprintf("%04d", year)})
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	// Store order is newest first; accountants read oldest first.
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].Date < expenses[j].Date })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	for _, e := range expenses {
		tax := ""
		if e.TaxAmount != nil {
			tax = strconv.FormatInt(*e.TaxAmount, 10)
		}
		sub := ""
		if e.Subcategory != nil {
			sub = *e.Subcategory
		}
		matched := "0"
		if e.Matched {
			matched = "1"
		}
		row := []string{
			e.Date,
			e.StoreName,
			strconv.FormatInt(e.Amount, 10),
			tax,
			e.Category,
			sub,
			string(e.PaymentMethod),
			matched,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}

// formatYen renders an amount as "¥1,234,567".
func formatYen(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("¥")
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
