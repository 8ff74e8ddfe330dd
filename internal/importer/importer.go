package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/rs/zerolog"
)

// MoneyForward ME CSV column headers (Japanese header → internal field).
const (
	colCalculationTarget = "計算対象"
	colDate              = "日付"
	colDescription       = "内容"
	colAmount            = "金額（円）"
	colSourceAccount     = "保有金融機関"
	colCategoryMajor     = "大項目"
	colCategoryMinor     = "中項目"
	colMemo              = "メモ"
	colTransfer          = "振替"
	colExternalID        = "ID"
)

// dateLayouts are the formats the bank export has been seen to use.
var dateLayouts = []string{"2006/01/02", "2006-01-02", "2006年01月02日"}

// Result summarizes one CSV import.
type Result struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Store is the persistence surface the importer needs.
type Store interface {
	SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) (bool, error)
	StartImportRun(ctx context.Context, fileName string) (string, error)
	MarkImportRunSucceeded(ctx context.Context, runID string, imported, skipped, errorCount int) error
	MarkImportRunFailed(ctx context.Context, runID string, runErr error) error
}

// Importer parses MoneyForward ME CSV exports into the ledger table.
type Importer struct {
	store Store
	log   zerolog.Logger
}

// New creates an Importer.
func New(store Store, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import reads the CSV at path and persists its rows idempotently.
// Row-level problems (empty ID, bad date, bad amount) are skipped and, where
// an external ID is known, recorded as error strings; they never abort the
// import. Only file-level problems (unreadable file, unknown encoding,
// missing header) return an error.
func (i *Importer) Import(ctx context.Context, path string) (Result, error) {
	var res Result

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("Import: read file: %w", err)
	}

	runID, err := i.store.StartImportRun(ctx, filepath.Base(path))
	if err != nil {
		return res, fmt.Errorf("Import: start import run: %w", err)
	}

	content, encoding, err := decodeContent(data)
	if err != nil {
		i.failRun(ctx, runID, err)
		return res, fmt.Errorf("Import: %w", err)
	}
	i.log.Info().Str("encoding", encoding).Str("file", path).Msg("CSV encoding detected")

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		wrapped := fmt.Errorf("Import: read CSV header: %w", err)
		i.failRun(ctx, runID, wrapped)
		return res, wrapped
	}
	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.TrimSpace(name)] = idx
	}
	if _, ok := cols[colExternalID]; !ok {
		wrapped := fmt.Errorf("Import: CSV header is missing the %s column", colExternalID)
		i.failRun(ctx, runID, wrapped)
		return res, wrapped
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// One bad row must not swallow the rest of the file.
			msg := fmt.Sprintf("CSV row %d parse failed: %v", parseErr.Line, parseErr.Err)
			i.log.Warn().Msg(msg)
			res.Errors = append(res.Errors, msg)
			res.Skipped++
			continue
		}
		if err != nil {
			wrapped := fmt.Errorf("Import: read CSV row: %w", err)
			i.failRun(ctx, runID, wrapped)
			return res, wrapped
		}

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		// Flags default when the export omits the whole column; an empty
		// cell in a present column means false, as in the bank's export.
		flag := func(name, fallback string) bool {
			if idx, ok := cols[name]; ok && idx < len(record) {
				return parseFlag(record[idx])
			}
			return parseFlag(fallback)
		}

		externalID := field(colExternalID)
		if externalID == "" {
			res.Skipped++
			continue
		}

		date, ok := normalizeDate(field(colDate))
		if !ok {
			msg := fmt.Sprintf("date parse failed for ID=%s: %q", externalID, field(colDate))
			i.log.Warn().Msg(msg)
			res.Errors = append(res.Errors, msg)
			res.Skipped++
			continue
		}

		amount, err := parseAmount(field(colAmount))
		if err != nil {
			msg := fmt.Sprintf("amount parse failed for ID=%s: %q", externalID, field(colAmount))
			i.log.Warn().Msg(msg)
			res.Errors = append(res.Errors, msg)
			res.Skipped++
			continue
		}

		tx := &domain.LedgerTransaction{
			ExternalID:          externalID,
			Date:                date,
			Description:         field(colDescription),
			Amount:              amount,
			SourceAccount:       field(colSourceAccount),
			CategoryMajor:       field(colCategoryMajor),
			CategoryMinor:       field(colCategoryMinor),
			Memo:                field(colMemo),
			IsTransfer:          flag(colTransfer, "0"),
			IsCalculationTarget: flag(colCalculationTarget, "1"),
		}

		inserted, err := i.store.SaveLedgerTransaction(ctx, tx)
		if err != nil {
			wrapped := fmt.Errorf("Import: save transaction %s: %w", externalID, err)
			i.failRun(ctx, runID, wrapped)
			return res, wrapped
		}
		if inserted {
			res.Imported++
		} else {
			res.Skipped++ // duplicate external_id already in DB
		}
	}

	if err := i.store.MarkImportRunSucceeded(ctx, runID, res.Imported, res.Skipped, len(res.Errors)); err != nil {
		i.log.Error().Err(err).Str("run_id", runID).Msg("could not finish import run")
	}

	i.log.Info().
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Msg("CSV import done")
	return res, nil
}

func (i *Importer) failRun(ctx context.Context, runID string, runErr error) {
	if err := i.store.MarkImportRunFailed(ctx, runID, runErr); err != nil {
		i.log.Error().Err(err).Str("run_id", runID).Msg("could not mark import run failed")
	}
}

// parseAmount converts "1,234" / "-1,234" to an integer amount.
func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return n, nil
}

// parseFlag interprets the CSV's boolean markers ("1", "○", "true").
func parseFlag(s string) bool {
	switch strings.TrimSpace(s) {
	case "1", "○", "true", "True", "TRUE":
		return true
	default:
		return false
	}
}

// normalizeDate converts the known date formats to YYYY-MM-DD.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(domain.DateLayout), true
		}
	}
	return "", false
}
