// Package receipt turns receipt photos into structured expense data via
// model OCR. Output fields the model cannot read degrade to fallbacks
// instead of failing the scan.
package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expensebot/internal/domain"
)

// FallbackStoreName marks a receipt whose store could not be read.
const FallbackStoreName = "不明"

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Scanner performs OCR over raw image bytes and returns the model's
// loosely structured answer.
type Scanner interface {
	ScanReceipt(ctx context.Context, imageData []byte, mimeType string) (map[string]interface{}, error)
}

type Processor struct {
	scanner Scanner
	log     zerolog.Logger
}

func New(scanner Scanner, log zerolog.Logger) *Processor {
	return &Processor{scanner: scanner, log: log}
}

// Scan OCRs the image at path. Only an unreadable file is an error;
// model failures and malformed answers produce a fallback receipt.
func (p *Processor) Scan(ctx context.Context, path string) (domain.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallbackReceipt(), fmt.Errorf("read receipt image: %w", err)
	}

	if p.scanner == nil {
		p.log.Error().Str("path", path).Msg("no scanner configured, cannot OCR receipt")
		return fallbackReceipt(), nil
	}

	raw, err := p.scanner.ScanReceipt(ctx, data, mimeTypeFor(path))
	if err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("receipt OCR failed")
		return fallbackReceipt(), nil
	}

	return parseReceipt(raw), nil
}

func fallbackReceipt() domain.Receipt {
	return domain.Receipt{
		StoreName:     FallbackStoreName,
		PaymentMethod: domain.PaymentCash,
	}
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// parseReceipt coerces the model's answer field by field. Anything
// missing or of the wrong type takes its fallback value.
func parseReceipt(raw map[string]interface{}) domain.Receipt {
	r := fallbackReceipt()

	if s := stringField(raw, "store_name"); s != "" {
		r.StoreName = s
	}
	if s := stringField(raw, "date"); isoDate.MatchString(s) {
		r.Date = s
	}
	r.Subtotal = optionalInt64Field(raw, "subtotal")
	r.Tax = optionalInt64Field(raw, "tax")
	if v := optionalInt64Field(raw, "total"); v != nil {
		r.Total = *v
	}
	if s := stringField(raw, "payment_method"); s != "" {
		r.PaymentMethod = domain.ParsePaymentMethod(s)
	}

	items, ok := raw["items"].([]interface{})
	if !ok {
		return r
	}
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		item := domain.ReceiptItem{
			Name:     stringField(m, "name"),
			Quantity: 1,
		}
		if v := optionalInt64Field(m, "price"); v != nil {
			item.Price = *v
		}
		if v := optionalInt64Field(m, "quantity"); v != nil {
			item.Quantity = int(*v)
		}
		r.Items = append(r.Items, item)
	}
	return r
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func optionalInt64Field(m map[string]interface{}, key string) *int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case float64:
		n := int64(val)
		return &n
	case int:
		n := int64(val)
		return &n
	default:
		return nil
	}
}

// ToExpense builds an uncategorized expense entry from a scanned
// receipt. An unreadable date defaults to today.
func ToExpense(r domain.Receipt, imagePath string) *domain.Expense {
	date := r.Date
	if date == "" {
		date = time.Now().Format(domain.DateLayout)
	}
	var pathPtr *string
	if imagePath != "" {
		pathPtr = &imagePath
	}
	return &domain.Expense{
		Date:             date,
		StoreName:        r.StoreName,
		Amount:           r.Total,
		TaxAmount:        r.Tax,
		PaymentMethod:    r.PaymentMethod,
		ReceiptImagePath: pathPtr,
		Source:           domain.SourceReceiptPhoto,
	}
}
