package domain

import (
	"time"
)

// LedgerTransaction is a single bank-exported line item imported from a
// MoneyForward ME CSV. ExternalID is the bank-assigned ID and the dedup key
// for idempotent import.
type LedgerTransaction struct {
	ExternalID          string
	Date                string // YYYY-MM-DD, normalized at import time
	Description         string // bank's own label for the transaction
	Amount              int64  // signed, minor units; negative = outflow
	SourceAccount       string
	CategoryMajor       string
	CategoryMinor       string
	Memo                string
	IsTransfer          bool // excluded from matching when true
	IsCalculationTarget bool // excluded from matching when false

	MatchedExpenseID *string // set once reconciled, 1:1 with Expense

	CreatedAt time.Time
}
