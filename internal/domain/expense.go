package domain

import (
	"time"
)

// DateLayout is the canonical calendar-date format used across the store.
// Ledger and expense dates are stored as ISO strings with no time component.
const DateLayout = "2006-01-02"

// PaymentMethod is how an expense was paid.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentElectronic PaymentMethod = "electronic"
)

// ParsePaymentMethod maps a raw string to a known payment method,
// falling back to cash for anything unrecognized.
func ParsePaymentMethod(s string) PaymentMethod {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentCreditCard, PaymentElectronic:
		return PaymentMethod(s)
	default:
		return PaymentCash
	}
}

// ExpenseSource records where an expense entry came from.
type ExpenseSource string

const (
	SourceManual       ExpenseSource = "manual"
	SourceReceiptPhoto ExpenseSource = "receipt_photo"
)

// Expense is a user- or OCR-sourced record of a purchase, tracked
// independently of the bank ledger until reconciled.
type Expense struct {
	ID               string // UUID
	Date             string // YYYY-MM-DD
	StoreName        string
	Amount           int64 // positive, minor units (yen)
	TaxAmount        *int64
	Category         string
	Subcategory      *string
	PaymentMethod    PaymentMethod
	ReceiptImagePath *string
	Source           ExpenseSource

	Matched         bool
	MatchedLedgerID *string // external_id of the linked ledger transaction

	CreatedAt time.Time
	UpdatedAt time.Time
}
