package domain

// ReceiptItem is a single line item read off a receipt.
type ReceiptItem struct {
	Name     string
	Price    int64
	Quantity int
}

// Receipt is the structured result of OCR over a receipt image.
// Fields the model could not read carry their zero/fallback values:
// empty Date, store name 不明, nil Subtotal/Tax, Total 0, cash payment.
type Receipt struct {
	Date          string // YYYY-MM-DD or "" when unreadable
	StoreName     string
	Items         []ReceiptItem
	Subtotal      *int64
	Tax           *int64
	Total         int64
	PaymentMethod PaymentMethod
}

// ItemsText concatenates item names for categorization and prompts.
func (r Receipt) ItemsText() string {
	out := ""
	for _, it := range r.Items {
		if it.Name == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += it.Name
	}
	return out
}
