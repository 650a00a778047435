package debt

import (
	"time"
)

// NoteType is the direction of a debt note from the customer's perspective:
// "-" means the customer owes the store, "+" means the store owes credit.
type NoteType string

const (
	TypeOwed   NoteType = "-"
	TypeCredit NoteType = "+"
)

// SourceKindSale tags notes emitted automatically by sale completion.
const SourceKindSale = "SALE"

// SourceKindManual tags notes entered by hand.
const SourceKindManual = "MANUAL"

// Note is one ledger entry reconciling a customer's running balance against a
// transaction's paid-vs-total mismatch.
type Note struct {
	ID         int64     `json:"id" db:"id"`
	CustomerID int64     `json:"customer_id" db:"customer_id"`
	StoreID    int64     `json:"store_id" db:"store_id"`
	Amount     float64   `json:"amount" db:"amount"`
	Type       NoteType  `json:"type" db:"type"`
	SourceKind string    `json:"source_kind" db:"source_kind"`
	SourceID   int64     `json:"source_id" db:"source_id"`
	Note       string    `json:"note" db:"note"`
	Deleted    bool      `json:"deleted" db:"deleted"`
	CreatedBy  int64     `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Summary is the cached running balance of one customer.
type Summary struct {
	CustomerID int64     `json:"customer_id"`
	TotalDebt  float64   `json:"total_debt"`
	NoteCount  int       `json:"note_count"`
	AsOf       time.Time `json:"as_of"`
}

// AdjustRequest records a manual debt adjustment.
type AdjustRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	StoreID    int64   `json:"store_id"`
	Amount     float64 `json:"amount" validate:"required"`
	Note       string  `json:"note" validate:"max=500"`
}

// FromSettlement builds the note emitted when a completed sale's paid amount
// differs from its total. The signed amount is paid − total.
func FromSettlement(customerID, storeID, saleID int64, paid, total float64, createdBy int64) Note {
	amount := paid - total
	noteType := TypeCredit
	if amount < 0 {
		noteType = TypeOwed
	}
	return Note{
		CustomerID: customerID,
		StoreID:    storeID,
		Amount:     amount,
		Type:       noteType,
		SourceKind: SourceKindSale,
		SourceID:   saleID,
		CreatedBy:  createdBy,
	}
}
