package ledger

import (
	"time"
)

// TransactionKind enumerates supported ledger documents.
type TransactionKind string

const (
	// KindImport receives stock and creates lots on completion.
	KindImport TransactionKind = "IMPORT"
	// KindSale issues stock and deducts lots on completion.
	KindSale TransactionKind = "SALE"
)

// TransactionStatus is the document lifecycle. Lots are only touched when a
// document reaches COMPLETE; cancelling never compensates because nothing was
// moved before completion.
type TransactionStatus string

const (
	StatusDraft    TransactionStatus = "DRAFT"
	StatusWaiting  TransactionStatus = "WAITING_FOR_APPROVE"
	StatusComplete TransactionStatus = "COMPLETE"
	StatusCancel   TransactionStatus = "CANCEL"
)

// IsValid checks if the status is a known lifecycle state.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusComplete, StatusCancel:
		return true
	default:
		return false
	}
}

// CanEdit reports whether detail lines, customer, store or amounts may change.
func (s TransactionStatus) CanEdit() bool {
	return s == StatusDraft
}

// CanComplete reports whether the document may be completed.
func (s TransactionStatus) CanComplete() bool {
	return s == StatusDraft || s == StatusWaiting
}

// CanCancel reports whether the document may be cancelled.
func (s TransactionStatus) CanCancel() bool {
	return s == StatusDraft || s == StatusWaiting
}

// Transaction models an import or sale document header. Detail lines live in
// a versioned JSON document rather than child rows.
type Transaction struct {
	ID          int64             `json:"id" db:"id"`
	Code        string            `json:"code" db:"code"`
	Kind        TransactionKind   `json:"kind" db:"kind"`
	Status      TransactionStatus `json:"status" db:"status"`
	StoreID     int64             `json:"store_id" db:"store_id"`
	CustomerID  *int64            `json:"customer_id,omitempty" db:"customer_id"`
	StaffID     *int64            `json:"staff_id,omitempty" db:"staff_id"`
	StocktakeID *int64            `json:"stocktake_id,omitempty" db:"stocktake_id"`
	TotalAmount float64           `json:"total_amount" db:"total_amount"`
	PaidAmount  float64           `json:"paid_amount" db:"paid_amount"`
	Note        string            `json:"note" db:"note"`
	Detail      []byte            `json:"-" db:"detail"`
	CreatedBy   int64             `json:"created_by" db:"created_by"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// ImportLine is one received batch; completion turns each line into a lot.
type ImportLine struct {
	ProductID     int64      `json:"productId"`
	Quantity      float64    `json:"quantity"`
	UnitCost      float64    `json:"unitCost"`
	UnitSalePrice float64    `json:"unitSalePrice"`
	ExpireDate    *time.Time `json:"expireDate,omitempty"`
	ZoneID        *int64     `json:"zoneId,omitempty"`
}

// SaleLine references a concrete lot to deduct. Lot ids come from client
// payloads and are revalidated during completion.
type SaleLine struct {
	LotID         int64   `json:"lotId"`
	BatchCode     string  `json:"batchCode,omitempty"`
	ProductID     int64   `json:"productId"`
	Quantity      float64 `json:"quantity"`
	UnitSalePrice float64 `json:"unitSalePrice"`
	ZoneID        *int64  `json:"zoneCounted,omitempty"`
}

// CreateImportRequest creates an import document.
type CreateImportRequest struct {
	StoreID    int64        `json:"store_id"`
	CustomerID *int64       `json:"customer_id,omitempty"`
	StaffID    *int64       `json:"staff_id,omitempty"`
	PaidAmount float64      `json:"paid_amount" validate:"gte=0"`
	Note       string       `json:"note"`
	Lines      []ImportLine `json:"lines" validate:"required,min=1,dive"`
}

// CreateSaleRequest creates a sale document, optionally already waiting for
// approval. Balance reconciliation produces this same shape.
type CreateSaleRequest struct {
	StoreID     int64             `json:"store_id"`
	CustomerID  *int64            `json:"customer_id,omitempty"`
	StocktakeID *int64            `json:"stocktake_id,omitempty"`
	Status      TransactionStatus `json:"status,omitempty"`
	PaidAmount  float64           `json:"paid_amount" validate:"gte=0"`
	Note        string            `json:"note"`
	Lines       []SaleLine        `json:"lines" validate:"required,min=1,dive"`
}

// UpdateSaleRequest replaces a draft sale's mutable fields.
type UpdateSaleRequest struct {
	CustomerID *int64     `json:"customer_id,omitempty"`
	PaidAmount *float64   `json:"paid_amount,omitempty" validate:"omitempty,gte=0"`
	Note       *string    `json:"note,omitempty"`
	Lines      []SaleLine `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	Kind    TransactionKind
	Status  TransactionStatus
	StoreID int64
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

// SaleTotal computes the amount a set of sale lines is worth.
func SaleTotal(lines []SaleLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Quantity * line.UnitSalePrice
	}
	return total
}

// ImportTotal computes the cost value of a set of import lines.
func ImportTotal(lines []ImportLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Quantity * line.UnitCost
	}
	return total
}
