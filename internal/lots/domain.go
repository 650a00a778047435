package lots

import (
	"time"
)

// Lot is a received batch of one product, tracked independently for remaining
// quantity, cost and expiry. Lots are never deleted, only drained to zero.
type Lot struct {
	ID             int64      `json:"id" db:"id"`
	BatchCode      string     `json:"batch_code" db:"batch_code"`
	ProductID      int64      `json:"product_id" db:"product_id"`
	StoreID        int64      `json:"store_id" db:"store_id"`
	ZoneID         *int64     `json:"zone_id,omitempty" db:"zone_id"`
	ImportQuantity float64    `json:"import_quantity" db:"import_quantity"`
	RemainQuantity float64    `json:"remain_quantity" db:"remain_quantity"`
	UnitCost       float64    `json:"unit_cost" db:"unit_cost"`
	UnitSalePrice  float64    `json:"unit_sale_price" db:"unit_sale_price"`
	ExpireDate     *time.Time `json:"expire_date,omitempty" db:"expire_date"`
	Reconciled     bool       `json:"reconciled" db:"reconciled"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateInput describes a lot to be created on import completion.
type CreateInput struct {
	ProductID     int64
	StoreID       int64
	ZoneID        *int64
	Quantity      float64
	UnitCost      float64
	UnitSalePrice float64
	ExpireDate    *time.Time
}

// DeductInput describes a single deduction against a lot. ProductID is the
// product the caller believes the lot holds and is revalidated against the
// actual lot row.
type DeductInput struct {
	LotID     int64
	ProductID int64
	Quantity  float64
}

// OverwriteInput describes a stocktake correction: the physical count replaces
// the remaining quantity outright and the zone assignment is verified.
type OverwriteInput struct {
	BatchCode string
	Counted   float64
	ZoneID    *int64
}

// Filter narrows lot listings.
type Filter struct {
	StoreID   int64
	ProductID int64
	OnlyStock bool
	Limit     int
}
