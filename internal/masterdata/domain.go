package masterdata

import "time"

// Product is a sellable item tracked in lots.
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Zone is a physical storage location inside a store.
type Zone struct {
	ID      int64  `json:"id"`
	StoreID int64  `json:"store_id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
}

// Store is one warehouse location.
type Store struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Customer buys stock and may carry debt.
type Customer struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	TotalDebt float64 `json:"total_debt"`
}

// Staff is a warehouse employee referenced on documents.
type Staff struct {
	ID      int64  `json:"id"`
	StoreID int64  `json:"store_id"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
}

// ListFilter narrows reference data listings.
type ListFilter struct {
	StoreID int64
	Search  string
	Limit   int
	Offset  int
}
