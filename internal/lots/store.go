package lots

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// TxStore exposes transactional lot operations. Implementations must
// serialize row access: GetForUpdate re-reads the current state under a lock
// (or equivalent) immediately before any write based on it.
type TxStore interface {
	GetForUpdate(ctx context.Context, id int64) (Lot, error)
	GetByBatchCodeForUpdate(ctx context.Context, batchCode string) (Lot, error)
	UpdateQuantity(ctx context.Context, id int64, remain float64) error
	UpdateZone(ctx context.Context, id int64, zoneID *int64, reconciled bool) error
	Insert(ctx context.Context, lot Lot) (int64, error)
	NextBatchSeq(ctx context.Context) (int64, error)
}

// Deduct decrements a lot's remaining quantity after revalidating the
// client-supplied lot id and product linkage against the current row. The
// quantity never goes negative; a deduction that would overdraw fails with
// InsufficientStockError and leaves the lot untouched.
func Deduct(ctx context.Context, store TxStore, input DeductInput) (Lot, error) {
	if input.Quantity <= 0 {
		return Lot{}, shared.NewValidation("quantity", "deduction quantity must be positive")
	}
	lot, err := store.GetForUpdate(ctx, input.LotID)
	if err != nil {
		return Lot{}, err
	}
	if input.ProductID != 0 && lot.ProductID != input.ProductID {
		return Lot{}, &shared.ProductMismatchError{
			LotID:         lot.ID,
			LotProductID:  lot.ProductID,
			LineProductID: input.ProductID,
		}
	}
	if input.Quantity > lot.RemainQuantity {
		return Lot{}, &shared.InsufficientStockError{
			LotID:     lot.ID,
			BatchCode: lot.BatchCode,
			Requested: input.Quantity,
			Remaining: lot.RemainQuantity,
		}
	}
	lot.RemainQuantity -= input.Quantity
	if err := store.UpdateQuantity(ctx, lot.ID, lot.RemainQuantity); err != nil {
		return Lot{}, err
	}
	return lot, nil
}

// CreateFromImport inserts a new lot for a completed import line. The batch
// code is generated from the lot sequence.
func CreateFromImport(ctx context.Context, store TxStore, input CreateInput) (Lot, error) {
	if input.Quantity <= 0 {
		return Lot{}, shared.NewValidation("quantity", "import quantity must be positive")
	}
	if input.UnitCost < 0 || input.UnitSalePrice < 0 {
		return Lot{}, shared.NewValidation("unit_cost", "prices must be non-negative")
	}
	seq, err := store.NextBatchSeq(ctx)
	if err != nil {
		return Lot{}, err
	}
	lot := Lot{
		BatchCode:      fmt.Sprintf("LH%06d", seq),
		ProductID:      input.ProductID,
		StoreID:        input.StoreID,
		ZoneID:         input.ZoneID,
		ImportQuantity: input.Quantity,
		RemainQuantity: input.Quantity,
		UnitCost:       input.UnitCost,
		UnitSalePrice:  input.UnitSalePrice,
		ExpireDate:     input.ExpireDate,
		CreatedAt:      time.Now().UTC(),
	}
	id, err := store.Insert(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	lot.ID = id
	return lot, nil
}

// Overwrite replaces a lot's remaining quantity with the physically counted
// value and verifies its zone assignment. This bypasses the decrement path on
// purpose and is reserved for stocktake completion.
func Overwrite(ctx context.Context, store TxStore, input OverwriteInput) (Lot, error) {
	if input.Counted < 0 {
		return Lot{}, shared.NewValidation("counted", "counted quantity must be non-negative")
	}
	lot, err := store.GetByBatchCodeForUpdate(ctx, input.BatchCode)
	if err != nil {
		return Lot{}, err
	}
	if input.Counted > lot.ImportQuantity {
		return Lot{}, shared.NewValidation("counted", fmt.Sprintf("counted %.2f exceeds imported quantity %.2f of lot %s", input.Counted, lot.ImportQuantity, lot.BatchCode))
	}
	if input.Counted != lot.RemainQuantity {
		if err := store.UpdateQuantity(ctx, lot.ID, input.Counted); err != nil {
			return Lot{}, err
		}
		lot.RemainQuantity = input.Counted
	}
	zone := lot.ZoneID
	if input.ZoneID != nil {
		zone = input.ZoneID
	}
	if err := store.UpdateZone(ctx, lot.ID, zone, true); err != nil {
		return Lot{}, err
	}
	lot.ZoneID = zone
	lot.Reconciled = true
	return lot, nil
}

// ReassignZone moves a lot to a new physical zone without touching quantity.
func ReassignZone(ctx context.Context, store TxStore, lotID int64, zoneID *int64) (Lot, error) {
	lot, err := store.GetForUpdate(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}
	if err := store.UpdateZone(ctx, lot.ID, zoneID, lot.Reconciled); err != nil {
		return Lot{}, err
	}
	lot.ZoneID = zoneID
	return lot, nil
}
