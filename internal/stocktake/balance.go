package stocktake

import (
	"context"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// LotResolver finds the concrete lot a shortage line refers to.
type LotResolver interface {
	Get(ctx context.Context, id int64) (lots.Lot, error)
	GetByBatchCode(ctx context.Context, batchCode string) (lots.Lot, error)
}

// BalanceDraft is a proposed compensating sale plus the surplus lines that
// were counted over the record. Surpluses get no compensating import; they
// are surfaced for manual investigation.
type BalanceDraft struct {
	Sale      ledger.CreateSaleRequest `json:"sale"`
	Surpluses []Line                   `json:"surpluses,omitempty"`
}

// resolveFunc is one step of the lot resolution chain. It returns ok=false
// when this step cannot resolve a lot, letting the next step try.
type resolveFunc func(ctx context.Context, line Line) (lots.Lot, bool)

// BuildBalanceSale drafts the compensating sale for a stocktake's shortages.
// Each line with diff < 0 resolves to one sale line of quantity |diff|;
// resolution prefers an exact lot id, falls back to the batch code and
// finally to a product-only stub so the draft stays reviewable even when no
// lot record matches. Lots are only deducted when the drafted sale itself
// completes.
func (s *Service) BuildBalanceSale(ctx context.Context, actor shared.Actor, resolver LotResolver, stocktakeID int64) (BalanceDraft, error) {
	st, err := s.GetByID(ctx, stocktakeID)
	if err != nil {
		return BalanceDraft{}, err
	}
	if _, err := actor.EffectiveStore(st.StoreID); err != nil {
		return BalanceDraft{}, err
	}

	chain := []resolveFunc{
		resolveByLotID(resolver),
		resolveByBatchCode(resolver),
	}

	var saleLines []ledger.SaleLine
	var surpluses []Line
	for _, line := range st.Lines {
		if line.Diff >= 0 {
			if line.Diff > 0 {
				surpluses = append(surpluses, line)
			}
			continue
		}
		shortage := -line.Diff
		saleLines = append(saleLines, s.resolveShortage(ctx, chain, line, shortage))
	}
	if len(saleLines) == 0 {
		return BalanceDraft{}, shared.NewValidation("stocktake", fmt.Sprintf("stocktake %s has no shortage to balance", st.Code))
	}

	id := st.ID
	req := ledger.CreateSaleRequest{
		StoreID:     st.StoreID,
		StocktakeID: &id,
		Status:      ledger.StatusDraft,
		Note:        fmt.Sprintf("stock balancing adjustment for stocktake %s", st.Code),
		Lines:       saleLines,
	}
	req.PaidAmount = ledger.SaleTotal(saleLines)
	return BalanceDraft{Sale: req, Surpluses: surpluses}, nil
}

func (s *Service) resolveShortage(ctx context.Context, chain []resolveFunc, line Line, quantity float64) ledger.SaleLine {
	for _, resolve := range chain {
		lot, ok := resolve(ctx, line)
		if !ok {
			continue
		}
		return ledger.SaleLine{
			LotID:         lot.ID,
			BatchCode:     lot.BatchCode,
			ProductID:     lot.ProductID,
			Quantity:      quantity,
			UnitSalePrice: lot.UnitSalePrice,
			ZoneID:        lot.ZoneID,
		}
	}
	// Stub: no lot record found. Zero price and lot id; completion of the
	// drafted sale rejects it until a real lot is assigned.
	return ledger.SaleLine{
		ProductID: line.ProductID,
		Quantity:  quantity,
	}
}

func resolveByLotID(resolver LotResolver) resolveFunc {
	return func(ctx context.Context, line Line) (lots.Lot, bool) {
		for _, entry := range line.Entries {
			if entry.LotID == 0 {
				continue
			}
			lot, err := resolver.Get(ctx, entry.LotID)
			if err != nil || lot.ProductID != line.ProductID {
				continue
			}
			return lot, true
		}
		return lots.Lot{}, false
	}
}

func resolveByBatchCode(resolver LotResolver) resolveFunc {
	return func(ctx context.Context, line Line) (lots.Lot, bool) {
		for _, entry := range line.Entries {
			if entry.BatchCode == "" {
				continue
			}
			lot, err := resolver.GetByBatchCode(ctx, entry.BatchCode)
			if err != nil || lot.ProductID != line.ProductID {
				continue
			}
			return lot, true
		}
		return lots.Lot{}, false
	}
}
