package lots

import (
	"context"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, id int64) (Lot, error)
	GetByBatchCode(ctx context.Context, batchCode string) (Lot, error)
	FindByProductWithRemainingStock(ctx context.Context, storeID, productID int64) ([]Lot, error)
	SumRemainByProduct(ctx context.Context, storeID, productID int64) (float64, error)
	List(ctx context.Context, filter Filter) ([]Lot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates lot operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get fetches one lot.
func (s *Service) Get(ctx context.Context, id int64) (Lot, error) {
	return s.repo.Get(ctx, id)
}

// FindByProductWithRemainingStock lists sale candidates for a product in FEFO
// order.
func (s *Service) FindByProductWithRemainingStock(ctx context.Context, actor shared.Actor, storeID, productID int64) ([]Lot, error) {
	store, err := actor.EffectiveStore(storeID)
	if err != nil {
		return nil, err
	}
	if productID == 0 {
		return nil, shared.NewValidation("product_id", "product required")
	}
	return s.repo.FindByProductWithRemainingStock(ctx, store, productID)
}

// List returns lots for a store, optionally restricted to a product or to
// lots that still hold stock.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter Filter) ([]Lot, error) {
	store, err := actor.EffectiveStore(filter.StoreID)
	if err != nil {
		return nil, err
	}
	filter.StoreID = store
	return s.repo.List(ctx, filter)
}

// Deduct applies one standalone deduction. A first concurrency conflict is
// retried automatically; a second surfaces to the caller.
func (s *Service) Deduct(ctx context.Context, actor shared.Actor, input DeductInput) (Lot, error) {
	var lot Lot
	apply := func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			var err error
			lot, err = Deduct(ctx, tx, input)
			return err
		})
	}
	err := apply()
	if shared.IsConflict(err) {
		err = apply()
	}
	if err != nil {
		return Lot{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "lots:deduct",
			Entity:   "lot",
			EntityID: fmt.Sprintf("%d", input.LotID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"quantity":   input.Quantity,
			},
		})
	}
	return lot, nil
}

// ReassignZone moves a lot to another zone without touching quantity.
func (s *Service) ReassignZone(ctx context.Context, actor shared.Actor, lotID int64, zoneID *int64) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		lot, err = ReassignZone(ctx, tx, lotID, zoneID)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "lots:reassign_zone",
			Entity:   "lot",
			EntityID: fmt.Sprintf("%d", lotID),
			Meta:     map[string]any{"zone_id": zoneID},
		})
	}
	return lot, nil
}
