package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Stocktake, error)
	List(ctx context.Context, filter ListFilter) ([]Stocktake, int, error)
}

// LotReader sums current remains per product for the recorded side of the
// diff.
type LotReader interface {
	SumRemainByProduct(ctx context.Context, storeID, productID int64) (float64, error)
}

// ReferenceChecker validates that client-supplied reference ids resolve.
type ReferenceChecker interface {
	ProductExists(ctx context.Context, id int64) error
	StoreExists(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// recordedRemainWorkers bounds the per-product fan-out on create.
const recordedRemainWorkers = 8

// Service runs physical count sessions and their reconciliation.
type Service struct {
	repo   RepositoryPort
	lots   LotReader
	refs   ReferenceChecker
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, lotReader LotReader, refs ReferenceChecker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, lots: lotReader, refs: refs, audit: audit, logger: logger}
}

// Create groups the raw per-zone entries by product, snapshots each product's
// recorded remain from the lot store and persists the diff-annotated lines.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Stocktake, error) {
	storeID, err := actor.EffectiveStore(req.StoreID)
	if err != nil {
		return Stocktake{}, err
	}
	if err := s.refs.StoreExists(ctx, storeID); err != nil {
		return Stocktake{}, err
	}
	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	if status != StatusDraft && status != StatusWaiting {
		return Stocktake{}, shared.NewValidation("status", "a new stocktake starts as DRAFT or WAITING_FOR_APPROVE")
	}
	if len(req.Entries) == 0 {
		return Stocktake{}, shared.NewValidation("entries", "stocktake requires at least one count entry")
	}
	for _, e := range req.Entries {
		if err := s.refs.ProductExists(ctx, e.ProductID); err != nil {
			return Stocktake{}, err
		}
		if e.Counted < 0 {
			return Stocktake{}, shared.NewValidation("entries", "counted quantity must be non-negative")
		}
	}

	lines := Group(FromEntries(req.Entries))
	if err := s.fillRecordedRemain(ctx, storeID, lines); err != nil {
		return Stocktake{}, err
	}
	detail, err := MarshalDetail(lines)
	if err != nil {
		return Stocktake{}, fmt.Errorf("marshal stocktake detail: %w", err)
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	st := Stocktake{
		StoreID:   storeID,
		Status:    status,
		Date:      date,
		Note:      req.Note,
		Detail:    detail,
		Lines:     lines,
		CreatedBy: actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx)
		if err != nil {
			return err
		}
		st.Code = code
		id, err := tx.Insert(ctx, st)
		if err != nil {
			return err
		}
		st.ID = id
		return nil
	})
	if err != nil {
		return Stocktake{}, fmt.Errorf("create stocktake: %w", err)
	}
	s.recordAudit(ctx, actor, "stocktake:create", st)
	return st, nil
}

// fillRecordedRemain snapshots the sum of lot remains for every grouped
// product. The reads are independent, so they fan out.
func (s *Service) fillRecordedRemain(ctx context.Context, storeID int64, lines []Line) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(recordedRemainWorkers)
	for i := range lines {
		g.Go(func() error {
			remain, err := s.lots.SumRemainByProduct(ctx, storeID, lines[i].ProductID)
			if err != nil {
				return err
			}
			lines[i].RecordedRemain = remain
			lines[i].Diff = lines[i].Counted - remain
			return nil
		})
	}
	return g.Wait()
}

// GetByID returns one stocktake with its lines regrouped. Older rows may hold
// per-zone lines stored before grouping; regrouping on read is idempotent.
func (s *Service) GetByID(ctx context.Context, id int64) (Stocktake, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return Stocktake{}, err
	}
	lines, err := UnmarshalDetail(st.Detail)
	if err != nil {
		return Stocktake{}, err
	}
	st.Lines = Group(lines)
	return st, nil
}

// GetAll returns stocktakes matching the filter, each with regrouped lines.
func (s *Service) GetAll(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Stocktake, int, error) {
	storeID, err := actor.EffectiveStore(filter.StoreID)
	if err != nil {
		return nil, 0, err
	}
	filter.StoreID = storeID
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		lines, err := UnmarshalDetail(items[i].Detail)
		if err != nil {
			return nil, 0, err
		}
		items[i].Lines = Group(lines)
	}
	return items, total, nil
}

// UpdateStatus moves a stocktake through its lifecycle. Completion overwrites
// each counted lot's remaining quantity inside the same transaction; a
// cancellation never touches lots.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id int64, target Status) (Stocktake, error) {
	if !target.IsValid() {
		return Stocktake{}, shared.NewValidation("status", "unknown stocktake status")
	}
	var result Stocktake
	run := func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			st, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !st.Status.CanTransitionTo(target) {
				return &shared.InvalidStatusTransitionError{
					Entity:   "stocktake",
					Action:   transitionAction(target),
					Current:  string(st.Status),
					Required: "DRAFT or WAITING_FOR_APPROVE",
				}
			}
			if target == StatusCompleted {
				lines, err := UnmarshalDetail(st.Detail)
				if err != nil {
					return err
				}
				grouped := Group(lines)
				if err := s.reconcileLots(ctx, tx.Lots(), grouped); err != nil {
					return err
				}
				detail, err := MarshalDetail(grouped)
				if err != nil {
					return err
				}
				if err := tx.UpdateDetail(ctx, st.ID, detail); err != nil {
					return err
				}
				st.Detail = detail
				st.Lines = grouped
			}
			if err := tx.SetStatus(ctx, st.ID, target); err != nil {
				return err
			}
			st.Status = target
			result = st
			return nil
		})
	}
	err := run()
	if shared.IsConflict(err) {
		err = run()
	}
	if err != nil {
		return Stocktake{}, err
	}
	s.recordAudit(ctx, actor, "stocktake:"+string(target), result)
	return result, nil
}

// reconcileLots applies the counts to the lots they identify: every entry
// carrying a batch code has that lot's remain overwritten with the counted
// value, its reconciled flag set and its zone corrected. Product-only entries
// cannot be mapped to a single lot and are left for balance reconciliation.
func (s *Service) reconcileLots(ctx context.Context, store lots.TxStore, lines []Line) error {
	for _, line := range lines {
		for _, entry := range line.Entries {
			code := entry.BatchCode
			if code == "" && entry.LotID != 0 {
				lot, err := store.GetForUpdate(ctx, entry.LotID)
				if err != nil {
					return err
				}
				code = lot.BatchCode
			}
			if code == "" {
				continue
			}
			if _, err := lots.Overwrite(ctx, store, lots.OverwriteInput{
				BatchCode: code,
				Counted:   entry.Counted,
				ZoneID:    entry.RealZoneID,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func transitionAction(target Status) string {
	switch target {
	case StatusCompleted:
		return "complete"
	case StatusCancelled:
		return "cancel"
	default:
		return "submit"
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, st Stocktake) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "stocktake",
		EntityID: st.Code,
		Meta: map[string]any{
			"stocktake_id": st.ID,
			"store_id":     st.StoreID,
			"status":       string(st.Status),
		},
	})
}
