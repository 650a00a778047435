package debt

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, n Note) (Note, float64, error)
	Get(ctx context.Context, id int64) (Note, error)
	ListByCustomer(ctx context.Context, customerID int64, p shared.Pagination) ([]Note, int, error)
	Summary(ctx context.Context, customerID int64) (Summary, error)
	SoftDelete(ctx context.Context, id int64) (float64, error)
	CustomersWithNotes(ctx context.Context) ([]int64, error)
	ResyncCustomer(ctx context.Context, customerID int64) (float64, error)
}

// CustomerChecker validates that the customer id resolves.
type CustomerChecker interface {
	CustomerExists(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the customer debt ledger.
type Service struct {
	repo   RepositoryPort
	refs   CustomerChecker
	cache  *Cache
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, refs CustomerChecker, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, refs: refs, cache: cache, audit: audit, logger: logger}
}

// Adjust records a manual debt note. A negative amount increases what the
// customer owes, a positive one credits them.
func (s *Service) Adjust(ctx context.Context, actor shared.Actor, req AdjustRequest) (Note, error) {
	storeID, err := actor.EffectiveStore(req.StoreID)
	if err != nil {
		return Note{}, err
	}
	if req.Amount == 0 {
		return Note{}, shared.NewValidation("amount", "adjustment amount must be non-zero")
	}
	if err := s.refs.CustomerExists(ctx, req.CustomerID); err != nil {
		return Note{}, err
	}

	noteType := TypeCredit
	if req.Amount < 0 {
		noteType = TypeOwed
	}
	note := Note{
		CustomerID: req.CustomerID,
		StoreID:    storeID,
		Amount:     req.Amount,
		Type:       noteType,
		SourceKind: SourceKindManual,
		Note:       req.Note,
		CreatedBy:  actor.UserID,
	}
	inserted, total, err := s.repo.Insert(ctx, note)
	if err != nil {
		return Note{}, err
	}
	s.invalidate(ctx, req.CustomerID)
	s.recordAudit(ctx, actor, "debt:adjust", inserted, total)
	return inserted, nil
}

// ListNotes returns the customer's live notes, newest first.
func (s *Service) ListNotes(ctx context.Context, customerID int64, p shared.Pagination) ([]Note, int, error) {
	if err := s.refs.CustomerExists(ctx, customerID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByCustomer(ctx, customerID, p)
}

// GetSummary returns the customer's running balance, served from cache when
// warm.
func (s *Service) GetSummary(ctx context.Context, customerID int64) (Summary, error) {
	if err := s.refs.CustomerExists(ctx, customerID); err != nil {
		return Summary{}, err
	}
	return s.cache.FetchSummary(ctx, customerID, func(ctx context.Context) (Summary, error) {
		return s.repo.Summary(ctx, customerID)
	})
}

// Delete soft-deletes a note and refreshes the customer balance.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := actor.EffectiveStore(note.StoreID); err != nil {
		return err
	}
	total, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, note.CustomerID)
	s.recordAudit(ctx, actor, "debt:delete", note, total)
	return nil
}

// Resync walks every customer holding live notes and recomputes their
// denormalised totals. The nightly job runs this.
func (s *Service) Resync(ctx context.Context) (int, error) {
	ids, err := s.repo.CustomersWithNotes(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := s.repo.ResyncCustomer(ctx, id); err != nil {
			return 0, err
		}
		s.invalidate(ctx, id)
	}
	return len(ids), nil
}

func (s *Service) invalidate(ctx context.Context, customerID int64) {
	if err := s.cache.Invalidate(ctx, customerID); err != nil {
		s.logger.Warn("debt cache invalidation failed", slog.Int64("customer_id", customerID), slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, note Note, total float64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "debt_note",
		EntityID: formatID(note.ID),
		Meta: map[string]any{
			"customer_id": note.CustomerID,
			"amount":      note.Amount,
			"total_debt":  total,
		},
	})
}
