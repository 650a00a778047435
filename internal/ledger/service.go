package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-wms/meridian-wms/internal/debt"
	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
}

// ReferenceChecker validates that client-supplied reference ids resolve.
// Failures are NotFoundError values.
type ReferenceChecker interface {
	ProductExists(ctx context.Context, id int64) error
	CustomerExists(ctx context.Context, id int64) error
	StoreExists(ctx context.Context, id int64) error
	StaffExists(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StockIssuedEvent describes a completed sale for downstream alerting.
type StockIssuedEvent struct {
	TransactionID int64
	Code          string
	StoreID       int64
	LotIDs        []int64
}

// Notifier enqueues downstream notifications. Notification failures never
// fail the business operation; they are logged and suppressed.
type Notifier interface {
	StockIssued(ctx context.Context, evt StockIssuedEvent) error
}

// IdempotencyPort guards completion endpoints against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DebtCachePort drops stale cached balances after a settlement note commits.
type DebtCachePort interface {
	Invalidate(ctx context.Context, customerID int64) error
}

// Service coordinates import and sale documents.
type Service struct {
	repo      RepositoryPort
	refs      ReferenceChecker
	audit     AuditPort
	notifier  Notifier
	idem      IdempotencyPort
	debtCache DebtCachePort
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, refs ReferenceChecker, audit AuditPort, notifier Notifier, idem IdempotencyPort, debtCache DebtCachePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, refs: refs, audit: audit, notifier: notifier, idem: idem, debtCache: debtCache, logger: logger}
}

// ============================================================================
// IMPORT OPERATIONS
// ============================================================================

// CreateImport drafts an import document. Lots are not created until the
// document completes.
func (s *Service) CreateImport(ctx context.Context, actor shared.Actor, req CreateImportRequest) (Transaction, error) {
	storeID, err := actor.EffectiveStore(req.StoreID)
	if err != nil {
		return Transaction{}, err
	}
	if len(req.Lines) == 0 {
		return Transaction{}, shared.NewValidation("lines", "import requires at least one line")
	}
	if err := s.checkRefs(ctx, storeID, req.CustomerID, req.StaffID); err != nil {
		return Transaction{}, err
	}
	for _, line := range req.Lines {
		if err := s.refs.ProductExists(ctx, line.ProductID); err != nil {
			return Transaction{}, err
		}
		if line.Quantity <= 0 {
			return Transaction{}, shared.NewValidation("lines", "line quantity must be positive")
		}
	}
	detail, err := MarshalImportDetail(req.Lines)
	if err != nil {
		return Transaction{}, fmt.Errorf("marshal import detail: %w", err)
	}

	txn := Transaction{
		Kind:        KindImport,
		Status:      StatusDraft,
		StoreID:     storeID,
		CustomerID:  req.CustomerID,
		StaffID:     req.StaffID,
		TotalAmount: ImportTotal(req.Lines),
		PaidAmount:  req.PaidAmount,
		Note:        req.Note,
		Detail:      detail,
		CreatedBy:   actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, KindImport)
		if err != nil {
			return err
		}
		txn.Code = code
		id, err := tx.Insert(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = id
		return nil
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("create import: %w", err)
	}
	return txn, nil
}

// OpenImport submits a draft import for approval.
func (s *Service) OpenImport(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	return s.transition(ctx, actor, id, KindImport, "open", StatusWaiting, func(status TransactionStatus) bool {
		return status == StatusDraft
	}, string(StatusDraft))
}

// CompleteImport finishes an import: each detail line becomes one new lot.
// The whole completion is a single all-or-nothing unit.
func (s *Service) CompleteImport(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	key := fmt.Sprintf("ledger:import:complete:%d", id)
	insertedKey, err := s.claimKey(ctx, key)
	if err != nil {
		return Transaction{}, err
	}

	var result Transaction
	complete := func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			txn, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := ensureKind(txn, KindImport); err != nil {
				return err
			}
			if !txn.Status.CanComplete() {
				return &shared.InvalidStatusTransitionError{
					Entity:   "import transaction",
					Action:   "complete",
					Current:  string(txn.Status),
					Required: completableStatuses,
				}
			}
			lines, err := UnmarshalImportDetail(txn.Detail)
			if err != nil {
				return err
			}
			lotStore := tx.Lots()
			for _, line := range lines {
				if _, err := lots.CreateFromImport(ctx, lotStore, lots.CreateInput{
					ProductID:     line.ProductID,
					StoreID:       txn.StoreID,
					ZoneID:        line.ZoneID,
					Quantity:      line.Quantity,
					UnitCost:      line.UnitCost,
					UnitSalePrice: line.UnitSalePrice,
					ExpireDate:    line.ExpireDate,
				}); err != nil {
					return err
				}
			}
			if err := tx.SetStatus(ctx, txn.ID, StatusComplete); err != nil {
				return err
			}
			txn.Status = StatusComplete
			result = txn
			return nil
		})
	}
	err = complete()
	if shared.IsConflict(err) {
		err = complete()
	}
	if err != nil {
		if insertedKey {
			_ = s.idem.Delete(ctx, key)
		}
		return Transaction{}, err
	}
	s.recordAudit(ctx, actor, "ledger:import:complete", result)
	return result, nil
}

// CancelImport cancels a draft or waiting import. Nothing was received yet,
// so no lot is touched.
func (s *Service) CancelImport(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	return s.transition(ctx, actor, id, KindImport, "cancel", StatusCancel, TransactionStatus.CanCancel, cancellableStatuses)
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

// CreateSale drafts a sale document. A stub line (lot id 0) from balance
// reconciliation is storable so the draft can be reviewed, but completion
// requires every line to reference a real lot.
func (s *Service) CreateSale(ctx context.Context, actor shared.Actor, req CreateSaleRequest) (Transaction, error) {
	storeID, err := actor.EffectiveStore(req.StoreID)
	if err != nil {
		return Transaction{}, err
	}
	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	if status != StatusDraft && status != StatusWaiting {
		return Transaction{}, shared.NewValidation("status", "a new sale starts as DRAFT or WAITING_FOR_APPROVE")
	}
	if len(req.Lines) == 0 {
		return Transaction{}, shared.NewValidation("lines", "sale requires at least one line")
	}
	if err := s.checkRefs(ctx, storeID, req.CustomerID, nil); err != nil {
		return Transaction{}, err
	}
	for _, line := range req.Lines {
		if err := s.refs.ProductExists(ctx, line.ProductID); err != nil {
			return Transaction{}, err
		}
		if line.Quantity <= 0 {
			return Transaction{}, shared.NewValidation("lines", "line quantity must be positive")
		}
	}
	detail, err := MarshalSaleDetail(req.Lines)
	if err != nil {
		return Transaction{}, fmt.Errorf("marshal sale detail: %w", err)
	}

	txn := Transaction{
		Kind:        KindSale,
		Status:      status,
		StoreID:     storeID,
		CustomerID:  req.CustomerID,
		StocktakeID: req.StocktakeID,
		TotalAmount: SaleTotal(req.Lines),
		PaidAmount:  req.PaidAmount,
		Note:        req.Note,
		Detail:      detail,
		CreatedBy:   actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, KindSale)
		if err != nil {
			return err
		}
		txn.Code = code
		id, err := tx.Insert(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = id
		return nil
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("create sale: %w", err)
	}
	return txn, nil
}

// UpdateSale replaces a draft sale's mutable fields. Anything past DRAFT is
// immutable.
func (s *Service) UpdateSale(ctx context.Context, actor shared.Actor, id int64, req UpdateSaleRequest) (Transaction, error) {
	var result Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureKind(txn, KindSale); err != nil {
			return err
		}
		if !txn.Status.CanEdit() {
			return &shared.InvalidStatusTransitionError{
				Entity:   "sale transaction",
				Action:   "update",
				Current:  string(txn.Status),
				Required: string(StatusDraft),
			}
		}
		if req.CustomerID != nil {
			if err := s.refs.CustomerExists(ctx, *req.CustomerID); err != nil {
				return err
			}
			txn.CustomerID = req.CustomerID
		}
		if req.PaidAmount != nil {
			txn.PaidAmount = *req.PaidAmount
		}
		if req.Note != nil {
			txn.Note = *req.Note
		}
		if req.Lines != nil {
			for _, line := range req.Lines {
				if err := s.refs.ProductExists(ctx, line.ProductID); err != nil {
					return err
				}
				if line.Quantity <= 0 {
					return shared.NewValidation("lines", "line quantity must be positive")
				}
			}
			detail, err := MarshalSaleDetail(req.Lines)
			if err != nil {
				return fmt.Errorf("marshal sale detail: %w", err)
			}
			txn.Detail = detail
			txn.TotalAmount = SaleTotal(req.Lines)
		}
		if err := tx.UpdateDraft(ctx, txn); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return result, nil
}

// CompleteSale finishes a sale: every detail line deducts its lot, then the
// settlement mismatch (if any) emits a debt note. All of it happens in one
// database transaction; a single concurrency conflict is retried once.
func (s *Service) CompleteSale(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	key := fmt.Sprintf("ledger:sale:complete:%d", id)
	insertedKey, err := s.claimKey(ctx, key)
	if err != nil {
		return Transaction{}, err
	}

	var result Transaction
	var touched []int64
	var debtCustomer *int64
	complete := func() error {
		touched = touched[:0]
		debtCustomer = nil
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			txn, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := ensureKind(txn, KindSale); err != nil {
				return err
			}
			if !txn.Status.CanComplete() {
				return &shared.InvalidStatusTransitionError{
					Entity:   "sale transaction",
					Action:   "complete",
					Current:  string(txn.Status),
					Required: completableStatuses,
				}
			}
			lines, err := UnmarshalSaleDetail(txn.Detail)
			if err != nil {
				return err
			}
			lotStore := tx.Lots()
			for _, line := range lines {
				if line.LotID == 0 {
					return shared.NewValidation("lines", fmt.Sprintf("product %d has no backing lot; resolve a real lot before completing", line.ProductID))
				}
				lot, err := lots.Deduct(ctx, lotStore, lots.DeductInput{
					LotID:     line.LotID,
					ProductID: line.ProductID,
					Quantity:  line.Quantity,
				})
				if err != nil {
					return err
				}
				touched = append(touched, lot.ID)
			}
			if err := tx.SetStatus(ctx, txn.ID, StatusComplete); err != nil {
				return err
			}
			txn.Status = StatusComplete

			if txn.CustomerID != nil && txn.PaidAmount != txn.TotalAmount {
				note := debt.FromSettlement(*txn.CustomerID, txn.StoreID, txn.ID, txn.PaidAmount, txn.TotalAmount, actor.UserID)
				if _, err := tx.InsertDebtNote(ctx, note); err != nil {
					return err
				}
				if _, err := tx.RecomputeCustomerDebt(ctx, *txn.CustomerID); err != nil {
					return err
				}
				debtCustomer = txn.CustomerID
			}
			result = txn
			return nil
		})
	}
	err = complete()
	if shared.IsConflict(err) {
		err = complete()
	}
	if err != nil {
		if insertedKey {
			_ = s.idem.Delete(ctx, key)
		}
		return Transaction{}, err
	}

	if debtCustomer != nil && s.debtCache != nil {
		if err := s.debtCache.Invalidate(ctx, *debtCustomer); err != nil {
			s.logger.Warn("debt cache invalidation failed", slog.Int64("customer_id", *debtCustomer), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		evt := StockIssuedEvent{TransactionID: result.ID, Code: result.Code, StoreID: result.StoreID, LotIDs: touched}
		if err := s.notifier.StockIssued(ctx, evt); err != nil {
			s.logger.Warn("stock issued notification failed", slog.String("code", result.Code), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor, "ledger:sale:complete", result)
	return result, nil
}

// CancelSale cancels a draft or waiting sale without touching any lot.
func (s *Service) CancelSale(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	return s.transition(ctx, actor, id, KindSale, "cancel", StatusCancel, TransactionStatus.CanCancel, cancellableStatuses)
}

// ============================================================================
// READS
// ============================================================================

// Get fetches one transaction of the given kind.
func (s *Service) Get(ctx context.Context, kind TransactionKind, id int64) (Transaction, error) {
	txn, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if err := ensureKind(txn, kind); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// List returns transactions matching the filter.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Transaction, int, error) {
	storeID, err := actor.EffectiveStore(filter.StoreID)
	if err != nil {
		return nil, 0, err
	}
	filter.StoreID = storeID
	return s.repo.List(ctx, filter)
}

// ============================================================================
// INTERNAL
// ============================================================================

const (
	completableStatuses = "DRAFT or WAITING_FOR_APPROVE"
	cancellableStatuses = "DRAFT or WAITING_FOR_APPROVE"
)

func ensureKind(txn Transaction, kind TransactionKind) error {
	if txn.Kind != kind {
		return shared.NewNotFound(fmt.Sprintf("%s transaction", kind), txn.ID)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, kind TransactionKind, action string, target TransactionStatus, allowed func(TransactionStatus) bool, required string) (Transaction, error) {
	var result Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureKind(txn, kind); err != nil {
			return err
		}
		if !allowed(txn.Status) {
			return &shared.InvalidStatusTransitionError{
				Entity:   fmt.Sprintf("%s transaction", kind),
				Action:   action,
				Current:  string(txn.Status),
				Required: required,
			}
		}
		if err := tx.SetStatus(ctx, txn.ID, target); err != nil {
			return err
		}
		txn.Status = target
		result = txn
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, actor, fmt.Sprintf("ledger:%s:%s", kind, action), result)
	return result, nil
}

func (s *Service) checkRefs(ctx context.Context, storeID int64, customerID, staffID *int64) error {
	if err := s.refs.StoreExists(ctx, storeID); err != nil {
		return err
	}
	if customerID != nil {
		if err := s.refs.CustomerExists(ctx, *customerID); err != nil {
			return err
		}
	}
	if staffID != nil {
		if err := s.refs.StaffExists(ctx, *staffID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) claimKey(ctx context.Context, key string) (bool, error) {
	if s.idem == nil {
		return false, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "ledger"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, txn Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "transaction",
		EntityID: txn.Code,
		Meta: map[string]any{
			"transaction_id": txn.ID,
			"store_id":       txn.StoreID,
			"status":         string(txn.Status),
			"total_amount":   txn.TotalAmount,
		},
	})
}
