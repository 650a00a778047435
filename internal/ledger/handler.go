package ledger

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Handler exposes import and sale documents over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Post("/", h.createImport)
		r.Get("/", h.listImports)
		r.Get("/{id}", h.getImport)
		r.Post("/{id}/open", h.openImport)
		r.Post("/{id}/complete", h.completeImport)
		r.Post("/{id}/cancel", h.cancelImport)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.createSale)
		r.Get("/", h.listSales)
		r.Get("/{id}", h.getSale)
		r.Put("/{id}", h.updateSale)
		r.Post("/{id}/complete", h.completeSale)
		r.Post("/{id}/cancel", h.cancelSale)
	})
}

func (h *Handler) createImport(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req CreateImportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", err.Error()))
		return
	}
	txn, err := h.service.CreateImport(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", err.Error()))
		return
	}
	txn, err := h.service.CreateSale(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", "invalid JSON payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.NewValidation("body", err.Error()))
		return
	}
	txn, err := h.service.UpdateSale(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) openImport(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.OpenImport)
}

func (h *Handler) completeImport(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteImport)
}

func (h *Handler) cancelImport(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelImport)
}

func (h *Handler) completeSale(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteSale)
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelSale)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor shared.Actor, id int64) (Transaction, error)) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txn, err := op(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) getImport(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, KindImport)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, KindSale)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, kind TransactionKind) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txn, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) listImports(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindImport)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindSale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, kind TransactionKind) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	filter := ListFilter{
		Kind:    kind,
		Status:  TransactionStatus(r.URL.Query().Get("status")),
		StoreID: httpx.QueryInt64(r, "store_id"),
		Limit:   httpx.QueryInt(r, "limit"),
		Offset:  httpx.QueryInt(r, "offset"),
	}
	items, total, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}
