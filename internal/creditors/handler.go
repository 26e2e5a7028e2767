package creditors

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forkline-erp/forkline/internal/platform/httpx"
)

// Handler serves the creditor ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers creditor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.balances)
	r.Get("/{supplierID}/ledger", h.ledger)
	r.Get("/{supplierID}/export", h.export)
	r.Post("/purchases", h.recordPurchase)
	r.Post("/payments", h.recordPayment)
}

type purchaseRequest struct {
	OutletID    int64   `json:"outlet_id" validate:"required"`
	SupplierID  int64   `json:"supplier_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Particulars string  `json:"particulars" validate:"required"`
	RefID       int64   `json:"ref_id"`
}

type paymentRequest struct {
	OutletID   int64   `json:"outlet_id" validate:"required"`
	SupplierID int64   `json:"supplier_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Method     string  `json:"method" validate:"required"`
	PIN        string  `json:"pin" validate:"required,len=4"`
	RefID      int64   `json:"ref_id"`
	Notes      string  `json:"notes"`
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	outletID, _ := strconv.ParseInt(r.URL.Query().Get("outlet_id"), 10, 64)
	if outletID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "outlet_id is required")
		return
	}
	summaries, err := h.service.GetBalanceSummary(r.Context(), outletID)
	if err != nil {
		h.logger.Error("balance summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": summaries})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	supplierID, outletID, filter, ok := h.ledgerParams(w, r)
	if !ok {
		return
	}
	entries, err := h.service.GetLedger(r.Context(), outletID, supplierID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	supplierID, outletID, filter, ok := h.ledgerParams(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=creditor-ledger-%d.csv", supplierID))
	if err := h.service.ExportLedger(r.Context(), w, outletID, supplierID, filter); err != nil {
		h.logger.Error("export ledger", slog.Any("error", err))
	}
}

func (h *Handler) ledgerParams(w http.ResponseWriter, r *http.Request) (supplierID, outletID int64, filter LedgerFilter, ok bool) {
	supplierID, err := strconv.ParseInt(chi.URLParam(r, "supplierID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid supplier id")
		return 0, 0, LedgerFilter{}, false
	}
	outletID, _ = strconv.ParseInt(r.URL.Query().Get("outlet_id"), 10, 64)
	if outletID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "outlet_id is required")
		return 0, 0, LedgerFilter{}, false
	}
	if v := r.URL.Query().Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}
	return supplierID, outletID, filter, true
}

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.RecordPurchase(r.Context(), PurchaseInput{
		OutletID:    req.OutletID,
		SupplierID:  req.SupplierID,
		Amount:      req.Amount,
		Particulars: req.Particulars,
		RefID:       req.RefID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.RecordPayment(r.Context(), PaymentInput{
		OutletID:   req.OutletID,
		SupplierID: req.SupplierID,
		Amount:     req.Amount,
		Method:     req.Method,
		PIN:        req.PIN,
		RefID:      req.RefID,
		Notes:      req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": entry})
}
