package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/platform/httpx"
)

// Handler serves the stock movement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/moves", h.listMoves)
	r.Post("/adjustments", h.postAdjustment)
}

type adjustmentRequest struct {
	OutletID     int64   `json:"outlet_id" validate:"required"`
	ProductID    int64   `json:"product_id"`
	IngredientID int64   `json:"ingredient_id"`
	Qty          float64 `json:"qty" validate:"required"`
	Type         string  `json:"type" validate:"omitempty,oneof=ADJUSTMENT WASTE"`
	Note         string  `json:"note"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var ref catalog.ItemRef
	switch {
	case req.ProductID != 0 && req.IngredientID == 0:
		ref = catalog.ProductRef(req.ProductID)
	case req.IngredientID != 0 && req.ProductID == 0:
		ref = catalog.IngredientRef(req.IngredientID)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exactly one of product_id or ingredient_id is required")
		return
	}
	err := h.service.PostAdjustment(r.Context(), Movement{
		OutletID: req.OutletID,
		Ref:      ref,
		Qty:      req.Qty,
		Type:     MoveType(req.Type),
		Date:     time.Now(),
		Note:     req.Note,
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMoves(w http.ResponseWriter, r *http.Request) {
	outletID, _ := strconv.ParseInt(r.URL.Query().Get("outlet_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := MoveFilter{OutletID: outletID, Limit: limit}
	if v := r.URL.Query().Get("product_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		filter.Ref = catalog.ProductRef(id)
	} else if v := r.URL.Query().Get("ingredient_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		filter.Ref = catalog.IngredientRef(id)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}
	moves, err := h.service.ListMoves(r.Context(), filter)
	if err != nil {
		h.logger.Error("list moves", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"moves": moves})
}
