package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/platform/httpx"
)

// Handler serves the purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk", h.createBulk)
	r.Get("/{id}", h.get)
	r.Post("/{id}/receive", h.receive)
}

type itemRefPayload struct {
	ProductID    int64 `json:"product_id"`
	IngredientID int64 `json:"ingredient_id"`
}

func (p itemRefPayload) ref() (catalog.ItemRef, bool) {
	switch {
	case p.ProductID != 0 && p.IngredientID == 0:
		return catalog.ProductRef(p.ProductID), true
	case p.IngredientID != 0 && p.ProductID == 0:
		return catalog.IngredientRef(p.IngredientID), true
	default:
		return catalog.ItemRef{}, false
	}
}

type bulkRequest struct {
	OutletID int64 `json:"outlet_id" validate:"required"`
	Items    []struct {
		itemRefPayload
		Qty float64 `json:"qty" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type createRequest struct {
	OutletID   int64  `json:"outlet_id" validate:"required"`
	SupplierID int64  `json:"supplier_id" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=DRAFT SENT"`
	Items      []struct {
		itemRefPayload
		Qty      float64 `json:"qty" validate:"required,gt=0"`
		UnitCost float64 `json:"unit_cost" validate:"gte=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type receiveRequest struct {
	Items []struct {
		ItemID int64   `json:"item_id" validate:"required"`
		Qty    float64 `json:"qty" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]BulkItemInput, 0, len(req.Items))
	for _, line := range req.Items {
		ref, ok := line.ref()
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "each item needs exactly one of product_id or ingredient_id")
			return
		}
		items = append(items, BulkItemInput{Ref: ref, Qty: line.Qty})
	}
	orders, err := h.service.CreateOrders(r.Context(), req.OutletID, items)
	if err != nil {
		h.logger.Error("bulk create orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"orders": orders})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		OutletID:   req.OutletID,
		SupplierID: req.SupplierID,
		Status:     OrderStatus(req.Status),
	}
	for _, line := range req.Items {
		ref, ok := line.ref()
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "each item needs exactly one of product_id or ingredient_id")
			return
		}
		input.Items = append(input.Items, ManualItemInput{Ref: ref, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid order id")
		return
	}
	order, items, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	outletID, _ := strconv.ParseInt(r.URL.Query().Get("outlet_id"), 10, 64)
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.service.ListOrders(r.Context(), ListFilter{
		OutletID:   outletID,
		SupplierID: supplierID,
		Status:     OrderStatus(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid order id")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]ReceiveLineInput, 0, len(req.Items))
	for _, line := range req.Items {
		lines = append(lines, ReceiveLineInput{ItemID: line.ItemID, Qty: line.Qty})
	}
	order, err := h.service.ReceiveOrder(r.Context(), id, r.Header.Get("Idempotency-Key"), lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}
