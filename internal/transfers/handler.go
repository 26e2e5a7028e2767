package transfers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forkline-erp/forkline/internal/platform/httpx"
)

// Handler serves the transfer endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/ship", h.ship)
	r.Post("/{id}/receive", h.receive)
}

type createRequest struct {
	SourceOutletID int64            `json:"source_outlet_id" validate:"required"`
	DestOutletID   int64            `json:"dest_outlet_id" validate:"required"`
	Notes          string           `json:"notes"`
	Items          []createItemLine `json:"items" validate:"required,min=1,dive"`
}

type createItemLine struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type quantityLine struct {
	ItemID int64   `json:"item_id" validate:"required"`
	Qty    float64 `json:"qty" validate:"gte=0"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
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
	input := CreateInput{SourceID: req.SourceOutletID, DestID: req.DestOutletID, Notes: req.Notes}
	for _, line := range req.Items {
		input.Items = append(input.Items, NewItemInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	transfer, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse(transfer, nil))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	transfer, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse(transfer, items))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	outletID, _ := strconv.ParseInt(r.URL.Query().Get("outlet_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filter := ListFilter{
		OutletID: outletID,
		Status:   Status(r.URL.Query().Get("status")),
		Limit:    limit,
		Offset:   offset,
	}
	transfers, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	var req struct {
		Items []quantityLine `json:"items" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ApproveItemInput, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, ApproveItemInput{ItemID: line.ItemID, Qty: line.Qty})
	}
	if err := h.service.Approve(r.Context(), id, items); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.service.Reject(r.Context(), id, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	if err := h.service.MarkShipped(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid transfer id")
		return
	}
	var req struct {
		Items []quantityLine `json:"items" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ReceiveItemInput, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, ReceiveItemInput{ItemID: line.ItemID, Qty: line.Qty})
	}
	result, err := h.service.ConfirmReceipt(r.Context(), id, items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	skipped := make([]map[string]any, 0, len(result.Skipped))
	for _, line := range result.Skipped {
		skipped = append(skipped, map[string]any{
			"item_id":    line.ItemID,
			"product_id": line.ProductID,
			"sku":        line.SKU,
			"qty":        line.Qty,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfer": result.Transfer,
		"skipped":  skipped,
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func transferResponse(t Transfer, items []Item) map[string]any {
	resp := map[string]any{"transfer": t}
	if items != nil {
		resp["items"] = items
	}
	return resp
}
