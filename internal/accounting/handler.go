package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/forkline-erp/forkline/internal/platform/httpx"
)

// Handler serves journal endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journal", h.list)
	r.Post("/journal", h.post)
}

type postRequest struct {
	Date         string `json:"date"`
	SourceModule string `json:"source_module" validate:"required"`
	SourceID     string `json:"source_id" validate:"required,uuid"`
	Memo         string `json:"memo"`
	Lines        []struct {
		AccountCode string  `json:"account_code" validate:"required"`
		Debit       float64 `json:"debit" validate:"gte=0"`
		Credit      float64 `json:"credit" validate:"gte=0"`
	} `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PostingInput{
		SourceModule: req.SourceModule,
		SourceID:     uuid.MustParse(req.SourceID),
		Memo:         req.Memo,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	id, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		h.logger.Error("post journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListJournal(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
