package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkline-erp/forkline/internal/accounting"
	"github.com/forkline-erp/forkline/internal/creditors"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/observability"
	"github.com/forkline-erp/forkline/internal/procurement"
	"github.com/forkline-erp/forkline/internal/shared"
	"github.com/forkline-erp/forkline/internal/transfers"
	"github.com/forkline-erp/forkline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	TransfersHandler   *transfers.Handler
	ProcurementHandler *procurement.Handler
	InventoryHandler   *inventory.Handler
	CreditorsHandler   *creditors.Handler
	AccountingHandler  *accounting.Handler
	JobHandler         *jobs.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Warn("healthz db ping", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(shared.IdentityMiddleware)
		r.Route("/api/v1", func(r chi.Router) {
			if params.TransfersHandler != nil {
				r.Route("/transfers", params.TransfersHandler.MountRoutes)
			}
			if params.ProcurementHandler != nil {
				r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				r.Route("/inventory", params.InventoryHandler.MountRoutes)
			}
			if params.CreditorsHandler != nil {
				r.Route("/creditors", params.CreditorsHandler.MountRoutes)
			}
			if params.AccountingHandler != nil {
				r.Route("/accounting", params.AccountingHandler.MountRoutes)
			}
		})
	})

	return r
}
