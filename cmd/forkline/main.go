package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/forkline-erp/forkline/internal/accounting"
	"github.com/forkline-erp/forkline/internal/app"
	"github.com/forkline-erp/forkline/internal/catalog"
	"github.com/forkline-erp/forkline/internal/creditors"
	"github.com/forkline-erp/forkline/internal/inventory"
	"github.com/forkline-erp/forkline/internal/notify"
	"github.com/forkline-erp/forkline/internal/observability"
	"github.com/forkline-erp/forkline/internal/platform/db"
	"github.com/forkline-erp/forkline/internal/procurement"
	"github.com/forkline-erp/forkline/internal/security"
	"github.com/forkline-erp/forkline/internal/shared"
	"github.com/forkline-erp/forkline/internal/transfers"
	"github.com/forkline-erp/forkline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	notifier := notify.NewAsynqNotifier(asynqClient)

	catalogRepo := catalog.NewRepository(pool)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger).WithMetrics(metrics)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	transfersRepo := transfers.NewRepository(pool)
	transfersService := transfers.NewService(transfersRepo, catalogRepo, auditLogger, logger, transfers.ServiceConfig{
		StrictQuantities: cfg.TransferStrictQuantities,
	})
	transfersHandler := transfers.NewHandler(logger, transfersService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, catalogRepo, auditLogger, logger).
		WithIdempotency(idempotency)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	securityRepo := security.NewRepository(pool)
	securityService := security.NewService(securityRepo, auditLogger)

	creditorsRepo := creditors.NewRepository(pool)
	creditorsService := creditors.NewService(creditorsRepo, catalogRepo, securityService, notifier, creditorsRepo, auditLogger, logger).
		WithMetrics(metrics)
	creditorsHandler := creditors.NewHandler(logger, creditorsService)

	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo, auditLogger)
	accountingHandler := accounting.NewHandler(logger, accountingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		TransfersHandler:   transfersHandler,
		ProcurementHandler: procurementHandler,
		InventoryHandler:   inventoryHandler,
		CreditorsHandler:   creditorsHandler,
		AccountingHandler:  accountingHandler,
		JobHandler:         jobHandler,
		Pool:               pool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
