package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sitekart/sitekart/internal/app"
	"github.com/sitekart/sitekart/internal/catalog"
	"github.com/sitekart/sitekart/internal/invoice"
	"github.com/sitekart/sitekart/internal/observability"
	"github.com/sitekart/sitekart/internal/order"
	"github.com/sitekart/sitekart/internal/platform/cache"
	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisOptions()); err != nil {
		logger.Warn("redis unavailable, running without shared rate cache", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := cfg.QueueRedis()
	queue := asynq.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(app.ServiceDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    dbpool,
		Redis:   redisClient,
		Sink:    jobs.NewQueueSink(queue),
		Metrics: metrics,
	})

	rbacMiddleware := rbac.Middleware{Logger: logger}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		RBACMiddleware:   rbacMiddleware,
		CatalogHandler:   catalog.NewHandler(logger, services.Catalog, rbacMiddleware),
		QuotationHandler: quotation.NewHandler(logger, services.Quotations, rbacMiddleware, app.OrderMaterializer(services.Orders)),
		OrderHandler:     order.NewHandler(logger, services.Orders, rbacMiddleware),
		InvoiceHandler: invoice.NewHandler(logger, services.Invoices, rbacMiddleware, invoice.CallbackConfig{
			TokenHash: cfg.PaymentTokenHash,
			RateLimit: cfg.PaymentRateLimit,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
		Pool:       dbpool,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := services.RateCache.Listen(gctx); err != nil {
			logger.Warn("rate cache listener stopped", slog.Any("error", err))
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

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
