package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-books/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-books/internal/app"
	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/documents"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/sequence"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
	"github.com/odyssey-erp/odyssey-books/jobs"
)

// backend bundles the storage side of the selected STORAGE_BACKEND.
type backend struct {
	documents   documents.RepositoryPort
	catalog     catalog.Repository
	idempotency documents.IdempotencyPort
	audit       documents.AuditPort
	ready       func(ctx context.Context) error
	close       func()
}

func openBackend(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*backend, error) {
	if cfg.StorageBackend == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		return &backend{
			documents:   documents.NewMemoryRepository(),
			catalog:     catalog.NewMemoryRepository(),
			idempotency: shared.NewMemoryIdempotencyStore(),
			close:       func() {},
		}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	idempotency := shared.NewIdempotencyStore(pool)
	go pruneIdempotencyKeys(ctx, idempotency, logger)
	return &backend{
		documents:   documents.NewRepository(pool),
		catalog:     catalog.NewPGRepository(pool),
		idempotency: idempotency,
		audit:       shared.NewAuditLogger(pool),
		ready:       pool.Ping,
		close:       pool.Close,
	}, nil
}

// pruneIdempotencyKeys drops replay keys older than a day, hourly.
func pruneIdempotencyKeys(ctx context.Context, store *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, 24*time.Hour); err != nil {
				logger.Warn("prune idempotency keys", slog.Any("error", err))
			}
		}
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		logger.Info("applied migration", slog.String("name", name))
	}
	return nil
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "jobs":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		return jobsCLI.Run(ctx, args[1:], os.Stdout, os.Stderr)
	case "migrate":
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		if err := migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want jobs or migrate)\n", args[0])
		return 2
	}
}

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

	if len(os.Args) > 1 {
		code := runCommand(ctx, cfg, logger, os.Args[1:])
		stop()
		os.Exit(code)
	}

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, jobs and redis sequences disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var counters sequence.Store
	if cfg.SequenceBackend == "redis" {
		if redisClient == nil {
			logger.Error("SEQUENCE_BACKEND=redis requires a reachable redis")
			os.Exit(1)
		}
		counters = sequence.NewRedisStore(redisClient)
	}

	var events documents.EventPublisher
	var inspector *asynq.Inspector
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		events = jobClient
		inspector = asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}

	catalogService := catalog.NewService(store.catalog)
	engine := documents.NewEngine(store.documents, documents.Options{
		Counters:    counters,
		Taxes:       catalogService,
		Audit:       store.audit,
		Events:      events,
		Metrics:     metrics,
		Logger:      logger,
		Overpayment: documents.OverpaymentPolicy(cfg.OverpaymentPolicy),
		DueDays:     cfg.DefaultDueDays,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RBACMiddleware:   rbacMiddleware,
		DocumentsHandler: documents.NewHandler(logger, documents.NewServices(engine), rbacMiddleware, store.idempotency),
		CatalogHandler:   catalog.NewHandler(logger, catalogService, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Ready:            store.ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("storage", cfg.StorageBackend),
			slog.String("sequence", cfg.SequenceBackend),
			slog.String("overpayment", cfg.OverpaymentPolicy))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
