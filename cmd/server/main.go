package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/common/logger"
	"basegraph.app/booking/common/otel"
	"basegraph.app/booking/common/secrets"
	"basegraph.app/booking/core/config"
	"basegraph.app/booking/core/db"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/http/middleware"
	httprouter "basegraph.app/booking/internal/http/router"
	"basegraph.app/booking/internal/integration"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/service"
	"basegraph.app/booking/internal/store"
	"basegraph.app/booking/internal/webhook"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "booking starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	cipher, err := secrets.New(cfg.Secrets.Key)
	if err != nil {
		slog.ErrorContext(ctx, "invalid secrets key", "error", err)
		os.Exit(1)
	}
	if cfg.Secrets.Key == "" {
		slog.WarnContext(ctx, "SECRETS_KEY not set, integration secrets are stored unencrypted")
	}

	stores, tx, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open stores", "error", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}
	defer closeStores()

	producer, replay, err := openRedis(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer producer.Close() //nolint:errcheck

	validate := validator.New(validator.WithRequiredStructEnabled())
	registry := integration.NewRegistry(ctx, cfg, integration.Options{})
	manager := app.NewManager(stores, tx, registry, app.Services{
		Notifier:   producer,
		Secrets:    cipher,
		Replay:     replay,
		Validate:   validate,
		HTTPClient: &http.Client{Timeout: cfg.Provider.Timeout},
		Config:     cfg,
	})

	services := service.NewServices(stores, manager, validate, cfg.Provider)
	manager.SetScheduleResolver(services.Availability())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * cfg.Provider.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// openStores connects the configured store driver. The memory driver keeps
// everything in process and is meant for local runs.
func openStores(ctx context.Context, cfg config.Config) (store.Provider, store.TxRunner, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.WarnContext(ctx, "using in-memory stores, data is lost on restart")
		mem := store.NewMemoryStores()
		return mem, mem, func() {}, nil
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return store.NewStores(database.Conn()), store.NewTxRunner(database), database.Close, nil
}

// openRedis wires the notification stream and webhook replay guard. Without
// REDIS_URL notifications are only logged and replays are tracked in memory.
// Closing the producer closes the shared client.
func openRedis(ctx context.Context, cfg config.Config) (queue.Producer, webhook.ReplayGuard, error) {
	if !cfg.Redis.Enabled() {
		slog.WarnContext(ctx, "redis disabled, notifications are logged only")
		return queue.NewLogProducer(slog.Default()), webhook.NewMemoryReplayGuard(), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.NotificationStream)

	producer := queue.NewRedisProducer(client, cfg.Redis.NotificationStream, slog.Default())
	replay := webhook.NewRedisReplayGuard(client, "booking:webhook:replay:")
	return producer, replay, nil
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:    cfg.AdminAPIKey,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	return router
}

const banner = `
 _                 _    _
| |__   ___   ___ | | _(_)_ __   __ _
| '_ \ / _ \ / _ \| |/ / | '_ \ / _' |
| |_) | (_) | (_) |   <| | | | | (_| |
|_.__/ \___/ \___/|_|\_\_|_| |_|\__, |
                                |___/
`
