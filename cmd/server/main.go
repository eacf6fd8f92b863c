package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/asset"
	"github.com/iliyamo/event-reservation/internal/auth"
	"github.com/iliyamo/event-reservation/internal/cache"
	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/config"
	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/handler"
	"github.com/iliyamo/event-reservation/internal/logger"
	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/router"
	"github.com/iliyamo/event-reservation/internal/service"
	"github.com/iliyamo/event-reservation/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.String("dialect", string(db.Dialect)))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log))
	e.Use(echomw.BodyLimit(bodyLimit(cfg.Assets.MaxUploadBytes)))

	assets, err := openAssets(cfg.Assets, e)
	if err != nil {
		return err
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	responses := cache.New(rdb, cfg.Cache.Prefix, cfg.Cache.TTL)

	clk := clock.NewSystem()
	opts := []service.Option{
		service.WithClock(clk),
		service.WithLogger(log),
		service.WithRetry(cfg.Retry),
	}
	if responses != nil {
		opts = append(opts, service.WithCache(responses))
	}
	if cfg.Queue.URL != "" {
		pub := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.DialTimeout)
		defer pub.Close()
		notifier := queue.NewNotifier(pub, queue.NotifierConfig{
			ActivityQueue:  cfg.Queue.ActivityQueue,
			CleanupQueue:   cfg.Queue.AssetCleanup,
			Buffer:         cfg.Queue.PublishBuffer,
			PublishTimeout: cfg.Queue.PublishTimeout,
		}, log)
		go notifier.Run(ctx)
		opts = append(opts, service.WithNotifier(notifier))
		if err := startConsumers(ctx, cfg.Queue, assets, log); err != nil {
			return err
		}
	}

	tx := repository.NewTransactor(db)
	events := repository.NewEventRepo(db)
	reservations := repository.NewReservationRepo(db)
	eventSvc := service.NewEventService(tx, events, reservations, assets, opts...)
	reservationSvc := service.NewReservationService(tx, events, reservations, opts...)

	router.Register(e, router.Deps{
		Health:       handler.Health(db),
		Events:       handler.NewEventHandler(eventSvc, clk, cfg.Assets.MaxUploadBytes),
		Reservations: handler.NewReservationHandler(reservationSvc, clk),
		Auth:         middleware.Authenticate(auth.NewJWTGate(cfg.JWTSecret)),
		Cache:        middleware.ResponseCache(cfg.Cache, responses),
		RateLimit:    middleware.RateLimit(cfg.RateLimit, rdb, log),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

// openAssets builds the configured asset store. Disk assets are served back
// under the path of the public base URL.
func openAssets(cfg config.AssetConfig, e *echo.Echo) (asset.Store, error) {
	if strings.EqualFold(cfg.Driver, "memory") {
		return asset.NewMemoryStore(cfg.PublicBaseURL), nil
	}
	store, err := asset.NewDiskStore(cfg.Dir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	e.Static(staticPrefix(cfg.PublicBaseURL), store.Dir())
	return store, nil
}

func staticPrefix(baseURL string) string {
	p := baseURL
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
		if j := strings.IndexByte(p, '/'); j >= 0 {
			p = p[j:]
		} else {
			p = "/"
		}
	}
	if p == "" {
		p = "/"
	}
	return p
}

// bodyLimit allows an image upload plus room for the other form fields.
func bodyLimit(maxUpload int64) string {
	const slack = 1 << 20
	return fmt.Sprintf("%dB", maxUpload+slack)
}

// startConsumers runs the activity log and asset cleanup consumers until
// ctx is cancelled.
func startConsumers(ctx context.Context, cfg config.QueueConfig, assets asset.Store, log *zap.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.ActivityLogPath), 0o755); err != nil {
		return fmt.Errorf("create activity log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.ActivityLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	activity := logger.New("info", logger.WithWriters(f))

	go func() {
		defer f.Close()
		if err := queue.Consume(ctx, cfg.URL, cfg.DialTimeout, cfg.ActivityQueue, queue.ActivityLogHandler(activity), log); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("activity consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := queue.Consume(ctx, cfg.URL, cfg.DialTimeout, cfg.AssetCleanup, queue.AssetCleanupHandler(assets, log), log); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("asset cleanup consumer stopped", zap.Error(err))
		}
	}()
	return nil
}
