package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/rinkdesk/ice-booking-api/api/swagger"
	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/handler"
	"github.com/rinkdesk/ice-booking-api/internal/realtime"
	"github.com/rinkdesk/ice-booking-api/internal/repository"
	"github.com/rinkdesk/ice-booking-api/internal/scheduler"
	"github.com/rinkdesk/ice-booking-api/internal/server"
	"github.com/rinkdesk/ice-booking-api/internal/service"
	"github.com/rinkdesk/ice-booking-api/pkg/cache"
	"github.com/rinkdesk/ice-booking-api/pkg/clock"
	"github.com/rinkdesk/ice-booking-api/pkg/config"
	"github.com/rinkdesk/ice-booking-api/pkg/database"
	"github.com/rinkdesk/ice-booking-api/pkg/export"
	"github.com/rinkdesk/ice-booking-api/pkg/jobs"
	"github.com/rinkdesk/ice-booking-api/pkg/logger"
	"github.com/rinkdesk/ice-booking-api/pkg/storage"
)

// @title Ice Rink Booking API
// @version 1.0.0
// @description Booking requests, admin events, occupancy calendar and monthly invoicing for a single ice sheet.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	clk := clock.NewRealClock()
	norm, err := booking.LoadNormalizer(cfg.Rink.TimeZone, clk)
	if err != nil {
		return fmt.Errorf("load rink timezone: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	requestRepo := repository.NewBookingRequestRepository(db)
	eventRepo := repository.NewAdminEventRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.Retries,
		Logger:     logr,
	})
	notifications := service.NewNotificationService(queue, service.NewLogNotifier(logr), cfg.Rink.Name, logr)

	hub := realtime.NewHub(cfg.CORS.AllowedOrigins, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Calendar.CacheTTL, logr, cfg.Calendar.CacheEnabled)

	occupancy := service.NewOccupancyService(service.OccupancyDeps{
		DB:       db,
		Requests: requestRepo,
		Events:   eventRepo,
		DayLocks: repository.NewDayLockRepository(),
		Norm:     norm,
		Checker:  booking.NewChecker(booking.NewExpander(cfg.Booking.MaxOccurrences)),
		Metrics:  metrics,
		Logger:   logr,
	})
	calendar := service.NewCalendarService(occupancy, cacheSvc, cfg.Calendar.CacheTTL, cfg.Rink.Name, logr)
	occupancy.AddListener(calendar)
	occupancy.AddListener(hub)

	lifecycle := booking.NewLifecycle(norm, cfg.Booking.AmountEditWindowMonths)
	requests := service.NewBookingRequestService(requestRepo, occupancy, lifecycle, notifications, invoiceRepo, validate, logr)
	events := service.NewAdminEventService(eventRepo, occupancy, lifecycle, validate, logr)

	fileStore, err := storage.NewLocalStorage(cfg.Invoices.StorageDir, clk)
	if err != nil {
		return fmt.Errorf("init invoice storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Invoices.SignedURLSecret, cfg.Invoices.SignedURLTTL, clk)
	exports := service.NewExportService(requestRepo, requestRepo, fileStore, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, RinkName: cfg.Rink.Name},
		logr, export.NewCSVExporter(), export.NewPDFExporter())
	invoices := service.NewInvoiceService(service.InvoiceDeps{
		DB:        db,
		Invoices:  invoiceRepo,
		Requests:  requestRepo,
		Documents: exports,
		Notifier:  notifications,
		Norm:      norm,
		Validator: validate,
		Logger:    logr,
	})
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if err := occupancy.Rebuild(ctx); err != nil {
		return fmt.Errorf("build occupancy: %w", err)
	}

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler, scheduler.Deps{
			Occupancy:   occupancy,
			Invoices:    invoices,
			Documents:   exports,
			DocumentTTL: cfg.Invoices.SignedURLTTL,
			Location:    norm.Location(),
			Logger:      logr,
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	router := server.NewRouter(server.Handlers{
		Requests:  handler.NewBookingRequestHandler(requests),
		Events:    handler.NewAdminEventHandler(events),
		Conflicts: handler.NewConflictHandler(occupancy),
		Calendar:  handler.NewCalendarHandler(calendar),
		Invoices:  handler.NewInvoiceHandler(invoices, exports),
		Exports:   handler.NewExportHandler(exports, clk),
		System: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db,
			"redis":    handler.PingFunc(cacheRepo.Ping),
		}),
		Realtime: hub,
	}, server.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Tokens:         tokens,
		Metrics:        metrics,
		Logger:         logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
