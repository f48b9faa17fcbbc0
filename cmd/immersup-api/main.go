package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/handler"
	"github.com/immersup/immersup-api/internal/middleware"
	"github.com/immersup/immersup-api/internal/repository"
	"github.com/immersup/immersup-api/internal/service"
	"github.com/immersup/immersup-api/pkg/cache"
	"github.com/immersup/immersup-api/pkg/config"
	"github.com/immersup/immersup-api/pkg/database"
	"github.com/immersup/immersup-api/pkg/export"
	"github.com/immersup/immersup-api/pkg/geoapi"
	"github.com/immersup/immersup-api/pkg/logger"
	"github.com/immersup/immersup-api/pkg/mailer"
	corsmiddleware "github.com/immersup/immersup-api/pkg/middleware/cors"
	reqidmiddleware "github.com/immersup/immersup-api/pkg/middleware/requestid"
	"github.com/immersup/immersup-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()
	store := cache.NewStore(redisClient)

	docStore, err := storage.NewDocumentStore(cfg.Documents)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}

	var sender mailer.Sender
	switch cfg.Mail.Backend {
	case "sendgrid":
		sender = mailer.NewSendgridSender(cfg.Mail)
	default:
		sender = mailer.NewConsoleSender(logr)
	}
	mailQueue := mailer.NewQueue(sender, cfg.Mail, logr)

	geoClient := geoapi.NewClient(cfg.GeoAPI, logr)

	userRepo := repository.NewUserRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	highSchoolRepo := repository.NewHighSchoolRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	immersionRepo := repository.NewImmersionRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	templateRepo := repository.NewMailTemplateRepository(db)

	settingsSvc, err := service.NewSettingsService(settingsRepo, store, cfg.Settings.CacheTTL, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init settings registry", "error", err)
	}
	metricsSvc := service.NewMetricsService()
	notificationSvc := service.NewNotificationService(templateRepo, userRepo, mailQueue, metricsSvc, cfg.PlatformURL, logr)
	authoritySvc := service.NewAuthorityService(userRepo, userRepo, orgRepo, settingsSvc, notificationSvc, logr)
	periodSvc := service.NewPeriodService(periodRepo, logr)
	orgSvc := service.NewOrganizationService(highSchoolRepo, orgRepo, settingsSvc, docStore, nil, logr)
	slotSvc := service.NewSlotService(slotRepo, immersionRepo, orgRepo, periodSvc, notificationSvc, settingsSvc, nil, logr)
	recordSvc := service.NewRecordService(recordRepo, immersionRepo, docStore, settingsSvc, notificationSvc, nil, logr)
	registrationSvc := service.NewRegistrationService(immersionRepo, slotRepo, recordRepo, highSchoolRepo, orgSvc, periodSvc, notificationSvc, nil, logr)
	authSvc := service.NewAuthService(userRepo, recordSvc, authoritySvc, cfg.JWT, nil, logr)
	exportSvc := service.NewExportService(immersionRepo, userRepo, highSchoolRepo, export.NewCertificateExporter(), logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Config{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Services{
		Auth:          authSvc,
		Users:         userRepo,
		Authority:     authoritySvc,
		Slots:         slotSvc,
		Periods:       periodSvc,
		Registrations: registrationSvc,
		Records:       recordSvc,
		Organizations: orgSvc,
		Settings:      settingsSvc,
		Notifications: notificationSvc,
		Exports:       exportSvc,
		Metrics:       metricsSvc,
		Geo:           handler.NewGeoHandler(geoClient),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailQueue.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown", "error", err)
	}
	mailQueue.Stop()
}
