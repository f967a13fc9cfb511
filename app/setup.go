package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/tuition-api/api"
	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/router"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/services/cron"
	"github.com/sahilchouksey/tuition-api/services/pagofacil"
	"github.com/sahilchouksey/tuition-api/services/storage"
	"github.com/sahilchouksey/tuition-api/utils"
	"github.com/sahilchouksey/tuition-api/utils/cache"
)

const shutdownTimeout = 15 * time.Second

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	if getEnv.DEBUG {
		utils.SetupLoggerWithLevel(slog.LevelDebug)
	} else {
		utils.SetupLoggerWithLevel(utils.ParseLogLevel(getEnv.LOG_LEVEL))
	}

	// Initialize GORM database connection
	store, err := database.Open(getEnv)
	if err != nil {
		slog.Error("check whether the database is running", "driver", getEnv.DB_DRIVER)
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		slog.Error("failed to initialize database tables")
		return err
	}
	db := store.GetDB()

	// Gateway session is shared through Redis when available so every
	// instance reuses one access token
	var sessionStore pagofacil.SessionStore = pagofacil.NewMemorySessionStore()
	if getEnv.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			slog.Warn("failed to connect to Redis, gateway session stays in memory", "error", err)
		} else {
			defer redisCache.Close()
			sessionStore = pagofacil.NewRedisSessionStore(redisCache)
		}
	}

	limits := pagofacil.DefaultRateLimiterConfig()
	gateway := pagofacil.NewClient(pagofacil.Config{
		BaseURL:         getEnv.PAGOFACIL_BASE_URL,
		TokenService:    getEnv.PAGOFACIL_TOKEN_SERVICE,
		TokenSecret:     getEnv.PAGOFACIL_TOKEN_SECRET,
		DefaultMethodID: getEnv.PAGOFACIL_DEFAULT_METHOD_ID,
		Timeout:         time.Duration(getEnv.PAGOFACIL_TIMEOUT_SECONDS) * time.Second,
		Store:           sessionStore,
		RateLimiter:     &limits,
	})

	notificationService := services.NewNotificationService(db, getEnv.OPERATOR_USER_IDS)
	mailer := services.NewEmailService(services.EmailConfig{
		Host:     getEnv.SMTP_HOST,
		Port:     getEnv.SMTP_PORT,
		Username: getEnv.SMTP_USERNAME,
		Password: getEnv.SMTP_PASSWORD,
		From:     getEnv.SMTP_FROM,
	})
	if mailer.IsConfigured() {
		notificationService.SetMailer(mailer)
	}
	settlementService := services.NewSettlementService(db, gateway, notificationService, services.SettlementConfig{
		CallbackURL: getEnv.PUBLIC_BASE_URL + "/api/v1/webhooks/pagofacil",
	})

	if spacesConfig, ok := storage.SpacesConfigFromEnv(getEnv); ok {
		spaces, err := storage.NewSpacesClient(spacesConfig)
		if err != nil {
			slog.Warn("QR archive disabled", "error", err)
		} else {
			settlementService.SetArchive(spaces)
		}
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager = cron.NewCronManager(db, settlementService, notificationService, cron.Config{
			ReconcileSchedule: getEnv.RECONCILE_CRON,
		})
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			slog.Warn("failed to start cron jobs", "error", err)
			cronManager = nil
		}
	}
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Setup Routes
	err = router.SetupRoutes(app, store, getEnv, router.Services{
		Plans:         services.NewPlanService(db),
		Ledger:        services.NewLedgerService(db),
		Settlements:   settlementService,
		Notifications: notificationService,
	})
	if err != nil {
		return err
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	// Get the PORT & Start the Server
	return server.Run()
}
