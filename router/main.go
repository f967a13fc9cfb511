package router

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/handlers"
	billing_handlers "github.com/sahilchouksey/tuition-api/handlers/billing"
	notification_handlers "github.com/sahilchouksey/tuition-api/handlers/notification"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/utils"
	"github.com/sahilchouksey/tuition-api/utils/auth"
	"github.com/sahilchouksey/tuition-api/utils/middleware"
)

// Services are the long-lived billing services shared with the cron jobs
type Services struct {
	Plans         *services.PlanService
	Ledger        *services.LedgerService
	Settlements   *services.SettlementService
	Notifications *services.NotificationService
}

func SetupRoutes(app *fiber.App, store database.Storage, env *config.EnviornmentVariable, svc Services) error {
	if env.JWT_SECRET == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	// Initialize JWT manager with config
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: env.JWT_SECRET,
		Expiry: 24 * time.Hour,
		Issuer: env.JWT_ISSUER,
	})
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	billingHandler := billing_handlers.NewBillingHandler(svc.Plans, svc.Ledger, svc.Settlements, env.DEBUG)
	notificationHandler := notification_handlers.NewNotificationHandler(svc.Notifications)

	// Apply security middleware
	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    env.ALLOWED_ORIGINS,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
		AccessLog:         true,
	})

	// Health check and metrics (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	// Payment plans, installments, settlements and the gateway callback
	billingHandler.RegisterRoutes(api, authMiddleware)

	// Payment notifications of the authenticated payer
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Post("/:id/read", notificationHandler.MarkAsRead)

	return nil
}
