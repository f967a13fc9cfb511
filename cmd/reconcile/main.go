package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/services/cron"
	"github.com/sahilchouksey/tuition-api/services/pagofacil"
	"github.com/sahilchouksey/tuition-api/utils"
)

// Polls every open QR settlement once, outside the scheduler
func main() {
	if err := config.LoadENV(); err != nil {
		slog.Warn(".env file could not be loaded, using system environment variables", "error", err)
	}
	utils.SetupLogger()

	env, err := config.Get()
	if err != nil {
		slog.Error("failed to read configuration", "error", err)
		os.Exit(1)
	}

	store, err := database.Open(env)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	db := store.GetDB()

	gateway := pagofacil.NewClient(pagofacil.Config{
		BaseURL:         env.PAGOFACIL_BASE_URL,
		TokenService:    env.PAGOFACIL_TOKEN_SERVICE,
		TokenSecret:     env.PAGOFACIL_TOKEN_SECRET,
		DefaultMethodID: env.PAGOFACIL_DEFAULT_METHOD_ID,
		Timeout:         time.Duration(env.PAGOFACIL_TIMEOUT_SECONDS) * time.Second,
	})
	notifications := services.NewNotificationService(db, env.OPERATOR_USER_IDS)
	settlements := services.NewSettlementService(db, gateway, notifications, services.SettlementConfig{
		CallbackURL: env.PUBLIC_BASE_URL + "/api/v1/webhooks/pagofacil",
	})

	manager := cron.NewCronManager(db, settlements, notifications, cron.Config{})
	message, err := manager.ReconcilePendingSettlements(context.Background())
	if err != nil {
		slog.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(message)
}
