package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/utils"
)

func main() {
	// Load environment variables
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

	if err := store.Init(); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("Tuition API - Database Seeding")
	fmt.Println(separator)

	if err := database.RunSeeds(store.GetDB()); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(separator)
	fmt.Println("Seeding completed successfully!")
	fmt.Println(separator)
}
