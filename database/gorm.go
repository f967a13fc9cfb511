package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sahilchouksey/tuition-api/config"
	"github.com/sahilchouksey/tuition-api/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"
)

type GORMStore struct {
	db *gorm.DB
}

// Ensure GORMStore implements Storage
var _ Storage = (*GORMStore)(nil)

// Open picks the backend from DB_DRIVER
func Open(env *config.EnviornmentVariable) (*GORMStore, error) {
	if env.DB_DRIVER == "sqlite" {
		return StartSQLite(env.SQLITE_PATH, gormLogger(env))
	}
	return StartGORM(env)
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM(env *config.EnviornmentVariable) (*GORMStore, error) {
	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		env.DB_SSL_MODE,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger(env),
		PrepareStmt:    true,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		slog.Error("unable to connect to PostgreSQL", "error", err)
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("connected to PostgreSQL", "host", env.DB_HOST, "db", env.DB_NAME)

	return &GORMStore{db: db}, nil
}

// StartSQLite opens a single-connection SQLite database through the pure Go
// modernc driver. One connection means writers are serialized, which stands
// in for row locks that SQLite does not support.
func StartSQLite(path string, lg logger.Interface) (*GORMStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if lg == nil {
		lg = logger.Default.LogMode(logger.Silent)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:  lg,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &GORMStore{db: db}, nil
}

func gormLogger(env *config.EnviornmentVariable) logger.Interface {
	if env.GO_ENV == "production" {
		return logger.Default.LogMode(logger.Error)
	}
	if env.DEBUG {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Warn)
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	slog.Info("running AutoMigrate")

	err := s.db.AutoMigrate(
		// Catalog models
		&model.Program{},
		&model.Student{},
		&model.Enrollment{},
		&model.Agreement{},

		// Billing models
		&model.PaymentPlan{},
		&model.Installment{},
		&model.Settlement{},
		&model.GatewayEvent{},

		// Audit & logging models
		&model.CronJobLog{},
		&model.UserNotification{},
	)

	if err != nil {
		slog.Error("AutoMigrate failed", "error", err)
		return err
	}

	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in services/handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
