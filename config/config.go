package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DEBUG        bool
	LOG_LEVEL    string
	DB_DRIVER    string // postgres (default) or sqlite
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	SQLITE_PATH  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// PagoFacil QR gateway
	PAGOFACIL_BASE_URL          string
	PAGOFACIL_TOKEN_SERVICE     string
	PAGOFACIL_TOKEN_SECRET      string
	PAGOFACIL_DEFAULT_METHOD_ID int
	PAGOFACIL_TIMEOUT_SECONDS   int
	PUBLIC_BASE_URL             string
	// Billing
	OPERATOR_USER_IDS []uint
	CRON_ENABLED      bool
	RECONCILE_CRON    string
	ALLOWED_ORIGINS   string
	// SMTP (payment receipts)
	SMTP_HOST     string
	SMTP_PORT     int
	SMTP_USERNAME string
	SMTP_PASSWORD string
	SMTP_FROM     string
	// DigitalOcean Spaces (QR image archive)
	DO_SPACES_KEY      string
	DO_SPACES_SECRET   string
	DO_SPACES_BUCKET   string
	DO_SPACES_REGION   string
	DO_SPACES_ENDPOINT string
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DEBUG:        parseBool(os.Getenv("DEBUG"), false),
		LOG_LEVEL:    os.Getenv("LOG_LEVEL"),
		DB_DRIVER:    withDefault(os.Getenv("DB_DRIVER"), "postgres"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      withDefault(os.Getenv("DB_HOST"), "localhost"),
		DB_PORT:      withDefault(os.Getenv("DB_PORT"), "5432"),
		DB_SSL_MODE:  withDefault(os.Getenv("DB_SSL_MODE"), "disable"),
		SQLITE_PATH:  withDefault(os.Getenv("SQLITE_PATH"), "data/tuition.db"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: withDefault(os.Getenv("JWT_ISSUER"), "tuition-api"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// PagoFacil
		PAGOFACIL_BASE_URL:          withDefault(os.Getenv("PAGOFACIL_BASE_URL"), "https://masterqr.pagofacil.com.bo/api/services/v2"),
		PAGOFACIL_TOKEN_SERVICE:     os.Getenv("PAGOFACIL_TOKEN_SERVICE"),
		PAGOFACIL_TOKEN_SECRET:      os.Getenv("PAGOFACIL_TOKEN_SECRET"),
		PAGOFACIL_DEFAULT_METHOD_ID: parseInt(os.Getenv("PAGOFACIL_DEFAULT_METHOD_ID"), 4),
		PAGOFACIL_TIMEOUT_SECONDS:   parseInt(os.Getenv("PAGOFACIL_TIMEOUT_SECONDS"), 30),
		PUBLIC_BASE_URL:             strings.TrimRight(withDefault(os.Getenv("PUBLIC_BASE_URL"), "http://localhost:8080"), "/"),
		// Billing
		OPERATOR_USER_IDS: parseIDList(os.Getenv("OPERATOR_USER_IDS")),
		CRON_ENABLED:      parseBool(os.Getenv("CRON_ENABLED"), true),
		RECONCILE_CRON:    withDefault(os.Getenv("RECONCILE_CRON"), "0 */5 * * * *"),
		ALLOWED_ORIGINS:   withDefault(os.Getenv("ALLOWED_ORIGINS"), "http://localhost:3000"),
		// SMTP
		SMTP_HOST:     os.Getenv("SMTP_HOST"),
		SMTP_PORT:     parseInt(os.Getenv("SMTP_PORT"), 587),
		SMTP_USERNAME: os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD: os.Getenv("SMTP_PASSWORD"),
		SMTP_FROM:     os.Getenv("SMTP_FROM"),
		// DigitalOcean Spaces
		DO_SPACES_KEY:      os.Getenv("DO_SPACES_KEY"),
		DO_SPACES_SECRET:   os.Getenv("DO_SPACES_SECRET"),
		DO_SPACES_BUCKET:   os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:   withDefault(os.Getenv("DO_SPACES_REGION"), "nyc3"),
		DO_SPACES_ENDPOINT: os.Getenv("DO_SPACES_ENDPOINT"),
	}

	return envVariables, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseInt(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// parseIDList reads a comma separated list of user ids, skipping junk entries
func parseIDList(v string) []uint {
	var ids []uint
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil || n == 0 {
			continue
		}
		ids = append(ids, uint(n))
	}
	return ids
}
