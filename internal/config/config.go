package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Mode selects which Т-Касса terminal the service talks to.
const (
	ModeTest = "test"
	ModeLive = "live"
)

// Config holds application configuration. Components receive it at
// construction time; nothing reads process environment after Load returns.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Gateway GatewayConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PlanCatalogPath string
}

// GatewayConfig carries everything needed to talk to Т-Касса: both credential
// sets, the active mode, and the callback URLs stamped onto Init requests.
type GatewayConfig struct {
	BaseURL string
	Mode    string

	TestTerminalKey string
	TestSecretKey   string
	LiveTerminalKey string
	LiveSecretKey   string

	NotificationURL string
	SuccessURL      string
	FailURL         string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kassa"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		Gateway: GatewayConfig{
			BaseURL: getenv("TKASSA_BASE_URL", "https://securepay.tinkoff.ru/v2"),
			Mode:    normalizeMode(getenv("TKASSA_MODE", ModeTest)),

			TestTerminalKey: firstNonEmpty(
				os.Getenv("TKASSA_TEST_TERMINAL_KEY"),
				os.Getenv("TINKOFF_TERMINAL_KEY_TEST"),
			),
			TestSecretKey: firstNonEmpty(
				os.Getenv("TKASSA_TEST_SECRET_KEY"),
				os.Getenv("TINKOFF_SECRET_KEY_TEST"),
			),
			LiveTerminalKey: firstNonEmpty(
				os.Getenv("TKASSA_TERMINAL_KEY"),
				os.Getenv("TINKOFF_TERMINAL_KEY"),
			),
			LiveSecretKey: firstNonEmpty(
				os.Getenv("TKASSA_SECRET_KEY"),
				os.Getenv("TINKOFF_SECRET_KEY"),
			),

			NotificationURL: getenv("TKASSA_NOTIFICATION_URL", ""),
			SuccessURL:      getenv("TKASSA_SUCCESS_URL", ""),
			FailURL:         getenv("TKASSA_FAIL_URL", ""),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kassa"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		PlanCatalogPath: getenv("PLAN_CATALOG_PATH", ""),
	}
}

func normalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeLive, "production", "prod":
		return ModeLive
	default:
		return ModeTest
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
