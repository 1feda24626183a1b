package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanCapsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Ledger    LedgerConfig
	Posting   PostingConfig
	Billing   BillingConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled      bool
	PostingRate  float64
	PostingBurst int
}

type LedgerConfig struct {
	Provider     string
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	QBORealmID   string
	XeroTenantID string
	Timeout      time.Duration
}

type PostingConfig struct {
	MaxBatchSize     int
	Concurrency      int
	InFlightLockTTL  time.Duration
	InFlightPollWait time.Duration
}

type BillingConfig struct {
	PortalPath       string
	PlansFile        string
	// EntitlementCache is the TTL for usage-status reads; posting admission always reads the row.
	EntitlementCache time.Duration
}

const (
	LedgerProviderQBO     = "qbo"
	LedgerProviderXero    = "xero"
	LedgerProviderSandbox = "sandbox"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "bookpost"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "bookpost"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "bookpost.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			PostingRate:  getenvFloat("RATE_LIMIT_POSTING_RATE", 5),
			PostingBurst: getenvInt("RATE_LIMIT_POSTING_BURST", 20),
		},
		Ledger: LedgerConfig{
			Provider:     strings.ToLower(getenv("LEDGER_PROVIDER", LedgerProviderSandbox)),
			BaseURL:      strings.TrimRight(strings.TrimSpace(getenv("LEDGER_BASE_URL", "")), "/"),
			TokenURL:     strings.TrimSpace(getenv("LEDGER_TOKEN_URL", "")),
			ClientID:     strings.TrimSpace(getenv("LEDGER_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("LEDGER_CLIENT_SECRET", "")),
			AccessToken:  strings.TrimSpace(getenv("LEDGER_ACCESS_TOKEN", "")),
			QBORealmID:   strings.TrimSpace(getenv("LEDGER_QBO_REALM_ID", "")),
			XeroTenantID: strings.TrimSpace(getenv("LEDGER_XERO_TENANT_ID", "")),
			Timeout:      getenvDuration("LEDGER_TIMEOUT", 20*time.Second),
		},
		Posting: PostingConfig{
			MaxBatchSize:     getenvInt("POSTING_MAX_BATCH", 200),
			Concurrency:      getenvInt("POSTING_CONCURRENCY", 4),
			InFlightLockTTL:  getenvDuration("POSTING_INFLIGHT_LOCK_TTL", 30*time.Second),
			InFlightPollWait: getenvDuration("POSTING_INFLIGHT_POLL", 250*time.Millisecond),
		},
		Billing: BillingConfig{
			PortalPath:       getenv("BILLING_PORTAL_PATH", "/billing/portal"),
			PlansFile:        strings.TrimSpace(getenv("BILLING_PLANS_FILE", "")),
			EntitlementCache: getenvDuration("ENTITLEMENT_CACHE_TTL", 0),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
