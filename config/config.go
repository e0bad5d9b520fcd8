package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TimerStoreMemory = "memory"
	TimerStoreSQLite = "sqlite"
	TimerStoreMySQL  = "mysql"
	TimerStoreRedis  = "redis"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	GRPC     ServerConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Log      LogConfig
	Stripe   StripeConfig
	Intent   IntentConfig
	Checkout CheckoutConfig
	PayPal   PayPalConfig
	Timer    TimerConfig
}

type AppConfig struct {
	ServiceName string
	Mode        string
	CatalogPath string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	APIBaseURL     string
	HTTPTimeout    time.Duration
}

type IntentConfig struct {
	Currency       string
	Description    string
	ProductID      string
	RateLimitRPS   float64
	RateLimitBurst int
}

type CheckoutConfig struct {
	ServiceURL     string
	IntentTimeout  time.Duration
	RevealInterval time.Duration
	RevealSettle   time.Duration
	TimerTick      time.Duration
	ReturnURL      string
}

type PayPalConfig struct {
	BusinessEmail string
	CheckoutURL   string
}

type TimerConfig struct {
	Store      string
	SQLitePath string
	Cycle      time.Duration
	StorageKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	timerStore := strings.ToLower(getEnv("TIMER_STORE", TimerStoreSQLite))
	switch timerStore {
	case TimerStoreMemory, TimerStoreSQLite, TimerStoreMySQL, TimerStoreRedis:
	default:
		return nil, fmt.Errorf("TIMER_STORE must be one of memory, sqlite, mysql, redis: got %q", timerStore)
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if timerStore == TimerStoreMySQL && mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required when TIMER_STORE=mysql")
	}

	serviceURL := strings.TrimRight(getEnv("CHECKOUT_SERVICE_URL", "http://localhost:4242"), "/")
	if err := validateServiceURL(serviceURL); err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "checkout-service"),
			Mode:        getEnv("APP_MODE", "production"),
			CatalogPath: getEnv("CATALOG_PATH", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "4242"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Stripe: StripeConfig{
			SecretKey:      strings.TrimSpace(getEnv("STRIPE_SECRET_KEY", "")),
			PublishableKey: strings.TrimSpace(getEnv("STRIPE_PUBLISHABLE_KEY", "")),
			APIBaseURL:     strings.TrimRight(getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"), "/"),
			HTTPTimeout:    getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Intent: IntentConfig{
			Currency:       strings.ToLower(getEnv("INTENT_CURRENCY", "usd")),
			Description:    getEnv("INTENT_DESCRIPTION", "Avada Design Bundle"),
			ProductID:      getEnv("INTENT_PRODUCT_ID", "lifetime-bundle-01"),
			RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
			RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 10),
		},
		Checkout: CheckoutConfig{
			ServiceURL:     serviceURL,
			IntentTimeout:  getSecondsEnv("CHECKOUT_INTENT_TIMEOUT_SECONDS", 5*time.Second),
			RevealInterval: getMillisecondsEnv("CHECKOUT_REVEAL_INTERVAL_MS", 150*time.Millisecond),
			RevealSettle:   getMillisecondsEnv("CHECKOUT_REVEAL_SETTLE_MS", 500*time.Millisecond),
			TimerTick:      getMillisecondsEnv("CHECKOUT_TIMER_TICK_MS", time.Second),
			ReturnURL:      getEnv("CHECKOUT_RETURN_URL", "https://architect.systeme.io/books"),
		},
		PayPal: PayPalConfig{
			BusinessEmail: getEnv("PAYPAL_BUSINESS_EMAIL", "design@avada.in"),
			CheckoutURL:   getEnv("PAYPAL_CHECKOUT_URL", "https://www.paypal.com/cgi-bin/webscr"),
		},
		Timer: TimerConfig{
			Store:      timerStore,
			SQLitePath: getEnv("TIMER_SQLITE_PATH", "checkout_state.db"),
			Cycle:      getSecondsEnv("TIMER_CYCLE_SECONDS", 8629*time.Second),
			StorageKey: getEnv("TIMER_STORAGE_KEY", "offer_timer_v1"),
		},
	}, nil
}

func validateServiceURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("CHECKOUT_SERVICE_URL is invalid: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("CHECKOUT_SERVICE_URL must be an absolute http(s) url: got %q", raw)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
