package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultAppName        = "Mosala"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultLockWait       = 3 * time.Second
	defaultRatePerMinute  = 60
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	PriceTableFile string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	// LockWait bounds how long a single ledger operation may wait for its
	// balance keys before failing instead of blocking.
	LockWait      time.Duration
	RatePerMinute int
}

// Load reads configuration values from the environment (and an optional .env
// file) and populates a Config instance. DATABASE_URL and REDIS_URL may be
// empty in development: the service then runs on its in-memory backends.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		PriceTableFile: os.Getenv("PRICE_TABLE_FILE"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		LockWait:       defaultLockWait,
		RatePerMinute:  defaultRatePerMinute,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockWait, err = durationEnv("STORE_LOCK_WAIT", cfg.LockWait); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RatePerMinute = n
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a development-style environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

type priceTableFile struct {
	Prices map[string]string `yaml:"prices"`
}

// PriceTable parses the optional YAML price file used to seed the static
// price oracle. A missing PRICE_TABLE_FILE yields an empty table.
func (c Config) PriceTable() (map[string]decimal.Decimal, error) {
	if c.PriceTableFile == "" {
		return map[string]decimal.Decimal{}, nil
	}

	raw, err := os.ReadFile(c.PriceTableFile)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}

	var file priceTableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse price table: %w", err)
	}

	table := make(map[string]decimal.Decimal, len(file.Prices))
	for symbol, price := range file.Prices {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("price table entry %s: %w", symbol, err)
		}
		table[strings.ToUpper(symbol)] = d
	}
	return table, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
