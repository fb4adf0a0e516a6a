package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath             string
	DBDriver           string
	ServerPort         string
	LogLevel           string
	CatalogPath        string
	NotifyWebhookURL   string
	MarketTickInterval time.Duration
	ReconcileInterval  time.Duration
	RNGSeed            uint64
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:           getEnv("DB_PATH", "economy.db"),
		DBDriver:         getEnv("DB_DRIVER", "sqlite3"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CatalogPath:      getEnv("CATALOG_PATH", ""),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
	}

	var err error
	if cfg.MarketTickInterval, err = getDuration("MARKET_TICK_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if seed := os.Getenv("RNG_SEED"); seed != "" {
		cfg.RNGSeed, err = strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RNG_SEED %q: %w", seed, err)
		}
	}

	switch cfg.DBDriver {
	case "sqlite3", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite3 or sqlite)", cfg.DBDriver)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("db_driver", cfg.DBDriver).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("catalog_path", cfg.CatalogPath).
		Bool("webhook_enabled", cfg.NotifyWebhookURL != "").
		Dur("market_tick_interval", cfg.MarketTickInterval).
		Dur("reconcile_interval", cfg.ReconcileInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

var Module = fx.Provide(Load)
