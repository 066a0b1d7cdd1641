package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string

	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	CronSecret     string
	CutoffHour     int
	ReportTimezone string
	Location       *time.Location

	SweepInterval    time.Duration
	SweepDeadline    time.Duration
	SweepConcurrency int

	NotifyWebhookURL string
	ReportWebhookURL string
	PublicBaseURL    string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	out, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	out, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}

// Load reads configuration from the environment, after merging a local .env
// file when one exists. Variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Env:              getenv("APP_ENV", "development"),
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		StoreDriver:      strings.ToLower(getenv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getenv("MONGO_DATABASE", "freightbid"),
		CronSecret:       os.Getenv("CRON_SECRET"),
		ReportTimezone:   getenv("REPORT_TIMEZONE", "Asia/Kolkata"),
		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		ReportWebhookURL: os.Getenv("REPORT_WEBHOOK_URL"),
		PublicBaseURL:    getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
	}

	var errs []error
	var err error
	if cfg.CutoffHour, err = getenvInt("CUTOFF_HOUR", 18); err != nil {
		errs = append(errs, err)
	} else if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		errs = append(errs, fmt.Errorf("CUTOFF_HOUR must be in [0,23], got %d", cfg.CutoffHour))
	}
	if cfg.SweepConcurrency, err = getenvInt("SWEEP_CONCURRENCY", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.SweepInterval, err = getenvDuration("SWEEP_INTERVAL", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.SweepDeadline, err = getenvDuration("SWEEP_DEADLINE", 2*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.Location, err = time.LoadLocation(cfg.ReportTimezone); err != nil {
		errs = append(errs, fmt.Errorf("REPORT_TIMEZONE: %w", err))
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, mongo, memory", cfg.StoreDriver))
	}
	return cfg, errors.Join(errs...)
}

// Production reports whether the service runs with production defaults.
func (c Config) Production() bool {
	return c.Env == "production"
}
