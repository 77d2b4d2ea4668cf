package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"saldo/internal/log"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP; an empty URL disables events and queued imports
	AMQPURL         string
	AMQPExchange    string
	AMQPEventsQueue string
	AMQPImportQueue string

	// Imports
	ImportDir        string
	ImportRateLimit  int
	ImportRatePeriod time.Duration
	TrustedProxies   []string
	GoogleCredsFile  string
	GoogleCredsJSON  string

	// Report view cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// Overdue sweeper
	OverdueSweepInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/saldo.db"),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "saldo"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "ledger_events"),
		AMQPImportQueue: getEnv("AMQP_IMPORT_QUEUE", "import_jobs"),

		ImportDir:        getEnv("IMPORT_DIR", "./data/imports"),
		ImportRateLimit:  getEnvInt("IMPORT_RATE_LIMIT", 10),
		ImportRatePeriod: getEnvDuration("IMPORT_RATE_PERIOD", time.Minute),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES"),
		GoogleCredsFile:  getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleCredsJSON:  getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 256),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),

		OverdueSweepInterval: getEnvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// GoogleEnabled reports whether spreadsheet imports can authenticate.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleCredsFile != "" || c.GoogleCredsJSON != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsQueue == "" || c.AMQPImportQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
		// Queued uploads are handed to the worker through this directory.
		if c.ImportDir == "" {
			errors = append(errors, "import directory cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleCredsFile != "" {
		if _, err := os.Stat(c.GoogleCredsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleCredsFile))
		}
	}

	if c.ImportRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid import rate limit %d: must be at least 1", c.ImportRateLimit))
	}
	if c.ImportRatePeriod < time.Second {
		errors = append(errors, fmt.Sprintf("invalid import rate period %v: must be at least 1 second", c.ImportRatePeriod))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.ReportCacheSize < 1 || c.ReportCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be between 1 and 100000", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at least 1 second", c.ReportCacheTTL))
	}

	if c.OverdueSweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid overdue sweep interval %v: must be at least 1 minute", c.OverdueSweepInterval))
	} else if c.OverdueSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid overdue sweep interval %v: must be at most 24 hours", c.OverdueSweepInterval))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
