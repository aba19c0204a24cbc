package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/crypto/bcrypt"

	"cashbook/internal/log"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	WorkspaceIdleTTL   time.Duration
	MaxWorkspaces      int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP; an empty URL disables change notifications.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	AuthJWTSecret  string
	AuthTokenTTL   time.Duration
	AuthBcryptCost int

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Logging
	LogLevel  string
	LogFormat string

	// Client behaviour
	ReportTimezone   string
	ShareBaseURL     string
	EnforceOwnership bool

	// Worker
	MirrorInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		WorkspaceIdleTTL:   getEnvDuration("WORKSPACE_IDLE_TTL", 30*time.Minute),
		MaxWorkspaces:      getEnvInt("MAX_WORKSPACES", 1000),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashbook.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashbook"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cashbook_mirror"),

		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AuthTokenTTL:   getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		AuthBcryptCost: getEnvInt("AUTH_BCRYPT_COST", bcrypt.DefaultCost),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", log.FormatText),

		ReportTimezone:   getEnv("REPORT_TIMEZONE", "Asia/Kolkata"),
		ShareBaseURL:     getEnv("SHARE_BASE_URL", "https://wa.me/"),
		EnforceOwnership: getEnvBool("ENFORCE_OWNERSHIP", false),

		MirrorInterval: getEnvDuration("MIRROR_INTERVAL", 5*time.Minute),
	}
}

// Validate checks the settings shared by every command and returns all
// problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		errs = append(errs, "AUTH_JWT_SECRET is required")
	}
	if c.AuthTokenTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.AuthTokenTTL))
	}
	if c.AuthBcryptCost < bcrypt.MinCost || c.AuthBcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Sprintf("invalid bcrypt cost %d: must be between %d and %d", c.AuthBcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if c.LogFormat != log.FormatText && c.LogFormat != log.FormatJSON {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be '%s' or '%s'", c.LogFormat, log.FormatText, log.FormatJSON))
	}

	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid report timezone '%s': %v", c.ReportTimezone, err))
	}
	if parsed, err := url.Parse(c.ShareBaseURL); err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		errs = append(errs, fmt.Sprintf("invalid share base URL '%s': must be an http(s) URL", c.ShareBaseURL))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if c.MaxWorkspaces < 1 {
		errs = append(errs, fmt.Sprintf("invalid max workspaces %d: must be at least 1", c.MaxWorkspaces))
	}
	if c.WorkspaceIdleTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid workspace idle TTL %v: must be at least 1 minute", c.WorkspaceIdleTTL))
	}

	if c.MirrorInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid mirror interval %v: must be at least 1 second", c.MirrorInterval))
	} else if c.MirrorInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid mirror interval %v: must be at most 24 hours", c.MirrorInterval))
	}

	return combine(errs)
}

// ValidateMirror checks the extra settings the Sheets mirror worker needs.
func (c *Config) ValidateMirror() error {
	var errs []string
	if c.DataBackend != BackendSQLite {
		errs = append(errs, "mirror worker requires DATA_BACKEND=sqlite")
	}
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "GOOGLE_SPREADSHEET_ID is required for the mirror worker")
	}
	if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the mirror worker")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.AMQPURL != "" && c.AMQPQueue == "" {
		errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return combine(errs)
}

// Location is the report timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func combine(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
