// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFirebase = "firebase"
	BackendMemory   = "memory"
)

// App is the server configuration.
type App struct {
	// Network
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// MetricsAddr serves /metrics; empty disables it.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9091"`

	// Store
	StoreBackend            string        `envconfig:"STORE_BACKEND" default:"sqlite"`
	DBPath                  string        `envconfig:"DB_PATH" default:"./data/rollcall.db"`
	PostgresDSN             string        `envconfig:"POSTGRES_DSN"`
	FirebaseDatabaseURL     string        `envconfig:"FIREBASE_DATABASE_URL"`
	FirebaseCredentialsFile string        `envconfig:"FIREBASE_CREDENTIALS_FILE"`
	StorePollInterval       time.Duration `envconfig:"STORE_POLL_INTERVAL" default:"0s"`

	// Auth
	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL           time.Duration `envconfig:"JWT_TTL" default:"12h"`
	SessionWarnAfter time.Duration `envconfig:"SESSION_WARN_AFTER" default:"4m"`
	SessionTimeout   time.Duration `envconfig:"SESSION_TIMEOUT" default:"5m"`
	AdminEmail       string        `envconfig:"ADMIN_EMAIL"`
	AdminPassword    string        `envconfig:"ADMIN_PASSWORD"`

	// Roster
	RosterSeedFile string `envconfig:"ROSTER_SEED_FILE"`
	SeedOnStart    bool   `envconfig:"SEED_ON_START" default:"true"`

	// Check-in
	Timezone          string        `envconfig:"TIMEZONE" default:"Local"`
	CheckInResetAfter time.Duration `envconfig:"CHECKIN_RESET_AFTER" default:"5s"`

	// Observability
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"rollcall"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (App, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load(envFiles...)

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, err
	}
	if err := c.Validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

// Validate checks the settings that depend on each other.
func (c *App) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the %s backend", c.StoreBackend)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the %s backend", c.StoreBackend)
		}
	case BackendFirebase:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if c.SessionWarnAfter <= 0 || c.SessionWarnAfter >= c.SessionTimeout {
		return fmt.Errorf("SESSION_WARN_AFTER must be between 0 and SESSION_TIMEOUT")
	}
	if c.MetricsAddr != "" && c.MetricsAddr == c.HTTPAddr {
		return fmt.Errorf("METRICS_ADDR must differ from HTTP_ADDR")
	}
	if c.StorePollInterval < 0 {
		return fmt.Errorf("STORE_POLL_INTERVAL must not be negative")
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c App) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}
