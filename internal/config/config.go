// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Step-up mode constants. Exactly one step-up mechanism is active per
// deployment; there is no fallback from one to the other mid-flow.
const (
	StepUpModeTOTP       = "totp"
	StepUpModeDeviceCode = "devicecode"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used in verification emails.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication and step-up settings.
	Auth AuthConfig

	// Trust holds the static network trust policy.
	Trust TrustConfig

	// Origin holds network-origin-resolver settings.
	Origin OriginConfig

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "singlelogin").
	User string

	// Password is the MariaDB password (default: "singlelogin").
	Password string

	// Name is the database name (default: "singlelogin").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication and step-up settings.
type AuthConfig struct {
	// TOTPIssuer is the issuer label embedded in provisioning URIs.
	TOTPIssuer string

	// StepUpMode selects the step-up strategy: "totp" or "devicecode".
	StepUpMode string

	// DeviceCodeTTL is how long an emailed device-verification code stays
	// valid (default: 10 minutes).
	DeviceCodeTTL time.Duration

	// EmailTokenTTL is how long an email-verification link stays valid.
	EmailTokenTTL time.Duration

	// RevalidateInterval is how often a held session is re-checked.
	RevalidateInterval time.Duration
}

// TrustConfig holds the static network trust policy.
type TrustConfig struct {
	// Networks is the static CIDR allow-list. Logins from these prefixes
	// never require step-up. Comma-separated in TRUSTED_NETWORKS.
	Networks []string

	// Proxies is the set of reverse-proxy CIDRs whose forwarding headers
	// are trusted when extracting the client IP.
	Proxies []string
}

// OriginConfig holds network-origin-resolver settings.
type OriginConfig struct {
	// LookupURLs are public-address lookup endpoints tried in order when
	// the transport layer could not observe a usable client address.
	LookupURLs []string

	// AttemptTimeout is the per-endpoint timeout (default: 2s).
	AttemptTimeout time.Duration
}

// SMTPConfig holds outbound mail settings. Mail is optional: when Host is
// empty the mailer reports unconfigured and out-of-band sends are logged
// instead of delivered.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Encryption is "starttls", "ssl", or "none".
	Encryption string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "singlelogin"),
			Password:        getEnv("DB_PASSWORD", "singlelogin"),
			Name:            getEnv("DB_NAME", "singlelogin"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			TOTPIssuer:         getEnv("TOTP_ISSUER", "Single-Login"),
			StepUpMode:         getEnv("STEP_UP_MODE", StepUpModeTOTP),
			DeviceCodeTTL:      getEnvDuration("DEVICE_CODE_TTL", 10*time.Minute),
			EmailTokenTTL:      getEnvDuration("EMAIL_TOKEN_TTL", 24*time.Hour),
			RevalidateInterval: getEnvDuration("REVALIDATE_INTERVAL", 60*time.Second),
		},

		Trust: TrustConfig{
			Networks: getEnvList("TRUSTED_NETWORKS", []string{
				"127.0.0.0/8", // Localhost
				"::1/128",     // IPv6 localhost
			}),
			Proxies: getEnvList("TRUSTED_PROXIES", []string{
				"127.0.0.0/8",    // Localhost
				"10.0.0.0/8",     // Docker default bridge
				"172.16.0.0/12",  // Docker bridge (alternate range)
				"192.168.0.0/16", // Common LAN
				"fd00::/8",       // IPv6 private
			}),
		},

		Origin: OriginConfig{
			LookupURLs: getEnvList("ORIGIN_LOOKUP_URLS", []string{
				"https://api.ipify.org",
				"https://checkip.amazonaws.com",
			}),
			AttemptTimeout: getEnvDuration("ORIGIN_ATTEMPT_TIMEOUT", 2*time.Second),
		},

		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", "no-reply@localhost"),
			Encryption: getEnv("SMTP_ENCRYPTION", "starttls"),
		},
	}

	// A zero or negative TTL would disable an expiry outright, and a
	// non-positive ticker interval panics at runtime.
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"DEVICE_CODE_TTL", cfg.Auth.DeviceCodeTTL},
		{"EMAIL_TOKEN_TTL", cfg.Auth.EmailTokenTTL},
		{"REVALIDATE_INTERVAL", cfg.Auth.RevalidateInterval},
		{"ORIGIN_ATTEMPT_TIMEOUT", cfg.Origin.AttemptTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %s", d.name, d.value)
		}
	}

	switch cfg.Auth.StepUpMode {
	case StepUpModeTOTP, StepUpModeDeviceCode:
		// Valid.
	default:
		return nil, fmt.Errorf("STEP_UP_MODE must be %q or %q, got %q",
			StepUpModeTOTP, StepUpModeDeviceCode, cfg.Auth.StepUpMode)
	}

	// The device-code strategy delivers codes by email; refuse a production
	// deployment that selects it without a configured mailer.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.StepUpMode == StepUpModeDeviceCode && cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("STEP_UP_MODE=devicecode requires SMTP_HOST in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "60s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default.
// Whitespace around entries is trimmed; empty entries are dropped.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
