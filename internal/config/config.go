package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultEmailFrom = "Asociación Mexicana de Speedcubing <no-reply@cubingmexico.net>"
	defaultWCABase   = "https://www.worldcubeassociation.org"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	WCA         WCAConfig
	Email       EmailConfig
	RateLimit   RateLimitConfig
	Scheduling  SchedulingConfig
	Jobs        JobsConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	MigrationsPath string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	StateTTL      time.Duration
	SecureCookies bool
}

// WCAConfig configures the World Cube Association OAuth application and API.
type WCAConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type EmailConfig struct {
	Enabled      bool
	From         string
	ResendAPIKey string
}

type RateLimitConfig struct {
	PublicPerMinute   int
	SignedInPerMinute int
	TrustedProxyCIDRs []string
}

// SchedulingConfig holds the date-request policy.
type SchedulingConfig struct {
	LeadMonths         int
	MaxRequestsPerDay  int
	RequestQuotaWindow time.Duration
	TimeZone           string
}

type JobsConfig struct {
	NotificationMaxAttempts int
	SessionCleanupInterval  time.Duration
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	env := getEnv("ENVIRONMENT", "development")
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: strings.TrimRight(getEnv("SERVER_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: databaseFromEnv(),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			SessionSecret: getEnv("SESSION_SECRET", ""),
			SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_HOURS", 24*30)) * time.Hour,
			StateTTL:      time.Duration(getEnvInt("OAUTH_STATE_TTL_MINUTES", 10)) * time.Minute,
			SecureCookies: getEnvBool("SECURE_COOKIES", env == "production"),
		},
		WCA: WCAConfig{
			BaseURL:      strings.TrimRight(getEnv("WCA_BASE_URL", defaultWCABase), "/"),
			ClientID:     getEnv("WCA_CLIENT_ID", ""),
			ClientSecret: getEnv("WCA_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("WCA_REDIRECT_URL", ""),
		},
		Email: EmailConfig{
			Enabled:      getEnvBool("EMAIL_ENABLED", false),
			From:         getEnv("EMAIL_FROM", defaultEmailFrom),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 60),
			SignedInPerMinute: getEnvInt("RATE_LIMIT_SIGNED_IN", 300),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		Scheduling: SchedulingConfig{
			LeadMonths:         getEnvInt("SCHEDULING_LEAD_MONTHS", 3),
			MaxRequestsPerDay:  getEnvInt("SCHEDULING_MAX_REQUESTS_PER_DAY", 3),
			RequestQuotaWindow: time.Duration(getEnvInt("SCHEDULING_QUOTA_WINDOW_HOURS", 24)) * time.Hour,
			TimeZone:           getEnv("SCHEDULING_TIMEZONE", "America/Mexico_City"),
		},
		Jobs: JobsConfig{
			NotificationMaxAttempts: getEnvInt("JOB_NOTIFICATION_MAX_ATTEMPTS", 8),
			SessionCleanupInterval:  time.Duration(getEnvInt("JOB_SESSION_CLEANUP_HOURS", 24)) * time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "ams-calendar"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: env,
	}

	if cfg.WCA.RedirectURL == "" {
		cfg.WCA.RedirectURL = cfg.Server.BaseURL + "/auth/callback"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings. The migrate and seed
// commands use it so they run without the auth and WCA secrets.
func LoadDatabase() (DatabaseConfig, error) {
	if err := loadDotEnv(); err != nil {
		return DatabaseConfig{}, err
	}
	db := databaseFromEnv()
	if db.URL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL is required")
	}
	return db, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:            getEnv("DATABASE_URL", ""),
		MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", ""),
	}
}

func (c Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.Environment == "production" {
		if len(c.Auth.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
		}
		if c.WCA.ClientID == "" || c.WCA.ClientSecret == "" {
			return fmt.Errorf("WCA_CLIENT_ID and WCA_CLIENT_SECRET are required in production")
		}
	}
	if c.Email.Enabled && c.Email.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required when EMAIL_ENABLED=true")
	}
	if c.Scheduling.MaxRequestsPerDay <= 0 {
		return fmt.Errorf("SCHEDULING_MAX_REQUESTS_PER_DAY must be > 0")
	}
	if c.Scheduling.LeadMonths < 0 {
		return fmt.Errorf("SCHEDULING_LEAD_MONTHS must be >= 0")
	}
	if _, err := time.LoadLocation(c.Scheduling.TimeZone); err != nil {
		return fmt.Errorf("SCHEDULING_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the scheduling time zone, falling back to UTC.
func (s SchedulingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
