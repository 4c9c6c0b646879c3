// Package config loads and validates the Oneira backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ONR_ prefix (e.g., ONR_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
//
// Plans are part of configuration on purpose: they are loaded once at startup into
// an immutable value set (see internal/billing) and are never mutated at runtime.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Generation GenerationConfig `mapstructure:"generation"`
	Photos     PhotosConfig     `mapstructure:"photos"`
	Plans      PlansConfig      `mapstructure:"plans"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used in signed file URLs and webhook
// registration. When server.public_url is set it is returned as-is; otherwise it
// falls back to server.base_url. This distinction matters in reverse-proxied
// deployments where the internal listen address (base_url) differs from the URL
// clients and the generation engine can actually reach (public_url).
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	// Region is the AWS region
	Region string `mapstructure:"region"`
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	// - "default": Use AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": Use explicit access key and secret key
	// - "oidc": Use Web Identity/OIDC token for authentication (EKS, GitHub Actions, etc.)
	// - "assume_role": Assume an IAM role (optionally with external ID for cross-account)
	AuthMethod string `mapstructure:"auth_method"`

	// Static credentials (when auth_method is "static" or empty for backwards compatibility)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// AssumeRole configuration (when auth_method is "assume_role" or "oidc")
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	// OIDC/Web Identity configuration (when auth_method is "oidc")
	// WebIdentityTokenFile is the path to the OIDC token file (e.g., from EKS or GitHub Actions)
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// LocalStorageConfig holds local filesystem storage configuration.
//
// SigningSecret enables signed URLs for the local backend: GetURL mints a
// time-limited token embedded in a /v1/files/... URL, giving the generation
// engine the same temporary-read-access semantics the S3 backend gets from
// presigned URLs. When the secret is empty, URLs are plain and unexpiring —
// acceptable only for local development.
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	SigningSecret string `mapstructure:"signing_secret"`
}

// AuthConfig holds session and PIN authentication configuration
type AuthConfig struct {
	// SessionTTLDays is how long a newly minted session token stays valid
	SessionTTLDays int `mapstructure:"session_ttl_days"`
	// BcryptCost is the bcrypt work factor for PIN hashes
	BcryptCost int `mapstructure:"bcrypt_cost"`
	// PinMinLength / PinMaxLength bound acceptable PIN lengths at registration
	PinMinLength int `mapstructure:"pin_min_length"`
	PinMaxLength int `mapstructure:"pin_max_length"`
}

// EngineConfig holds the external generation engine connection configuration
type EngineConfig struct {
	// BaseURL is the engine's API root, e.g. https://engine.internal:9800
	BaseURL string `mapstructure:"base_url"`
	// Token is the bearer credential sent on dispatch calls
	Token string `mapstructure:"token"`
	// WebhookSecret authenticates inbound engine callbacks; empty disables the endpoint
	WebhookSecret string `mapstructure:"webhook_secret"`
	// Timeout bounds the synchronous dispatch call
	Timeout time.Duration `mapstructure:"timeout"`
	// SignedURLTTL is how long photo URLs handed to the engine stay fetchable
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
}

// GenerationConfig holds orchestrator tuning
type GenerationConfig struct {
	// Workers is the number of goroutines draining the dispatch queue
	Workers int `mapstructure:"workers"`
	// QueueSize is the dispatch queue capacity; a full queue fails new triggers
	QueueSize int `mapstructure:"queue_size"`
	// ImagesCount is how many images the engine is asked to produce per job
	ImagesCount int `mapstructure:"images_count"`
	// EstimatedDurationSecs is returned to clients on job creation for progress UX
	EstimatedDurationSecs int `mapstructure:"estimated_duration_secs"`
	// RunningTimeout marks running jobs failed when no webhook arrives in time
	RunningTimeout time.Duration `mapstructure:"running_timeout"`
	// QueuedTimeout marks queued jobs failed when no worker picked them up in time
	QueuedTimeout time.Duration `mapstructure:"queued_timeout"`
	// ReaperInterval is how often the stale-job sweep runs
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
}

// PhotosConfig holds photo upload limits
type PhotosConfig struct {
	// MaxUploadMB caps a single uploaded file
	MaxUploadMB int `mapstructure:"max_upload_mb"`
	// ThumbnailPx is the bounding-box edge used for generated thumbnails
	ThumbnailPx int `mapstructure:"thumbnail_px"`
}

// PlansConfig holds the subscription plan catalogue. Plans are read-only at
// runtime; changing them requires a config change and restart.
type PlansConfig struct {
	// Default is the plan id assigned to newly created users
	Default string `mapstructure:"default"`
	// Catalogue is the full plan list
	Catalogue []PlanConfig `mapstructure:"catalogue"`
}

// PlanConfig describes one subscription plan
type PlanConfig struct {
	ID           string  `mapstructure:"id"`
	Name         string  `mapstructure:"name"`
	PriceEURMo   float64 `mapstructure:"price_eur_month"`
	MonthlyGens  int     `mapstructure:"monthly_generations"` // 0 = unlimited
	MaxPhotos    int     `mapstructure:"max_photos"`          // 0 = unlimited
	MaxImagesGen int     `mapstructure:"max_images_per_generation"`
}

// PaymentsConfig holds payment processor webhook configuration
type PaymentsConfig struct {
	// WebhookSecret authenticates inbound payment processor events; empty disables the endpoint
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration for the auth endpoints.
//
// Backend selects the limiter implementation: "memory" (per-process token
// buckets) or "redis" (redis_rate sliding limiter, shared across replicas).
type RateLimitingConfig struct {
	Enabled           bool        `mapstructure:"enabled"`
	Backend           string      `mapstructure:"backend"`
	RequestsPerMinute int         `mapstructure:"requests_per_minute"`
	Burst             int         `mapstructure:"burst"`
	Redis             RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings for the distributed rate limiter
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if audit logging is active
	Enabled bool `mapstructure:"enabled"`
	// LogReadOperations determines if GET requests should be logged
	LogReadOperations bool `mapstructure:"log_read_operations"`
	// LogFailedRequests determines if failed requests (4xx/5xx) should be logged
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// Shipper configures optional export of audit entries to an external collector
	Shipper AuditShipperConfig `mapstructure:"shipper"`
}

// AuditShipperConfig holds configuration for the audit export shipper
type AuditShipperConfig struct {
	// Enabled determines if the shipper background service runs
	Enabled bool `mapstructure:"enabled"`
	// URL is the collector endpoint entries are POSTed to as JSON batches
	URL string `mapstructure:"url"`
	// Headers are added verbatim to every shipment request (e.g. an auth token)
	Headers map[string]string `mapstructure:"headers"`
	// TimeoutSecs bounds a single shipment request
	TimeoutSecs int `mapstructure:"timeout_secs"`
	// BatchSize is the maximum entries per shipment
	BatchSize int `mapstructure:"batch_size"`
	// FlushIntervalSecs is how often buffered entries are flushed
	FlushIntervalSecs int `mapstructure:"flush_interval_secs"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Storage
		"storage.default_backend",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.local.base_path",
		"storage.local.signing_secret",

		// Auth
		"auth.session_ttl_days",
		"auth.bcrypt_cost",
		"auth.pin_min_length",
		"auth.pin_max_length",

		// Engine
		"engine.base_url",
		"engine.token",
		"engine.webhook_secret",
		"engine.timeout",
		"engine.signed_url_ttl",

		// Generation
		"generation.workers",
		"generation.queue_size",
		"generation.images_count",
		"generation.estimated_duration_secs",
		"generation.running_timeout",
		"generation.queued_timeout",
		"generation.reaper_interval",

		// Photos
		"photos.max_upload_mb",
		"photos.thumbnail_px",

		// Plans
		"plans.default",

		// Payments
		"payments.webhook_secret",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.redis.addr",
		"security.rate_limiting.redis.password",
		"security.rate_limiting.redis.db",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.log_read_operations",
		"audit.log_failed_requests",
		"audit.shipper.enabled",
		"audit.shipper.url",
		"audit.shipper.timeout_secs",
		"audit.shipper.batch_size",
		"audit.shipper.flush_interval_secs",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/oneira")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("ONR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.Local.SigningSecret = expandEnv(cfg.Storage.Local.SigningSecret)
	cfg.Engine.Token = expandEnv(cfg.Engine.Token)
	cfg.Engine.WebhookSecret = expandEnv(cfg.Engine.WebhookSecret)
	cfg.Payments.WebhookSecret = expandEnv(cfg.Payments.WebhookSecret)
	cfg.Security.RateLimiting.Redis.Password = expandEnv(cfg.Security.RateLimiting.Redis.Password)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "oneira")
	v.SetDefault("database.user", "oneira")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.local.signing_secret", "")

	// Auth defaults
	v.SetDefault("auth.session_ttl_days", 30)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.pin_min_length", 4)
	v.SetDefault("auth.pin_max_length", 12)

	// Engine defaults
	v.SetDefault("engine.base_url", "http://localhost:9800")
	v.SetDefault("engine.token", "")
	v.SetDefault("engine.webhook_secret", "")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("engine.signed_url_ttl", "1h")

	// Generation defaults
	v.SetDefault("generation.workers", 4)
	v.SetDefault("generation.queue_size", 64)
	v.SetDefault("generation.images_count", 4)
	v.SetDefault("generation.estimated_duration_secs", 180)
	v.SetDefault("generation.running_timeout", "30m")
	v.SetDefault("generation.queued_timeout", "10m")
	v.SetDefault("generation.reaper_interval", "1m")

	// Photos defaults
	v.SetDefault("photos.max_upload_mb", 15)
	v.SetDefault("photos.thumbnail_px", 512)

	// Plans defaults — a single free tier; production deployments override the
	// catalogue in YAML.
	v.SetDefault("plans.default", "free")
	v.SetDefault("plans.catalogue", []map[string]interface{}{
		{
			"id":                        "free",
			"name":                      "Free",
			"price_eur_month":           0.0,
			"monthly_generations":       3,
			"max_photos":                10,
			"max_images_per_generation": 4,
		},
	})

	// Payments defaults
	v.SetDefault("payments.webhook_secret", "")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.redis.addr", "localhost:6379")
	v.SetDefault("security.rate_limiting.redis.db", 0)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "oneira-backend")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.log_failed_requests", true)
	v.SetDefault("audit.shipper.enabled", false)
	v.SetDefault("audit.shipper.timeout_secs", 10)
	v.SetDefault("audit.shipper.batch_size", 100)
	v.SetDefault("audit.shipper.flush_interval_secs", 30)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate storage backend
	validBackends := map[string]bool{"s3": true, "local": true}
	if !validBackends[c.Storage.DefaultBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be s3 or local)", c.Storage.DefaultBackend)
	}

	// Validate S3 storage if enabled
	if c.Storage.DefaultBackend == "s3" {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	}

	// Validate local storage if enabled
	if c.Storage.DefaultBackend == "local" {
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	}

	// Validate auth
	if c.Auth.SessionTTLDays < 1 {
		return fmt.Errorf("auth.session_ttl_days must be at least 1, got %d", c.Auth.SessionTTLDays)
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 18 {
		return fmt.Errorf("auth.bcrypt_cost must be between 10 and 18, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.PinMinLength < 4 {
		return fmt.Errorf("auth.pin_min_length must be at least 4, got %d", c.Auth.PinMinLength)
	}
	if c.Auth.PinMaxLength < c.Auth.PinMinLength {
		return fmt.Errorf("auth.pin_max_length (%d) must not be smaller than auth.pin_min_length (%d)",
			c.Auth.PinMaxLength, c.Auth.PinMinLength)
	}

	// Validate engine
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.Engine.SignedURLTTL <= 0 {
		return fmt.Errorf("engine.signed_url_ttl must be positive")
	}

	// Validate generation
	if c.Generation.Workers < 1 {
		return fmt.Errorf("generation.workers must be at least 1, got %d", c.Generation.Workers)
	}
	if c.Generation.QueueSize < 1 {
		return fmt.Errorf("generation.queue_size must be at least 1, got %d", c.Generation.QueueSize)
	}
	if c.Generation.ImagesCount < 1 {
		return fmt.Errorf("generation.images_count must be at least 1, got %d", c.Generation.ImagesCount)
	}

	// Validate plans
	if c.Plans.Default == "" {
		return fmt.Errorf("plans.default is required")
	}
	if len(c.Plans.Catalogue) == 0 {
		return fmt.Errorf("plans.catalogue must contain at least one plan")
	}
	seen := make(map[string]bool, len(c.Plans.Catalogue))
	defaultFound := false
	for _, p := range c.Plans.Catalogue {
		if p.ID == "" {
			return fmt.Errorf("plans.catalogue contains a plan without an id")
		}
		if seen[p.ID] {
			return fmt.Errorf("plans.catalogue contains duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
		if p.PriceEURMo < 0 {
			return fmt.Errorf("plan %q: price_eur_month must not be negative", p.ID)
		}
		if p.MonthlyGens < 0 || p.MaxPhotos < 0 {
			return fmt.Errorf("plan %q: quotas must not be negative", p.ID)
		}
		if p.ID == c.Plans.Default {
			defaultFound = true
		}
	}
	if !defaultFound {
		return fmt.Errorf("plans.default %q does not appear in plans.catalogue", c.Plans.Default)
	}

	// Validate rate limiting backend
	if c.Security.RateLimiting.Enabled {
		switch c.Security.RateLimiting.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)",
				c.Security.RateLimiting.Backend)
		}
		if c.Security.RateLimiting.Backend == "redis" && c.Security.RateLimiting.Redis.Addr == "" {
			return fmt.Errorf("security.rate_limiting.redis.addr is required when using the redis backend")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate audit shipper when enabled
	if c.Audit.Shipper.Enabled {
		if c.Audit.Shipper.URL == "" {
			return fmt.Errorf("audit.shipper.url is required when the audit shipper is enabled")
		}
		if c.Audit.Shipper.BatchSize < 1 {
			return fmt.Errorf("audit.shipper.batch_size must be at least 1")
		}
	}

	return nil
}
