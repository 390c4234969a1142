// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the public HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// OpsGRPCAddr is the address of the ops gRPC listener (grpc.health.v1). Empty disables it.
	OpsGRPCAddr string `mapstructure:"OPS_GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for the OTP store. Empty selects the in-memory store (single instance only).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on access, refresh and email link tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on access and refresh tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// SessionAbsoluteTTL caps a session's total lifetime regardless of refreshes (e.g. "10m").
	SessionAbsoluteTTL string `mapstructure:"SESSION_ABSOLUTE_TTL"`
	// EmailLinkTTL is the lifetime of the signed email verification link (e.g. "72h").
	EmailLinkTTL string `mapstructure:"EMAIL_LINK_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPReturnToClient enables dev OTP mode: issued codes are readable at GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// PublicBaseURL is the externally reachable base URL used to build links in emails.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// CORSAllowedOrigins is a comma-separated list of allowed browser origins.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// SMTP settings for the email notifier. Empty SMTPHost logs emails instead of sending them.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SMSLocalAPIKey is the API key for SMS Local (phone OTP delivery). Empty logs SMS instead of sending.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// TBBaseURL is the ThingsBoard base URL. Empty disables mirroring.
	TBBaseURL string `mapstructure:"TB_BASE_URL"`
	// TBAdminEmail and TBAdminPassword are the tenant admin credentials used to obtain a bearer token per call.
	TBAdminEmail    string `mapstructure:"TB_ADMIN_EMAIL"`
	TBAdminPassword string `mapstructure:"TB_ADMIN_PASSWORD"`
	// MirrorTimeout bounds each ThingsBoard HTTP request (e.g. "10s").
	MirrorTimeout string `mapstructure:"MIRROR_TIMEOUT"`
	// ReconcileSchedule is the cron spec the worker uses to retry unmirrored accounts.
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`

	// KafkaBrokers is a comma-separated list of Kafka brokers for account events. Empty disables publishing.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AccountEventsTopic is the Kafka topic for account lifecycle events.
	AccountEventsTopic string `mapstructure:"ACCOUNT_EVENTS_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty installs no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogDev selects the zap development config.
	LogDev bool `mapstructure:"LOG_DEV"`
	// LogFile, when set, also writes JSON logs to a daily-rotated file with this path prefix.
	LogFile string `mapstructure:"LOG_FILE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("OPS_GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "account-mirror")
	v.SetDefault("JWT_AUDIENCE", "account-mirror-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("SESSION_ABSOLUTE_TTL", "10m")
	v.SetDefault("EMAIL_LINK_TTL", "72h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "465")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("TB_BASE_URL", "")
	v.SetDefault("TB_ADMIN_EMAIL", "")
	v.SetDefault("TB_ADMIN_PASSWORD", "")
	v.SetDefault("MIRROR_TIMEOUT", "10s")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACCOUNT_EVENTS_TOPIC", "account-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEV", false)
	v.SetDefault("LOG_FILE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.TBBaseURL != "" {
		u, err := url.Parse(cfg.TBBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.New("config: TB_BASE_URL must be an absolute URL")
		}
		if cfg.TBAdminEmail == "" || cfg.TBAdminPassword == "" {
			return nil, errors.New("config: TB_ADMIN_EMAIL and TB_ADMIN_PASSWORD are required when TB_BASE_URL is set")
		}
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// SessionAbsoluteLifetime parses SessionAbsoluteTTL. Returns 10m if unset or invalid.
func (c *Config) SessionAbsoluteLifetime() time.Duration {
	return parseDuration(c.SessionAbsoluteTTL, 10*time.Minute)
}

// LinkTTL parses EmailLinkTTL. Returns 72h if unset or invalid.
func (c *Config) LinkTTL() time.Duration {
	return parseDuration(c.EmailLinkTTL, 72*time.Hour)
}

// MirrorRequestTimeout parses MirrorTimeout. Returns 10s if unset or invalid.
func (c *Config) MirrorRequestTimeout() time.Duration {
	return parseDuration(c.MirrorTimeout, 10*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// CORSOrigins returns the allowed CORS origins; defaults to "*".
func (c *Config) CORSOrigins() []string {
	out := splitList(c.CORSAllowedOrigins)
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// MirrorEnabled reports whether ThingsBoard mirroring is configured.
func (c *Config) MirrorEnabled() bool {
	return c.TBBaseURL != ""
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
