// Package config loads otpd configuration using koanf.
// Precedence: environment variables over compiled defaults. Secret values
// may be references ("sm:<id>", "ssm:<name>") resolved at startup.
package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/clinic-otp/internal/domain"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// Send rate limiter backends.
const (
	LimiterLocal = "local"
	LimiterRedis = "redis"
	LimiterNone  = "none"
)

// Delivery providers.
const (
	ProviderLog  = "log"
	ProviderSNS  = "sns"
	ProviderHTTP = "http"
	ProviderSMTP = "smtp"
)

// Config holds all service configuration. Environment variable names map to
// keys by lowercasing and replacing "_" with ".", so OTP_TTL sets otp.ttl.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
	OTP      OTPConfig      `koanf:"otp"`
	Redis    RedisConfig    `koanf:"redis"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	AWS      AWSConfig      `koanf:"aws"`
	SMS      SMSConfig      `koanf:"sms"`
	Email    EmailConfig    `koanf:"email"`
	OTEL     OTELConfig     `koanf:"otel"`
}

// LogConfig holds logger settings (LOG_LEVEL, LOG_FORMAT).
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig holds the listener settings (HTTP_PORT).
type HTTPConfig struct {
	Port int `koanf:"port"`
}

// OTPConfig holds issuance, verification and throttling settings.
type OTPConfig struct {
	Store     string        `koanf:"store"`     // memory, redis, dynamodb
	TTL       time.Duration `koanf:"ttl"`       // phone code lifetime
	EmailTTL  time.Duration `koanf:"emailttl"`  // email code lifetime
	Retention time.Duration `koanf:"retention"` // how long expired records stay readable
	Sweep     time.Duration `koanf:"sweep"`     // memory store sweep interval
	Timeout   time.Duration `koanf:"timeout"`   // delivery timeout
	Purpose   string        `koanf:"purpose"`   // named in message templates
	Country   string        `koanf:"country"`   // phone country calling code
	Trunk     string        `koanf:"trunk"`     // local trunk prefix
	Limiter   string        `koanf:"limiter"`   // local, redis, none
	Limit     int           `koanf:"limit"`     // sends per client per window
	Window    time.Duration `koanf:"window"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string              `koanf:"addr"`
	Password domain.SecretString `koanf:"password"`
	DB       int                 `koanf:"db"`
	Timeout  time.Duration       `koanf:"timeout"`
	Prefix   string              `koanf:"prefix"`
}

// DynamoDBConfig holds DynamoDB settings.
type DynamoDBConfig struct {
	Endpoint string        `koanf:"endpoint"` // Empty for production (uses default AWS endpoint)
	Timeout  time.Duration `koanf:"timeout"`
	Table    string        `koanf:"table"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// SMSConfig selects and configures the SMS provider.
type SMSConfig struct {
	Provider string              `koanf:"provider"` // log, sns, http
	URL      string              `koanf:"url"`
	APIKey   domain.SecretString `koanf:"apikey"`
	Sender   string              `koanf:"sender"`
}

// EmailConfig selects and configures the email provider.
type EmailConfig struct {
	Provider string              `koanf:"provider"` // log, smtp
	Host     string              `koanf:"host"`
	Port     int                 `koanf:"port"`
	Username string              `koanf:"username"`
	Password domain.SecretString `koanf:"password"`
	From     string              `koanf:"from"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint string `koanf:"endpoint"` // Empty disables OTLP export
	Insecure bool   `koanf:"insecure"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		OTP: OTPConfig{
			Store:     StoreMemory,
			TTL:       domain.DefaultOTPTTL,
			EmailTTL:  domain.DefaultOTPTTL,
			Retention: domain.ExpiredRecordRetention,
			Sweep:     domain.ExpirySweepInterval,
			Timeout:   domain.DeliveryTimeout,
			Purpose:   domain.DefaultOTPPurpose,
			Country:   domain.DefaultCountryCode,
			Trunk:     domain.DefaultTrunkPrefix,
			Limiter:   LimiterLocal,
			Limit:     domain.SendRateLimitPerIP,
			Window:    domain.SendRateLimitWindow,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Timeout: domain.RedisTimeout,
			Prefix:  "otp:",
		},
		DynamoDB: DynamoDBConfig{
			Timeout: domain.DynamoDBTimeout,
			Table:   "otp_codes",
		},
		AWS: AWSConfig{
			Region: "ap-southeast-1",
		},
		SMS: SMSConfig{
			Provider: ProviderLog,
			Sender:   "CLINIC",
		},
		Email: EmailConfig{
			Provider: ProviderLog,
			Port:     587,
		},
	}
}

// Load builds the configuration from compiled defaults overlaid with
// environment variables, then validates it. Missing required keys fail
// startup with domain.ErrConfigRequired.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects values no environment can run with.
func validate(cfg *Config) error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"otp.store", cfg.OTP.Store, []string{StoreMemory, StoreRedis, StoreDynamoDB}},
		{"otp.limiter", cfg.OTP.Limiter, []string{LimiterLocal, LimiterRedis, LimiterNone}},
		{"sms.provider", cfg.SMS.Provider, []string{ProviderLog, ProviderSNS, ProviderHTTP}},
		{"email.provider", cfg.Email.Provider, []string{ProviderLog, ProviderSMTP}},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("%w: %s must be one of %s, got %q",
				domain.ErrInvalidInput, c.key, strings.Join(c.allowed, "|"), c.value)
		}
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"otp.ttl", cfg.OTP.TTL},
		{"otp.emailttl", cfg.OTP.EmailTTL},
		{"otp.timeout", cfg.OTP.Timeout},
		{"otp.sweep", cfg.OTP.Sweep},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidInput, d.key)
		}
	}
	return nil
}

// validateRequired checks that the selected backends have what they need.
// Outside prod the log providers and the memory store stand in for real
// infrastructure.
func validateRequired(cfg *Config) error {
	if cfg.OTP.Store == StoreRedis || cfg.OTP.Limiter == LimiterRedis {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
	}
	if cfg.OTP.Store == StoreDynamoDB && cfg.DynamoDB.Table == "" {
		return fmt.Errorf("%w: dynamodb.table", domain.ErrConfigRequired)
	}
	if cfg.SMS.Provider == ProviderHTTP {
		if cfg.SMS.URL == "" {
			return fmt.Errorf("%w: sms.url", domain.ErrConfigRequired)
		}
		if cfg.SMS.APIKey.IsEmpty() {
			return fmt.Errorf("%w: sms.apikey", domain.ErrConfigRequired)
		}
	}
	if cfg.Email.Provider == ProviderSMTP {
		if cfg.Email.Host == "" {
			return fmt.Errorf("%w: email.host", domain.ErrConfigRequired)
		}
		if cfg.Email.From == "" {
			return fmt.Errorf("%w: email.from", domain.ErrConfigRequired)
		}
	}

	if !cfg.IsProd() {
		return nil
	}

	// Codes must be shared across instances and actually reach the user.
	if cfg.OTP.Store == StoreMemory {
		return fmt.Errorf("%w: otp.store must be redis or dynamodb in prod", domain.ErrConfigRequired)
	}
	if cfg.SMS.Provider == ProviderLog {
		return fmt.Errorf("%w: sms.provider must not be log in prod", domain.ErrConfigRequired)
	}
	if cfg.Email.Provider == ProviderLog {
		return fmt.Errorf("%w: email.provider must not be log in prod", domain.ErrConfigRequired)
	}
	if cfg.AWS.Region == "" && (cfg.OTP.Store == StoreDynamoDB || cfg.SMS.Provider == ProviderSNS) {
		return fmt.Errorf("%w: aws.region", domain.ErrConfigRequired)
	}

	return nil
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}

// NeedsAWS reports whether any selected backend talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.OTP.Store == StoreDynamoDB || c.SMS.Provider == ProviderSNS || c.HasSecretRefs()
}

// HasSecretRefs reports whether any secret is a Secrets Manager or SSM
// reference that must be resolved before use.
func (c *Config) HasSecretRefs() bool {
	for _, s := range c.Secrets() {
		if s.IsRef() {
			return true
		}
	}
	return false
}

// Secrets returns pointers to every secret-valued field so callers can
// resolve references in place.
func (c *Config) Secrets() []*domain.SecretString {
	return []*domain.SecretString{&c.Redis.Password, &c.SMS.APIKey, &c.Email.Password}
}
