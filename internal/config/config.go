// Package config loads service settings from defaults, an optional YAML file
// and AT_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/ratelimit"
)

const EnvPrefix = "AT"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Password  PasswordConfig  `mapstructure:"password"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Capacity      int           `mapstructure:"capacity"`
	Window        time.Duration `mapstructure:"window"`
	TrustedHeader string        `mapstructure:"trusted_header"`
}

type PasswordConfig struct {
	HistoryEnabled bool `mapstructure:"history_enabled"`
	HistorySize    int  `mapstructure:"history_size"`
	MinLength      int  `mapstructure:"min_length"`
	BcryptCost     int  `mapstructure:"bcrypt_cost"`
}

type AuthConfig struct {
	MaxFailedLogins   int           `mapstructure:"max_failed_logins"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	DebugAccessDenied bool          `mapstructure:"debug_access_denied"`

	// BootstrapAdmin creates an ADMIN account at startup when it does not exist yet.
	BootstrapAdmin    string `mapstructure:"bootstrap_admin"`
	BootstrapPassword string `mapstructure:"bootstrap_password"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "10s",
		"http.max_body_bytes":   int64(1 << 20),
		"http.cors_origins":     []string{},

		"log.level": "info",
		"log.dev":   false,

		"db.dsn": "",

		"jwt.secret":      "",
		"jwt.issuer":      "activitytracking",
		"jwt.access_ttl":  auth.DefaultAccessTTL.String(),
		"jwt.refresh_ttl": auth.DefaultRefreshTTL.String(),

		"ratelimit.enabled":        true,
		"ratelimit.capacity":       ratelimit.DefaultCapacity,
		"ratelimit.window":         ratelimit.DefaultWindow.String(),
		"ratelimit.trusted_header": ratelimit.DefaultTrustedHeader,

		"password.history_enabled": true,
		"password.history_size":    auth.DefaultPasswordHistoryLen,
		"password.min_length":      auth.DefaultMinPasswordLength,
		"password.bcrypt_cost":     12,

		"auth.max_failed_logins":   auth.DefaultMaxFailedLogins,
		"auth.cleanup_interval":    "1h",
		"auth.debug_access_denied": false,
		"auth.bootstrap_admin":     "",
		"auth.bootstrap_password":  "",

		"sentry.dsn":         "",
		"sentry.environment": "development",
	}
}

// Load reads configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural settings. The signing secret is checked
// separately by ValidateSecret because a bad secret must stop the process.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt ttls must be positive"))
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		errs = append(errs, errors.New("jwt.refresh_ttl must not be shorter than jwt.access_ttl"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("ratelimit capacity and window must be positive"))
	}
	if c.Password.HistoryEnabled && c.Password.HistorySize <= 0 {
		errs = append(errs, errors.New("password.history_size must be positive when history is enabled"))
	}
	if (c.Auth.BootstrapAdmin == "") != (c.Auth.BootstrapPassword == "") {
		errs = append(errs, errors.New("auth.bootstrap_admin and auth.bootstrap_password must be set together"))
	}
	if c.Auth.CleanupInterval <= 0 {
		errs = append(errs, errors.New("auth.cleanup_interval must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateSecret applies the signing-secret startup contract.
func (c Config) ValidateSecret() error {
	return auth.ValidateSecret(c.JWT.Secret)
}

// PasswordPolicy maps the password settings onto auth.PasswordPolicy.
func (c Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:      c.Password.MinLength,
		HistoryEnabled: c.Password.HistoryEnabled,
		HistorySize:    c.Password.HistorySize,
	}
}

// RateLimiter maps the rate limit settings onto ratelimit.Config.
func (c Config) RateLimiter() ratelimit.Config {
	return ratelimit.Config{
		Enabled:       c.RateLimit.Enabled,
		Capacity:      c.RateLimit.Capacity,
		Window:        c.RateLimit.Window,
		TrustedHeader: c.RateLimit.TrustedHeader,
	}
}
