// Package config loads the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Config is read-mostly and shared by every request after Load returns.
type Config struct {
	HTTPAddr          string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	BaseURL           string `env:"BASE_URL"`
	SecureCookies     bool   `env:"SECURE_COOKIES" envDefault:"true"`
	LocalLoginEnabled bool   `env:"LOCAL_LOGIN_ENABLED" envDefault:"false"`
	SnowflakeNode     int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`

	Session   SessionConfig
	CSRF      CSRFConfig
	DevForum  DiscourseConfig `envPrefix:"DEVFORUM_"`
	Community CommunityConfig `envPrefix:"COMMUNITYFORUM_"`
	Patreon   PatreonConfig   `envPrefix:"PATREON_"`
	RateLimit RateLimitConfig
	SMTP      SMTPConfig `envPrefix:"SMTP_"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	RedisURL        string        `env:"REDIS_URL"`

	Database database.Config
	Logger   utilities.LoggerConfig
}

type SessionConfig struct {
	CookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	CookieExpiry  time.Duration `env:"SESSION_COOKIE_EXPIRY" envDefault:"720h"`
	Lifetime      time.Duration `env:"SESSION_LIFETIME" envDefault:"720h"`
	CloseToExpiry time.Duration `env:"SESSION_CLOSE_TO_EXPIRY" envDefault:"48h"`
	SSOTimeout    time.Duration `env:"SSO_ATTEMPT_TIMEOUT" envDefault:"20m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`
}

type CSRFConfig struct {
	Secret string        `env:"CSRF_SECRET"`
	TTL    time.Duration `env:"CSRF_TTL" envDefault:"2h"`
}

type DiscourseConfig struct {
	SsoSecret string `env:"SSO_SECRET"`
	BaseURL   string `env:"BASE_URL"`
}

type CommunityConfig struct {
	DiscourseConfig
	SupporterGroup string `env:"SUPPORTER_GROUP" envDefault:"Supporter"`
	VIPGroup       string `env:"VIP_GROUP" envDefault:"VIP_supporter"`
}

type PatreonConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	AuthorizeURL string `env:"AUTHORIZE_URL" envDefault:"https://www.patreon.com/oauth2/authorize"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://www.patreon.com/api/oauth2/token"`
	APIURL       string `env:"API_URL" envDefault:"https://www.patreon.com/api/oauth2/v2"`
}

type RateLimitConfig struct {
	Max    int           `env:"LOGIN_RATE_MAX" envDefault:"20"`
	Window time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	From     string `env:"FROM"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Configured reports whether the discourse SSO secret is set.
func (d DiscourseConfig) Configured() bool { return d.SsoSecret != "" && d.BaseURL != "" }

// Configured reports whether the patreon client credentials are set.
func (p PatreonConfig) Configured() bool { return p.ClientID != "" && p.ClientSecret != "" }

// Load reads a .env file if present and parses the environment.
func Load() (*Config, error) {
	// best-effort: if no .env exists, continue with the real env
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the login core cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is not configured"))
	}
	if len(c.CSRF.Secret) < 32 {
		errs = append(errs, errors.New("CSRF_SECRET must be at least 32 characters"))
	}
	if c.Session.CloseToExpiry >= c.Session.Lifetime {
		errs = append(errs, errors.New("SESSION_CLOSE_TO_EXPIRY must be shorter than SESSION_LIFETIME"))
	}
	return errors.Join(errs...)
}
