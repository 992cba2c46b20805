// Package config is the only place that reads the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/gsarma/portier/internal/oauth"
)

// ProviderCredentials is one provider's client id/secret pair as read from
// the environment.
type ProviderCredentials struct {
	ClientID     string       `env:"CLIENT_ID"`
	ClientSecret oauth.Secret `env:"CLIENT_SECRET"`
}

type Config struct {
	Port           string `env:"PORT"            envDefault:"8080"`
	ApplicationURL string `env:"APPLICATION_URL,required"`

	GitHub  ProviderCredentials `envPrefix:"GITHUB_"`
	Google  ProviderCredentials `envPrefix:"GOOGLE_"`
	Discord ProviderCredentials `envPrefix:"DISCORD_"`
	Slack   ProviderCredentials `envPrefix:"SLACK_"`

	SessionSigningSecret oauth.Secret  `env:"SESSION_SIGNING_SECRET,required"`
	SessionEncryptionKey oauth.Secret  `env:"SESSION_ENCRYPTION_KEY,required"`
	SessionTTL           time.Duration `env:"SESSION_TTL"          envDefault:"24h"`
	LoginAttemptTTL      time.Duration `env:"LOGIN_ATTEMPT_TTL"    envDefault:"10m"`
	OutboundTimeout      time.Duration `env:"OUTBOUND_TIMEOUT"     envDefault:"10s"`
	CookieSecure         bool          `env:"COOKIE_SECURE"        envDefault:"true"`
	LoginSuccessPath     string        `env:"LOGIN_SUCCESS_PATH"   envDefault:"/"`
	LoginFailurePath     string        `env:"LOGIN_FAILURE_PATH"   envDefault:"/login"`

	RedisAddr     string       `env:"REDIS_ADDR"`
	RedisPassword oauth.Secret `env:"REDIS_PASSWORD"`
	DatabaseURL   oauth.Secret `env:"DATABASE_URL"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse reads configuration using opts (tests pass Environment directly).
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.ApplicationURL = strings.TrimRight(cfg.ApplicationURL, "/")
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.ApplicationURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("APPLICATION_URL must be an absolute URL, got %q", c.ApplicationURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("APPLICATION_URL must not carry a query or fragment")
	}
	for name, p := range map[string]string{
		"LOGIN_SUCCESS_PATH": c.LoginSuccessPath,
		"LOGIN_FAILURE_PATH": c.LoginFailurePath,
	} {
		// Local paths only; "//host" would be an open redirect.
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return fmt.Errorf("%s must be a local path, got %q", name, p)
		}
	}
	if c.LoginAttemptTTL <= 0 || c.SessionTTL <= 0 || c.OutboundTimeout <= 0 {
		return errors.New("SESSION_TTL, LOGIN_ATTEMPT_TTL and OUTBOUND_TIMEOUT must be positive")
	}
	return nil
}

// Credentials returns every provider's pair, configured or not, in catalog
// order.
func (c *Config) Credentials() []oauth.Credentials {
	pairs := map[oauth.ProviderID]ProviderCredentials{
		oauth.GitHub:  c.GitHub,
		oauth.Google:  c.Google,
		oauth.Discord: c.Discord,
		oauth.Slack:   c.Slack,
	}
	out := make([]oauth.Credentials, 0, len(oauth.Providers))
	for _, id := range oauth.Providers {
		p := pairs[id]
		out = append(out, oauth.Credentials{
			Provider:     id,
			ClientID:     strings.TrimSpace(p.ClientID),
			ClientSecret: oauth.Secret(strings.TrimSpace(p.ClientSecret.Reveal())),
		})
	}
	return out
}

// CredentialStore builds the read-only credential store for the process.
func (c *Config) CredentialStore() *oauth.CredentialStore {
	return oauth.NewCredentialStore(c.Credentials()...)
}
