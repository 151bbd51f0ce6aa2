package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/hkdf"
)

// DefaultSessionMaxAge is the validity window of a session token
const DefaultSessionMaxAge = 14 * 24 * time.Hour

// DefaultCookieName is the cookie carrying the session token
const DefaultCookieName = "session_token"

// ProviderCredentials holds an OAuth client id/secret pair
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Environments accepted in APP_ENV
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// AppConfig is the process configuration, sourced from the environment.
type AppConfig struct {
	// Environment selects process defaults such as the log format
	Environment string `env:"APP_ENV" envDefault:"development"`

	BaseURL string `env:"AUTH_URL" envDefault:"http://localhost:3000"`
	Secret  string `env:"AUTH_SECRET,required"`
	// PreviousSecret keeps tokens signed before a rotation valid
	PreviousSecret string `env:"AUTH_SECRET_PREVIOUS"`

	DiscordClientID     string `env:"AUTH_DISCORD_CLIENT_ID,required"`
	DiscordClientSecret string `env:"AUTH_DISCORD_CLIENT_SECRET,required"`
	GoogleClientID      string `env:"AUTH_GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret  string `env:"AUTH_GOOGLE_CLIENT_SECRET,required"`

	AdminEmail          string `env:"ADMIN_EMAIL"`
	AdminEmailSecondary string `env:"ADMIN_EMAIL_SECONDARY"`

	StateKey     string `env:"AUTH_STATE_KEY"`
	StateHMACKey string `env:"AUTH_STATE_HMAC_KEY"`

	Issuer        string        `env:"AUTH_ISSUER" envDefault:"guild-auth"`
	Audience      []string      `env:"AUTH_AUDIENCE" envSeparator:","`
	CookieName    string        `env:"AUTH_COOKIE_NAME" envDefault:"session_token"`
	SessionMaxAge time.Duration `env:"AUTH_SESSION_MAX_AGE" envDefault:"336h"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:guild.db?cache=shared"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":3000"`
	ViewsDir    string `env:"VIEWS_DIR" envDefault:"./views"`
}

// LoadConfig parses the environment and validates the result. Missing
// provider credentials or signing secret fail here, at startup.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, withMetadata(ErrInvalidConfig, err, map[string]any{
			"stage": "parse",
			"error": err.Error(),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, withMetadata(ErrInvalidConfig, err, map[string]any{
			"stage": "validate",
			"error": err.Error(),
		})
	}

	return cfg, nil
}

// Validate checks the configuration values.
func (c AppConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.PreviousSecret, validation.Length(32, 0)),
		validation.Field(&c.StateKey, validation.Length(32, 32)),
		validation.Field(&c.StateHMACKey, validation.Length(32, 0)),
		validation.Field(&c.DiscordClientID, validation.Required),
		validation.Field(&c.DiscordClientSecret, validation.Required),
		validation.Field(&c.GoogleClientID, validation.Required),
		validation.Field(&c.GoogleClientSecret, validation.Required),
		validation.Field(&c.AdminEmail, is.Email),
		validation.Field(&c.AdminEmailSecondary, is.Email),
		validation.Field(&c.SessionMaxAge, validation.Min(time.Minute)),
		validation.Field(&c.Environment, validation.In(EnvDevelopment, EnvStaging, EnvProduction, EnvTest)),
	)
}

// IsDevelopment reports whether the process runs in development mode.
// An unset environment counts as development.
func (c AppConfig) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == EnvDevelopment
}

// GetSigningKey returns the token signing secret
func (c AppConfig) GetSigningKey() string {
	return c.Secret
}

// GetIssuer returns the token issuer
func (c AppConfig) GetIssuer() string {
	return c.Issuer
}

// GetAudience returns the token audience
func (c AppConfig) GetAudience() []string {
	return c.Audience
}

// GetSessionMaxAge returns the token validity window
func (c AppConfig) GetSessionMaxAge() time.Duration {
	if c.SessionMaxAge <= 0 {
		return DefaultSessionMaxAge
	}
	return c.SessionMaxAge
}

// GetCookieName returns the session cookie name
func (c AppConfig) GetCookieName() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}

// GetBaseURL returns the application base URL without a trailing slash
func (c AppConfig) GetBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// SecureCookies reports whether the base URL is served over https
func (c AppConfig) SecureCookies() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https"
}

// CallbackURL returns the OAuth redirect URI registered for provider
func (c AppConfig) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/callback/%s", c.GetBaseURL(), provider)
}

// Discord returns the Discord client credentials
func (c AppConfig) Discord() ProviderCredentials {
	return ProviderCredentials{ClientID: c.DiscordClientID, ClientSecret: c.DiscordClientSecret}
}

// Google returns the Google client credentials
func (c AppConfig) Google() ProviderCredentials {
	return ProviderCredentials{ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret}
}

// PrivilegeConfig returns the allow-list used by the reconciler.
func (c AppConfig) PrivilegeConfig() PrivilegeConfig {
	return NewPrivilegeConfig(c.AdminEmail, c.AdminEmailSecondary)
}

// PreviousSigning returns a copy whose signing key is the retired secret,
// or nil when no rotation is configured.
func (c AppConfig) PreviousSigning() TokenConfig {
	if c.PreviousSecret == "" {
		return nil
	}
	out := c
	out.Secret = c.PreviousSecret
	return out
}

// StateKeys returns the AES and HMAC keys used for OAuth state. Keys not set
// explicitly are derived from the signing secret with HKDF-SHA256.
func (c AppConfig) StateKeys() (encKey, hmacKey []byte, err error) {
	encKey = []byte(c.StateKey)
	if len(encKey) == 0 {
		if encKey, err = deriveKey(c.Secret, "guild-auth state encryption", 32); err != nil {
			return nil, nil, err
		}
	}

	hmacKey = []byte(c.StateHMACKey)
	if len(hmacKey) == 0 {
		if hmacKey, err = deriveKey(c.Secret, "guild-auth state signature", 32); err != nil {
			return nil, nil, err
		}
	}

	return encKey, hmacKey, nil
}

// CSRFKey returns the key signing CSRF tokens, derived from the signing secret.
func (c AppConfig) CSRFKey() ([]byte, error) {
	return deriveKey(c.Secret, "guild-auth csrf", 32)
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	if secret == "" {
		return nil, withMetadata(ErrInvalidConfig, nil, map[string]any{
			"reason": "empty secret for key derivation",
		})
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Redacted returns a copy safe to print.
func (c AppConfig) Redacted() AppConfig {
	out := c
	out.Secret = redact(c.Secret)
	out.PreviousSecret = redact(c.PreviousSecret)
	out.DiscordClientSecret = redact(c.DiscordClientSecret)
	out.GoogleClientSecret = redact(c.GoogleClientSecret)
	out.StateKey = redact(c.StateKey)
	out.StateHMACKey = redact(c.StateHMACKey)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
