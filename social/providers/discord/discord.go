package discord

import (
	"context"
	"net/http"

	"github.com/goliatone/go-guild-auth"
	"github.com/goliatone/go-guild-auth/social"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL     = "https://discord.com/api/oauth2/authorize"
	defaultTokenURL    = "https://discord.com/api/oauth2/token"
	defaultUserInfoURL = "https://discord.com/api/users/@me"
	defaultCDNURL      = "https://cdn.discordapp.com"
)

// Config holds Discord OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	CDNURL      string

	HTTPClient *http.Client
}

// DefaultScopes returns the scopes needed to read the account e-mail.
func DefaultScopes() []string {
	return []string{"identify", "email"}
}

// Provider implements social.SocialProvider for Discord.
type Provider struct {
	*social.OAuth2Client
	userInfoURL string
	cdnURL      string
}

var _ social.SocialProvider = (*Provider)(nil)

// New creates a new Discord provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	if cfg.CDNURL == "" {
		cfg.CDNURL = defaultCDNURL
	}

	client := social.NewOAuth2Client(auth.ProviderDiscord, oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}, cfg.HTTPClient)

	return &Provider{
		OAuth2Client: client,
		userInfoURL:  cfg.UserInfoURL,
		cdnURL:       cfg.CDNURL,
	}
}

// Name implements social.SocialProvider.
func (p *Provider) Name() string {
	return auth.ProviderDiscord
}

// UserInfo implements social.SocialProvider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	var info discordUser
	if err := p.GetJSON(ctx, token, p.userInfoURL, &info); err != nil {
		return nil, err
	}
	return mapProfile(&info, p.cdnURL), nil
}
