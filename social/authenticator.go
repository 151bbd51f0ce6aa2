package social

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-guild-auth"
)

// SignInCallback decides whether a completed provider flow may sign in.
// auth.Reconciler implements it.
type SignInCallback interface {
	ResolveSignIn(ctx context.Context, identity *auth.FederatedIdentity, account *auth.Account) (auth.SignInResult, error)
}

// ClaimsProjector shapes the token on issuance and refresh.
// auth.TokenProjector implements it.
type ClaimsProjector interface {
	JWT(ctx context.Context, in auth.ProjectInput) (*auth.SessionClaims, error)
}

// RedirectPolicy picks where the browser goes after a successful sign-in.
// target is the callback URL requested when the flow began.
type RedirectPolicy func(target, baseURL string) string

// AlwaysBaseURL ignores the requested target and returns the base URL.
func AlwaysBaseURL(_ string, baseURL string) string {
	return baseURL
}

// HonorSameOrigin returns target when it is a relative path or shares the
// scheme and host of the base URL, otherwise the base URL.
func HonorSameOrigin(target, baseURL string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return baseURL
	}

	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\") {
		return strings.TrimRight(baseURL, "/") + target
	}

	t, err := url.Parse(target)
	if err != nil {
		return baseURL
	}
	b, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	if strings.EqualFold(t.Scheme, b.Scheme) && strings.EqualFold(t.Host, b.Host) {
		return target
	}
	return baseURL
}

// DefaultNewUserPath is where first time users land after sign-in.
const DefaultNewUserPath = "/auth/new-user"

// SocialAuthenticator orchestrates social login flows.
type SocialAuthenticator struct {
	providers    map[string]SocialProvider
	stateManager StateManager
	signIn       SignInCallback
	projector    ClaimsProjector
	tokenService auth.TokenService
	validator    auth.TokenValidator
	activitySink auth.ActivitySink
	redirect     RedirectPolicy
	logger       auth.Logger
	now          func() time.Time
	config       SocialAuthConfig
}

// SocialAuthConfig configures the social authenticator.
type SocialAuthConfig struct {
	BaseURL     string
	NewUserPath string
}

// SocialAuthOption configures the social authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator creates a new social authenticator.
func NewSocialAuthenticator(
	stateManager StateManager,
	signIn SignInCallback,
	projector ClaimsProjector,
	tokenService auth.TokenService,
	config SocialAuthConfig,
	opts ...SocialAuthOption,
) *SocialAuthenticator {
	cfg := config
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.NewUserPath == "" {
		cfg.NewUserPath = DefaultNewUserPath
	}

	sa := &SocialAuthenticator{
		providers:    make(map[string]SocialProvider),
		stateManager: stateManager,
		signIn:       signIn,
		projector:    projector,
		tokenService: tokenService,
		redirect:     AlwaysBaseURL,
		now:          time.Now,
		config:       cfg,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.validator == nil && tokenService != nil {
		sa.validator = tokenService
	}
	sa.activitySink = normalizeSink(sa.activitySink)
	if sa.logger == nil {
		sa.logger = auth.DefaultLogger()
	}

	return sa
}

// WithProvider registers a social provider.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithTokenValidator sets the validator used for incoming session tokens,
// e.g. an auth.MultiTokenValidator during secret rotation.
func WithTokenValidator(v auth.TokenValidator) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if v != nil {
			sa.validator = v
		}
	}
}

// WithRedirectPolicy sets the post sign-in redirect policy.
func WithRedirectPolicy(policy RedirectPolicy) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if policy != nil {
			sa.redirect = policy
		}
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink auth.ActivitySink) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.activitySink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// WithClock overrides the clock used for token issuance.
func WithClock(now func() time.Time) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if now != nil {
			sa.now = now
		}
	}
}

// BaseURL returns the normalized base URL.
func (sa *SocialAuthenticator) BaseURL() string {
	return sa.config.BaseURL
}

// Validator returns the validator used for incoming session tokens.
func (sa *SocialAuthenticator) Validator() auth.TokenValidator {
	return sa.validator
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *SocialAuthenticator) BeginAuth(
	ctx context.Context,
	providerName string,
	opts ...BeginAuthOption,
) (*AuthRedirect, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, withDetails(ErrProviderNotFound, map[string]any{"provider": providerName})
	}

	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	cfg := &beginAuthConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier := generateCodeVerifier()
	codeChallenge := computeCodeChallenge(codeVerifier)

	state := &OAuthState{
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		CallbackURL:  cfg.callbackURL,
	}

	stateToken, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authOpts := []AuthCodeOption{WithPKCE(codeChallenge, "S256")}
	if cfg.prompt != "" {
		authOpts = append(authOpts, WithPrompt(cfg.prompt))
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(stateToken, authOpts...),
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback. Refused sign-ins
// return auth.ErrSignInRefused; username exhaustion is returned as is.
func (sa *SocialAuthenticator) CompleteAuth(
	ctx context.Context,
	providerName string,
	code string,
	stateToken string,
) (*AuthResult, error) {
	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		return nil, err
	}

	if state.Provider != providerName {
		return nil, withDetails(ErrInvalidState, map[string]any{
			"reason":   "provider mismatch",
			"provider": providerName,
		})
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, withDetails(ErrProviderNotFound, map[string]any{"provider": providerName})
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}
	if profile == nil {
		return nil, withDetails(ErrUserInfoFailed, map[string]any{"provider": providerName})
	}

	identity := profile.Identity()
	account := profile.Account()

	result, err := sa.signIn.ResolveSignIn(ctx, identity, account)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return nil, refused(identity.NormalizedEmail(), providerName)
	}

	if result.User != nil {
		identity.ID = result.User.ID.String()
	}

	claims, err := sa.projector.JWT(ctx, auth.ProjectInput{
		Token:    sa.tokenService.NewClaims(sa.now()),
		Identity: identity,
		Account:  account,
		Trigger:  auth.TriggerSignIn,
	})
	if err != nil {
		return nil, err
	}

	signed, err := sa.tokenService.Sign(claims)
	if err != nil {
		return nil, err
	}

	redirectURL := sa.redirect(state.CallbackURL, sa.config.BaseURL)
	if result.NewUser {
		redirectURL = sa.config.BaseURL + sa.config.NewUserPath
	}

	return &AuthResult{
		Token:       signed,
		Claims:      claims,
		Session:     auth.SessionFromClaims(claims),
		User:        result.User,
		IsNewUser:   result.NewUser,
		Escalated:   result.Escalated,
		Provider:    providerName,
		RedirectURL: redirectURL,
	}, nil
}

// RefreshSession validates tokenString, re-reads the projected fields,
// applies update and signs a token with a fresh expiry.
func (sa *SocialAuthenticator) RefreshSession(ctx context.Context, tokenString string, update *auth.SessionUpdate) (*AuthResult, error) {
	current, err := sa.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	claims, err := sa.projector.JWT(ctx, auth.ProjectInput{
		Token:   current,
		Trigger: auth.TriggerUpdate,
		Update:  update,
	})
	if err != nil {
		return nil, err
	}

	now := sa.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(sa.tokenService.TTL()))

	signed, err := sa.tokenService.Sign(claims)
	if err != nil {
		return nil, err
	}

	if err := sa.activitySink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventSessionRefreshed,
		UserID:     claims.UserID(),
		OccurredAt: now,
		Metadata: map[string]any{
			"with_update": !update.IsEmpty(),
		},
	}); err != nil {
		sa.logger.Warn("activity sink failed", "event", auth.ActivityEventSessionRefreshed, "error", err)
	}

	return &AuthResult{
		Token:   signed,
		Claims:  claims,
		Session: auth.SessionFromClaims(claims),
	}, nil
}

// Session validates tokenString and returns the outward session. The
// store is not read.
func (sa *SocialAuthenticator) Session(ctx context.Context, tokenString string) (*auth.Session, error) {
	claims, err := sa.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	claims, err = sa.projector.JWT(ctx, auth.ProjectInput{Token: claims, Trigger: auth.TriggerNone})
	if err != nil {
		return nil, err
	}

	return auth.SessionFromClaims(claims), nil
}

// ListProviders returns all registered providers sorted by name.
func (sa *SocialAuthenticator) ListProviders() []ProviderInfo {
	providers := make([]ProviderInfo, 0, len(sa.providers))
	for name := range sa.providers {
		providers = append(providers, ProviderInfo{
			ID:          name,
			Name:        displayName(name),
			SignInURL:   sa.config.BaseURL + "/auth/signin/" + name,
			CallbackURL: sa.config.BaseURL + "/auth/callback/" + name,
		})
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].ID < providers[j].ID
	})
	return providers
}

// HasProvider reports whether name is registered.
func (sa *SocialAuthenticator) HasProvider(name string) bool {
	_, ok := sa.providers[name]
	return ok
}

func refused(email, provider string) error {
	clone := auth.ErrSignInRefused.Clone()
	if clone == nil {
		return auth.ErrSignInRefused
	}
	clone.WithMetadata(map[string]any{
		"email":    email,
		"provider": provider,
	})
	return clone
}

func displayName(provider string) string {
	switch provider {
	case auth.ProviderDiscord:
		return "Discord"
	case auth.ProviderGoogle:
		return "Google"
	}
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

func normalizeSink(sink auth.ActivitySink) auth.ActivitySink {
	if sink == nil {
		return auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return nil })
	}
	return sink
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SignInURL   string `json:"signinUrl"`
	CallbackURL string `json:"callbackUrl"`
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult contains the result of a successful authentication or refresh.
type AuthResult struct {
	Token       string
	Claims      *auth.SessionClaims
	Session     *auth.Session
	User        *auth.User
	IsNewUser   bool
	Escalated   bool
	Provider    string
	RedirectURL string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	callbackURL string
	prompt      string
}

// WithCallbackURL records where the user asked to go after sign-in. The
// redirect policy decides whether it is honored.
func WithCallbackURL(target string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.callbackURL = target
	}
}

// WithAuthPrompt forwards a prompt value to the provider.
func WithAuthPrompt(prompt string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.prompt = prompt
	}
}
