package social_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-guild-auth"
	"github.com/goliatone/go-guild-auth/social"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL = "https://guild.example.com"
	testSecret  = "0123456789abcdef0123456789abcdef"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type fakeProvider struct {
	name        string
	profile     *social.SocialProfile
	exchangeErr error
	userInfoErr error

	mu        sync.Mutex
	challenge string
	verifier  string
	code      string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(nil, opts...)
	f.mu.Lock()
	f.challenge = cfg.CodeChallenge
	f.mu.Unlock()

	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", cfg.CodeChallenge)
	q.Set("code_challenge_method", cfg.CodeChallengeMethod)
	return "https://" + f.name + ".provider.test/authorize?" + q.Encode()
}

func (f *fakeProvider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)
	f.mu.Lock()
	f.verifier = cfg.CodeVerifier
	f.code = code
	f.mu.Unlock()

	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &social.Token{AccessToken: "access-" + code, TokenType: "Bearer"}, nil
}

func (f *fakeProvider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	if f.profile == nil {
		return nil, nil
	}
	p := *f.profile
	return &p, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.EventType)
	}
	return out
}

type harness struct {
	authenticator *social.SocialAuthenticator
	users         auth.Users
	tokens        *auth.TokenServiceImpl
	discord       *fakeProvider
	google        *fakeProvider
	sink          *recordingSink
	clock         *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discordProfile(email, username string) *social.SocialProfile {
	return &social.SocialProfile{
		ProviderUserID: "80351110224678912",
		Provider:       auth.ProviderDiscord,
		Email:          email,
		Name:           "Guild " + username,
		Username:       username,
		AvatarURL:      "https://cdn.discordapp.com/embed/avatars/5.png",
	}
}

func googleProfile(email, name string) *social.SocialProfile {
	return &social.SocialProfile{
		ProviderUserID: "1092837465",
		Provider:       auth.ProviderGoogle,
		Email:          email,
		Name:           name,
	}
}

func newHarness(t *testing.T, opts ...social.SocialAuthOption) *harness {
	t.Helper()

	db, err := auth.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, auth.Migrate(context.Background(), db))

	clock := &testClock{now: testNow}
	users := auth.NewUsersRepository(db, auth.WithUsersClock(clock.Now))
	sink := &recordingSink{}

	reconciler := auth.NewReconciler(users, auth.NewPrivilegeConfig("admin@x.com"),
		auth.WithReconcilerLogger(nopLogger{}),
		auth.WithReconcilerActivitySink(sink),
		auth.WithReconcilerClock(clock.Now),
	)
	projector := auth.NewTokenProjector(users, nopLogger{})
	tokens := auth.NewTokenService(auth.AppConfig{Secret: testSecret, Issuer: "guild-auth"}, nopLogger{}).
		WithClock(clock.Now)

	states, err := social.NewEncryptedStateManager(
		[]byte("abcdefghijklmnopqrstuvwxyz012345"),
		[]byte(testSecret),
		0,
		social.WithStateClock(clock.Now),
	)
	require.NoError(t, err)

	discord := &fakeProvider{name: auth.ProviderDiscord, profile: discordProfile("Admin@X.com", "raider")}
	google := &fakeProvider{name: auth.ProviderGoogle, profile: googleProfile("member@x.com", "Member Person")}

	base := []social.SocialAuthOption{
		social.WithProvider(discord),
		social.WithProvider(google),
		social.WithActivitySink(sink),
		social.WithLogger(nopLogger{}),
		social.WithClock(clock.Now),
	}

	authenticator := social.NewSocialAuthenticator(
		states,
		reconciler,
		projector,
		tokens,
		social.SocialAuthConfig{BaseURL: testBaseURL + "/"},
		append(base, opts...)...,
	)

	return &harness{
		authenticator: authenticator,
		users:         users,
		tokens:        tokens,
		discord:       discord,
		google:        google,
		sink:          sink,
		clock:         clock,
	}
}

func stateFrom(t *testing.T, redirectURL string) string {
	t.Helper()
	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (h *harness) signIn(t *testing.T, provider string, opts ...social.BeginAuthOption) (*social.AuthResult, error) {
	t.Helper()
	redirect, err := h.authenticator.BeginAuth(context.Background(), provider, opts...)
	require.NoError(t, err)
	return h.authenticator.CompleteAuth(context.Background(), provider, "code-1", stateFrom(t, redirect.URL))
}
