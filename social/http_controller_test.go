package social_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-guild-auth"
	"github.com/goliatone/go-guild-auth/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, h *harness) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		Views: django.NewFileSystem(http.FS(social.Views()), ".html"),
	})

	controller := social.NewHTTPController(h.authenticator, social.HTTPConfig{
		Logger: nopLogger{},
	})
	controller.RegisterRoutes(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c
		}
	}
	return nil
}

// signInThroughHTTP runs the begin and callback routes and returns the
// callback response.
func signInThroughHTTP(t *testing.T, app *fiber.App, provider string) *http.Response {
	t.Helper()

	begin := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/signin/"+provider, nil))
	require.Equal(t, fiber.StatusFound, begin.StatusCode)

	state := stateFrom(t, begin.Header.Get("Location"))
	q := url.Values{}
	q.Set("code", "code-http")
	q.Set("state", state)

	return doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/callback/"+provider+"?"+q.Encode(), nil))
}

func withCookie(req *http.Request, c *http.Cookie) *http.Request {
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	return req
}

func TestHTTP_ListProviders(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/providers", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var providers map[string]social.ProviderInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&providers))
	require.Len(t, providers, 2)
	assert.Equal(t, "Google", providers["google"].Name)
	assert.Equal(t, testBaseURL+"/auth/signin/discord", providers["discord"].SignInURL)
}

func TestHTTP_SignInPage(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/signin?error=AccessDenied", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Sign in with Discord")
	assert.Contains(t, body, "Sign in with Google")
	assert.Contains(t, body, testBaseURL+"/auth/signin/google")
	assert.Contains(t, body, `data-code="AccessDenied"`)
}

func TestHTTP_BeginAuthRedirectsToProvider(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/signin/google", nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "google.provider.test", location.Host)
	assert.Equal(t, "S256", location.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, location.Query().Get("state"))
}

func TestHTTP_BeginAuthUnknownProvider(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/signin/github", nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/error?error=Configuration", resp.Header.Get("Location"))
}

func TestHTTP_CallbackSetsSessionCookie(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := signInThroughHTTP(t, app, auth.ProviderDiscord)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, testBaseURL+"/auth/new-user", resp.Header.Get("Location"))

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(auth.DefaultSessionMaxAge/time.Second), cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)

	claims, err := h.tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "raider", claims.Username)
}

func TestHTTP_CallbackProviderDenied(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/callback/discord?error=access_denied", nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/error?error=AccessDenied", resp.Header.Get("Location"))
	assert.Nil(t, sessionCookie(resp))
}

func TestHTTP_CallbackMissingCode(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/callback/discord?state=abc", nil))
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/error?error=OAuthCallback", resp.Header.Get("Location"))
}

func TestHTTP_CallbackRefused(t *testing.T) {
	h := newHarness(t)
	h.google.profile = googleProfile("", "No Email")
	app := newTestApp(t, h)

	resp := signInThroughHTTP(t, app, auth.ProviderGoogle)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/error?error=AccessDenied", resp.Header.Get("Location"))
	assert.Nil(t, sessionCookie(resp))
}

func TestHTTP_GetSession(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	anon := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	require.Equal(t, fiber.StatusOK, anon.StatusCode)
	assert.JSONEq(t, `{}`, readBody(t, anon))

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderDiscord))
	require.NotNil(t, cookie)

	req := withCookie(httptest.NewRequest(http.MethodGet, "/auth/session", nil), cookie)
	resp := doRequest(t, app, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session auth.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, "raider", session.User.Username)
	assert.Equal(t, auth.RankElite, session.User.Rank)
	assert.True(t, session.HasRole(auth.RoleAdmin))
	assert.False(t, session.Expires.IsZero())
}

func TestHTTP_GetSessionBadCookie(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	req := withCookie(httptest.NewRequest(http.MethodGet, "/auth/session", nil),
		&http.Cookie{Name: auth.DefaultCookieName, Value: "garbage"})
	resp := doRequest(t, app, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{}`, readBody(t, resp))
}

func TestHTTP_RefreshSessionWithUpdate(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderDiscord))
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"displayName":"Raid Leader"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := doRequest(t, app, withCookie(req, cookie))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session auth.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, "Raid Leader", session.User.DisplayName)

	refreshed := sessionCookie(resp)
	require.NotNil(t, refreshed)
	claims, err := h.tokens.Validate(refreshed.Value)
	require.NoError(t, err)
	assert.Equal(t, "Raid Leader", claims.DisplayName)
}

func TestHTTP_RefreshSessionIgnoresPrivilegeFields(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderGoogle))
	require.NotNil(t, cookie)

	body := `{"displayName":"Member","roles":["user","admin"],"rank":"elite","isBanned":false}`
	req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := doRequest(t, app, withCookie(req, cookie))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	refreshed := sessionCookie(resp)
	require.NotNil(t, refreshed)
	claims, err := h.tokens.Validate(refreshed.Value)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleUser}, claims.Roles)
	assert.Equal(t, auth.RankRecruit, claims.Rank)
	assert.Equal(t, "Member", claims.DisplayName)

	admin := doRequest(t, app, withCookie(
		httptest.NewRequest(http.MethodGet, "/auth/session", nil), refreshed))
	var session auth.Session
	require.NoError(t, json.NewDecoder(admin.Body).Decode(&session))
	assert.NotContains(t, session.User.Roles, auth.RoleAdmin)
}

func TestHTTP_RefreshSessionKeepsStoredBan(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderGoogle))
	require.NotNil(t, cookie)

	ctx := context.Background()
	user, err := h.users.FindByEmail(ctx, "member@x.com")
	require.NoError(t, err)
	user.IsBanned = true
	require.NoError(t, h.users.Save(ctx, user))

	req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"isBanned":false}`))
	req.Header.Set("Content-Type", "application/json")
	resp := doRequest(t, app, withCookie(req, cookie))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	claims, err := h.tokens.Validate(sessionCookie(resp).Value)
	require.NoError(t, err)
	assert.True(t, claims.IsBanned)
}

func TestHTTP_RefreshSessionErrors(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodPost, "/auth/session", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := withCookie(httptest.NewRequest(http.MethodPost, "/auth/session", nil),
		&http.Cookie{Name: auth.DefaultCookieName, Value: "garbage"})
	resp = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderDiscord))
	require.NotNil(t, cookie)
	req = httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{not json`))
	resp = doRequest(t, app, withCookie(req, cookie))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_SignOut(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, testBaseURL+"/", resp.Header.Get("Location"))

	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(testNow))
}

func TestHTTP_ErrorPage(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	tests := []struct {
		query  string
		status int
		code   string
	}{
		{query: "AccessDenied", status: fiber.StatusForbidden, code: "AccessDenied"},
		{query: "OAuthCallback", status: fiber.StatusBadRequest, code: "OAuthCallback"},
		{query: "Whatever", status: fiber.StatusInternalServerError, code: "Configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/error?error="+tt.query, nil))
			assert.Equal(t, tt.status, resp.StatusCode)

			body := readBody(t, resp)
			assert.Contains(t, body, `data-code="`+tt.code+`"`)
			assert.Contains(t, body, `href="/auth/signin"`)
		})
	}
}

func TestHTTP_NewUserPage(t *testing.T) {
	h := newHarness(t)
	app := newTestApp(t, h)

	anon := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/new-user", nil))
	require.Equal(t, fiber.StatusOK, anon.StatusCode)
	assert.Contains(t, readBody(t, anon), "Welcome to the guild</h1>")

	cookie := sessionCookie(signInThroughHTTP(t, app, auth.ProviderDiscord))
	require.NotNil(t, cookie)

	resp := doRequest(t, app, withCookie(httptest.NewRequest(http.MethodGet, "/auth/new-user", nil), cookie))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Welcome to the guild, Guild raider")
	assert.Contains(t, body, "<strong>raider</strong>")
	assert.Contains(t, body, `href="`+testBaseURL+`/"`)
}
