package social

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-guild-auth"
)

// Error page codes, passed as ?error= to the error and sign-in pages.
const (
	ErrorCodeAccessDenied  = "AccessDenied"
	ErrorCodeConfiguration = "Configuration"
	ErrorCodeOAuthCallback = "OAuthCallback"
)

var errorMessages = map[string]string{
	ErrorCodeAccessDenied:  "You do not have permission to sign in.",
	ErrorCodeConfiguration: "There is a problem with the server configuration.",
	ErrorCodeOAuthCallback: "Sign in with the provider did not complete. Try again.",
}

// HTTPController handles social auth HTTP routes.
type HTTPController struct {
	authenticator *SocialAuthenticator
	config        HTTPConfig
	logger        auth.Logger
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth")
	PathPrefix string

	// CookieName for storing the JWT (default: auth.DefaultCookieName)
	CookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// CookieMaxAge is the cookie lifetime (default: auth.DefaultSessionMaxAge)
	CookieMaxAge time.Duration

	// Views names the templates rendered by the controller
	Views HTTPViews

	Logger auth.Logger
}

// HTTPViews holds template names.
type HTTPViews struct {
	SignIn  string
	Error   string
	NewUser string
}

// NewHTTPController creates a new social auth HTTP controller.
func NewHTTPController(authenticator *SocialAuthenticator, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth"
	}
	cfg.PathPrefix = "/" + strings.Trim(cfg.PathPrefix, "/")
	if cfg.CookieName == "" {
		cfg.CookieName = auth.DefaultCookieName
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = auth.DefaultSessionMaxAge
	}
	if cfg.Views.SignIn == "" {
		cfg.Views.SignIn = "signin"
	}
	if cfg.Views.Error == "" {
		cfg.Views.Error = "error"
	}
	if cfg.Views.NewUser == "" {
		cfg.Views.NewUser = "new-user"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	return &HTTPController{
		authenticator: authenticator,
		config:        cfg,
		logger:        logger,
	}
}

// RegisterRoutes registers the auth routes on r under the path prefix.
func (c *HTTPController) RegisterRoutes(r fiber.Router) {
	group := r.Group(c.config.PathPrefix)

	group.Get("/providers", c.ListProviders)
	group.Get("/signin", c.SignInPage)
	group.Get("/signin/:provider", c.BeginAuth)
	group.Get("/callback/:provider", c.Callback)
	group.Get("/session", c.GetSession)
	group.Post("/session", c.RefreshSession)
	group.Post("/signout", c.SignOut)
	group.Get("/error", c.ErrorPage)
	group.Get("/new-user", c.NewUserPage)
}

// ListProviders returns available social providers.
func (c *HTTPController) ListProviders(ctx *fiber.Ctx) error {
	providers := c.authenticator.ListProviders()
	out := make(map[string]ProviderInfo, len(providers))
	for _, p := range providers {
		out[p.ID] = p
	}
	return ctx.JSON(out)
}

// SignInPage renders the provider list.
func (c *HTTPController) SignInPage(ctx *fiber.Ctx) error {
	code := ctx.Query("error")
	return ctx.Render(c.config.Views.SignIn, fiber.Map{
		"providers":   c.authenticator.ListProviders(),
		"callbackUrl": ctx.Query("callbackUrl"),
		"error":       code,
		"message":     errorMessage(code),
	})
}

// BeginAuth starts the OAuth flow.
func (c *HTTPController) BeginAuth(ctx *fiber.Ctx) error {
	providerName := ctx.Params("provider")

	redirect, err := c.authenticator.BeginAuth(ctx.UserContext(), providerName,
		WithCallbackURL(ctx.Query("callbackUrl")),
	)
	if err != nil {
		return c.handleError(ctx, providerName, err)
	}

	return ctx.Redirect(redirect.URL, fiber.StatusFound)
}

// Callback handles the OAuth callback.
func (c *HTTPController) Callback(ctx *fiber.Ctx) error {
	providerName := ctx.Params("provider")

	if errCode := ctx.Query("error"); errCode != "" {
		c.logger.Warn("provider returned an error",
			"provider", providerName,
			"error", errCode,
			"description", ctx.Query("error_description"),
		)
		code := ErrorCodeOAuthCallback
		if errCode == "access_denied" {
			code = ErrorCodeAccessDenied
		}
		return ctx.Redirect(c.errorURL(code), fiber.StatusFound)
	}

	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		return ctx.Redirect(c.errorURL(ErrorCodeOAuthCallback), fiber.StatusFound)
	}

	result, err := c.authenticator.CompleteAuth(ctx.UserContext(), providerName, code, state)
	if err != nil {
		return c.handleError(ctx, providerName, err)
	}

	c.setSessionCookie(ctx, result.Token)

	return ctx.Redirect(result.RedirectURL, fiber.StatusFound)
}

// GetSession returns the outward session, or an empty object when signed out.
func (c *HTTPController) GetSession(ctx *fiber.Ctx) error {
	token := ctx.Cookies(c.config.CookieName)
	if token == "" {
		return ctx.JSON(fiber.Map{})
	}

	session, err := c.authenticator.Session(ctx.UserContext(), token)
	if err != nil {
		c.logger.Debug("session cookie rejected", "error", err)
		return ctx.JSON(fiber.Map{})
	}

	return ctx.JSON(session)
}

// RefreshSession re-reads the projected fields, applies an optional
// ProfileUpdate body and reissues the cookie. Rank, roles and the ban flag
// in the body are ignored.
func (c *HTTPController) RefreshSession(ctx *fiber.Ctx) error {
	token := ctx.Cookies(c.config.CookieName)
	if token == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{})
	}

	var update *auth.SessionUpdate
	if body := ctx.Body(); len(strings.TrimSpace(string(body))) > 0 {
		profile := &auth.ProfileUpdate{}
		if err := json.Unmarshal(body, profile); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid session update",
			})
		}
		update = profile.SessionUpdate()
	}

	result, err := c.authenticator.RefreshSession(ctx.UserContext(), token, update)
	if err != nil {
		if auth.IsExpiredError(err) || auth.IsMalformedError(err) {
			c.clearSessionCookie(ctx)
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{})
		}
		c.logger.Error("session refresh failed", "error", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "session refresh failed",
		})
	}

	c.setSessionCookie(ctx, result.Token)

	return ctx.JSON(result.Session)
}

// SignOut clears the session cookie and returns to the base URL.
func (c *HTTPController) SignOut(ctx *fiber.Ctx) error {
	c.clearSessionCookie(ctx)
	return ctx.Redirect(c.authenticator.BaseURL()+"/", fiber.StatusSeeOther)
}

// ErrorPage renders the error page for ?error=.
func (c *HTTPController) ErrorPage(ctx *fiber.Ctx) error {
	code := ctx.Query("error")
	if _, ok := errorMessages[code]; !ok {
		code = ErrorCodeConfiguration
	}

	status := fiber.StatusInternalServerError
	switch code {
	case ErrorCodeAccessDenied:
		status = fiber.StatusForbidden
	case ErrorCodeOAuthCallback:
		status = fiber.StatusBadRequest
	}

	return ctx.Status(status).Render(c.config.Views.Error, fiber.Map{
		"error":     code,
		"message":   errorMessage(code),
		"signinUrl": c.config.PathPrefix + "/signin",
	})
}

// NewUserPage renders the first sign-in landing page.
func (c *HTTPController) NewUserPage(ctx *fiber.Ctx) error {
	data := fiber.Map{
		"continueUrl": c.authenticator.BaseURL() + "/",
		"signoutUrl":  c.config.PathPrefix + "/signout",
	}
	if token := ctx.Cookies(c.config.CookieName); token != "" {
		if s, err := c.authenticator.Session(ctx.UserContext(), token); err == nil && s != nil {
			data["session"] = s
		}
	}

	return ctx.Render(c.config.Views.NewUser, data)
}

func (c *HTTPController) handleError(ctx *fiber.Ctx, provider string, err error) error {
	code := ErrorCodeFor(err)
	c.logger.Error("sign in flow failed", "provider", provider, "code", code, "error", err)
	return ctx.Redirect(c.errorURL(code), fiber.StatusFound)
}

func (c *HTTPController) errorURL(code string) string {
	return appendQueryParam(c.config.PathPrefix+"/error", "error", code)
}

func (c *HTTPController) setSessionCookie(ctx *fiber.Ctx, token string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     c.config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.config.CookieMaxAge / time.Second),
		Secure:   c.config.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (c *HTTPController) clearSessionCookie(ctx *fiber.Ctx) {
	ctx.Cookie(&fiber.Cookie{
		Name:     c.config.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   c.config.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ErrorCodeFor maps a flow error to the error page code.
func ErrorCodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case auth.HasTextCode(err, auth.TextCodeSignInRefused):
		return ErrorCodeAccessDenied
	case auth.HasTextCode(err, auth.TextCodeUsernameExhausted),
		auth.HasTextCode(err, TextCodeProviderNotFound),
		auth.HasTextCode(err, TextCodeInvalidStateKeys):
		return ErrorCodeConfiguration
	default:
		return ErrorCodeOAuthCallback
	}
}

func errorMessage(code string) string {
	if code == "" {
		return ""
	}
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return errorMessages[ErrorCodeConfiguration]
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
