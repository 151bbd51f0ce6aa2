package sessionware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-guild-auth"
)

var (
	defaultTokenLookup = "cookie:" + auth.DefaultCookieName + ",header:" + fiber.HeaderAuthorization

	// ErrSessionMissing is passed to the error handler when no token was
	// found on a route that requires one.
	ErrSessionMissing = errors.New("missing session token")
	// ErrForbidden is passed to the error handler by the role guards.
	ErrForbidden = errors.New("access denied")
	// ErrBanned is passed to the error handler when a banned member hits a
	// guarded route.
	ErrBanned = errors.New("account is banned")
)

// ValidationListener is invoked after a token has been validated and
// before the session is stored on the request.
type ValidationListener func(ctx *fiber.Ctx, claims *auth.SessionClaims) error

// Config configures the session middleware.
type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler

	// TokenValidator is required. An auth.MultiTokenValidator accepts
	// tokens signed with a rotated secret.
	TokenValidator auth.TokenValidator

	// ContextKey is the Locals key holding the *auth.Session (default: "session")
	ContextKey string
	// ClaimsKey is the Locals key holding the *auth.SessionClaims (default: "claims")
	ClaimsKey string

	// TokenLookup lists the token sources tried in order, e.g.
	// "cookie:session_token,header:Authorization"
	TokenLookup string
	AuthScheme  string

	// Required rejects anonymous requests. When false an absent or invalid
	// token leaves the request anonymous.
	Required bool

	ValidationListeners []ValidationListener

	// TemplateUserKey is the Locals key used for rendering (default: "current_user")
	TemplateUserKey string

	Logger auth.Logger
}

// New returns a fiber handler that resolves the session token into an
// *auth.Session. The store is never read.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(ctx *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(ctx) {
			return ctx.Next()
		}

		raw, err := ExtractRawToken(ctx, extractors)
		if err != nil {
			if cfg.Required {
				return cfg.ErrorHandler(ctx, ErrSessionMissing)
			}
			return ctx.Next()
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			cfg.Logger.Debug("session token rejected", "path", ctx.Path(), "error", err)
			if cfg.Required {
				return cfg.ErrorHandler(ctx, err)
			}
			return ctx.Next()
		}

		if err := cfg.runValidationListeners(ctx, claims); err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		session := auth.SessionFromClaims(claims)

		ctx.Locals(cfg.ContextKey, session)
		ctx.Locals(cfg.ClaimsKey, claims)
		ctx.Locals(cfg.TemplateUserKey, session.User)

		stdCtx := auth.WithSession(ctx.UserContext(), session)
		ctx.SetUserContext(auth.WithClaimsContext(stdCtx, claims))

		return cfg.SuccessHandler(ctx)
	}
}

// GetDefaultConfig fills the unset fields of config.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx *fiber.Ctx) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: session middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = "claims"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.TemplateUserKey == "" {
		cfg.TemplateUserKey = "current_user"
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}

	return cfg
}

// DefaultErrorHandler maps middleware errors to a JSON status response.
func DefaultErrorHandler(ctx *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrBanned), errors.Is(err, ErrForbidden):
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case auth.IsExpiredError(err):
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session expired"})
	default:
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx *fiber.Ctx, claims *auth.SessionClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

// TokenExtractor pulls a raw token from the request.
type TokenExtractor func(c *fiber.Ctx) (string, error)

// ExtractRawToken returns the first token found by extractors.
func ExtractRawToken(ctx *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	err := ErrSessionMissing
	for _, extractor := range extractors {
		raw, xerr := extractor(ctx)
		if raw != "" && xerr == nil {
			return raw, nil
		}
		if xerr != nil {
			err = xerr
		}
	}
	return "", err
}

// GetExtractors parses a lookup such as "cookie:session_token,header:Authorization,query:token".
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

func tokenFromHeader(header, authScheme string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrSessionMissing
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrSessionMissing
		}
		return token, nil
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrSessionMissing
		}
		return token, nil
	}
}
