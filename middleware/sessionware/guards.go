package sessionware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-guild-auth"
)

// GuardConfig configures the route guards.
type GuardConfig struct {
	// ContextKey must match the key used by New (default: "session")
	ContextKey   string
	ErrorHandler fiber.ErrorHandler
}

func (g GuardConfig) normalize() GuardConfig {
	if g.ContextKey == "" {
		g.ContextKey = "session"
	}
	if g.ErrorHandler == nil {
		g.ErrorHandler = DefaultErrorHandler
	}
	return g
}

// SessionFrom returns the session stored by New under the default key.
func SessionFrom(ctx *fiber.Ctx) (*auth.Session, bool) {
	return sessionAt(ctx, "session")
}

func sessionAt(ctx *fiber.Ctx, key string) (*auth.Session, bool) {
	session, ok := ctx.Locals(key).(*auth.Session)
	if !ok || session.IsZero() {
		return nil, false
	}
	return session, true
}

// RequireSession rejects anonymous requests.
func RequireSession(config ...GuardConfig) fiber.Handler {
	cfg := guardConfig(config...)
	return func(ctx *fiber.Ctx) error {
		if _, ok := sessionAt(ctx, cfg.ContextKey); !ok {
			return cfg.ErrorHandler(ctx, ErrSessionMissing)
		}
		return ctx.Next()
	}
}

// RequireRole rejects requests whose session does not hold role.
func RequireRole(role string, config ...GuardConfig) fiber.Handler {
	cfg := guardConfig(config...)
	return func(ctx *fiber.Ctx) error {
		session, ok := sessionAt(ctx, cfg.ContextKey)
		if !ok {
			return cfg.ErrorHandler(ctx, ErrSessionMissing)
		}
		if !session.HasRole(role) {
			return cfg.ErrorHandler(ctx, ErrForbidden)
		}
		return ctx.Next()
	}
}

// RequireRank rejects requests whose session rank is below min.
func RequireRank(min auth.Rank, config ...GuardConfig) fiber.Handler {
	cfg := guardConfig(config...)
	return func(ctx *fiber.Ctx) error {
		session, ok := sessionAt(ctx, cfg.ContextKey)
		if !ok {
			return cfg.ErrorHandler(ctx, ErrSessionMissing)
		}
		if !session.User.Rank.IsAtLeast(min) {
			return cfg.ErrorHandler(ctx, ErrForbidden)
		}
		return ctx.Next()
	}
}

// RejectBanned rejects requests from banned members. Anonymous requests
// pass through.
func RejectBanned(config ...GuardConfig) fiber.Handler {
	cfg := guardConfig(config...)
	return func(ctx *fiber.Ctx) error {
		if session, ok := sessionAt(ctx, cfg.ContextKey); ok && session.User.IsBanned {
			return cfg.ErrorHandler(ctx, ErrBanned)
		}
		return ctx.Next()
	}
}

func guardConfig(config ...GuardConfig) GuardConfig {
	var cfg GuardConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return cfg.normalize()
}
