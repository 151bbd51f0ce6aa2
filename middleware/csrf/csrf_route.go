package csrf

import "github.com/gofiber/fiber/v2"

// RouteConfig controls how the CSRF token bootstrap endpoint behaves.
type RouteConfig struct {
	// Path is the route registered for retrieving the CSRF token.
	Path string
	// ContextKey is the Locals key where the middleware stored the token.
	ContextKey string
}

const defaultRoutePath = "/csrf"

// RegisterRoutes registers a GET endpoint that returns the CSRF token and
// the form field and header names. The CSRF middleware must run first.
func RegisterRoutes(r fiber.Router, cfg ...RouteConfig) {
	conf := routeConfigDefault(cfg...)
	r.Get(conf.Path, tokenHandler(conf))
}

func routeConfigDefault(cfg ...RouteConfig) RouteConfig {
	conf := RouteConfig{
		Path:       defaultRoutePath,
		ContextKey: DefaultContextKey,
	}
	if len(cfg) == 0 {
		return conf
	}

	c := cfg[0]
	if c.Path != "" {
		conf.Path = c.Path
	}

	if c.ContextKey != "" {
		conf.ContextKey = c.ContextKey
	}

	return conf
}

func tokenHandler(cfg RouteConfig) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		token, _ := ctx.Locals(cfg.ContextKey).(string)
		if token == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrTokenMissing.Error(),
			})
		}

		ctx.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
		ctx.Set(fiber.HeaderPragma, "no-cache")
		ctx.Set(fiber.HeaderExpires, "0")

		fieldName := DefaultFormFieldName
		if v, ok := ctx.Locals(cfg.ContextKey + "_field").(string); ok && v != "" {
			fieldName = v
		}

		headerName := DefaultHeaderName
		if v, ok := ctx.Locals(cfg.ContextKey + "_header").(string); ok && v != "" {
			headerName = v
		}

		return ctx.JSON(fiber.Map{
			"csrfToken":   token,
			"field_name":  fieldName,
			"header_name": headerName,
		})
	}
}
