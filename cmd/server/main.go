package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-guild-auth"
	"github.com/goliatone/go-guild-auth/activitymap"
	"github.com/goliatone/go-guild-auth/middleware/csrf"
	"github.com/goliatone/go-guild-auth/middleware/sessionware"
	"github.com/goliatone/go-guild-auth/social"
	"github.com/goliatone/go-guild-auth/social/providers/discord"
	"github.com/goliatone/go-guild-auth/social/providers/google"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
)

type App struct {
	config *auth.AppConfig
	db     *bun.DB
	repo   auth.RepositoryManager
	tokens *auth.TokenServiceImpl
	social *social.SocialAuthenticator
	srv    *fiber.App
	logger *glog.BaseLogger
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	cfg, err := auth.LoadConfig()
	if err != nil {
		newLogger(true).GetLogger("config").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	lgr := newLogger(cfg.IsDevelopment())

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg.Redacted()))
	fmt.Println("============")

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithSocialAuth(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	go func() {
		if err := app.srv.Listen(cfg.HTTPAddr); err != nil {
			app.GetLogger("http").Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())

	if err := app.srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		app.GetLogger("http").Error("shutdown failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.GetLogger("persistence").Error("close database", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := auth.OpenDB(app.config.DatabaseURL)
	if err != nil {
		return err
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	app.db = db
	app.repo = repo
	app.GetLogger("persistence").Info("database ready", "dialect", db.Dialect().Name())
	return nil
}

func WithSocialAuth(_ context.Context, app *App) error {
	cfg := app.config
	logger := app.GetLogger("auth")
	activityLogger := app.GetLogger("activity")
	sink := activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
		activityLogger.Info(n.Verb,
			"actor_id", n.ActorID,
			"object_id", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})

	reconciler := auth.NewReconciler(app.repo.Users(), cfg.PrivilegeConfig(),
		auth.WithReconcilerLogger(logger),
		auth.WithReconcilerActivitySink(sink),
	)

	app.tokens = auth.NewTokenService(cfg, app.GetLogger("tokens"))

	validators := []auth.TokenValidator{app.tokens}
	if previous := cfg.PreviousSigning(); previous != nil {
		validators = append(validators, auth.NewTokenService(previous, app.GetLogger("tokens")))
	}

	encKey, hmacKey, err := cfg.StateKeys()
	if err != nil {
		return err
	}
	states, err := social.NewEncryptedStateManager(encKey, hmacKey, social.DefaultStateTTL)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	app.social = social.NewSocialAuthenticator(
		states,
		reconciler,
		auth.NewTokenProjector(app.repo.Users(), logger),
		app.tokens,
		social.SocialAuthConfig{BaseURL: cfg.GetBaseURL()},
		social.WithProvider(discord.New(discord.Config{
			ClientID:     cfg.Discord().ClientID,
			ClientSecret: cfg.Discord().ClientSecret,
			CallbackURL:  cfg.CallbackURL(auth.ProviderDiscord),
			HTTPClient:   httpClient,
		})),
		social.WithProvider(google.New(google.Config{
			ClientID:     cfg.Google().ClientID,
			ClientSecret: cfg.Google().ClientSecret,
			CallbackURL:  cfg.CallbackURL(auth.ProviderGoogle),
			HTTPClient:   httpClient,
		})),
		social.WithTokenValidator(auth.NewMultiTokenValidator(validators...)),
		social.WithActivitySink(sink),
		social.WithLogger(logger),
	)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config

	srv := fiber.New(fiber.Config{
		AppName:           "guild-auth",
		PassLocalsToViews: true,
		Views:             viewEngine(cfg.ViewsDir, app.GetLogger("views")),
	})

	srv.Use(recover.New())
	srv.Use(requestid.New())
	srv.Use(helmet.New())
	srv.Use(compress.New())
	srv.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return app.db.PingContext(c.UserContext()) == nil
		},
	}))

	authLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	})
	srv.Use("/auth/signin", authLimiter)
	srv.Use("/auth/callback", authLimiter)

	srv.Use(sessionware.New(sessionware.Config{
		TokenValidator: app.social.Validator(),
		TokenLookup:    "cookie:" + cfg.GetCookieName() + ",header:" + fiber.HeaderAuthorization,
		Logger:         app.GetLogger("session"),
	}))
	srv.Use(sessionware.RejectBanned())

	csrfKey, err := cfg.CSRFKey()
	if err != nil {
		return err
	}
	srv.Use("/auth", csrf.New(csrf.Config{SecureKey: csrfKey}))
	csrf.RegisterRoutes(srv, csrf.RouteConfig{Path: "/auth/csrf"})

	controller := social.NewHTTPController(app.social, social.HTTPConfig{
		CookieName:   cfg.GetCookieName(),
		CookieSecure: cfg.SecureCookies(),
		CookieMaxAge: cfg.GetSessionMaxAge(),
		Logger:       app.GetLogger("http"),
	})
	controller.RegisterRoutes(srv)

	srv.Get("/api/me", sessionware.RequireSession(), func(c *fiber.Ctx) error {
		session, _ := sessionware.SessionFrom(c)
		return c.JSON(session)
	})

	srv.Get("/api/admin/ping", sessionware.RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	app.srv = srv
	return nil
}

// newLogger returns a pretty trace logger for development and a JSON
// logger otherwise.
func newLogger(development bool) *glog.BaseLogger {
	if development {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

// viewEngine serves templates from dir when it exists, and from the
// built-in set otherwise.
func viewEngine(dir string, logger glog.Logger) fiber.Views {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			logger.Info("using templates from disk", "dir", dir)
			return django.New(dir, ".html")
		}
	}
	logger.Debug("using built-in templates")
	return django.NewFileSystem(http.FS(social.Views()), ".html")
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
