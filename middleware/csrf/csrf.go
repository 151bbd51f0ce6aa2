package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-guild-auth"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

// DefaultTokenLength is the default nonce length in bytes
const DefaultTokenLength = 32

// DefaultTemplateHelpersKey is the Locals key holding the helper map for views
const DefaultTemplateHelpersKey = "csrf"

// DefaultContextKey is the default key for storing CSRF tokens in Locals
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "csrfToken"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(*fiber.Ctx) bool

	// TokenLength defines the nonce length in bytes
	TokenLength int

	// ContextKey defines the Locals key for the token
	ContextKey string

	FormFieldName string
	HeaderName    string

	// TokenLookup defines where to look for the token
	// Format: "form:csrfToken,header:X-CSRF-Token"
	TokenLookup string

	ErrorHandler   fiber.ErrorHandler
	SuccessHandler fiber.Handler

	// SafeMethods are not validated
	SafeMethods []string

	// Expiration bounds the token age
	Expiration time.Duration

	// SecureKey signs tokens. At least 32 bytes.
	SecureKey []byte

	// SessionKey binds a token to the requester. Defaults to the signed-in
	// user id and falls back to the client IP.
	SessionKey func(*fiber.Ctx) string

	DisableTemplateHelpers bool
	TemplateHelpersKey     string

	// Now is the clock used for issue and expiry checks
	Now func() time.Time
}

// TokenExtractor defines a function to extract token from request
type TokenExtractor func(*fiber.Ctx) (string, error)

// New creates a new CSRF middleware. Tokens are stateless: an HMAC over
// issue time, nonce and session key.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)
	extractors := getExtractors(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName)

	return func(ctx *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(ctx) {
			return ctx.Next()
		}

		token, err := generateToken(ctx, cfg)
		if err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		ctx.Locals(cfg.ContextKey, token)
		ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
		ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
		if !cfg.DisableTemplateHelpers {
			ctx.Locals(cfg.TemplateHelpersKey, TemplateHelpers(token, cfg.FormFieldName, cfg.HeaderName))
		}

		method := strings.ToUpper(ctx.Method())
		if slices.Contains(cfg.SafeMethods, method) {
			return cfg.SuccessHandler(ctx)
		}

		if err := validateToken(ctx, cfg, extractors); err != nil {
			return cfg.ErrorHandler(ctx, err)
		}

		return cfg.SuccessHandler(ctx)
	}
}

func generateToken(ctx *fiber.Ctx, cfg Config) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := cfg.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), cfg.SessionKey(ctx))

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(sign(cfg.SecureKey, payload)))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(ctx *fiber.Ctx, cfg Config, extractors []TokenExtractor) error {
	token := extractToken(ctx, extractors)
	if token == "" {
		return ErrTokenMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, sessionFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, sign(cfg.SecureKey, strings.Join(parts[:3], ":"))) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(sessionFromToken), []byte(cfg.SessionKey(ctx))) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(cfg.Expiration)
		if cfg.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func sign(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func extractToken(ctx *fiber.Ctx, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		token, err := extractor(ctx)
		if token != "" && err == nil {
			return token
		}
	}
	return ""
}

// DefaultSessionKey binds tokens to the signed-in user, or to the client IP
// for anonymous requests.
func DefaultSessionKey(ctx *fiber.Ctx) string {
	if session, ok := auth.SessionFromContext(ctx.UserContext()); ok {
		return "user_" + session.User.ID
	}
	return "ip_" + ctx.IP()
}

// getExtractors returns token extractors based on configuration
func getExtractors(tokenLookup, formField, header string) []TokenExtractor {
	if tokenLookup == "" {
		return []TokenExtractor{
			extractorFromForm(formField),
			extractorFromHeader(header),
		}
	}

	var extractors []TokenExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "form:"):
			extractors = append(extractors, extractorFromForm(strings.TrimPrefix(part, "form:")))
		case strings.HasPrefix(part, "header:"):
			extractors = append(extractors, extractorFromHeader(strings.TrimPrefix(part, "header:")))
		}
	}
	return extractors
}

func extractorFromForm(fieldName string) TokenExtractor {
	return func(ctx *fiber.Ctx) (string, error) {
		return ctx.FormValue(fieldName), nil
	}
}

func extractorFromHeader(headerName string) TokenExtractor {
	return func(ctx *fiber.Ctx) (string, error) {
		return ctx.Get(headerName), nil
	}
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace}
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx *fiber.Ctx) error {
			return ctx.Next()
		}
	}

	if cfg.SessionKey == nil {
		cfg.SessionKey = DefaultSessionKey
	}

	if cfg.TemplateHelpersKey == "" {
		cfg.TemplateHelpersKey = DefaultTemplateHelpersKey
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)

	return cfg
}

func defaultErrorHandler(ctx *fiber.Ctx, err error) error {
	switch err {
	case ErrTokenMissing:
		return ctx.Status(fiber.StatusBadRequest).SendString("CSRF token missing")
	case ErrTokenMismatch:
		return ctx.Status(fiber.StatusForbidden).SendString("CSRF token mismatch")
	case ErrTokenExpired:
		return ctx.Status(fiber.StatusForbidden).SendString("CSRF token expired")
	case ErrSecureKeyMissing:
		return ctx.Status(fiber.StatusInternalServerError).SendString("CSRF configuration error")
	default:
		return ctx.Status(fiber.StatusInternalServerError).SendString("CSRF validation error")
	}
}

func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// TemplateHelpers returns the values exposed to views.
func TemplateHelpers(token, fieldName, headerName string) map[string]any {
	if fieldName == "" {
		fieldName = DefaultFormFieldName
	}
	if headerName == "" {
		headerName = DefaultHeaderName
	}
	return map[string]any{
		"token":       token,
		"field_name":  fieldName,
		"header_name": headerName,
	}
}
