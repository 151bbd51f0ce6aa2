package auth

import (
	"database/sql"
	stderrors "errors"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeSignInRefused     = "SIGN_IN_REFUSED"
	TextCodeUsernameExhausted = "USERNAME_EXHAUSTED"
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeInvalidConfig     = "INVALID_CONFIG"
	TextCodeInvalidIdentity   = "INVALID_IDENTITY"
)

// ErrSignInRefused is returned when a sign-in attempt must be denied
var ErrSignInRefused = errors.New("sign in refused", errors.CategoryAuth).
	WithTextCode(TextCodeSignInRefused).
	WithCode(errors.CodeForbidden)

// ErrUsernameExhausted is returned when no free username could be found
var ErrUsernameExhausted = errors.New("unable to find a free username", errors.CategoryInternal).
	WithTextCode(TextCodeUsernameExhausted).
	WithCode(errors.CodeInternal)

// ErrUserNotFound is returned when the store has no matching record
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when the session token is past its window
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail to parse or verify
var ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidConfig is returned when configuration is missing or invalid
var ErrInvalidConfig = errors.New("invalid auth configuration", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidConfig).
	WithCode(errors.CodeBadRequest)

// ErrInvalidIdentity is returned when a federated identity lacks required data
var ErrInvalidIdentity = errors.New("invalid federated identity", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidIdentity).
	WithCode(errors.CodeBadRequest)

// IsNotFound reports whether err means "no such record", whatever layer produced it.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return true
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeUserNotFound || richErr.Category == errors.CategoryNotFound
	}
	return false
}

// HasTextCode reports whether err carries a go-errors text code equal to code.
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func withMetadata(base *errors.Error, source error, meta map[string]any) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}
