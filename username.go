package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// UsernameMaxLength caps generated handles
	UsernameMaxLength = 20
	// UsernameMinLength is the shortest handle produced before padding
	UsernameMinLength = 3
	// DefaultUsernameAttempts bounds the uniqueness checks
	DefaultUsernameAttempts = 10

	usernameFallback = "user"
	suffixDigits     = 4
)

// UsernameChecker reports whether a handle is already taken
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// SlugUsernameGenerator builds ASCII handles from profile data and checks
// the store until it finds a free one.
type SlugUsernameGenerator struct {
	checker     UsernameChecker
	MaxAttempts int
	suffix      func() (string, error)
}

var _ UsernameGenerator = (*SlugUsernameGenerator)(nil)

// NewSlugUsernameGenerator returns a generator that checks uniqueness with checker
func NewSlugUsernameGenerator(checker UsernameChecker) *SlugUsernameGenerator {
	return &SlugUsernameGenerator{
		checker:     checker,
		MaxAttempts: DefaultUsernameAttempts,
		suffix:      randomSuffix,
	}
}

// WithSuffixFunc replaces the random suffix source
func (g *SlugUsernameGenerator) WithSuffixFunc(fn func() (string, error)) *SlugUsernameGenerator {
	if fn != nil {
		g.suffix = fn
	}
	return g
}

// Generate derives a candidate from the preferred handle, the display name
// or the e-mail local part, in that order.
func (g *SlugUsernameGenerator) Generate(profile UsernameProfile) string {
	source := strings.TrimSpace(profile.PreferredHandle)
	if source == "" {
		source = strings.TrimSpace(profile.DisplayName)
	}
	if source == "" {
		local, _, _ := strings.Cut(strings.TrimSpace(profile.Email), "@")
		source = local
	}

	return Slugify(source)
}

// EnsureUnique returns candidate if free, otherwise candidate with a random
// numeric suffix. It gives up with ErrUsernameExhausted after MaxAttempts.
func (g *SlugUsernameGenerator) EnsureUnique(ctx context.Context, candidate string) (string, error) {
	base := Slugify(candidate)
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultUsernameAttempts
	}

	for i := 0; i < attempts; i++ {
		name := base
		if i > 0 {
			suffix, err := g.suffix()
			if err != nil {
				return "", err
			}
			name = withSuffix(base, suffix)
		}

		taken, err := g.checker.UsernameExists(ctx, name)
		if err != nil {
			return "", err
		}

		if !taken {
			return name, nil
		}
	}

	return "", withMetadata(ErrUsernameExhausted, nil, map[string]any{
		"candidate": base,
		"attempts":  attempts,
	})
}

// Slugify folds s to a lower-case ASCII handle made of [a-z0-9_].
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > UsernameMaxLength {
		out = strings.TrimRight(out[:UsernameMaxLength], "_")
	}

	if len(out) < UsernameMinLength {
		out = usernameFallback + out
	}

	return out
}

func withSuffix(base, suffix string) string {
	max := UsernameMaxLength - len(suffix)
	if len(base) > max {
		base = strings.TrimRight(base[:max], "_")
	}
	return base + suffix
}

func randomSuffix() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", suffixDigits, n.Int64()), nil
}
