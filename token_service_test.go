package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-guild-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type tokenConfig struct {
	key      string
	issuer   string
	audience []string
	ttl      time.Duration
}

func (c tokenConfig) GetSigningKey() string           { return c.key }
func (c tokenConfig) GetIssuer() string               { return c.issuer }
func (c tokenConfig) GetAudience() []string           { return c.audience }
func (c tokenConfig) GetSessionMaxAge() time.Duration { return c.ttl }

func newTestTokenService(now time.Time) *auth.TokenServiceImpl {
	return auth.NewTokenService(tokenConfig{
		key:      testSecret,
		issuer:   "guild-auth",
		audience: []string{"guild-web"},
	}, nopLogger{}).WithClock(func() time.Time { return now })
}

func TestTokenService_DefaultTTL(t *testing.T) {
	svc := auth.NewTokenService(tokenConfig{key: testSecret}, nil)
	assert.Equal(t, 14*24*time.Hour, svc.TTL())
}

func TestTokenService_SignAndValidate(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	svc := newTestTokenService(now)

	claims := svc.NewClaims(now)
	claims.ID = "4b4c1c1e-1d9a-4f3a-9a8e-21f1f3f0d9a1"
	claims.Subject = claims.ID
	claims.DisplayName = "Guild Master"
	claims.Username = "guild_master"
	claims.Rank = auth.RankElite
	claims.Roles = []string{"user", "admin"}
	claims.Ext = map[string]any{"theme": "dark"}

	token, err := svc.Sign(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, claims.ID, parsed.ID)
	assert.Equal(t, "Guild Master", parsed.DisplayName)
	assert.Equal(t, "guild_master", parsed.Username)
	assert.Equal(t, auth.RankElite, parsed.Rank)
	assert.Equal(t, []string{"user", "admin"}, parsed.Roles)
	assert.False(t, parsed.IsBanned)
	assert.Equal(t, "dark", parsed.Ext["theme"])
	assert.NotEmpty(t, parsed.RegisteredClaims.ID)
	assert.WithinDuration(t, now.Add(auth.DefaultSessionMaxAge), parsed.Expires(), time.Second)
}

func TestTokenService_WireFormat(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(now)

	claims := svc.NewClaims(now)
	claims.ID = "abc"
	claims.DisplayName = "Name"
	claims.Username = "name"
	claims.Rank = auth.RankRecruit
	claims.Roles = []string{"user"}

	token, err := svc.Sign(claims)
	require.NoError(t, err)

	raw := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, raw)
	require.NoError(t, err)

	for _, key := range []string{"id", "displayName", "username", "rank", "roles", "isBanned", "jti", "exp", "iat", "iss", "aud"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "image", "image is omitted when empty")
}

func TestTokenService_Expired(t *testing.T) {
	issued := time.Now().Add(-15 * 24 * time.Hour)
	signer := newTestTokenService(issued)

	token, err := signer.Sign(signer.NewClaims(issued))
	require.NoError(t, err)

	_, err = newTestTokenService(time.Now()).Validate(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.True(t, auth.IsExpiredError(err))
}

func TestTokenService_Malformed(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(now)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := auth.NewTokenService(tokenConfig{
			key:      strings.Repeat("z", 32),
			issuer:   "guild-auth",
			audience: []string{"guild-web"},
		}, nil)
		token, err := other.Sign(other.NewClaims(now))
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := auth.NewTokenService(tokenConfig{key: testSecret, issuer: "someone-else", audience: []string{"guild-web"}}, nil)
		token, err := other.Sign(other.NewClaims(now))
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.True(t, auth.IsMalformedError(err))
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "x"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})
}

func TestMultiTokenValidator_Rotation(t *testing.T) {
	now := time.Now()
	previous := auth.NewTokenService(tokenConfig{key: strings.Repeat("p", 32)}, nil)
	current := auth.NewTokenService(tokenConfig{key: testSecret}, nil)

	oldToken, err := previous.Sign(previous.NewClaims(now))
	require.NoError(t, err)

	validator := auth.NewMultiTokenValidator(current, nil, previous)
	_, err = validator.Validate(oldToken)
	assert.NoError(t, err)

	_, err = auth.NewMultiTokenValidator(current).Validate(oldToken)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)

	_, err = auth.NewMultiTokenValidator().Validate(oldToken)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)
}
