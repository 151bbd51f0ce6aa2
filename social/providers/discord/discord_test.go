package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goliatone/go-guild-auth/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderAuthCodeURL(t *testing.T) {
	provider := New(Config{
		ClientID:    "client-id",
		CallbackURL: "https://guild.example.com/auth/callback/discord",
	})

	authURL := provider.AuthCodeURL("state-token", social.WithPKCE("challenge", "S256"))

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "discord.com", parsed.Host)
	assert.Equal(t, "/api/oauth2/authorize", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "https://guild.example.com/auth/callback/discord", query.Get("redirect_uri"))
	assert.Equal(t, "state-token", query.Get("state"))
	assert.Equal(t, "identify email", query.Get("scope"))
	assert.Equal(t, "challenge", query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
}

func TestProviderExchangeAndUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/oauth2/token":
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			values, err := url.ParseQuery(string(body))
			assert.NoError(t, err)

			assert.Equal(t, "client-id", values.Get("client_id"))
			assert.Equal(t, "client-secret", values.Get("client_secret"))
			assert.Equal(t, "verifier", values.Get("code_verifier"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "discord-token",
				"token_type":    "Bearer",
				"expires_in":    604800,
				"refresh_token": "refresh",
				"scope":         "identify email",
			})
		case "/api/users/@me":
			assert.Equal(t, "Bearer discord-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "80351110224678912",
				"username":      "nelly",
				"global_name":   "Nelly",
				"discriminator": "0",
				"avatar":        "8342729096ea3675442027381ff50dfe",
				"email":         "Nelly@Discord.com",
				"verified":      true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://guild.example.com/auth/callback/discord",
		TokenURL:     server.URL + "/api/oauth2/token",
		UserInfoURL:  server.URL + "/api/users/@me",
		HTTPClient:   server.Client(),
	})

	token, err := provider.Exchange(context.Background(), "code", social.WithCodeVerifier("verifier"))
	require.NoError(t, err)
	assert.Equal(t, "discord-token", token.AccessToken)

	profile, err := provider.UserInfo(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "discord", profile.Provider)
	assert.Equal(t, "80351110224678912", profile.ProviderUserID)
	assert.Equal(t, "Nelly", profile.Name)
	assert.Equal(t, "nelly", profile.Username)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/80351110224678912/8342729096ea3675442027381ff50dfe.png", profile.AvatarURL)

	identity := profile.Identity()
	assert.Equal(t, "nelly@discord.com", identity.NormalizedEmail())
	assert.Equal(t, "nelly", identity.PreferredHandle)
	assert.Equal(t, "80351110224678912", profile.Account().ProviderAccountID)
}

func TestProviderUserInfoErrorNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "401: Unauthorized",
			"code":    0,
		})
	}))
	defer server.Close()

	provider := New(Config{UserInfoURL: server.URL, HTTPClient: server.Client()})

	_, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "bad"})
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "discord", perr.Provider)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Equal(t, "401: Unauthorized", perr.Description)
}

func TestAvatarURL(t *testing.T) {
	cdn := "https://cdn.discordapp.com"

	tests := []struct {
		name     string
		user     discordUser
		expected string
	}{
		{
			name:     "animated",
			user:     discordUser{ID: "1", Avatar: "a_abc"},
			expected: cdn + "/avatars/1/a_abc.gif",
		},
		{
			name:     "default new username system",
			user:     discordUser{ID: "80351110224678912", Discriminator: "0"},
			expected: cdn + "/embed/avatars/5.png",
		},
		{
			name:     "default legacy discriminator",
			user:     discordUser{ID: "1", Discriminator: "1337"},
			expected: cdn + "/embed/avatars/2.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, avatarURL(&tt.user, cdn))
		})
	}
}
