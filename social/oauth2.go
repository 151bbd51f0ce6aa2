package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2Client is the authorization code plumbing shared by providers.
// Providers embed it and add Name and UserInfo.
type OAuth2Client struct {
	provider   string
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Client returns a client for provider. Client credentials are
// always sent in the request body.
func NewOAuth2Client(provider string, cfg oauth2.Config, httpClient *http.Client) *OAuth2Client {
	cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Client{
		provider:   provider,
		config:     &cfg,
		httpClient: httpClient,
	}
}

// AuthCodeURL implements SocialProvider.
func (c *OAuth2Client) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(c.config.Scopes, opts...)

	params := []oauth2.AuthCodeOption{}
	if len(cfg.Scopes) > 0 {
		params = append(params, oauth2.SetAuthURLParam("scope", strings.Join(cfg.Scopes, " ")))
	}
	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", cfg.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}
	if cfg.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", cfg.Prompt))
	}

	return c.config.AuthCodeURL(state, params...)
}

// Exchange implements SocialProvider.
func (c *OAuth2Client) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)

	params := []oauth2.AuthCodeOption{}
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	tok, err := c.config.Exchange(c.clientContext(ctx), code, params...)
	if err != nil {
		return nil, NewProviderError(c.provider, "exchange", err)
	}
	if tok.AccessToken == "" {
		return nil, &ProviderError{
			Provider:    c.provider,
			Operation:   "exchange",
			Code:        "missing_access_token",
			Description: "missing access token",
		}
	}

	out := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Raw:          map[string]any{},
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scopes = strings.Fields(scope)
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.Raw["id_token"] = idToken
	}

	return out, nil
}

// GetJSON fetches url with the bearer token and decodes the body into out.
// Non 200 responses become a ProviderError for the user_info operation.
func (c *OAuth2Client) GetJSON(ctx context.Context, token *Token, url string, out any) error {
	if token == nil || token.AccessToken == "" {
		return &ProviderError{
			Provider:    c.provider,
			Operation:   "user_info",
			Code:        "missing_access_token",
			Description: "missing access token",
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewProviderError(c.provider, "user_info", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NewProviderError(c.provider, "user_info", err)
	}

	if resp.StatusCode != http.StatusOK {
		code, desc := parseErrorBody(body)
		return &ProviderError{
			Provider:    c.provider,
			Operation:   "user_info",
			Status:      resp.StatusCode,
			Code:        code,
			Description: desc,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{
			Provider:    c.provider,
			Operation:   "user_info",
			Status:      resp.StatusCode,
			Code:        "invalid_response",
			Description: "failed to decode userinfo response",
			Err:         err,
		}
	}

	return nil
}

func (c *OAuth2Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

type errorBody struct {
	Error   any    `json:"error"`
	Desc    string `json:"error_description"`
	Message string `json:"message"`
}

func parseErrorBody(body []byte) (string, string) {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		desc := parsed.Desc
		if desc == "" {
			desc = parsed.Message
		}
		switch v := parsed.Error.(type) {
		case string:
			return v, desc
		case map[string]any:
			msg, _ := v["message"].(string)
			status, _ := v["status"].(string)
			if desc == "" {
				desc = msg
			}
			return status, desc
		}
		if desc != "" {
			return "", desc
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "request failed"
	}
	return "", msg
}
