package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a token endpoint response is read.
const maxResponseBytes = 1 << 20

// Client performs the two token endpoint operations: exchanging an
// authorization code and refreshing via a refresh token. Both requests are
// form-encoded POSTs authenticated with HTTP Basic auth from the client
// credentials. Requests are single-shot; there is no internal retry.
type Client struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for token endpoint requests
// (e.g. for proxies or custom timeouts).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a token endpoint client for the given credentials.
func NewClient(clientID, clientSecret, tokenURL string, opts ...ClientOption) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange trades an authorization code for a token. The redirect URI must
// match the one used in the authorization request.
func (c *Client) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	return c.post(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
}

// Refresh mints a new access token from a refresh token without user
// interaction.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return c.post(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) post(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	now := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.endpointError(resp.StatusCode, body)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &MalformedResponseError{Reason: "body is not valid JSON"}
	}
	if token.AccessToken == "" {
		return nil, &MalformedResponseError{Reason: "response is missing access_token"}
	}

	token.ApplyDefaults(now)
	if token.ExpiresIn <= 0 {
		token.ExpiresIn = defaultExpiresIn
	}

	return &token, nil
}

// endpointError maps a non-2xx response to a TokenEndpointError. The body is
// decoded as a best-effort OAuth2 error document; whatever text survives is
// scrubbed of the client secret before it can reach an error message or log.
func (c *Client) endpointError(statusCode int, body []byte) *TokenEndpointError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &payload)

	description := payload.ErrorDescription
	if payload.Error == "" && description == "" {
		description = strings.TrimSpace(string(body))
	}

	return &TokenEndpointError{
		StatusCode:  statusCode,
		Code:        c.scrub(payload.Error),
		Description: c.scrub(description),
	}
}

func (c *Client) scrub(s string) string {
	if c.clientSecret == "" || s == "" {
		return s
	}
	return strings.ReplaceAll(s, c.clientSecret, "[redacted]")
}
