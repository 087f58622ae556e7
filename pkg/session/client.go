package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// API is the subset of the auth server the coordinator talks to.
type API interface {
	RequestLink(ctx context.Context, email, callbackURL string) error
	Verify(ctx context.Context, email, token string) (*Login, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// TokenPair is what a refresh hands back.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login is a successful magic-link redemption.
type Login struct {
	User     domain.Identity `json:"user"`
	Redirect string          `json:"redirect"`
	TokenPair
}

// Client calls the auth HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client, e.g. to share a transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the server at baseURL. Requests time out
// after 10s unless a different http.Client is supplied.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RequestLink(ctx context.Context, email, callbackURL string) error {
	body := map[string]string{"email": email}
	if callbackURL != "" {
		body["callbackUrl"] = callbackURL
	}
	return c.do(ctx, "/auth/request-magic-link", body, nil, ErrInvalidLink)
}

func (c *Client) Verify(ctx context.Context, email, token string) (*Login, error) {
	var out Login
	if err := c.do(ctx, "/auth/verify", map[string]string{"email": email, "token": token}, &out, ErrInvalidLink); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	if err := c.do(ctx, "/auth/refresh-token", map[string]string{"refreshToken": refreshToken}, &out, ErrRefreshFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, "/auth/logout", map[string]string{"refreshToken": refreshToken}, nil, ErrRefreshFailed)
}

// do posts body as JSON and decodes a 2xx response into out. A 401 maps to
// unauthorized, which differs per endpoint.
func (c *Client) do(ctx context.Context, path string, body, out any, unauthorized error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrTransient, path, err)
		}
		return nil
	}
	return statusError(resp, unauthorized)
}

func statusError(resp *http.Response, unauthorized error) error {
	var env struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	_ = json.Unmarshal(raw, &env)

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = unauthorized
	case http.StatusForbidden:
		kind = ErrUnauthorized
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	case http.StatusServiceUnavailable:
		kind = ErrMaintenance
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		// Malformed credentials are reported like any other bad link.
		kind = unauthorized
	default:
		kind = ErrTransient
	}
	if env.Error == "" || env.Error == kind.Error() {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, env.Error)
}

// IsRetryable reports whether err may succeed if the same call is repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMaintenance) || errors.Is(err, context.DeadlineExceeded)
}
