// Package client fetches raw API bodies for the decoder. It handles
// authentication headers, request pacing and token exchanges; it never
// interprets listing or comment payloads itself.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/rate"
)

const (
	DefaultBaseURL   = "https://oauth.reddit.com"
	DefaultAuthURL   = "https://www.reddit.com"
	DefaultUserAgent = "threadline/0.1"

	apiKey  = "api"
	authKey = "auth"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrTokenDenied  = errors.New("token request denied")
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

type Config struct {
	BaseURL     string
	AuthURL     string
	ClientID    string
	RedirectURI string
	UserAgent   string
	Timeout     time.Duration
	// RequestsPerMinute paces requests to the API host; zero disables pacing.
	RequestsPerMinute int
}

type Client struct {
	cfg     Config
	api     *resty.Client
	auth    *resty.Client
	limiter rate.Pacer
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	token auth.Token
}

// New creates a client. A nil limiter gets an in-memory one.
func New(cfg Config, limiter rate.Pacer, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "client.Client"),
		now:     time.Now,
	}
	c.api = c.newResty(cfg.BaseURL)
	c.api.SetQueryParam("raw_json", "1")
	c.auth = c.newResty(cfg.AuthURL)
	return c
}

func (c *Client) newResty(base string) *resty.Client {
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(c.cfg.Timeout).
		SetHeader("User-Agent", c.cfg.UserAgent).
		SetHeader("Accept", "application/json")
	rc.AddResponseMiddleware(c.observe)
	return rc
}

func (c *Client) Close() error {
	return errors.Join(c.api.Close(), c.auth.Close())
}

// SetToken installs the token used for subsequent API requests.
func (c *Client) SetToken(t auth.Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func (c *Client) Token() auth.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// IsAuthenticated reports whether the held token is authorized and unexpired.
func (c *Client) IsAuthenticated() bool {
	return c.Token().State(c.now()) == auth.Authorized
}

func (c *Client) r(ctx context.Context) *resty.Request {
	req := c.api.R().WithContext(ctx)
	if t := c.Token(); t.AccessToken != "" {
		req.SetHeader("Authorization", t.Header())
	}
	return req
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, apiKey, c.cfg.RequestsPerMinute, time.Minute); err != nil {
		return nil, err
	}
	res, err := c.r(ctx).SetQueryParamsFromValues(q).Get(path)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return body(res)
}

func body(res *resty.Response) ([]byte, error) {
	if res.IsError() {
		return nil, &StatusError{Code: res.StatusCode(), Body: res.String()}
	}
	return res.Bytes(), nil
}

// observe records request latency and warns when the server reports an
// exhausted quota.
func (c *Client) observe(_ *resty.Client, res *resty.Response) error {
	requestDuration.WithLabelValues(res.Request.Method, strconv.Itoa(res.StatusCode())).
		Observe(res.Duration().Seconds())

	remaining := res.Header().Get("X-Ratelimit-Remaining")
	if remaining == "" {
		return nil
	}
	if left, err := strconv.ParseFloat(remaining, 64); err == nil && left < 1 {
		c.logger.Warn("rate limit exhausted", "reset", res.Header().Get("X-Ratelimit-Reset"))
	}
	return nil
}
