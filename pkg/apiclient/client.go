package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	BaseURL string

	// Base carries the actual requests; http.DefaultTransport when nil.
	Base    http.RoundTripper
	Timeout time.Duration

	Tokens         TokenStore
	CSRFCookieName string
	CSRFHeaderName string
	RefreshTimeout time.Duration

	// OnSessionExpired runs once per failed refresh, before the waiting
	// requests are released with the error.
	OnSessionExpired func(error)

	Logger *logrus.Logger
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Session struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	transport *Transport
	tokens    TokenStore
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: cookie jar: %w", err)
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}

	c := &Client{baseURL: base, tokens: tokens}
	c.transport = &Transport{
		Base:             cfg.Base,
		Tokens:           tokens,
		Jar:              jar,
		CSRFCookieName:   cfg.CSRFCookieName,
		CSRFHeaderName:   cfg.CSRFHeaderName,
		Refresh:          c.refreshAccessToken,
		RefreshTimeout:   cfg.RefreshTimeout,
		OnSessionExpired: cfg.OnSessionExpired,
		Logger:           cfg.Logger,
	}
	c.http = &http.Client{
		Transport: c.transport,
		Jar:       jar,
		Timeout:   cfg.Timeout,
	}
	return c, nil
}

// Login starts a session. A 401 here means bad credentials and never
// triggers a refresh.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	if err := c.Do(WithoutRefresh(ctx), http.MethodPost, "/auth/login", body, &session); err != nil {
		return nil, err
	}
	c.transport.reset()
	c.tokens.SetAccessToken(session.AccessToken)
	return &session, nil
}

// Refresh exchanges the refresh cookie for a new access token outside the
// automatic pipeline.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	token, err := c.refreshAccessToken(WithoutRefresh(ctx))
	if err != nil {
		return "", err
	}
	c.transport.reset()
	c.tokens.SetAccessToken(token)
	return token, nil
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.Do(ctx, http.MethodPost, "/auth/refresh", nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("apiclient: refresh returned no access token")
	}
	return out.AccessToken, nil
}

// Logout ends the session on the server and forgets the cached token even
// when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		c.transport.reset()
		c.tokens.Clear()
	}()
	return c.Do(WithoutRefresh(ctx), http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchCSRF asks for a fresh anti-forgery token. The server also sets it as
// a cookie, which the pipeline picks up on its own.
func (c *Client) FetchCSRF(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/csrf", nil, &out); err != nil {
		return "", err
	}
	return out.CSRFToken, nil
}

func (c *Client) AccessToken() string {
	return c.tokens.AccessToken()
}

// Do sends body as JSON and decodes the envelope's data into out. Both may
// be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode body: %w", err)
		}
		// bytes.Reader lets the pipeline replay the body
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("apiclient: decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("apiclient: decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	return u.String()
}
