package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCSRFCookieName = "XSRF-TOKEN"
	DefaultCSRFHeaderName = "X-XSRF-TOKEN"

	defaultRefreshTimeout = 10 * time.Second
	refreshFlightKey      = "refresh"
)

type retryMarkKey struct{}

// WithoutRefresh marks ctx so a 401 on requests made with it is returned
// as-is. Replayed requests and the refresh call itself carry the mark.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarkKey{}, true)
}

func isRetry(ctx context.Context) bool {
	marked, _ := ctx.Value(retryMarkKey{}).(bool)
	return marked
}

// RefreshFunc obtains a new access token. It must send its request with a
// context derived from the one it is given.
type RefreshFunc func(ctx context.Context) (string, error)

// refreshOutcome remembers how the session moved on from a given token, so a
// request that was sent with that token but saw its 401 after the flight
// ended reuses the result instead of refreshing again.
type refreshOutcome struct {
	from  string
	token string
	err   error
}

// Transport is the request pipeline. The zero value is not usable; build it
// through New or fill every exported field.
type Transport struct {
	Base             http.RoundTripper
	Tokens           TokenStore
	Jar              http.CookieJar
	CSRFCookieName   string
	CSRFHeaderName   string
	Refresh          RefreshFunc
	RefreshTimeout   time.Duration
	OnSessionExpired func(error)
	Logger           *logrus.Logger

	group singleflight.Group

	mu   sync.Mutex
	last *refreshOutcome
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	sent := t.Tokens.AccessToken()

	resp, err := t.base().RoundTrip(t.prepare(req, sent))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetry(req.Context()) || t.Refresh == nil {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// the body is gone; the caller sees the 401
		return resp, nil
	}
	drain(resp)

	token, err := t.awaitRefresh(req.Context(), sent)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(WithoutRefresh(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("apiclient: replay body: %w", err)
		}
		retry.Body = body
	}
	return t.base().RoundTrip(t.prepare(retry, token))
}

// awaitRefresh joins the in-flight refresh or starts one. The refresh runs
// detached from ctx so one caller giving up does not fail the others.
func (t *Transport) awaitRefresh(ctx context.Context, sent string) (string, error) {
	ch := t.group.DoChan(refreshFlightKey, func() (interface{}, error) {
		if sent != "" {
			if out := t.outcomeFor(sent); out != nil {
				return out.token, out.err
			}
		}
		if current := t.Tokens.AccessToken(); current != "" && current != sent {
			// someone logged in or refreshed outside the pipeline
			return current, nil
		}

		refreshCtx, cancel := context.WithTimeout(WithoutRefresh(context.WithoutCancel(ctx)), t.refreshTimeout())
		defer cancel()

		token, err := t.Refresh(refreshCtx)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
			t.Tokens.Clear()
			t.remember(sent, &refreshOutcome{from: sent, err: err})
			t.logger().WithError(err).Warn("access token refresh failed, session expired")
			if t.OnSessionExpired != nil {
				t.OnSessionExpired(err)
			}
			return "", err
		}

		t.Tokens.SetAccessToken(token)
		t.remember(sent, &refreshOutcome{from: sent, token: token})
		t.logger().Debug("access token refreshed")
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (t *Transport) outcomeFor(sent string) *refreshOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last != nil && t.last.from == sent {
		return t.last
	}
	return nil
}

// remember keeps out for late 401s on sent. A request sent without a token
// carries no session identity, so its outcome is never reused.
func (t *Transport) remember(sent string, out *refreshOutcome) {
	t.mu.Lock()
	if sent == "" {
		t.last = nil
	} else {
		t.last = out
	}
	t.mu.Unlock()
}

// reset forgets the last refresh outcome. Called whenever the session
// changes hands outside the pipeline.
func (t *Transport) reset() {
	t.mu.Lock()
	t.last = nil
	t.mu.Unlock()
}

// prepare never touches the caller's request.
func (t *Transport) prepare(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if isStateChanging(r.Method) && t.Jar != nil {
		for _, c := range t.Jar.Cookies(r.URL) {
			if c.Name == t.csrfCookieName() {
				r.Header.Set(t.csrfHeaderName(), c.Value)
				break
			}
		}
	}
	return r
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) refreshTimeout() time.Duration {
	if t.RefreshTimeout > 0 {
		return t.RefreshTimeout
	}
	return defaultRefreshTimeout
}

func (t *Transport) csrfCookieName() string {
	if t.CSRFCookieName != "" {
		return t.CSRFCookieName
	}
	return DefaultCSRFCookieName
}

func (t *Transport) csrfHeaderName() string {
	if t.CSRFHeaderName != "" {
		return t.CSRFHeaderName
	}
	return DefaultCSRFHeaderName
}

func (t *Transport) logger() *logrus.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return discardLogger
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
