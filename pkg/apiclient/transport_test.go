package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI accepts exactly one access token at a time. Rotate invalidates it,
// and each successful refresh hands out the next one.
type fakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	valid    string
	next     int
	lastCSRF string
	bodies   []string

	refreshFails bool
	refreshGate  chan struct{}

	refreshCalls   atomic.Int32
	unauthorized   atomic.Int32
	protectedCalls atomic.Int32
}

func gatedRefresh(f *fakeAPI) { f.refreshGate = make(chan struct{}) }

func failingRefresh(f *fakeAPI) { f.refreshFails = true }

func newFakeAPI(t *testing.T, opts ...func(*fakeAPI)) *fakeAPI {
	t.Helper()
	f := &fakeAPI{valid: "token-0"}
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r", Path: "/auth", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: DefaultCSRFCookieName, Value: "csrf-value", Path: "/"})
		f.mu.Lock()
		token := f.valid
		f.mu.Unlock()
		writeData(w, http.StatusOK, map[string]interface{}{
			"access_token": token,
			"expires_in":   900,
			"user":         map[string]string{"id": "acc-1", "email": "a@b.com", "role": "adopter"},
		})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshGate != nil {
			<-f.refreshGate
		}
		if f.refreshFails {
			writeError(w, http.StatusUnauthorized, "AUTH_1009")
			return
		}
		f.mu.Lock()
		f.next++
		f.valid = "token-" + strconv.Itoa(f.next)
		token := f.valid
		f.mu.Unlock()
		writeData(w, http.StatusOK, map[string]interface{}{"access_token": token, "expires_in": 900})
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		f.protectedCalls.Add(1)
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.valid
		f.lastCSRF = r.Header.Get(DefaultCSRFHeaderName)
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		if !ok {
			f.unauthorized.Add(1)
			writeError(w, http.StatusUnauthorized, "AUTH_1001")
			return
		}
		writeData(w, http.StatusOK, map[string]string{"value": "ok"})
	})
	mux.HandleFunc("/api/never", func(w http.ResponseWriter, r *http.Request) {
		f.protectedCalls.Add(1)
		writeError(w, http.StatusUnauthorized, "AUTH_1001")
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Rotate makes the current access token stale.
func (f *fakeAPI) Rotate() {
	f.mu.Lock()
	f.valid = "rotated"
	f.mu.Unlock()
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": true, "message": "success", "data": data})
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "Unauthorized", "code": code})
}

func newLoggedInClient(t *testing.T, f *fakeAPI, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = f.URL
	c, err := New(cfg)
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	return c
}

func TestTransport_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := newFakeAPI(t, gatedRefresh)
	c := newLoggedInClient(t, f, Config{})
	f.Rotate()

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			var out map[string]string
			errs <- c.Do(context.Background(), http.MethodGet, "/api/data", nil, &out)
		}()
	}

	require.Eventually(t, func() bool { return f.unauthorized.Load() == n }, 2*time.Second, 5*time.Millisecond)
	close(f.refreshGate)

	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 2*n, f.protectedCalls.Load())
	assert.Equal(t, "token-1", c.AccessToken())
}

func TestTransport_SecondUnauthorizedIsFinal(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})

	err := c.Do(context.Background(), http.MethodGet, "/api/never", nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "AUTH_1001", apiErr.Code)
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 2, f.protectedCalls.Load())
}

func TestTransport_RefreshFailureExpiresSession(t *testing.T) {
	f := newFakeAPI(t, gatedRefresh, failingRefresh)

	var expired atomic.Int32
	c := newLoggedInClient(t, f, Config{OnSessionExpired: func(error) { expired.Add(1) }})
	f.Rotate()

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- c.Do(context.Background(), http.MethodGet, "/api/data", nil, nil)
		}()
	}

	require.Eventually(t, func() bool { return f.unauthorized.Load() == n }, 2*time.Second, 5*time.Millisecond)
	close(f.refreshGate)

	for i := 0; i < n; i++ {
		assert.ErrorIs(t, <-errs, ErrSessionExpired)
	}
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 1, expired.Load())
	assert.Empty(t, c.AccessToken())
	// nothing was replayed
	assert.EqualValues(t, n, f.protectedCalls.Load())
}

func TestTransport_CancelledWaiterDoesNotAbortRefresh(t *testing.T) {
	f := newFakeAPI(t, gatedRefresh)
	c := newLoggedInClient(t, f, Config{})
	f.Rotate()

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		cancelled <- c.Do(ctx, http.MethodGet, "/api/data", nil, nil)
	}()
	patient := make(chan error, 1)
	go func() {
		patient <- c.Do(context.Background(), http.MethodGet, "/api/data", nil, nil)
	}()

	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.unauthorized.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request still waiting on the refresh")
	}

	close(f.refreshGate)
	assert.NoError(t, <-patient)
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.Equal(t, "token-1", c.AccessToken())
}

func TestTransport_ReplaysBody(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})
	f.Rotate()

	err := c.Do(context.Background(), http.MethodPost, "/api/data", map[string]string{"name": "Biscuit"}, nil)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.bodies, 2)
	assert.Equal(t, f.bodies[0], f.bodies[1])
	assert.JSONEq(t, `{"name":"Biscuit"}`, f.bodies[1])
}

func TestTransport_CSRFHeaderOnStateChangingRequests(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/api/data", nil, nil))
	f.mu.Lock()
	assert.Empty(t, f.lastCSRF)
	f.mu.Unlock()

	require.NoError(t, c.Do(context.Background(), http.MethodPut, "/api/data", map[string]int{"n": 1}, nil))
	f.mu.Lock()
	assert.Equal(t, "csrf-value", f.lastCSRF)
	f.mu.Unlock()
}

func TestTransport_TokenChangedWhileInFlight(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})
	tr := c.transport

	token, err := tr.awaitRefresh(context.Background(), "token-0")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	// a late 401 for the token that was just replaced reuses the result
	token, err = tr.awaitRefresh(context.Background(), "token-0")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	// the cache moved on after the request left
	c.tokens.SetAccessToken("fresh")
	token, err = tr.awaitRefresh(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	assert.EqualValues(t, 1, f.refreshCalls.Load())
}

func TestClient_LoginFailureDoesNotRefresh(t *testing.T) {
	mux := http.NewServeMux()
	var refreshes atomic.Int32
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "AUTH_1001")
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@b.com", "wrong")
	assert.True(t, IsUnauthorized(err))
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, refreshes.Load())
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "/api"})
	assert.Error(t, err)
}

func TestTransport_AnonymousOutcomeNotReused(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})
	tr := c.transport

	c.tokens.Clear()
	token, err := tr.awaitRefresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	c.tokens.Clear()
	token, err = tr.awaitRefresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.EqualValues(t, 2, f.refreshCalls.Load())
}

func TestClient_LogoutForgetsRefreshOutcome(t *testing.T) {
	f := newFakeAPI(t)
	c := newLoggedInClient(t, f, Config{})

	_, err := c.transport.awaitRefresh(context.Background(), "token-0")
	require.NoError(t, err)
	require.NotNil(t, c.transport.outcomeFor("token-0"))

	_ = c.Logout(context.Background())
	assert.Nil(t, c.transport.outcomeFor("token-0"))
}
