package router

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhaven/pawhaven/pkg/apiclient"
)

func TestClientSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var expired atomic.Int32
	c, err := apiclient.New(apiclient.Config{
		BaseURL:          s.URL,
		OnSessionExpired: func(error) { expired.Add(1) },
	})
	require.NoError(t, err)

	session, err := c.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", session.User.ID)
	assert.Equal(t, "adopter", session.User.Role)
	assert.Equal(t, 900, session.ExpiresIn)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", me.Email)

	// state-changing call passes the CSRF guard with the header from the cookie
	err = c.Do(ctx, http.MethodPut, "/api/account/password", map[string]string{
		"current_password": "secret1",
		"new_password":     "secret12",
	}, nil)
	require.NoError(t, err)

	token := c.AccessToken()
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, token, c.AccessToken())

	// an unusable access token is recovered through the refresh cookie
	stale := apiclient.NewMemoryTokenStore()
	c2, err := apiclient.New(apiclient.Config{BaseURL: s.URL, Tokens: stale})
	require.NoError(t, err)
	_, err = c2.Login(ctx, "a@b.com", "secret12")
	require.NoError(t, err)
	stale.SetAccessToken("not-a-jwt")

	me, err = c2.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", me.ID)
	assert.NotEqual(t, "not-a-jwt", stale.AccessToken())

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.AccessToken())

	// with the refresh cookie gone the session cannot come back
	var account map[string]interface{}
	err = c.Do(ctx, http.MethodGet, "/api/account", nil, &account)
	assert.ErrorIs(t, err, apiclient.ErrSessionExpired)
	assert.EqualValues(t, 1, expired.Load())
}

func TestClient_CSRFHeaderMismatch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	c, err := apiclient.New(apiclient.Config{BaseURL: s.URL, CSRFHeaderName: "X-Other"})
	require.NoError(t, err)
	_, err = c.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	err = c.Do(ctx, http.MethodPut, "/api/account/password", map[string]string{
		"current_password": "secret1",
		"new_password":     "secret12",
	}, nil)
	assert.True(t, apiclient.IsForbidden(err))

	token, err := c.FetchCSRF(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestClient_LogoutEndsSessionForAnonymousRequests(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tokens := apiclient.NewMemoryTokenStore()
	c, err := apiclient.New(apiclient.Config{BaseURL: s.URL, Tokens: tokens})
	require.NoError(t, err)
	_, err = c.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	// lost the cached token; the refresh cookie restores the session
	tokens.Clear()
	var account map[string]interface{}
	require.NoError(t, c.Do(ctx, http.MethodGet, "/api/account", nil, &account))
	assert.Equal(t, "acc-1", account["id"])

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.AccessToken())

	account = nil
	err = c.Do(ctx, http.MethodGet, "/api/account", nil, &account)
	assert.ErrorIs(t, err, apiclient.ErrSessionExpired)
	assert.Nil(t, account)
	assert.Empty(t, c.AccessToken())
}

func TestClient_LoginAfterExpiredSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	c, err := apiclient.New(apiclient.Config{BaseURL: s.URL})
	require.NoError(t, err)
	_, err = c.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))

	err = c.Do(ctx, http.MethodGet, "/api/account", nil, nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)

	// a fresh session is not haunted by the earlier failure
	_, err = c.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	_, err = c.Me(ctx)
	assert.NoError(t, err)
}
