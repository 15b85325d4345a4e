// Package apiclient is the Go client for the PawHaven API.
//
// Every call goes through Transport, which attaches the cached access token
// and the CSRF header, and recovers from an expired access token by calling
// /auth/refresh. However many requests fail at once, one refresh call is
// made; every failed request is replayed once with the new token, and a
// second 401 is returned to the caller as final.
//
// If the refresh itself fails the session is over: the cached token is
// cleared, Config.OnSessionExpired runs, and every waiting request fails with
// an error wrapping ErrSessionExpired.
package apiclient
