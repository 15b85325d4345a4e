package handler

import (
	"net/http"
	"time"
)

// refreshCookiePath scopes the refresh cookie to the session endpoints so it
// never rides along on ordinary API calls.
const refreshCookiePath = "/auth"

// CookieConfig carries everything the session cookies depend on.
type CookieConfig struct {
	RefreshName string
	CSRFName    string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
	RefreshTTL  time.Duration
}

func (c CookieConfig) setRefresh(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.RefreshName,
		Value:    value,
		Path:     refreshCookiePath,
		Domain:   c.Domain,
		MaxAge:   int(c.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// setCSRF leaves the cookie readable by scripts; the client copies it into
// the CSRF header.
func (c CookieConfig) setCSRF(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CSRFName,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(c.RefreshTTL.Seconds()),
		HttpOnly: false,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clearRefresh(w http.ResponseWriter) {
	c.expire(w, c.RefreshName, refreshCookiePath, true)
}

func (c CookieConfig) clearCSRF(w http.ResponseWriter) {
	c.expire(w, c.CSRFName, "/", false)
}

func (c CookieConfig) expire(w http.ResponseWriter, name, path string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
