package auth

import (
	"net/http"
	"time"
)

// Cookie names carried between client and server.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Cookies writes and clears the auth cookies with consistent flags.
type Cookies struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SetAccess writes the access token cookie.
func (c Cookies) SetAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.build(AccessCookie, token, c.AccessTTL))
}

// SetRefresh writes the refresh token cookie.
func (c Cookies) SetRefresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.build(RefreshCookie, token, c.RefreshTTL))
}

// Clear expires both cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (c Cookies) build(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
