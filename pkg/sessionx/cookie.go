package sessionx

import (
	"net/http"
	"time"
)

const (
	// CookieName carries the session token between browser and server.
	CookieName = "datespark_auth_token"

	// CookieMaxAge matches the token lifetime.
	CookieMaxAge = 7 * 24 * time.Hour
)

// Cookies reads and writes the session cookie. Secure should be true in
// production so the cookie never travels over plain HTTP.
type Cookies struct {
	Secure bool
}

// Set stores token in the session cookie.
func (c Cookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(token, int(CookieMaxAge.Seconds())))
}

// Get returns the session cookie's token, if any.
func (c Cookies) Get(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// Delete expires the session cookie.
func (c Cookies) Delete(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c Cookies) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
