package server

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"
)

const sessionCookie = "shiritori_session"

// sessionStore hands out the opaque session key that ties a browser to its
// player rows. The key itself is the only state; player identity lives in
// the players table.
type sessionStore struct{}

func newSessionStore() *sessionStore {
	return &sessionStore{}
}

// EnsureKey returns the caller's session key, minting and setting the
// cookie when missing.
func (s *sessionStore) EnsureKey(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	key := newSessionKey()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

// Key returns the session key without minting one.
func (s *sessionStore) Key(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// sessionHandshakeCookie renders the session cookie for transports that
// write their own response headers.
func sessionHandshakeCookie(key string) string {
	cookie := http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return cookie.String()
}

func newSessionKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
