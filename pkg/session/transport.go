package session

import (
	"errors"
	"net/http"
	"time"
)

// CookieTransport carries the session id in an HTTP-only cookie.
type CookieTransport struct {
	name   string
	path   string
	domain string
	secure bool
}

// NewCookieTransport returns a transport for the HttpOnly, SameSite=Lax cookie
// name. secure adds the Secure attribute.
func NewCookieTransport(name string, secure bool) *CookieTransport {
	return &CookieTransport{name: name, path: "/", secure: secure}
}

// WithDomain returns a copy of t scoped to domain.
func (t *CookieTransport) WithDomain(domain string) *CookieTransport {
	c := *t
	c.domain = domain
	return &c
}

func (t *CookieTransport) Name() string { return t.name }

// Token returns the session id from r or ErrUnauthenticated.
func (t *CookieTransport) Token(r *http.Request) (string, error) {
	c, err := r.Cookie(t.name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrUnauthenticated
		}
		return "", errors.Join(ErrUnauthenticated, err)
	}
	if c.Value == "" {
		return "", ErrUnauthenticated
	}
	return c.Value, nil
}

// Set writes the session cookie for id expiring after ttl.
func (t *CookieTransport) Set(w http.ResponseWriter, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    id,
		Path:     t.path,
		Domain:   t.domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   t.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (t *CookieTransport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     t.path,
		Domain:   t.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   t.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
