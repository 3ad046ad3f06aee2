package session

import "time"

// Config holds per-kind lifetimes and cookie names.
type Config struct {
	SecureCookies bool   `env:"SESSION_SECURE_COOKIES" envDefault:"true"`
	CookieDomain  string `env:"SESSION_COOKIE_DOMAIN"`

	AuthTTL     time.Duration `env:"SESSION_AUTH_TTL" envDefault:"24h"`
	CheckoutTTL time.Duration `env:"SESSION_CHECKOUT_TTL" envDefault:"30m"`
	AdminTTL    time.Duration `env:"SESSION_ADMIN_TTL" envDefault:"24h"`
	ManagerTTL  time.Duration `env:"SESSION_MANAGER_TTL" envDefault:"24h"`

	AuthCookie     string `env:"SESSION_AUTH_COOKIE" envDefault:"auth_session"`
	CheckoutCookie string `env:"SESSION_CHECKOUT_COOKIE" envDefault:"checkout_session"`
	AdminCookie    string `env:"SESSION_ADMIN_COOKIE" envDefault:"admin_session"`
	ManagerCookie  string `env:"SESSION_MANAGER_COOKIE" envDefault:"manager_session"`
}

// TTL returns the lifetime of a session of kind, or zero for an unknown kind.
func (c Config) TTL(kind Kind) time.Duration {
	switch kind {
	case KindAuth:
		return c.AuthTTL
	case KindCheckout:
		return c.CheckoutTTL
	case KindAdmin:
		return c.AdminTTL
	case KindManager:
		return c.ManagerTTL
	}
	return 0
}

// CookieName returns the cookie carrying sessions of kind.
func (c Config) CookieName(kind Kind) string {
	switch kind {
	case KindAuth:
		return c.AuthCookie
	case KindCheckout:
		return c.CheckoutCookie
	case KindAdmin:
		return c.AdminCookie
	case KindManager:
		return c.ManagerCookie
	}
	return ""
}

// Options maps the config onto Manager options for kind.
func (c Config) Options(kind Kind) []Option {
	opts := []Option{WithTTL(c.TTL(kind))}
	if name := c.CookieName(kind); name != "" {
		opts = append(opts, WithCookie(NewCookieTransport(name, c.SecureCookies).WithDomain(c.CookieDomain)))
	}
	return opts
}
