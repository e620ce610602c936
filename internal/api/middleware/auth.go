package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/core/authz"
)

const principalKey = "principal"

// TokenParser extracts the session key carried by a bearer token.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// Admitter runs the per-request authorization pipeline.
type Admitter interface {
	Admit(ctx context.Context, path, sessionKey string) (*authz.Principal, authz.Decision)
}

// Auth resolves the caller from the bearer token and lets the gate decide.
// A missing, malformed or invalid token makes the request anonymous; whether
// that is acceptable is the gate's call, so public paths stay reachable.
func Auth(tokens TokenParser, gate Admitter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var sessionKey string
			if raw := bearerToken(c); raw != "" {
				if key, err := tokens.ParseToken(raw); err == nil {
					sessionKey = key
				}
			}

			p, d := gate.Admit(c.Request().Context(), c.Request().URL.Path, sessionKey)
			if !d.Allowed {
				return d.Err()
			}
			if p != nil {
				c.Set(principalKey, p)
			}
			return next(c)
		}
	}
}

// Principal returns the authenticated caller set by Auth, or nil.
func Principal(c echo.Context) *authz.Principal {
	p, _ := c.Get(principalKey).(*authz.Principal)
	return p
}

// SetPrincipal stores p on the context. Used by tests and by Auth.
func SetPrincipal(c echo.Context, p *authz.Principal) {
	c.Set(principalKey, p)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
