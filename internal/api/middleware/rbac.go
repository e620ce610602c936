package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/core/authz"
)

// ChainChecker evaluates a guard chain against the request principal.
type ChainChecker interface {
	Check(chain *authz.Chain, p *authz.Principal) authz.Decision
}

// Require enforces a per-endpoint guard chain after Auth has run.
func Require(checker ChainChecker, chain *authz.Chain) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d := checker.Check(chain, Principal(c)); !d.Allowed {
				return d.Err()
			}
			return next(c)
		}
	}
}
