package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/api/middleware"
	"github.com/imo-platform/access-control/internal/core/authz"
	"github.com/imo-platform/access-control/internal/core/domain"
)

// currentPrincipal returns the caller resolved by the Auth middleware.
// Handlers behind the auth prefix are reachable anonymously, so the
// presence check happens here.
func currentPrincipal(c echo.Context) (*authz.Principal, error) {
	p := middleware.Principal(c)
	if p == nil || p.User == nil || p.Session == nil {
		return nil, domain.ErrAuthenticationRequired
	}
	return p, nil
}

// bindAndValidate binds the request body into req and runs the echo validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
