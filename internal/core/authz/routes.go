// Package authz is the request-time authorization gate: it turns a request
// path and an optional principal into an accept/reject decision, and composes
// per-endpoint guards on top of the coarse prefix rules.
package authz

import (
	"strings"

	"github.com/imo-platform/access-control/internal/core/domain"
)

// RouteConfig holds the path prefixes that drive the coarse gate.
type RouteConfig struct {
	APIPrefix     string
	AuthPrefix    string
	OwnerPrefix   string
	ManagerPrefix string
	TenantPrefix  string
}

// DefaultRouteConfig returns the prefixes used when none are configured.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		APIPrefix:     "/api/",
		AuthPrefix:    "/api/v1/auth/",
		OwnerPrefix:   "/api/owner/",
		ManagerPrefix: "/api/manager/",
		TenantPrefix:  "/api/tenant/",
	}
}

type area struct {
	prefix   string
	userType domain.UserType
}

// Routes classifies request paths. The zero value protects nothing.
type Routes struct {
	api   string
	auth  string
	areas []area
}

// NewRoutes builds the classifier from cfg. Empty area prefixes are skipped.
func NewRoutes(cfg RouteConfig) Routes {
	r := Routes{api: cfg.APIPrefix, auth: cfg.AuthPrefix}
	for _, a := range []area{
		{cfg.OwnerPrefix, domain.UserTypeOwner},
		{cfg.ManagerPrefix, domain.UserTypeManager},
		{cfg.TenantPrefix, domain.UserTypeTenant},
	} {
		if a.prefix != "" {
			r.areas = append(r.areas, a)
		}
	}
	return r
}

// Match reports whether path is protected and, if it falls in a typed area,
// which user type it requires. Protected paths outside any area require
// authentication only (required == "").
func (r Routes) Match(path string) (protected bool, required domain.UserType) {
	if r.api == "" || !strings.HasPrefix(path, r.api) {
		return false, ""
	}
	if r.auth != "" && strings.HasPrefix(path, r.auth) {
		return false, ""
	}
	for _, a := range r.areas {
		if strings.HasPrefix(path, a.prefix) {
			return true, a.userType
		}
	}
	return true, ""
}
