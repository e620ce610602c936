package authz

import "github.com/imo-platform/access-control/internal/core/domain"

// Kind classifies a rejection.
type Kind string

const (
	KindNone                   Kind = ""
	KindAuthenticationRequired Kind = "authentication_required"
	KindForbidden              Kind = "forbidden"
)

// Decision is the outcome of a gate or guard evaluation.
type Decision struct {
	Allowed     bool
	Kind        Kind
	Requirement string
}

// Accept lets the request through.
func Accept() Decision { return Decision{Allowed: true} }

// RequireAuthentication rejects an anonymous request.
func RequireAuthentication() Decision {
	return Decision{Kind: KindAuthenticationRequired}
}

// Forbid rejects an authenticated request that misses requirement,
// e.g. "user type: manager".
func Forbid(requirement string) Decision {
	return Decision{Kind: KindForbidden, Requirement: requirement}
}

// Err converts the decision to the domain error taxonomy; nil when allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Kind == KindForbidden:
		return &domain.ForbiddenError{Requirement: d.Requirement}
	default:
		return domain.ErrAuthenticationRequired
	}
}

// result is the metrics label for the decision.
func (d Decision) result() string {
	if d.Allowed {
		return "accept"
	}
	return "reject"
}
