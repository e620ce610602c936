package authz

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/rbac"
	"github.com/imo-platform/access-control/internal/pkg/metrics"
)

// SessionRegistry is what the gate needs from the session registry.
type SessionRegistry interface {
	Lookup(ctx context.Context, key string) (*domain.Session, error)
	Touch(ctx context.Context, key string) error
	ForceLogout(ctx context.Context, userID, reason string) (int, error)
}

// UserLoader loads the current user record behind a session.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User    *domain.User
	Session *domain.Session
	Role    rbac.Role
}

// Gate is the single request-time authorization stage.
type Gate struct {
	routes   Routes
	engine   *rbac.Engine
	sessions SessionRegistry
	users    UserLoader
	passive  map[string]struct{}
	log      zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithPassivePaths lists exact paths whose requests are authorized without
// extending the session.
func WithPassivePaths(paths ...string) Option {
	return func(g *Gate) {
		for _, p := range paths {
			g.passive[p] = struct{}{}
		}
	}
}

func NewGate(routes Routes, engine *rbac.Engine, sessions SessionRegistry, users UserLoader, log zerolog.Logger, opts ...Option) *Gate {
	g := &Gate{
		routes:   routes,
		engine:   engine,
		sessions: sessions,
		users:    users,
		passive:  make(map[string]struct{}),
		log:      log.With().Str("component", "authz_gate").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Engine returns the permission engine used by the gate.
func (g *Gate) Engine() *rbac.Engine { return g.engine }

// Authorize applies the coarse prefix rules. It is pure: no I/O.
func (g *Gate) Authorize(path string, p *Principal) Decision {
	protected, required := g.routes.Match(path)
	if !protected {
		return Accept()
	}
	if p == nil || p.User == nil {
		return RequireAuthentication()
	}
	if required != "" && !g.engine.HasUserType(p.User, required) {
		return Forbid("user type: " + string(required))
	}
	return Accept()
}

// Admit runs the full per-request pipeline:
//  1. resolve the session (store failures degrade to anonymous)
//  2. load the user
//  3. log out a user deactivated since login
//  4. apply the coarse prefix rules
//  5. refresh the session on an accepted authenticated request
func (g *Gate) Admit(ctx context.Context, path, sessionKey string) (*Principal, Decision) {
	start := time.Now()
	defer func() { metrics.AuthorizationDuration.Observe(time.Since(start).Seconds()) }()

	// 1-3. Principal.
	p := g.resolve(ctx, sessionKey)

	// 4. Coarse check.
	d := g.Authorize(path, p)
	metrics.AuthorizationDecisionsTotal.WithLabelValues(d.result(), string(d.Kind)).Inc()

	if !d.Allowed {
		evt := g.log.Info().Str("path", path).Str("kind", string(d.Kind))
		if d.Requirement != "" {
			evt = evt.Str("requirement", d.Requirement)
		}
		if p != nil {
			evt = evt.Str("user_id", p.User.ID).Str("user_type", string(p.User.Type))
		}
		evt.Msg("request rejected")
		return p, d
	}

	// 5. Touch.
	if p != nil && !g.isPassive(path) {
		if err := g.sessions.Touch(ctx, p.Session.Key); err != nil {
			g.log.Warn().Err(err).Str("user_id", p.User.ID).Msg("session touch failed")
		}
	}
	return p, d
}

// Check evaluates a per-endpoint chain for the principal and records the
// decision like Admit does.
func (g *Gate) Check(chain *Chain, p *Principal) Decision {
	var u *domain.User
	if p != nil {
		u = p.User
	}
	d := chain.Evaluate(u)
	if !d.Allowed {
		metrics.AuthorizationDecisionsTotal.WithLabelValues(d.result(), string(d.Kind)).Inc()
		evt := g.log.Info().Str("kind", string(d.Kind)).Str("requirement", d.Requirement)
		if u != nil {
			evt = evt.Str("user_id", u.ID)
		}
		evt.Msg("guard rejected request")
	}
	return d
}

func (g *Gate) resolve(ctx context.Context, key string) *Principal {
	if key == "" {
		return nil
	}

	sess, err := g.sessions.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.log.Warn().Err(err).Msg("session lookup failed, treating request as anonymous")
		}
		return nil
	}

	user, err := g.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("user load failed, treating request as anonymous")
		}
		return nil
	}

	if !user.IsActive {
		if _, err := g.sessions.ForceLogout(ctx, user.ID, "account inactive"); err != nil {
			g.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to log out inactive user")
		}
		return nil
	}
	if !user.IsVerified {
		g.log.Warn().Str("user_id", user.ID).Str("username", user.Username).Msg("request from unverified account")
	}

	return &Principal{User: user, Session: sess, Role: rbac.RoleOf(user)}
}

func (g *Gate) isPassive(path string) bool {
	_, ok := g.passive[path]
	return ok
}
