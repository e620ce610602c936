package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/pkg/metrics"
)

const (
	defaultSessionTTL       = time.Hour
	defaultWarningThreshold = 5 * time.Minute
	lockStripes             = 64
)

// SessionConfig holds the registry timings.
type SessionConfig struct {
	TTL              time.Duration
	WarningThreshold time.Duration
}

// SessionRegistry enforces the single-device policy: at most one live session
// per user. Issuance replaces every other session of the user in one store
// transaction, serialised per user id by a striped mutex.
type SessionRegistry struct {
	store ports.SessionStore
	users ports.UserRepository
	clock clockwork.Clock
	ttl   time.Duration
	warn  time.Duration
	locks [lockStripes]sync.Mutex
	log   zerolog.Logger
}

// NewSessionRegistry returns a registry over store. Zero timings fall back to
// one hour of TTL and a five minute warning threshold.
func NewSessionRegistry(
	store ports.SessionStore,
	users ports.UserRepository,
	clock clockwork.Clock,
	cfg SessionConfig,
	log zerolog.Logger,
) *SessionRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = defaultWarningThreshold
	}
	return &SessionRegistry{
		store: store,
		users: users,
		clock: clock,
		ttl:   cfg.TTL,
		warn:  cfg.WarningThreshold,
		log:   log.With().Str("component", "session_registry").Logger(),
	}
}

// TTL returns the configured session lifetime.
func (r *SessionRegistry) TTL() time.Duration { return r.ttl }

// CreateSession issues a new session for user and deletes all others.
func (r *SessionRegistry) CreateSession(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*domain.Session, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthenticationRequired
	}

	mu := r.lockFor(user.ID)
	mu.Lock()
	defer mu.Unlock()

	now := r.clock.Now()
	sess := &domain.Session{
		Key:       uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}

	superseded, err := r.store.Replace(ctx, sess)
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("create").Inc()
		r.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to create session")
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	if superseded > 0 {
		metrics.SessionsInvalidatedTotal.WithLabelValues("superseded").Add(float64(superseded))
		r.log.Info().
			Str("user_id", user.ID).
			Str("username", user.Username).
			Int("count", superseded).
			Msg("superseded sessions deleted")
	}
	return sess, nil
}

// Lookup returns the live session for key. Expired sessions are deleted on
// sight and reported as domain.ErrSessionNotFound.
func (r *SessionRegistry) Lookup(ctx context.Context, key string) (*domain.Session, error) {
	if key == "" {
		return nil, domain.ErrSessionNotFound
	}
	sess, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			metrics.SessionStoreErrorsTotal.WithLabelValues("lookup").Inc()
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Expired(r.clock.Now()) {
		if _, err := r.store.Delete(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("session", shortKey(key)).Msg("failed to delete expired session")
		}
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Touch extends the session to now+TTL and records the user's activity.
// A session that vanished in the meantime is silently skipped.
func (r *SessionRegistry) Touch(ctx context.Context, key string) error {
	sess, err := r.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	now := r.clock.Now()
	ok, err := r.store.Extend(ctx, key, now.Add(r.ttl))
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("touch").Inc()
		return fmt.Errorf("touch session: %w", err)
	}
	if !ok {
		return nil
	}

	if err := r.users.TouchActivity(ctx, sess.UserID, now); err != nil {
		r.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("failed to update last activity")
	}
	return nil
}

// InvalidateAllExceptCurrent deletes every session of userID but currentKey.
func (r *SessionRegistry) InvalidateAllExceptCurrent(ctx context.Context, userID, currentKey string) (int, error) {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	n, err := r.store.DeleteForUser(ctx, userID, currentKey)
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("invalidate").Inc()
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to invalidate sessions")
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}
	if n > 0 {
		metrics.SessionsInvalidatedTotal.WithLabelValues("other_devices").Add(float64(n))
		r.log.Info().Str("user_id", userID).Int("count", n).Msg("other sessions invalidated")
	}
	return n, nil
}

// Logout deletes a single session. Unknown keys are not an error.
func (r *SessionRegistry) Logout(ctx context.Context, key string) error {
	existed, err := r.store.Delete(ctx, key)
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("logout").Inc()
		return fmt.Errorf("logout: %w", err)
	}
	if existed {
		metrics.SessionsInvalidatedTotal.WithLabelValues("logout").Inc()
	}
	return nil
}

// ForceLogout deletes every session of userID. Calling it again deletes
// nothing and still succeeds.
func (r *SessionRegistry) ForceLogout(ctx context.Context, userID, reason string) (int, error) {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	n, err := r.store.DeleteForUser(ctx, userID, "")
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("force_logout").Inc()
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to force logout")
		return 0, fmt.Errorf("force logout: %w", err)
	}

	metrics.SessionsInvalidatedTotal.WithLabelValues("forced").Add(float64(n))
	r.log.Info().
		Str("user_id", userID).
		Str("reason", reason).
		Int("count", n).
		Msg("forced logout")
	return n, nil
}

// SweepExpired removes every expired session. It takes no user lock: deleting
// an expired record commutes with inserting a fresh one.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int, error) {
	n, err := r.store.DeleteExpired(ctx, r.clock.Now())
	if err != nil {
		metrics.SessionStoreErrorsTotal.WithLabelValues("sweep").Inc()
		r.log.Error().Err(err).Msg("failed to sweep expired sessions")
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	metrics.SessionsSweptTotal.Add(float64(n))
	r.log.Info().Int("count", n).Msg("expired sessions swept")
	return n, nil
}

// WarningState reports whether the session is about to expire.
func (r *SessionRegistry) WarningState(ctx context.Context, key string) (domain.WarningState, error) {
	expired := domain.WarningState{Status: domain.WarningExpired}

	sess, err := r.store.Get(ctx, key)
	if err != nil {
		return expired, fmt.Errorf("session warning: %w", err)
	}

	remaining := sess.Remaining(r.clock.Now())
	if remaining <= 0 {
		return expired, nil
	}

	secs := int64(remaining / time.Second)
	if remaining <= r.warn {
		return domain.WarningState{
			Status:           domain.WarningExpiring,
			RemainingSeconds: secs,
			Message:          fmt.Sprintf("your session expires in %d minutes", secs/60),
		}, nil
	}
	return domain.WarningState{Status: domain.WarningOK, RemainingSeconds: secs}, nil
}

// ActiveSessions lists the user's unexpired sessions.
func (r *SessionRegistry) ActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	all, err := r.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := r.clock.Now()
	active := make([]*domain.Session, 0, len(all))
	for _, s := range all {
		if !s.Expired(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// Stats counts total, active and expired sessions.
func (r *SessionRegistry) Stats(ctx context.Context) (domain.SessionStats, error) {
	stats, err := r.store.Stats(ctx, r.clock.Now())
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	return stats, nil
}

// lockFor maps a user id deterministically onto one of the lock stripes.
func (r *SessionRegistry) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.locks[h.Sum32()%lockStripes]
}

// shortKey keeps session keys out of the logs.
func shortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "…"
}
