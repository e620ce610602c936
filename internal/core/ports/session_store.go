package ports

import (
	"context"
	"time"

	"github.com/imo-platform/access-control/internal/core/domain"
)

// SessionStore persists sessions and a per-user index of session keys.
// It is shared by every request worker.
type SessionStore interface {
	// Replace atomically deletes every session indexed for sess.UserID and
	// stores sess, returning how many sessions were removed.
	Replace(ctx context.Context, sess *domain.Session) (int, error)
	// Get returns domain.ErrSessionNotFound when the key is unknown.
	Get(ctx context.Context, key string) (*domain.Session, error)
	// Extend moves the expiry of an existing session. It reports false when
	// the session no longer exists.
	Extend(ctx context.Context, key string, expiresAt time.Time) (bool, error)
	// Delete removes one session, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteForUser removes every session of userID except exceptKey (may be empty).
	DeleteForUser(ctx context.Context, userID, exceptKey string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context, now time.Time) (domain.SessionStats, error)
}
