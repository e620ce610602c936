package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/imo-platform/access-control/internal/core/domain"
)

const (
	// expiredRetention keeps a record around after its logical expiry so the
	// sweeper, not Redis, decides when it goes. Redis still reclaims it if
	// the sweeper never runs.
	expiredRetention = time.Hour
	maxTxRetries     = 10
	expiryIndexKey   = "sessions:expiry"
)

// sessionRecord is the stored form of a session; the key lives in the Redis key.
type sessionRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// SessionStore keeps sessions in Redis.
// Key format:
//
//	session:<key>          JSON sessionRecord
//	user_sessions:<userID> SET of session keys
//	sessions:expiry        ZSET of session keys scored by expiry (unix ms)
//
// Multi-key updates run in WATCH/MULTI transactions, so concurrent processes
// cannot leave two sessions indexed for one user.
type SessionStore struct {
	client *redis.Client
	clock  clockwork.Clock
}

// NewSessionStore creates a SessionStore wrapping the given Redis client.
func NewSessionStore(client *redis.Client, clock clockwork.Clock) *SessionStore {
	return &SessionStore{client: client, clock: clock}
}

// Replace deletes every session indexed for sess.UserID and stores sess.
func (s *SessionStore) Replace(ctx context.Context, sess *domain.Session) (int, error) {
	payload, err := json.Marshal(toRecord(sess))
	if err != nil {
		return 0, fmt.Errorf("encode session: %w", err)
	}
	userKey := s.userKey(sess.UserID)

	var removed int
	err = s.transact(ctx, func(tx *redis.Tx) error {
		existing, err := tx.SMembers(ctx, userKey).Result()
		if err != nil {
			return err
		}

		dels := make([]*redis.IntCmd, 0, len(existing))
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range existing {
				dels = append(dels, pipe.Del(ctx, s.sessionKey(k)))
				pipe.ZRem(ctx, expiryIndexKey, k)
			}
			pipe.Del(ctx, userKey)
			pipe.Set(ctx, s.sessionKey(sess.Key), payload, s.ttl(sess.ExpiresAt))
			pipe.SAdd(ctx, userKey, sess.Key)
			pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: score(sess.ExpiresAt), Member: sess.Key})
			return nil
		})
		if err != nil {
			return err
		}

		removed = 0
		for _, d := range dels {
			removed += int(d.Val())
		}
		return nil
	}, userKey)
	if err != nil {
		return 0, fmt.Errorf("replace session: %w", err)
	}
	return removed, nil
}

// Get returns domain.ErrSessionNotFound when the key is unknown.
func (s *SessionStore) Get(ctx context.Context, key string) (*domain.Session, error) {
	rec, err := s.load(ctx, s.client, key)
	if err != nil {
		return nil, err
	}
	return rec.toSession(key), nil
}

// Extend moves the expiry of an existing session.
func (s *SessionStore) Extend(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	sk := s.sessionKey(key)
	found := false

	err := s.transact(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, key)
		if errors.Is(err, domain.ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		rec.ExpiresAt = expiresAt
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sk, payload, s.ttl(expiresAt))
			pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: score(expiresAt), Member: key})
			return nil
		})
		found = err == nil
		return err
	}, sk)
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	return found, nil
}

// Delete removes one session and its index entries.
func (s *SessionStore) Delete(ctx context.Context, key string) (bool, error) {
	sk := s.sessionKey(key)
	existed := false

	err := s.transact(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		existed = rec != nil

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, sk)
			pipe.ZRem(ctx, expiryIndexKey, key)
			if rec != nil {
				pipe.SRem(ctx, s.userKey(rec.UserID), key)
			}
			return nil
		})
		return err
	}, sk)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return existed, nil
}

// DeleteForUser removes every session of userID except exceptKey.
func (s *SessionStore) DeleteForUser(ctx context.Context, userID, exceptKey string) (int, error) {
	userKey := s.userKey(userID)

	var removed int
	err := s.transact(ctx, func(tx *redis.Tx) error {
		keys, err := tx.SMembers(ctx, userKey).Result()
		if err != nil {
			return err
		}

		dels := make([]*redis.IntCmd, 0, len(keys))
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range keys {
				if k == exceptKey {
					continue
				}
				dels = append(dels, pipe.Del(ctx, s.sessionKey(k)))
				pipe.ZRem(ctx, expiryIndexKey, k)
				pipe.SRem(ctx, userKey, k)
			}
			return nil
		})
		if err != nil {
			return err
		}

		removed = 0
		for _, d := range dels {
			removed += int(d.Val())
		}
		return nil
	}, userKey)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return removed, nil
}

// ListForUser returns the sessions indexed for userID. Index entries whose
// record is gone are pruned.
func (s *SessionStore) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	userKey := s.userKey(userID)
	keys, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.sessionKey(k)
	}
	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*domain.Session, 0, len(keys))
	var stale []interface{}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var rec sessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, rec.toSession(keys[i]))
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, userKey, stale...).Err()
	}
	return out, nil
}

// DeleteExpired removes sessions whose expiry is at or before now. Each
// removal re-checks the record under WATCH so a session extended in the
// meantime survives.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(now), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}

	removed := 0
	for _, key := range keys {
		ok, err := s.deleteIfExpired(ctx, key, now)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *SessionStore) deleteIfExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	sk := s.sessionKey(key)
	deleted := false

	err := s.transact(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, key)
		if errors.Is(err, domain.ErrNotFound) {
			// Record already reclaimed; drop the dangling index entry.
			deleted = false
			return tx.ZRem(ctx, expiryIndexKey, key).Err()
		}
		if err != nil {
			return err
		}
		if now.Before(rec.ExpiresAt) {
			deleted = false
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, sk)
			pipe.ZRem(ctx, expiryIndexKey, key)
			pipe.SRem(ctx, s.userKey(rec.UserID), key)
			return nil
		})
		deleted = err == nil
		return err
	}, sk)
	if err != nil {
		return false, fmt.Errorf("sweep session: %w", err)
	}
	return deleted, nil
}

// Stats counts indexed sessions, split by expiry relative to now.
func (s *SessionStore) Stats(ctx context.Context, now time.Time) (domain.SessionStats, error) {
	pipe := s.client.Pipeline()
	total := pipe.ZCard(ctx, expiryIndexKey)
	expired := pipe.ZCount(ctx, expiryIndexKey, "-inf", strconv.FormatFloat(score(now), 'f', 0, 64))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	return domain.SessionStats{
		Total:   total.Val(),
		Active:  total.Val() - expired.Val(),
		Expired: expired.Val(),
	}, nil
}

// --- helpers ---

// transact runs fn under WATCH keys, retrying when another client touched
// a watched key before EXEC.
func (s *SessionStore) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) load(ctx context.Context, c getter, key string) (*sessionRecord, error) {
	raw, err := c.Get(ctx, s.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

func (s *SessionStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.clock.Now()) + expiredRetention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *SessionStore) sessionKey(key string) string {
	return "session:" + key
}

func (s *SessionStore) userKey(userID string) string {
	return "user_sessions:" + userID
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func toRecord(sess *domain.Session) sessionRecord {
	return sessionRecord{
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		IP:        sess.IP,
		UserAgent: sess.UserAgent,
	}
}

func (r *sessionRecord) toSession(key string) *domain.Session {
	return &domain.Session{
		Key:       key,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		IP:        r.IP,
		UserAgent: r.UserAgent,
	}
}
