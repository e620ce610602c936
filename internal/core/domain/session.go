package domain

import "time"

// Session binds one authenticated device to a user until ExpiresAt.
type Session struct {
	Key       string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Remaining returns the time left before expiry relative to now.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionMeta is the request context recorded on a new session.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// WarningStatus classifies how close a session is to expiry.
type WarningStatus string

const (
	WarningOK       WarningStatus = "ok"
	WarningExpiring WarningStatus = "expiring"
	WarningExpired  WarningStatus = "expired"
)

// WarningState is the answer to "is this session about to expire?".
type WarningState struct {
	Status           WarningStatus `json:"status"`
	RemainingSeconds int64         `json:"time_remaining_seconds"`
	Message          string        `json:"message,omitempty"`
}

// SessionStats summarises the session store.
type SessionStats struct {
	Total   int64 `json:"total_sessions"`
	Active  int64 `json:"active_sessions"`
	Expired int64 `json:"expired_sessions"`
}
