package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
)

// -----------------------------------------------------------------------------
// stubUserRepo
// -----------------------------------------------------------------------------

type stubUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	nextID  int
	touched map[string]time.Time
}

func newStubUserRepo(seed ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{
		users:   make(map[string]*domain.User),
		touched: make(map[string]time.Time),
	}
	for _, u := range seed {
		r.users[u.ID] = cloneUser(u)
	}
	return r
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Manager != nil {
		mp := *u.Manager
		clone.Manager = &mp
	}
	return &clone
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	c := cloneUser(user)
	if c.ID == "" {
		r.nextID++
		c.ID = "u" + strconv.Itoa(r.nextID)
	}
	r.users[c.ID] = c
	return cloneUser(c), nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, f domain.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if f.PasswordHash != nil {
		u.PasswordHash = *f.PasswordHash
	}
	if f.IsActive != nil {
		u.IsActive = *f.IsActive
	}
	if f.IsVerified != nil {
		u.IsVerified = *f.IsVerified
	}
	if f.MustChangePassword != nil {
		u.MustChangePassword = *f.MustChangePassword
	}
	if f.LastLoginIP != nil {
		u.LastLoginIP = *f.LastLoginIP
	}
	return nil
}

func (r *stubUserRepo) TouchActivity(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastActivity = at
	r.touched[id] = at
	return nil
}

func (r *stubUserRepo) ListByType(_ context.Context, t domain.UserType, activeOnly bool) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.users {
		if u.Type == t && (!activeOnly || u.IsActive) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *stubUserRepo) SoftDeactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsActive = false
	return nil
}

func (r *stubUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id])
}

// -----------------------------------------------------------------------------
// stubSessionStore
// -----------------------------------------------------------------------------

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	failWith error
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]domain.Session)}
}

func (s *stubSessionStore) Replace(_ context.Context, sess *domain.Session) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	n := 0
	for k, v := range s.sessions {
		if v.UserID == sess.UserID {
			delete(s.sessions, k)
			n++
		}
	}
	s.sessions[sess.Key] = *sess
	return n, nil
}

func (s *stubSessionStore) Get(_ context.Context, key string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	v, ok := s.sessions[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &v, nil
}

func (s *stubSessionStore) Extend(_ context.Context, key string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sessions[key]
	if !ok {
		return false, nil
	}
	v.ExpiresAt = expiresAt
	s.sessions[key] = v
	return true, nil
}

func (s *stubSessionStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	return ok, nil
}

func (s *stubSessionStore) DeleteForUser(_ context.Context, userID, exceptKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	n := 0
	for k, v := range s.sessions {
		if v.UserID == userID && k != exceptKey {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *stubSessionStore) ListForUser(_ context.Context, userID string) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, v := range s.sessions {
		if v.UserID == userID {
			c := v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *stubSessionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.sessions {
		if v.Expired(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *stubSessionStore) Stats(_ context.Context, now time.Time) (domain.SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.SessionStats
	for _, v := range s.sessions {
		st.Total++
		if v.Expired(now) {
			st.Expired++
		} else {
			st.Active++
		}
	}
	return st, nil
}

func (s *stubSessionStore) countFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sessions {
		if v.UserID == userID {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// stubHasher / stubMailer / stubMailQueue
// -----------------------------------------------------------------------------

// stubHasher is reversible so tests can assert on stored digests.
type stubHasher struct{}

func (stubHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (stubHasher) Verify(p, digest string) bool  { return digest == "hashed:"+p }

type stubMailer struct {
	mu   sync.Mutex
	sent []ports.EmailMessage
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg ports.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubMailQueue struct {
	mu     sync.Mutex
	queued []ports.EmailMessage
}

func (q *stubMailQueue) Enqueue(msg ports.EmailMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, msg)
}

func (q *stubMailQueue) templates() []ports.EmailTemplate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ports.EmailTemplate, len(q.queued))
	for i, m := range q.queued {
		out[i] = m.Template
	}
	return out
}

var errStoreDown = errors.New("store unavailable")
