package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/api/middleware"
	"github.com/imo-platform/access-control/internal/core/authz"
	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/core/rbac"
	"github.com/imo-platform/access-control/internal/pkg/validation"
)

var testEngine = rbac.NewEngine(rbac.DefaultCatalog())

type stubAuthService struct {
	loginFn   func(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error)
	loggedOut []string
}

func (s *stubAuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAuthService) Logout(_ context.Context, key string) error {
	s.loggedOut = append(s.loggedOut, key)
	return nil
}

func (s *stubAuthService) ParseToken(string) (string, error) { return "", domain.ErrInvalidToken }

type stubCredentials struct {
	createFn func(in ports.CreateAccountInput, by *domain.User) (*domain.User, string, error)
	calls    []string
	err      error
	resetTo  string
}

func (s *stubCredentials) CreateAccount(_ context.Context, in ports.CreateAccountInput, by *domain.User) (*domain.User, string, error) {
	return s.createFn(in, by)
}

func (s *stubCredentials) ChangePassword(_ context.Context, userID, _, newPassword string) error {
	s.calls = append(s.calls, "change:"+userID+":"+newPassword)
	return s.err
}

func (s *stubCredentials) ResetPassword(_ context.Context, userID, newPassword string) error {
	s.calls = append(s.calls, "reset:"+userID)
	s.resetTo = newPassword
	return s.err
}

func (s *stubCredentials) GenerateResetPassword(_ context.Context, userID string) (string, error) {
	s.calls = append(s.calls, "generate:"+userID)
	return "Temp!234abcd", s.err
}

func (s *stubCredentials) Verify(_ context.Context, userID string) error {
	s.calls = append(s.calls, "verify:"+userID)
	return s.err
}

func (s *stubCredentials) Activate(_ context.Context, userID string) error {
	s.calls = append(s.calls, "activate:"+userID)
	return s.err
}

func (s *stubCredentials) Deactivate(_ context.Context, userID string) error {
	s.calls = append(s.calls, "deactivate:"+userID)
	return s.err
}

type stubSessions struct {
	state   domain.WarningState
	touched []string
	forced  []string
	kept    []string
	active  []*domain.Session
	swept   int
	stats   domain.SessionStats
}

func (s *stubSessions) Touch(_ context.Context, key string) error {
	s.touched = append(s.touched, key)
	s.state = domain.WarningState{Status: domain.WarningOK, RemainingSeconds: 3600}
	return nil
}

func (s *stubSessions) WarningState(context.Context, string) (domain.WarningState, error) {
	return s.state, nil
}

func (s *stubSessions) ForceLogout(_ context.Context, userID, _ string) (int, error) {
	s.forced = append(s.forced, userID)
	return 1, nil
}

func (s *stubSessions) InvalidateAllExceptCurrent(_ context.Context, _, currentKey string) (int, error) {
	s.kept = append(s.kept, currentKey)
	return 0, nil
}

func (s *stubSessions) ActiveSessions(context.Context, string) ([]*domain.Session, error) {
	return s.active, nil
}

func (s *stubSessions) SweepExpired(context.Context) (int, error) { return s.swept, nil }

func (s *stubSessions) Stats(context.Context) (domain.SessionStats, error) { return s.stats, nil }

type stubDirectory map[string]*domain.User

func (d stubDirectory) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (d stubDirectory) ListByType(_ context.Context, t domain.UserType, activeOnly bool) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range d {
		if u.Type == t && (!activeOnly || u.IsActive) {
			out = append(out, u)
		}
	}
	return out, nil
}

func manager(id string, level domain.AccessLevel, canCreate bool) *domain.User {
	return &domain.User{
		ID: id, Username: id, Type: domain.UserTypeManager, IsActive: true, IsVerified: true,
		Manager: &domain.ManagerProfile{AccessLevel: level, CanCreateUsers: canCreate},
	}
}

func tenant(id string) *domain.User {
	return &domain.User{ID: id, Username: id, FirstName: "Tom", LastName: "Tenant", Type: domain.UserTypeTenant, IsActive: true, IsVerified: true}
}

func principalFor(u *domain.User) *authz.Principal {
	return &authz.Principal{
		User:    u,
		Session: &domain.Session{Key: "sess-" + u.ID, UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)},
		Role:    rbac.RoleOf(u),
	}
}

// newContext builds an echo context for method/path with an optional JSON
// body and principal.
func newContext(method, path, body string, p *authz.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = validation.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if p != nil {
		middleware.SetPrincipal(c, p)
	}
	return c, rec
}
