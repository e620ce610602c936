package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
)

func newUserHandler(creds *stubCredentials, dir stubDirectory, sessions *stubSessions) *UserHandler {
	return NewUserHandler(creds, dir, sessions, testEngine, zerolog.Nop())
}

func TestUserHandler_Create_Success(t *testing.T) {
	admin := manager("u-admin", domain.AccessLevelAdmin, true)
	creds := &stubCredentials{
		createFn: func(in ports.CreateAccountInput, by *domain.User) (*domain.User, string, error) {
			if in.Type != domain.UserTypeTenant || in.Username != "tom" || by.ID != "u-admin" {
				t.Fatalf("unexpected input: %+v by %s", in, by.ID)
			}
			return &domain.User{ID: "u-new", Username: in.Username, Email: in.Email, Type: in.Type, IsActive: true}, "Temp!234abcd", nil
		},
	}
	h := newUserHandler(creds, stubDirectory{}, &stubSessions{})

	c, rec := newContext(http.MethodPost, "/api/manager/users",
		`{"user_type":"tenant","username":"tom","email":"tom@example.com"}`, principalFor(admin))
	if err := h.Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["id"] != "u-new" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if body := rec.Body.String(); strings.Contains(body, "Temp!234abcd") {
		t.Fatal("temporary password must only travel by email")
	}
}

func TestUserHandler_Create_Forbidden(t *testing.T) {
	cases := []struct {
		name     string
		actor    *domain.User
		userType string
	}{
		{"agent", manager("u-agent", domain.AccessLevelAgent, true), "tenant"},
		{"manager without create flag", manager("u-m", domain.AccessLevelManager, false), "tenant"},
		{"manager creating manager", manager("u-m", domain.AccessLevelManager, true), "manager"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := &stubCredentials{createFn: func(ports.CreateAccountInput, *domain.User) (*domain.User, string, error) {
				t.Fatal("service must not be called")
				return nil, "", nil
			}}
			h := newUserHandler(creds, stubDirectory{}, &stubSessions{})

			body := fmt.Sprintf(`{"user_type":%q,"username":"new","email":"new@example.com"}`, tc.userType)
			c, _ := newContext(http.MethodPost, "/api/manager/users", body, principalFor(tc.actor))
			err := h.Create(c)
			var fe *domain.ForbiddenError
			if !errors.As(err, &fe) || fe.Requirement != "permission: create "+tc.userType+" users" {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}
}

func TestUserHandler_Create_NotificationFailure(t *testing.T) {
	creds := &stubCredentials{
		createFn: func(in ports.CreateAccountInput, _ *domain.User) (*domain.User, string, error) {
			return &domain.User{ID: "u-new", Username: in.Username}, "Temp!234abcd",
				fmt.Errorf("send credentials: %w", domain.ErrNotificationFailed)
		},
	}
	h := newUserHandler(creds, stubDirectory{}, &stubSessions{})

	c, _ := newContext(http.MethodPost, "/api/manager/users",
		`{"user_type":"owner","username":"olga","email":"olga@example.com"}`, principalFor(manager("u-admin", domain.AccessLevelAdmin, true)))
	if err := h.Create(c); !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("expected notification failure, got %v", err)
	}
}

func TestUserHandler_List(t *testing.T) {
	inactive := tenant("u-2")
	inactive.IsActive = false
	dir := stubDirectory{"u-1": tenant("u-1"), "u-2": inactive, "u-m": manager("u-m", domain.AccessLevelAgent, false)}
	h := newUserHandler(&stubCredentials{}, dir, &stubSessions{})
	admin := principalFor(manager("u-admin", domain.AccessLevelAdmin, false))

	c, rec := newContext(http.MethodGet, "/api/manager/users?type=tenant&active=true", "", admin)
	if err := h.List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Fatalf("expected one active tenant, got %d", resp.Total)
	}

	c, _ = newContext(http.MethodGet, "/api/manager/users?type=janitor", "", admin)
	if err := h.List(c); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUserHandler_ManagedActions(t *testing.T) {
	dir := stubDirectory{"u-t": tenant("u-t"), "u-m": manager("u-m", domain.AccessLevelManager, false)}
	actor := principalFor(manager("u-boss", domain.AccessLevelManager, false))

	actions := []struct {
		name string
		call func(h *UserHandler) echo.HandlerFunc
		want string
	}{
		{"verify", func(h *UserHandler) echo.HandlerFunc { return h.Verify }, "verify:u-t"},
		{"activate", func(h *UserHandler) echo.HandlerFunc { return h.Activate }, "activate:u-t"},
		{"deactivate", func(h *UserHandler) echo.HandlerFunc { return h.Deactivate }, "deactivate:u-t"},
	}
	for _, a := range actions {
		t.Run(a.name, func(t *testing.T) {
			creds := &stubCredentials{}
			h := newUserHandler(creds, dir, &stubSessions{})

			c, rec := newContext(http.MethodPost, "/", "", actor)
			c.SetParamNames("id")
			c.SetParamValues("u-t")
			if err := a.call(h)(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusNoContent || len(creds.calls) != 1 || creds.calls[0] != a.want {
				t.Fatalf("unexpected result: code=%d calls=%v", rec.Code, creds.calls)
			}

			// Managers cannot administer other managers.
			c, _ = newContext(http.MethodPost, "/", "", actor)
			c.SetParamNames("id")
			c.SetParamValues("u-m")
			if err := a.call(h)(c); !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}

			c, _ = newContext(http.MethodPost, "/", "", actor)
			c.SetParamNames("id")
			c.SetParamValues("missing")
			if err := a.call(h)(c); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestUserHandler_ResetPassword(t *testing.T) {
	dir := stubDirectory{"u-t": tenant("u-t")}
	actor := principalFor(manager("u-admin", domain.AccessLevelAdmin, false))

	creds := &stubCredentials{}
	h := newUserHandler(creds, dir, &stubSessions{})
	c, _ := newContext(http.MethodPost, "/", "", actor)
	c.SetParamNames("id")
	c.SetParamValues("u-t")
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("generate: %v", err)
	}

	c, _ = newContext(http.MethodPost, "/", `{"password":"chosen-by-admin"}`, actor)
	c.SetParamNames("id")
	c.SetParamValues("u-t")
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("explicit: %v", err)
	}

	if len(creds.calls) != 2 || creds.calls[0] != "generate:u-t" || creds.calls[1] != "reset:u-t" || creds.resetTo != "chosen-by-admin" {
		t.Fatalf("unexpected calls: %v (%q)", creds.calls, creds.resetTo)
	}
}

func TestUserHandler_ForceLogout(t *testing.T) {
	sessions := &stubSessions{}
	h := newUserHandler(&stubCredentials{}, stubDirectory{"u-t": tenant("u-t")}, sessions)

	c, rec := newContext(http.MethodPost, "/", "", principalFor(manager("u-admin", domain.AccessLevelAdmin, false)))
	c.SetParamNames("id")
	c.SetParamValues("u-t")
	if err := h.ForceLogout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp forceLogoutResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionsEnded != 1 || len(sessions.forced) != 1 || sessions.forced[0] != "u-t" {
		t.Fatalf("unexpected result: %+v forced=%v", resp, sessions.forced)
	}
}

func TestUserHandler_Sessions(t *testing.T) {
	sessions := &stubSessions{active: []*domain.Session{
		{Key: "secret-key", UserID: "u-t", IP: "10.0.0.9", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	h := newUserHandler(&stubCredentials{}, stubDirectory{"u-t": tenant("u-t")}, sessions)

	c, rec := newContext(http.MethodGet, "/", "", principalFor(manager("u-m", domain.AccessLevelManager, false)))
	c.SetParamNames("id")
	c.SetParamValues("u-t")
	if err := h.Sessions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Fatalf("session key leaked: %s", rec.Body.String())
	}
	var resp struct {
		Items []domain.Session `json:"items"`
		Total int              `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Items[0].IP != "10.0.0.9" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}

	// Agents manage no one.
	c, _ = newContext(http.MethodGet, "/", "", principalFor(manager("u-a", domain.AccessLevelAgent, false)))
	c.SetParamNames("id")
	c.SetParamValues("u-t")
	if err := h.Sessions(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSessionHandler(t *testing.T) {
	sessions := &stubSessions{swept: 4, stats: domain.SessionStats{Total: 10, Active: 6, Expired: 4}}
	h := NewSessionHandler(sessions)

	c, rec := newContext(http.MethodGet, "/api/manager/sessions/stats", "", nil)
	if err := h.Stats(c); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats domain.SessionStats
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats != sessions.stats {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	c, rec = newContext(http.MethodPost, "/api/manager/sessions/sweep", "", nil)
	if err := h.Sweep(c); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	var sweep sweepResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &sweep)
	if sweep.Removed != 4 {
		t.Fatalf("unexpected sweep result: %+v", sweep)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	c, rec := newContext(http.MethodGet, "/health/ready", "", nil)
	if err := NewReadinessHandler(map[string]PingFunc{"mongodb": ok, "redis": ok}).Readiness(c); err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(http.MethodGet, "/health/ready", "", nil)
	_ = NewReadinessHandler(map[string]PingFunc{"mongodb": ok, "redis": down}).Readiness(c)
	var resp readinessResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusServiceUnavailable || resp.Status != "degraded" || resp.Dependencies["redis"].Status != "unhealthy" {
		t.Fatalf("unexpected readiness: %d %+v", rec.Code, resp)
	}

	c, rec = newContext(http.MethodGet, "/health", "", nil)
	_ = NewHealthHandler().Liveness(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
