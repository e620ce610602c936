package api

import (
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/imo-platform/access-control/docs"
	"github.com/imo-platform/access-control/internal/api/handler"
	"github.com/imo-platform/access-control/internal/api/middleware"
	"github.com/imo-platform/access-control/internal/core/authz"
	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/core/rbac"
	"github.com/imo-platform/access-control/internal/pkg/validation"
)

// Dependencies are the services the router mounts.
type Dependencies struct {
	Auth        ports.AuthService
	Credentials ports.CredentialService
	Sessions    ports.SessionService
	Users       ports.UserDirectory
	Gate        *authz.Gate
	Routes      authz.RouteConfig
	Readiness   map[string]handler.PingFunc
	LoginRate   LoginRate

	// Registerer and Gatherer default to the global prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Log        zerolog.Logger
}

// LoginRate bounds login attempts per client IP. A zero PerMinute disables it.
type LoginRate struct {
	PerMinute float64
	Burst     int
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: d.Registerer,
	}))
	// Every request passes the gate; public paths are decided there.
	e.Use(middleware.Auth(d.Auth, d.Gate))

	engine := d.Gate.Engine()
	base := authz.NewChain(engine).Authenticated()

	// --- Health, metrics, docs (outside the API prefix, always public) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewReadinessHandler(d.Readiness).Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth ---
	authHandler := handler.NewAuthHandler(d.Auth, d.Credentials, d.Sessions, engine)
	auth := e.Group(mount(d.Routes.AuthPrefix))
	var loginMW []echo.MiddlewareFunc
	if d.LoginRate.PerMinute > 0 {
		loginMW = append(loginMW, middleware.LoginRateLimit(d.LoginRate.PerMinute, d.LoginRate.Burst))
	}
	auth.POST("/login", authHandler.Login, loginMW...)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me)
	auth.POST("/password", authHandler.ChangePassword)
	auth.GET("/session", authHandler.SessionStatus)
	auth.POST("/session/extend", authHandler.ExtendSession)

	// --- Areas (user type enforced by the gate) ---
	areas := handler.NewAreaHandler(engine)
	e.GET(mount(d.Routes.OwnerPrefix)+"/dashboard", areas.Dashboard(domain.UserTypeOwner))
	e.GET(mount(d.Routes.TenantPrefix)+"/dashboard", areas.Dashboard(domain.UserTypeTenant))

	mgr := e.Group(mount(d.Routes.ManagerPrefix))
	mgr.GET("/dashboard", areas.Dashboard(domain.UserTypeManager))

	// --- User administration ---
	users := handler.NewUserHandler(d.Credentials, d.Users, d.Sessions, engine, d.Log)
	canChange := base.Permission(rbac.PermChangeUsers)

	mgr.POST("/users", users.Create, middleware.Require(d.Gate, base.CanCreateUsers()))
	mgr.GET("/users", users.List, middleware.Require(d.Gate, base.Permission(rbac.PermViewUsers)))
	mgr.POST("/users/:id/verify", users.Verify, middleware.Require(d.Gate, canChange))
	mgr.POST("/users/:id/activate", users.Activate, middleware.Require(d.Gate, canChange))
	mgr.POST("/users/:id/deactivate", users.Deactivate, middleware.Require(d.Gate, canChange))
	mgr.POST("/users/:id/reset-password", users.ResetPassword, middleware.Require(d.Gate, canChange))
	mgr.POST("/users/:id/force-logout", users.ForceLogout, middleware.Require(d.Gate, canChange))
	mgr.GET("/users/:id/sessions", users.Sessions, middleware.Require(d.Gate, base.Permission(rbac.PermViewUsers)))

	// --- Session maintenance ---
	sessions := handler.NewSessionHandler(d.Sessions)
	adminOnly := middleware.Require(d.Gate, base.ManagerLevel(domain.AccessLevelAdmin))
	mgr.GET("/sessions/stats", sessions.Stats, adminOnly)
	mgr.POST("/sessions/sweep", sessions.Sweep, adminOnly)

	return e
}

// mount turns a configured prefix ("/api/owner/") into a route group path.
func mount(prefix string) string {
	return strings.TrimSuffix(prefix, "/")
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	log = log.With().Str("component", "http").Logger()
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error()
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

