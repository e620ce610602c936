// Command accessd serves authentication, role-based authorization and
// single-device sessions for the property-management platform.
//
// @title                       Property access control API
// @version                     1.0
// @description                 Role-based access control and single-device sessions for the property-management platform.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/api"
	"github.com/imo-platform/access-control/internal/api/handler"
	"github.com/imo-platform/access-control/internal/core/authz"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/core/rbac"
	"github.com/imo-platform/access-control/internal/core/service"
	"github.com/imo-platform/access-control/internal/infrastructure/config"
	mongodb "github.com/imo-platform/access-control/internal/infrastructure/db/mongo"
	redisdb "github.com/imo-platform/access-control/internal/infrastructure/db/redis"
	"github.com/imo-platform/access-control/internal/infrastructure/hashing"
	"github.com/imo-platform/access-control/internal/infrastructure/mail"
	"github.com/imo-platform/access-control/internal/infrastructure/scheduler"
	"github.com/imo-platform/access-control/internal/pkg/validation"
	"github.com/imo-platform/access-control/pkg/logger"
)

const (
	serviceName     = "accessd"
	shutdownTimeout = 15 * time.Second
	devJWTSecret    = "development-only-secret"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.Init(logger.Options{Service: serviceName})
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: serviceName})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	users := mongodb.NewUserRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()
	store := redisdb.NewSessionStore(rdb, clock)

	// --- Core ---
	registry := service.NewSessionRegistry(store, users, clock, service.SessionConfig{
		TTL:              cfg.Session.TTL,
		WarningThreshold: cfg.Session.WarningThreshold,
	}, log)

	mailer := newMailer(cfg.Mail, log)
	dispatcher := mail.NewDispatcher(cfg.Mail.Workers, mailer, log)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	hasher := hashing.NewBcrypt(cfg.Account.BcryptCost)
	credentials := service.NewCredentialService(users, registry, hasher, mailer, dispatcher, validation.New(), clock,
		service.CredentialConfig{
			TempPasswordLength: cfg.Account.TempPasswordLength,
			MinPasswordLength:  cfg.Account.MinPasswordLength,
			SiteName:           cfg.Mail.SiteName,
			FrontendURL:        cfg.Mail.FrontendURL,
		}, log)

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	auth := service.NewAuthService(users, registry, hasher, clock, secret, cfg.JWTTTL, log)

	routes := authz.RouteConfig{
		APIPrefix:     cfg.Routes.APIPrefix,
		AuthPrefix:    cfg.Routes.AuthPrefix,
		OwnerPrefix:   cfg.Routes.OwnerPrefix,
		ManagerPrefix: cfg.Routes.ManagerPrefix,
		TenantPrefix:  cfg.Routes.TenantPrefix,
	}
	gate := authz.NewGate(authz.NewRoutes(routes), rbac.NewEngine(rbac.DefaultCatalog()), registry, users, log,
		authz.WithPassivePaths(routes.AuthPrefix+"session"))

	// --- Background jobs ---
	sweeper, err := scheduler.NewSweeper(registry, cfg.Session.SweepSchedule, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sweeper.Stop(sctx)
	}()

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Auth:        auth,
		Credentials: credentials,
		Sessions:    registry,
		Users:       users,
		Gate:        gate,
		Routes:      routes,
		Readiness: map[string]handler.PingFunc{
			"mongodb": users.Ping,
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		LoginRate: api.LoginRate{
			PerMinute: cfg.Account.LoginRatePerMinute,
			Burst:     cfg.Account.LoginRateBurst,
		},
		Log: log,
	})

	srvLog := logger.Component("http_server")
	errCh := make(chan error, 1)
	go func() {
		srvLog.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srvLog.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

func newMailer(cfg config.MailConfig, log zerolog.Logger) ports.Mailer {
	if cfg.SMTPHost == "" {
		log.Warn().Msg("SMTP_HOST not set, notification emails are only logged")
		return mail.NewLogMailer(log)
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.From,
	})
}
