package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,   default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`

	Mongo   MongoConfig
	Redis   RedisConfig
	Session SessionConfig
	Account AccountConfig
	Routes  RoutesConfig
	Mail    MailConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=property_access"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type SessionConfig struct {
	TTL              time.Duration `env:"SESSION_TTL,               default=1h"`
	WarningThreshold time.Duration `env:"SESSION_WARNING_THRESHOLD, default=5m"`
	SweepSchedule    string        `env:"SESSION_SWEEP_SCHEDULE,    default=@every 15m"`
}

type AccountConfig struct {
	TempPasswordLength int `env:"TEMP_PASSWORD_LENGTH, default=12"`
	MinPasswordLength  int `env:"MIN_PASSWORD_LENGTH,  default=8"`
	BcryptCost         int `env:"BCRYPT_COST,          default=10"`

	// Attempts per minute per client IP on the login endpoint; 0 disables.
	LoginRatePerMinute float64 `env:"LOGIN_RATE_PER_MINUTE, default=10"`
	LoginRateBurst     int     `env:"LOGIN_RATE_BURST,      default=5"`
}

type RoutesConfig struct {
	APIPrefix     string `env:"ROUTE_API_PREFIX,     default=/api/"`
	AuthPrefix    string `env:"ROUTE_AUTH_PREFIX,    default=/api/v1/auth/"`
	OwnerPrefix   string `env:"ROUTE_OWNER_PREFIX,   default=/api/owner/"`
	ManagerPrefix string `env:"ROUTE_MANAGER_PREFIX, default=/api/manager/"`
	TenantPrefix  string `env:"ROUTE_TENANT_PREFIX,  default=/api/tenant/"`
}

// MailConfig configures outgoing notifications. An empty SMTPHost selects
// the log mailer.
type MailConfig struct {
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,     default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"MAIL_FROM,     default=no-reply@localhost"`
	SiteName     string `env:"SITE_NAME,     default=Property Portal"`
	FrontendURL  string `env:"FRONTEND_URL,  default=http://localhost:3000"`
	Workers      int    `env:"MAIL_WORKERS,  default=4"`
}

// IsDevelopment reports whether the service runs with ENV=development.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Session.WarningThreshold < 0 || c.Session.WarningThreshold >= c.Session.TTL {
		errs = append(errs, errors.New("SESSION_WARNING_THRESHOLD must be between 0 and SESSION_TTL"))
	}
	if c.Account.MinPasswordLength < 1 {
		errs = append(errs, errors.New("MIN_PASSWORD_LENGTH must be at least 1"))
	}
	if c.Account.LoginRatePerMinute < 0 || (c.Account.LoginRatePerMinute > 0 && c.Account.LoginRateBurst < 1) {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be >= 0 and LOGIN_RATE_BURST >= 1 when limiting"))
	}
	if c.Account.TempPasswordLength < c.Account.MinPasswordLength {
		errs = append(errs, errors.New("TEMP_PASSWORD_LENGTH must not be shorter than MIN_PASSWORD_LENGTH"))
	}
	errs = append(errs, c.Routes.validate()...)
	return errors.Join(errs...)
}

// validate checks that every area prefix sits under the API prefix and
// outside the auth prefix; otherwise the area would be served unprotected.
func (r RoutesConfig) validate() []error {
	var errs []error
	if !strings.HasPrefix(r.APIPrefix, "/") || !strings.HasSuffix(r.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("ROUTE_API_PREFIX %q must start and end with /", r.APIPrefix))
		return errs
	}
	if !strings.HasPrefix(r.AuthPrefix, r.APIPrefix) || !strings.HasSuffix(r.AuthPrefix, "/") {
		errs = append(errs, fmt.Errorf("ROUTE_AUTH_PREFIX %q must be a /-terminated path under ROUTE_API_PREFIX %q", r.AuthPrefix, r.APIPrefix))
	}
	areas := []struct{ env, prefix string }{
		{"ROUTE_OWNER_PREFIX", r.OwnerPrefix},
		{"ROUTE_MANAGER_PREFIX", r.ManagerPrefix},
		{"ROUTE_TENANT_PREFIX", r.TenantPrefix},
	}
	seen := make(map[string]string, len(areas))
	for _, a := range areas {
		switch {
		case len(a.prefix) <= len(r.APIPrefix) || !strings.HasPrefix(a.prefix, r.APIPrefix) || !strings.HasSuffix(a.prefix, "/"):
			errs = append(errs, fmt.Errorf("%s %q must be a /-terminated path under ROUTE_API_PREFIX %q", a.env, a.prefix, r.APIPrefix))
		case strings.HasPrefix(a.prefix, r.AuthPrefix):
			errs = append(errs, fmt.Errorf("%s %q must not be under ROUTE_AUTH_PREFIX %q", a.env, a.prefix, r.AuthPrefix))
		case seen[a.prefix] != "":
			errs = append(errs, fmt.Errorf("%s %q duplicates %s", a.env, a.prefix, seen[a.prefix]))
		}
		seen[a.prefix] = a.env
	}
	return errs
}
