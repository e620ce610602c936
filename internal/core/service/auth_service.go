package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
)

// sessionIssuer is the part of the registry the login flow needs.
type sessionIssuer interface {
	CreateSession(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*domain.Session, error)
	Logout(ctx context.Context, key string) error
}

// sessionClaims is the bearer token payload. The token only carries the
// session key; the session store stays the source of truth, so the token
// outlives a single session TTL and sliding expiry happens server-side.
type sessionClaims struct {
	SessionID string `json:"sid"`
	UserType  string `json:"user_type"`
	jwt.RegisteredClaims
}

// AuthService implements login and logout.
type AuthService struct {
	users     ports.UserRepository
	sessions  sessionIssuer
	hasher    ports.PasswordHasher
	clock     clockwork.Clock
	jwtSecret []byte
	tokenTTL  time.Duration
	log       zerolog.Logger
}

func NewAuthService(
	users ports.UserRepository,
	sessions sessionIssuer,
	hasher ports.PasswordHasher,
	clock clockwork.Clock,
	jwtSecret string,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		clock:     clock,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log.With().Str("component", "auth").Logger(),
	}
}

// Login authenticates by username (or email) and opens the user's only
// session, ending any session on another device.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	if in.Username == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.findLogin(ctx, in.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Str("username", in.Username).Str("ip", in.IP).Msg("login for unknown user")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		s.log.Warn().Str("username", user.Username).Str("ip", in.IP).Msg("login with wrong password")
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	if !user.IsVerified {
		return nil, domain.ErrAccountNotVerified
	}

	if in.IP != "" {
		if err := s.users.Update(ctx, user.ID, domain.UserUpdate{LastLoginIP: &in.IP}); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login ip")
		}
		user.LastLoginIP = in.IP
	}

	sess, err := s.sessions.CreateSession(ctx, user, domain.SessionMeta{IP: in.IP, UserAgent: in.UserAgent})
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user, sess)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("user_type", string(user.Type)).
		Str("ip", in.IP).
		Msg("login")

	return &ports.LoginResult{Token: token, User: user, Session: sess}, nil
}

// Logout ends the session behind the current token.
func (s *AuthService) Logout(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return domain.ErrAuthenticationRequired
	}
	return s.sessions.Logout(ctx, sessionKey)
}

// ParseToken verifies the signature and expiry of a bearer token and returns
// the session key it carries.
func (s *AuthService) ParseToken(token string) (string, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", domain.ErrInvalidToken
	}
	if claims.SessionID == "" {
		return "", domain.ErrInvalidToken
	}
	return claims.SessionID, nil
}

func (s *AuthService) findLogin(ctx context.Context, login string) (*domain.User, error) {
	if strings.Contains(login, "@") {
		return s.users.FindByEmail(ctx, strings.ToLower(login))
	}
	return s.users.FindByUsername(ctx, login)
}

func (s *AuthService) generateToken(user *domain.User, sess *domain.Session) (string, error) {
	claims := sessionClaims{
		SessionID: sess.Key,
		UserType:  string(user.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.CreatedAt.Add(s.tokenTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.jwtSecret)
}
