package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/pkg/metrics"
)

// TempPasswordAlphabet is the character set of generated passwords.
const TempPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

const (
	defaultTempPasswordLength = 12
	defaultMinPasswordLength  = 8
)

// CredentialConfig holds password policy and the values injected into emails.
type CredentialConfig struct {
	TempPasswordLength int
	MinPasswordLength  int
	SiteName           string
	FrontendURL        string
}

type structValidator interface {
	Struct(i any) error
}

// CredentialService provisions accounts and manages their credentials.
type CredentialService struct {
	users     ports.UserRepository
	sessions  ports.SessionService
	hasher    ports.PasswordHasher
	mailer    ports.Mailer
	queue     ports.MailQueue
	validator structValidator
	clock     clockwork.Clock
	cfg       CredentialConfig
	log       zerolog.Logger
}

func NewCredentialService(
	users ports.UserRepository,
	sessions ports.SessionService,
	hasher ports.PasswordHasher,
	mailer ports.Mailer,
	queue ports.MailQueue,
	validator structValidator,
	clock clockwork.Clock,
	cfg CredentialConfig,
	log zerolog.Logger,
) *CredentialService {
	if cfg.TempPasswordLength <= 0 {
		cfg.TempPasswordLength = defaultTempPasswordLength
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = defaultMinPasswordLength
	}
	return &CredentialService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		mailer:    mailer,
		queue:     queue,
		validator: validator,
		clock:     clock,
		cfg:       cfg,
		log:       log.With().Str("component", "credentials").Logger(),
	}
}

// CreateAccount persists a new account with a generated temporary password
// and mails the credentials to the user. The account is kept if the email
// fails; the returned error then wraps domain.ErrNotificationFailed.
func (s *CredentialService) CreateAccount(ctx context.Context, in ports.CreateAccountInput, createdBy *domain.User) (*domain.User, string, error) {
	// 1. Validate the profile.
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validator.Struct(in); err != nil {
		return nil, "", err
	}

	// 2. Uniqueness pre-check; the store enforces it again on insert.
	if err := s.ensureUnique(ctx, in.Username, in.Email); err != nil {
		return nil, "", err
	}

	// 3. Generate and hash the temporary password.
	temp, err := GenerateTempPassword(s.cfg.TempPasswordLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := s.hasher.Hash(temp)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	// 4. Persist.
	now := s.clock.Now().UTC()
	user := &domain.User{
		Username:           in.Username,
		Email:              in.Email,
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		Phone:              in.Phone,
		PasswordHash:       hash,
		Type:               in.Type,
		IsActive:           true,
		IsVerified:         false,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.Type == domain.UserTypeManager {
		level := in.AccessLevel
		if level == "" {
			level = domain.AccessLevelAgent
		}
		user.Manager = &domain.ManagerProfile{
			AccessLevel:    level,
			CanCreateUsers: in.CanCreateUsers,
			EmployeeID:     in.EmployeeID,
			Department:     in.Department,
		}
	}
	if createdBy != nil {
		user.CreatedBy = createdBy.ID
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, "", err
	}
	metrics.AccountsCreatedTotal.WithLabelValues(string(created.Type)).Inc()

	logEvt := s.log.Info().
		Str("user_id", created.ID).
		Str("username", created.Username).
		Str("user_type", string(created.Type))
	if createdBy != nil {
		logEvt = logEvt.Str("created_by", createdBy.Username)
	}
	logEvt.Msg("account created")

	// 5. Deliver the credentials synchronously; failure is surfaced.
	msg := s.message(ports.EmailCredentials, created, map[string]string{"temp_password": temp})
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.EmailsTotal.WithLabelValues(string(msg.Template), "failed").Inc()
		s.log.Error().
			Err(err).
			Str("user_id", created.ID).
			Str("email", created.Email).
			Msg("account created but credentials email failed")
		return created, temp, fmt.Errorf("send credentials to %s: %w: %v", created.Email, domain.ErrNotificationFailed, err)
	}
	metrics.EmailsTotal.WithLabelValues(string(msg.Template), "sent").Inc()

	return created, temp, nil
}

// ChangePassword replaces the user's password after checking the old one.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return domain.NewValidationError("old_password", "current password is incorrect")
	}
	if err := s.checkLength("new_password", newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.Update(ctx, userID, domain.UserUpdate{
		PasswordHash:       &hash,
		MustChangePassword: ptr(false),
	}); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// ResetPassword is the administrative override: no old-password check,
// the user must change the password at next login.
func (s *CredentialService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if err := s.checkLength("new_password", newPassword); err != nil {
		return err
	}
	return s.reset(ctx, userID, newPassword)
}

// GenerateResetPassword resets the user's password to a fresh temporary one
// and returns it.
func (s *CredentialService) GenerateResetPassword(ctx context.Context, userID string) (string, error) {
	temp, err := GenerateTempPassword(s.cfg.TempPasswordLength)
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	if err := s.reset(ctx, userID, temp); err != nil {
		return "", err
	}
	return temp, nil
}

func (s *CredentialService) reset(ctx context.Context, userID, password string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.Update(ctx, userID, domain.UserUpdate{
		PasswordHash:       &hash,
		MustChangePassword: ptr(true),
	}); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("password reset")
	s.queue.Enqueue(s.message(ports.EmailPasswordReset, user, map[string]string{"temp_password": password}))
	return nil
}

// Verify marks the account as verified and notifies the user.
func (s *CredentialService) Verify(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, userID, domain.UserUpdate{IsVerified: ptr(true)}); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("account verified")
	s.queue.Enqueue(s.message(ports.EmailVerification, user, nil))
	return nil
}

// Activate re-enables a deactivated account.
func (s *CredentialService) Activate(ctx context.Context, userID string) error {
	if err := s.users.Update(ctx, userID, domain.UserUpdate{IsActive: ptr(true)}); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("account activated")
	return nil
}

// Deactivate soft-deletes the account, ends all of its sessions and
// notifies the user. The session store failing does not undo the
// deactivation: the gate logs out inactive users on their next request.
func (s *CredentialService) Deactivate(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.SoftDeactivate(ctx, userID); err != nil {
		return err
	}

	if _, err := s.sessions.ForceLogout(ctx, userID, "account deactivated"); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("sessions not cleared on deactivation")
	}

	s.log.Info().Str("user_id", userID).Msg("account deactivated")
	s.queue.Enqueue(s.message(ports.EmailAccountDeactivated, user, nil))
	return nil
}

// --- helpers ---

func (s *CredentialService) ensureUnique(ctx context.Context, username, email string) error {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return fmt.Errorf("username %q: %w", username, domain.ErrUserExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return fmt.Errorf("email %q: %w", email, domain.ErrUserExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *CredentialService) checkLength(field, password string) error {
	if len([]rune(password)) < s.cfg.MinPasswordLength {
		return domain.NewValidationError(field,
			fmt.Sprintf("password must be at least %d characters", s.cfg.MinPasswordLength))
	}
	return nil
}

func (s *CredentialService) message(tpl ports.EmailTemplate, u *domain.User, extra map[string]string) ports.EmailMessage {
	ctx := map[string]string{
		"username":  u.Username,
		"full_name": u.FullName(),
		"site_name": s.cfg.SiteName,
		"login_url": strings.TrimRight(s.cfg.FrontendURL, "/") + "/login",
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		ctx[k] = v
	}
	return ports.EmailMessage{Template: tpl, Recipient: u.Email, Context: ctx}
}

// GenerateTempPassword draws length characters uniformly from
// TempPasswordAlphabet using crypto/rand.
func GenerateTempPassword(length int) (string, error) {
	if length <= 0 {
		length = defaultTempPasswordLength
	}
	limit := big.NewInt(int64(len(TempPasswordAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = TempPasswordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func ptr[T any](v T) *T { return &v }
