package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/pkg/validation"
)

type credentialFixture struct {
	svc    *CredentialService
	users  *stubUserRepo
	store  *stubSessionStore
	reg    *SessionRegistry
	mailer *stubMailer
	queue  *stubMailQueue
	clock  *clockwork.FakeClock
}

func newCredentialFixture(t *testing.T, seed ...*domain.User) *credentialFixture {
	t.Helper()
	users := newStubUserRepo(seed...)
	store := newStubSessionStore()
	clock := clockwork.NewFakeClockAt(epoch)
	reg := NewSessionRegistry(store, users, clock, SessionConfig{TTL: time.Hour}, zerolog.Nop())
	mailer := &stubMailer{}
	queue := &stubMailQueue{}
	svc := NewCredentialService(users, reg, stubHasher{}, mailer, queue, validation.New(), clock, CredentialConfig{
		TempPasswordLength: 12,
		MinPasswordLength:  8,
		SiteName:           "IMO",
		FrontendURL:        "https://app.example.com/",
	}, zerolog.Nop())
	return &credentialFixture{svc: svc, users: users, store: store, reg: reg, mailer: mailer, queue: queue, clock: clock}
}

func tenantInput() ports.CreateAccountInput {
	return ports.CreateAccountInput{
		Type:      domain.UserTypeTenant,
		Username:  "tina",
		Email:     "Tina@Example.com",
		FirstName: "Tina",
		LastName:  "Tenant",
	}
}

func adminActor() *domain.User {
	return &domain.User{
		ID:       "u-admin",
		Username: "root",
		Email:    "root@example.com",
		Type:     domain.UserTypeManager,
		IsActive: true,
		Manager:  &domain.ManagerProfile{AccessLevel: domain.AccessLevelAdmin, CanCreateUsers: true},
	}
}

// -----------------------------------------------------------------------------
// CreateAccount
// -----------------------------------------------------------------------------

func TestCredentialService_CreateAccount_Tenant(t *testing.T) {
	f := newCredentialFixture(t)
	actor := adminActor()

	user, temp, err := f.svc.CreateAccount(context.Background(), tenantInput(), actor)
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}

	if !user.MustChangePassword || user.IsVerified || !user.IsActive {
		t.Fatalf("unexpected flags: must_change=%v verified=%v active=%v", user.MustChangePassword, user.IsVerified, user.IsActive)
	}
	if len(temp) != 12 {
		t.Fatalf("expected temp password of length 12, got %d", len(temp))
	}
	for _, r := range temp {
		if !strings.ContainsRune(TempPasswordAlphabet, r) {
			t.Fatalf("temp password contains %q outside the alphabet", r)
		}
	}
	if user.PasswordHash != "hashed:"+temp {
		t.Fatalf("expected stored hash of temp password")
	}
	if user.Email != "tina@example.com" {
		t.Errorf("expected normalised email, got %s", user.Email)
	}
	if user.Manager != nil {
		t.Errorf("tenant must not carry a manager profile")
	}
	if user.CreatedBy != actor.ID {
		t.Errorf("expected created_by %s, got %s", actor.ID, user.CreatedBy)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one credentials email, got %d", len(f.mailer.sent))
	}
	msg := f.mailer.sent[0]
	if msg.Template != ports.EmailCredentials || msg.Recipient != "tina@example.com" {
		t.Fatalf("unexpected email: %+v", msg)
	}
	if msg.Context["temp_password"] != temp || msg.Context["login_url"] != "https://app.example.com/login" {
		t.Errorf("unexpected email context: %+v", msg.Context)
	}
}

func TestCredentialService_CreateAccount_ManagerProfile(t *testing.T) {
	f := newCredentialFixture(t)

	in := ports.CreateAccountInput{
		Type:       domain.UserTypeManager,
		Username:   "mia",
		Email:      "mia@example.com",
		EmployeeID: "E-100",
		Department: "leasing",
	}
	user, _, err := f.svc.CreateAccount(context.Background(), in, adminActor())
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if user.Manager == nil {
		t.Fatalf("expected manager profile")
	}
	if user.Manager.AccessLevel != domain.AccessLevelAgent {
		t.Errorf("expected default level agent, got %s", user.Manager.AccessLevel)
	}
	if user.Manager.EmployeeID != "E-100" {
		t.Errorf("unexpected employee id: %s", user.Manager.EmployeeID)
	}
}

func TestCredentialService_CreateAccount_Validation(t *testing.T) {
	f := newCredentialFixture(t)

	in := ports.CreateAccountInput{Type: domain.UserTypeManager, Username: "x", Email: "not-an-email"}
	_, _, err := f.svc.CreateAccount(context.Background(), in, nil)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range ve.Fields {
		fields[fe.Field] = true
	}
	for _, want := range []string{"username", "email", "employee_id"} {
		if !fields[want] {
			t.Errorf("expected a violation on %s, got %+v", want, ve.Fields)
		}
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("no email expected on validation failure")
	}
}

func TestCredentialService_CreateAccount_Duplicate(t *testing.T) {
	existing := &domain.User{ID: "u-1", Username: "tina", Email: "other@example.com", Type: domain.UserTypeTenant}
	f := newCredentialFixture(t, existing)

	_, _, err := f.svc.CreateAccount(context.Background(), tenantInput(), nil)
	if !errors.Is(err, domain.ErrUserExists) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	in := tenantInput()
	in.Username = "tina2"
	in.Email = "OTHER@example.com"
	if _, _, err := f.svc.CreateAccount(context.Background(), in, nil); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists on email clash, got %v", err)
	}
}

func TestCredentialService_CreateAccount_EmailFailureKeepsUser(t *testing.T) {
	f := newCredentialFixture(t)
	f.mailer.err = errors.New("smtp: connection refused")

	user, temp, err := f.svc.CreateAccount(context.Background(), tenantInput(), nil)
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if user == nil || temp == "" {
		t.Fatalf("expected created user and temp password alongside the error")
	}
	if stored := f.users.get(user.ID); stored == nil {
		t.Fatalf("expected user row to be kept")
	}
}

// -----------------------------------------------------------------------------
// ChangePassword / ResetPassword
// -----------------------------------------------------------------------------

func seededUser() *domain.User {
	return &domain.User{
		ID:                 "u-1",
		Username:           "olga",
		Email:              "olga@example.com",
		Type:               domain.UserTypeOwner,
		PasswordHash:       "hashed:OldPass1!",
		IsActive:           true,
		IsVerified:         true,
		MustChangePassword: true,
	}
}

func TestCredentialService_ChangePassword_WrongOld(t *testing.T) {
	f := newCredentialFixture(t, seededUser())

	err := f.svc.ChangePassword(context.Background(), "u-1", "wrong", "NewPass1")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if ve.Fields[0].Field != "old_password" {
		t.Errorf("expected old_password violation, got %+v", ve.Fields)
	}
	if got := f.users.get("u-1").PasswordHash; got != "hashed:OldPass1!" {
		t.Fatalf("password must be unchanged, got %s", got)
	}
}

func TestCredentialService_ChangePassword_TooShort(t *testing.T) {
	f := newCredentialFixture(t, seededUser())

	err := f.svc.ChangePassword(context.Background(), "u-1", "OldPass1!", "short")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "new_password" {
		t.Fatalf("expected new_password violation, got %v", err)
	}
}

func TestCredentialService_ChangePassword_Success(t *testing.T) {
	f := newCredentialFixture(t, seededUser())

	if err := f.svc.ChangePassword(context.Background(), "u-1", "OldPass1!", "NewPass1"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	u := f.users.get("u-1")
	if u.PasswordHash != "hashed:NewPass1" {
		t.Errorf("unexpected hash: %s", u.PasswordHash)
	}
	if u.MustChangePassword {
		t.Errorf("expected must_change_password cleared")
	}
}

func TestCredentialService_ChangePassword_UnknownUser(t *testing.T) {
	f := newCredentialFixture(t)

	if err := f.svc.ChangePassword(context.Background(), "ghost", "a", "NewPass1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCredentialService_ResetPassword(t *testing.T) {
	seed := seededUser()
	seed.MustChangePassword = false
	f := newCredentialFixture(t, seed)

	if err := f.svc.ResetPassword(context.Background(), "u-1", "Reset123"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	u := f.users.get("u-1")
	if u.PasswordHash != "hashed:Reset123" || !u.MustChangePassword {
		t.Fatalf("unexpected state after reset: hash=%s must_change=%v", u.PasswordHash, u.MustChangePassword)
	}
	if got := f.queue.templates(); len(got) != 1 || got[0] != ports.EmailPasswordReset {
		t.Fatalf("expected password reset email, got %v", got)
	}

	if err := f.svc.ResetPassword(context.Background(), "u-1", "short"); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed for short password, got %v", err)
	}
}

func TestCredentialService_GenerateResetPassword(t *testing.T) {
	f := newCredentialFixture(t, seededUser())

	temp, err := f.svc.GenerateResetPassword(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GenerateResetPassword returned error: %v", err)
	}
	if len(temp) != 12 || f.users.get("u-1").PasswordHash != "hashed:"+temp {
		t.Fatalf("expected stored hash of generated password")
	}
}

// -----------------------------------------------------------------------------
// Verify / Activate / Deactivate
// -----------------------------------------------------------------------------

func TestCredentialService_Verify(t *testing.T) {
	seed := seededUser()
	seed.IsVerified = false
	f := newCredentialFixture(t, seed)

	if err := f.svc.Verify(context.Background(), "u-1"); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !f.users.get("u-1").IsVerified {
		t.Fatalf("expected user verified")
	}
	if got := f.queue.templates(); len(got) != 1 || got[0] != ports.EmailVerification {
		t.Fatalf("expected verification email, got %v", got)
	}
}

func TestCredentialService_DeactivateEndsSessions(t *testing.T) {
	seed := seededUser()
	f := newCredentialFixture(t, seed)
	ctx := context.Background()

	if _, err := f.reg.CreateSession(ctx, seed, domain.SessionMeta{}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if err := f.svc.Deactivate(ctx, "u-1"); err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if f.users.get("u-1").IsActive {
		t.Fatalf("expected user inactive")
	}
	if n := f.store.countFor("u-1"); n != 0 {
		t.Fatalf("expected sessions cleared, got %d", n)
	}
	if got := f.queue.templates(); len(got) != 1 || got[0] != ports.EmailAccountDeactivated {
		t.Fatalf("expected deactivation email, got %v", got)
	}

	if err := f.svc.Activate(ctx, "u-1"); err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	if !f.users.get("u-1").IsActive {
		t.Fatalf("expected user active again")
	}
}

func TestGenerateTempPassword_LengthAndAlphabet(t *testing.T) {
	for _, n := range []int{8, 12, 32} {
		p, err := GenerateTempPassword(n)
		if err != nil {
			t.Fatalf("GenerateTempPassword returned error: %v", err)
		}
		if len(p) != n {
			t.Fatalf("expected length %d, got %d", n, len(p))
		}
		if strings.Trim(p, TempPasswordAlphabet) != "" {
			t.Fatalf("password %q has characters outside the alphabet", p)
		}
	}
}
