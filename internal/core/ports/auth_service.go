package ports

import (
	"context"

	"github.com/imo-platform/access-control/internal/core/domain"
)

// LoginInput carries the credentials and device metadata of a login attempt.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token   string
	User    *domain.User
	Session *domain.Session
}

// AuthService backs the login/logout endpoints. It is the only caller
// allowed to open or close sessions on behalf of a user.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, sessionKey string) error
	// ParseToken returns the session key carried by a bearer token.
	ParseToken(token string) (string, error)
}

// SessionService is the subset of the session registry exposed to handlers.
type SessionService interface {
	Touch(ctx context.Context, key string) error
	WarningState(ctx context.Context, key string) (domain.WarningState, error)
	ForceLogout(ctx context.Context, userID, reason string) (int, error)
	InvalidateAllExceptCurrent(ctx context.Context, userID, currentKey string) (int, error)
	ActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error)
	SweepExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.SessionStats, error)
}

// CreateAccountInput is the profile of an account being provisioned.
type CreateAccountInput struct {
	Type           domain.UserType    `validate:"required,oneof=owner tenant manager"`
	Username       string             `validate:"required,min=3,max=50"`
	Email          string             `validate:"required,email"`
	FirstName      string             `validate:"max=150"`
	LastName       string             `validate:"max=150"`
	Phone          string             `validate:"omitempty,e164"`
	AccessLevel    domain.AccessLevel `validate:"omitempty,oneof=agent manager admin"`
	CanCreateUsers bool
	EmployeeID     string `validate:"required_if=Type manager"`
	Department     string
}

// CredentialService provisions accounts and manages their credentials.
type CredentialService interface {
	CreateAccount(ctx context.Context, in CreateAccountInput, createdBy *domain.User) (*domain.User, string, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
	GenerateResetPassword(ctx context.Context, userID string) (string, error)
	Verify(ctx context.Context, userID string) error
	Activate(ctx context.Context, userID string) error
	Deactivate(ctx context.Context, userID string) error
}

// UserDirectory is the read side used by the admin handlers.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	ListByType(ctx context.Context, userType domain.UserType, activeOnly bool) ([]*domain.User, error)
}
