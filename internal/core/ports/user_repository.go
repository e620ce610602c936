package ports

import (
	"context"
	"time"

	"github.com/imo-platform/access-control/internal/core/domain"
)

// UserRepository is the persistent user store. It guarantees username and
// email uniqueness; Create returns domain.ErrUserExists on a duplicate.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, id string, fields domain.UserUpdate) error
	// TouchActivity sets last_activity without bumping updated_at.
	TouchActivity(ctx context.Context, id string, at time.Time) error
	ListByType(ctx context.Context, userType domain.UserType, activeOnly bool) ([]*domain.User, error)
	// SoftDeactivate is the terminal "delete": the record stays, is_active=false.
	SoftDeactivate(ctx context.Context, id string) error
}
