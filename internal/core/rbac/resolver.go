package rbac

import "github.com/imo-platform/access-control/internal/core/domain"

// Resolve derives the role of a (type, level) pair. Managers with a missing or
// unrecognised level resolve to agent; unknown types resolve to NoRole.
func Resolve(userType domain.UserType, level domain.AccessLevel) Role {
	switch userType {
	case domain.UserTypeOwner:
		return RoleOwner
	case domain.UserTypeTenant:
		return RoleTenant
	case domain.UserTypeManager:
		switch level {
		case domain.AccessLevelManager:
			return RoleManager
		case domain.AccessLevelAdmin:
			return RoleAdmin
		default:
			return RoleAgent
		}
	default:
		return NoRole
	}
}

// RoleOf resolves the role of u. A nil user has no role.
func RoleOf(u *domain.User) Role {
	if u == nil {
		return NoRole
	}
	return Resolve(u.Type, u.AccessLevel())
}
