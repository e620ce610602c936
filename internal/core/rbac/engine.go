package rbac

import "github.com/imo-platform/access-control/internal/core/domain"

// Engine answers permission questions about a user against a Catalog.
// A nil user stands for an anonymous request and is denied everything.
type Engine struct {
	catalog *Catalog
}

// NewEngine returns an Engine reading from catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the role table the engine reads from.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// HasPermission reports whether the user's role grants perm.
func (e *Engine) HasPermission(u *domain.User, perm Permission) bool {
	role := RoleOf(u)
	if role == NoRole {
		return false
	}
	return e.catalog.Has(role, perm)
}

// Permissions lists everything the user's role grants.
func (e *Engine) Permissions(u *domain.User) []Permission {
	return e.catalog.PermissionsFor(RoleOf(u))
}

// HasUserType is the coarse check: it only looks at the user type.
func (e *Engine) HasUserType(u *domain.User, types ...domain.UserType) bool {
	if u == nil {
		return false
	}
	for _, t := range types {
		if u.Type == t {
			return true
		}
	}
	return false
}

// MeetsManagerLevel reports whether u is a manager whose level is at least min.
func (e *Engine) MeetsManagerLevel(u *domain.User, min domain.AccessLevel) bool {
	if u == nil || u.Type != domain.UserTypeManager {
		return false
	}
	return u.AccessLevel().Ordinal() >= min.Ordinal()
}

// CanManage reports whether actor may administer target. Admins manage
// everyone, managers manage owners and tenants, agents manage no one.
func (e *Engine) CanManage(actor, target *domain.User) bool {
	if target == nil {
		return false
	}
	return e.managesType(actor, target.Type)
}

// CanCreateUserType applies the CanManage hierarchy to a type that does not
// exist yet, and additionally requires the actor's account-creation flag.
func (e *Engine) CanCreateUserType(actor *domain.User, target domain.UserType) bool {
	if actor == nil || actor.Manager == nil || !actor.Manager.CanCreateUsers {
		return false
	}
	return e.managesType(actor, target)
}

func (e *Engine) managesType(actor *domain.User, target domain.UserType) bool {
	if actor == nil || actor.Type != domain.UserTypeManager {
		return false
	}
	switch actor.AccessLevel() {
	case domain.AccessLevelAdmin:
		return true
	case domain.AccessLevelManager:
		return target == domain.UserTypeOwner || target == domain.UserTypeTenant
	default:
		return false
	}
}
