// Package rbac holds the static role table and the pure permission checks
// derived from it. Nothing in this package mutates state or returns errors:
// a missing role or an anonymous user simply has no permissions.
package rbac

// Role identifies a fixed permission bundle.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleTenant  Role = "tenant"
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"

	// NoRole is returned for users whose type is not recognised.
	NoRole Role = ""
)

// Permission is an opaque capability string.
type Permission string

const (
	PermViewOwnProperties       Permission = "view_own_properties"
	PermAddOwnProperties        Permission = "add_own_properties"
	PermChangeOwnProperties     Permission = "change_own_properties"
	PermDeleteOwnProperties     Permission = "delete_own_properties"
	PermViewOwnContracts        Permission = "view_own_contracts"
	PermViewOwnTenants          Permission = "view_own_tenants"
	PermViewOwnPayments         Permission = "view_own_payments"
	PermMakePayments            Permission = "make_payments"
	PermViewAvailableProperties Permission = "view_available_properties"
	PermManageOwnProfile        Permission = "manage_own_profile"

	PermViewProperties      Permission = "view_properties"
	PermAddProperties       Permission = "add_properties"
	PermChangeProperties    Permission = "change_properties"
	PermDeleteProperties    Permission = "delete_properties"
	PermViewContracts       Permission = "view_contracts"
	PermAddContracts        Permission = "add_contracts"
	PermChangeContracts     Permission = "change_contracts"
	PermDeleteContracts     Permission = "delete_contracts"
	PermViewTenants         Permission = "view_tenants"
	PermAddTenants          Permission = "add_tenants"
	PermChangeTenants       Permission = "change_tenants"
	PermDeleteTenants       Permission = "delete_tenants"
	PermViewOwners          Permission = "view_owners"
	PermAddOwners           Permission = "add_owners"
	PermChangeOwners        Permission = "change_owners"
	PermDeleteOwners        Permission = "delete_owners"
	PermViewUsers           Permission = "view_users"
	PermAddUsers            Permission = "add_users"
	PermChangeUsers         Permission = "change_users"
	PermDeleteUsers         Permission = "delete_users"
	PermAccessDashboardBase Permission = "access_dashboard_basic"
	PermAccessDashboardFull Permission = "access_dashboard_full"
	PermAccessAnalytics     Permission = "access_analytics"
	PermManageAgents        Permission = "manage_agents"
	PermManageManagers      Permission = "manage_managers"
	PermAccessFinancialData Permission = "access_financial_data"
	PermSystemAdmin         Permission = "system_admin"
)

// RoleInfo is the human-facing description of a role.
type RoleInfo struct {
	Name        string
	Description string
}

type roleDef struct {
	info  RoleInfo
	perms []Permission
	index map[Permission]struct{}
}

// Catalog maps every role to its ordered permission list. It is built once
// and never mutated, so it is safe for concurrent reads without locking.
type Catalog struct {
	roles map[Role]roleDef
	order []Role
}

// DefaultCatalog returns the platform's role table.
func DefaultCatalog() *Catalog {
	agent := []Permission{
		PermViewProperties,
		PermAddProperties,
		PermChangeProperties,
		PermViewContracts,
		PermViewTenants,
		PermViewOwners,
		PermManageOwnProfile,
		PermAccessDashboardBase,
	}

	manager := []Permission{
		PermViewProperties,
		PermAddProperties,
		PermChangeProperties,
		PermDeleteProperties,
		PermViewContracts,
		PermAddContracts,
		PermChangeContracts,
		PermViewTenants,
		PermViewOwners,
		PermAddUsers,
		PermChangeUsers,
		PermViewUsers,
		PermManageOwnProfile,
		PermAccessDashboardFull,
		PermAccessAnalytics,
		PermManageAgents,
	}

	admin := []Permission{
		PermViewProperties,
		PermAddProperties,
		PermChangeProperties,
		PermDeleteProperties,
		PermViewContracts,
		PermAddContracts,
		PermChangeContracts,
		PermDeleteContracts,
		PermViewTenants,
		PermAddTenants,
		PermChangeTenants,
		PermDeleteTenants,
		PermViewOwners,
		PermAddOwners,
		PermChangeOwners,
		PermDeleteOwners,
		PermAddUsers,
		PermChangeUsers,
		PermDeleteUsers,
		PermViewUsers,
		PermManageOwnProfile,
		PermAccessDashboardFull,
		PermAccessAnalytics,
		PermManageAgents,
		PermManageManagers,
		PermAccessFinancialData,
		PermSystemAdmin,
	}

	return newCatalog(
		catalogEntry{RoleOwner, RoleInfo{"Owner", "Owner of rental properties"}, []Permission{
			PermViewOwnProperties,
			PermAddOwnProperties,
			PermChangeOwnProperties,
			PermDeleteOwnProperties,
			PermViewOwnContracts,
			PermViewOwnTenants,
			PermManageOwnProfile,
		}},
		catalogEntry{RoleTenant, RoleInfo{"Tenant", "Tenant of a rental property"}, []Permission{
			PermViewOwnContracts,
			PermViewOwnPayments,
			PermMakePayments,
			PermManageOwnProfile,
			PermViewAvailableProperties,
		}},
		catalogEntry{RoleAgent, RoleInfo{"Agent", "Property management agent"}, agent},
		catalogEntry{RoleManager, RoleInfo{"Manager", "Property management manager"}, manager},
		catalogEntry{RoleAdmin, RoleInfo{"Administrator", "System administrator"}, admin},
	)
}

type catalogEntry struct {
	role  Role
	info  RoleInfo
	perms []Permission
}

func newCatalog(entries ...catalogEntry) *Catalog {
	c := &Catalog{
		roles: make(map[Role]roleDef, len(entries)),
		order: make([]Role, 0, len(entries)),
	}
	for _, e := range entries {
		perms := make([]Permission, len(e.perms))
		copy(perms, e.perms)
		index := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			index[p] = struct{}{}
		}
		c.roles[e.role] = roleDef{info: e.info, perms: perms, index: index}
		c.order = append(c.order, e.role)
	}
	return c
}

// PermissionsFor returns a copy of the role's permission list. Unknown roles
// yield an empty result, never an error.
func (c *Catalog) PermissionsFor(role Role) []Permission {
	def, ok := c.roles[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(def.perms))
	copy(out, def.perms)
	return out
}

// Has reports whether role grants perm.
func (c *Catalog) Has(role Role, perm Permission) bool {
	def, ok := c.roles[role]
	if !ok {
		return false
	}
	_, ok = def.index[perm]
	return ok
}

// Describe returns the display name and description of role.
func (c *Catalog) Describe(role Role) (RoleInfo, bool) {
	def, ok := c.roles[role]
	return def.info, ok
}

// Roles lists every defined role in declaration order.
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.order))
	copy(out, c.order)
	return out
}
