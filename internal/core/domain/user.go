package domain

import "time"

// UserType is the coarse class of an account.
type UserType string

const (
	UserTypeOwner   UserType = "owner"
	UserTypeTenant  UserType = "tenant"
	UserTypeManager UserType = "manager"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeOwner, UserTypeTenant, UserTypeManager:
		return true
	}
	return false
}

// AccessLevel ranks manager accounts: agent < manager < admin.
type AccessLevel string

const (
	AccessLevelAgent   AccessLevel = "agent"
	AccessLevelManager AccessLevel = "manager"
	AccessLevelAdmin   AccessLevel = "admin"
)

// Ordinal maps a level onto agent=1, manager=2, admin=3. Unknown levels are 0.
func (l AccessLevel) Ordinal() int {
	switch l {
	case AccessLevelAgent:
		return 1
	case AccessLevelManager:
		return 2
	case AccessLevelAdmin:
		return 3
	default:
		return 0
	}
}

// ManagerProfile exists only on manager accounts.
type ManagerProfile struct {
	AccessLevel    AccessLevel `json:"access_level"`
	CanCreateUsers bool        `json:"can_create_users"`
	EmployeeID     string      `json:"employee_id,omitempty"`
	Department     string      `json:"department,omitempty"`
}

// User models an account of the property-management platform.
type User struct {
	ID                 string          `json:"id"`
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	FirstName          string          `json:"first_name,omitempty"`
	LastName           string          `json:"last_name,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	PasswordHash       string          `json:"-"`
	Type               UserType        `json:"user_type"`
	Manager            *ManagerProfile `json:"manager,omitempty"`
	IsActive           bool            `json:"is_active"`
	IsVerified         bool            `json:"is_verified"`
	MustChangePassword bool            `json:"must_change_password"`
	LastActivity       time.Time       `json:"last_activity"`
	LastLoginIP        string          `json:"-"`
	CreatedBy          string          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// AccessLevel returns the manager level, defaulting to agent when the
// profile is missing or carries an unrecognised value. Non-managers have none.
func (u *User) AccessLevel() AccessLevel {
	if u == nil || u.Type != UserTypeManager {
		return ""
	}
	if u.Manager == nil || u.Manager.AccessLevel.Ordinal() == 0 {
		return AccessLevelAgent
	}
	return u.Manager.AccessLevel
}

// FullName returns "first last", falling back to the username.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// UserUpdate lists the fields a partial update may set. Nil fields are left untouched.
type UserUpdate struct {
	PasswordHash       *string
	IsActive           *bool
	IsVerified         *bool
	MustChangePassword *bool
	LastLoginIP        *string
}
