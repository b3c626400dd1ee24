package domain

import "time"

// UserRole discriminates what a user may do with tickets.
type UserRole string

const (
	UserRoleClient    UserRole = "CLIENT"
	UserRoleDeveloper UserRole = "DEV"
	UserRoleAdmin     UserRole = "ADMIN"
	UserRoleValidator UserRole = "VALIDATOR"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleClient, UserRoleDeveloper, UserRoleAdmin, UserRoleValidator:
		return true
	}
	return false
}

// User is a directory entry. The ticket core only reads users.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Live reports whether the user can take part in ticket workflows.
func (u *User) Live() bool {
	return u != nil && u.DeletedAt == nil && u.Active
}
