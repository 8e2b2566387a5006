package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Capability names an administrative action guarded by role.
type Capability string

const (
	CapManageCatalog  Capability = "catalog:manage"
	CapManageOrders   Capability = "orders:manage"
	CapViewAllOrders  Capability = "orders:view_all"
	CapModerateReview Capability = "reviews:moderate"
	CapManageSchedule Capability = "schedule:manage"
	CapManageGallery  Capability = "gallery:manage"
	CapManagePricing  Capability = "pricing:manage"
	CapManageUsers    Capability = "users:manage"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleCustomer: {},
	RoleAdmin: {
		CapManageCatalog:  true,
		CapManageOrders:   true,
		CapViewAllOrders:  true,
		CapModerateReview: true,
		CapManageSchedule: true,
		CapManageGallery:  true,
		CapManagePricing:  true,
		CapManageUsers:    true,
	},
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	GoogleID  string    `json:"google_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PasswordHash     string     `json:"-"`
	ResetTokenHash   string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
}

// HasPassword reports whether the account can sign in with a password.
// Accounts created through Google sign-in have none.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
