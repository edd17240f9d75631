// Package domain contains core domain types for the training portal.
package domain

// UserRole is the portal role carried in the access token.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleManager    UserRole = "gestor"
	RoleInstructor UserRole = "instrutor"
	RoleTrainee    UserRole = "treinando"
)

// User is the authenticated caller as seen by this service.
type User struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Role     UserRole `json:"role"`
	TenantID string   `json:"tenant_id"`
}

// CanManageClasses reports whether the user may create or edit classes.
func (u *User) CanManageClasses() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}

// Tenant is a customer partition. Its ID scopes retrieval; its name is
// shown to the model.
type Tenant struct {
	ID   string
	Name string
}
