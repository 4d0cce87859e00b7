package memory

import "fmt"

// Role controls access to privileged operations.
type Role string

const (
	// RoleMember is the default role for normal tenant users.
	RoleMember Role = "member"

	// RoleAdmin may query system-wide aggregates across namespaces.
	RoleAdmin Role = "admin"
)

// Scope is the (tenant, user) pair every operation is authorized against.
//
// A Scope is threaded unchanged from the public entrypoints down into the
// store; no component below the isolation layer may fabricate or widen one.
type Scope struct {
	// TenantID is the organization identifier (required).
	TenantID string

	// UserID identifies the acting user within the tenant (required).
	UserID string

	// Role gates privileged operations. Empty means RoleMember.
	Role Role
}

// Validate checks that the scope carries both required identifiers.
func (s Scope) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", ErrScopeViolation)
	}
	if s.UserID == "" {
		return fmt.Errorf("%w: user ID is required", ErrScopeViolation)
	}
	return nil
}

// IsAdmin reports whether the scope may run privileged aggregates.
func (s Scope) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Owns reports whether the entry belongs to this scope's tenant.
func (s Scope) Owns(e *Entry) bool {
	return e != nil && e.Metadata.TenantID == s.TenantID
}
