package auth

import (
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
)

// Role is a user's role in the field office
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleResponsible Role = "penanggung_jawab"
	RoleWorker      Role = "pekerja"
)

// ValidRoles is the closed set of roles
var ValidRoles = []Role{RoleAdmin, RoleResponsible, RoleWorker}

// IsValidRole checks if role is valid
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// Capability is a named permission checked against a role
type Capability string

const (
	CapDashboard      Capability = "dashboard"
	CapReportsView    Capability = "reports.view"
	CapReportsCreate  Capability = "reports.create"
	CapReportsEdit    Capability = "reports.edit"
	CapUserManagement Capability = "user-management"
	CapSettings       Capability = "settings"
)

// restricted lists the roles allowed for capabilities that are not open to
// every role. Anything missing here is granted to all valid roles.
var restricted = map[Capability][]Role{
	CapUserManagement: {RoleAdmin},
	CapSettings:       {RoleAdmin, RoleResponsible},
}

// pages maps navigable pages to the capability that guards them.
var pages = map[string]Capability{
	"dashboard":     CapDashboard,
	"reports":       CapReportsView,
	"create-report": CapReportsCreate,
	"edit-report":   CapReportsEdit,
	"users":         CapUserManagement,
	"settings":      CapSettings,
}

// DefaultPage is where navigation falls back to.
const DefaultPage = "dashboard"

// CanAccess reports whether role may use capability. Unknown roles get nothing.
func CanAccess(role Role, capability Capability) bool {
	if !IsValidRole(string(role)) {
		return false
	}
	allowed, ok := restricted[capability]
	if !ok {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize is CanAccess for operations that must be rejected, not redirected.
func Authorize(role Role, capability Capability) error {
	if CanAccess(role, capability) {
		return nil
	}
	return &domain.AuthorizationError{Role: string(role), Capability: string(capability)}
}

// ResolvePage returns page if role may open it, DefaultPage otherwise.
// Unknown pages also resolve to DefaultPage.
func ResolvePage(role Role, page string) string {
	capability, ok := pages[page]
	if !ok || !CanAccess(role, capability) {
		return DefaultPage
	}
	return page
}
