package rbac

import (
	"sort"

	"github.com/nikhilbhutani/intranet/internal/models"
)

// Permission names in the fixed catalogue.
const (
	PermCreatePost          = "CREATE_POST"
	PermAccessAdmin         = "ACCESS_ADMIN"
	PermManageHubs          = "MANAGE_HUBS"
	PermManageAnnouncements = "MANAGE_ANNOUNCEMENTS"
	PermManageTraining      = "MANAGE_TRAINING"
	PermManageTickets       = "MANAGE_TICKETS"
	PermManageUsers         = "MANAGE_USERS"
	PermManageRoles         = "MANAGE_ROLES"
)

// Canonical role names created by the migration.
const (
	RoleEmployee = "Employee"
	RoleManager  = "Manager"
	RoleAdmin    = "Admin"
	RoleHQAdmin  = "HQ_Admin"
)

type PermissionDef struct {
	Name        string
	Description string
}

type RoleDef struct {
	Name        string
	Description string
	Permissions []string
}

var catalogue = []PermissionDef{
	{PermCreatePost, "Create posts, polls and events in discussions"},
	{PermAccessAdmin, "Open the administration area"},
	{PermManageHubs, "Create, edit and delete hubs"},
	{PermManageAnnouncements, "Publish and retract announcements"},
	{PermManageTraining, "Manage training courses, modules and quizzes"},
	{PermManageTickets, "Work the support ticket desk"},
	{PermManageUsers, "Manage user accounts"},
	{PermManageRoles, "Create, edit, delete and assign roles"},
}

// Catalogue returns the fixed permission catalogue.
func Catalogue() []PermissionDef {
	out := make([]PermissionDef, len(catalogue))
	copy(out, catalogue)
	return out
}

// AllPermissions returns every catalogue permission name.
func AllPermissions() []string {
	names := make([]string, len(catalogue))
	for i, p := range catalogue {
		names[i] = p.Name
	}
	return names
}

func IsKnownPermission(name string) bool {
	for _, p := range catalogue {
		if p.Name == name {
			return true
		}
	}
	return false
}

func allExcept(excluded ...string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		skip[e] = true
	}
	var names []string
	for _, p := range catalogue {
		if !skip[p.Name] {
			names = append(names, p.Name)
		}
	}
	return names
}

var canonicalRoles = []RoleDef{
	{RoleEmployee, "Default role for all staff", []string{PermCreatePost}},
	{RoleManager, "Team managers", []string{PermCreatePost, PermAccessAdmin}},
	{RoleAdmin, "Site administrators", allExcept(PermManageRoles)},
	{RoleHQAdmin, "Headquarters administrators", AllPermissions()},
}

// CanonicalRoles returns the four roles the migration maintains.
func CanonicalRoles() []RoleDef {
	out := make([]RoleDef, len(canonicalRoles))
	for i, r := range canonicalRoles {
		r.Permissions = append([]string(nil), r.Permissions...)
		out[i] = r
	}
	return out
}

// CanonicalRoleName maps a legacy enum value to the dynamic role it migrates to.
func CanonicalRoleName(legacy models.LegacyRole) string {
	switch legacy {
	case models.LegacyRoleHQAdmin:
		return RoleHQAdmin
	case models.LegacyRoleAdmin:
		return RoleAdmin
	case models.LegacyRoleManager:
		return RoleManager
	default:
		return RoleEmployee
	}
}

func canonicalRole(name string) RoleDef {
	for _, r := range canonicalRoles {
		if r.Name == name {
			return r
		}
	}
	return canonicalRoles[0]
}

// Capabilities is a resolved set of permission names.
type Capabilities map[string]struct{}

func NewCapabilities(names ...string) Capabilities {
	c := make(Capabilities, len(names))
	for _, n := range names {
		c[n] = struct{}{}
	}
	return c
}

func (c Capabilities) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Names returns the permission names sorted.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
