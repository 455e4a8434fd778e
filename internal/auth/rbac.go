// Package auth provides the mock login flow, HTTP sessions and role checks for
// Fluxmare.
package auth

import (
	"strings"
)

// Role represents a user role in the RBAC system.
type Role string

const (
	// RoleAdmin can use every route including the admin overview.
	RoleAdmin Role = "admin"

	// RoleUser owns conversations and may read and write shared settings.
	RoleUser Role = "user"

	// RoleNone represents no role (unauthenticated or unknown).
	RoleNone Role = ""
)

// Resource constants for permission checks.
const (
	ResourceConversations = "conversations"
	ResourceComparisons   = "comparisons"
	ResourceSettings      = "settings"
	ResourceEstimates     = "estimates"
	ResourceAdmin         = "admin"
)

// Action constants for permission checks.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionList   = "list"
)

// Permission represents an action on a resource.
type Permission struct {
	Resource string
	Action   string
}

// String returns a string representation of the permission (e.g., "settings:read").
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

var userPermissions = []Permission{
	{ResourceConversations, ActionCreate},
	{ResourceConversations, ActionRead},
	{ResourceConversations, ActionUpdate},
	{ResourceConversations, ActionDelete},
	{ResourceConversations, ActionList},
	{ResourceComparisons, ActionCreate},
	{ResourceComparisons, ActionRead},
	{ResourceComparisons, ActionDelete},
	{ResourceComparisons, ActionList},
	{ResourceSettings, ActionRead},
	{ResourceSettings, ActionUpdate},
	{ResourceEstimates, ActionCreate},
}

// RolePermissions maps roles to their allowed permissions.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: append(append([]Permission{}, userPermissions...),
		Permission{ResourceAdmin, ActionRead},
	),
	RoleUser: userPermissions,
}

// rolePermissionCache is a pre-computed lookup table: role -> resource -> action.
var rolePermissionCache map[Role]map[string]map[string]bool

func init() {
	rolePermissionCache = make(map[Role]map[string]map[string]bool)
	for role, perms := range RolePermissions {
		rolePermissionCache[role] = make(map[string]map[string]bool)
		for _, perm := range perms {
			if rolePermissionCache[role][perm.Resource] == nil {
				rolePermissionCache[role][perm.Resource] = make(map[string]bool)
			}
			rolePermissionCache[role][perm.Resource][perm.Action] = true
		}
	}
}

// HasPermission checks if a role has permission for a specific resource and action.
// Returns false for unknown roles or permissions (default deny).
func HasPermission(role Role, resource, action string) bool {
	if role == RoleNone {
		return false
	}
	resourcePerms, ok := rolePermissionCache[role]
	if !ok {
		return false
	}
	return resourcePerms[resource][action]
}

// GetPermissions returns a copy of the permissions for role, nil if unknown.
func GetPermissions(role Role) []Permission {
	perms, ok := RolePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// ValidRoles returns all valid role values.
func ValidRoles() []Role {
	return []Role{RoleAdmin, RoleUser}
}

// IsValidRole returns true if the given role is a valid defined role.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// ParseRole parses a string into a Role.
// Returns RoleNone if the string doesn't match a valid role.
func ParseRole(s string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if IsValidRole(role) {
		return role
	}
	return RoleNone
}
