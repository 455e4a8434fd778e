package auth

import (
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		resource string
		action   string
		want     bool
	}{
		{"admin can read overview", RoleAdmin, ResourceAdmin, ActionRead, true},
		{"admin can create conversations", RoleAdmin, ResourceConversations, ActionCreate, true},
		{"admin can update settings", RoleAdmin, ResourceSettings, ActionUpdate, true},

		{"user can create conversations", RoleUser, ResourceConversations, ActionCreate, true},
		{"user can delete conversations", RoleUser, ResourceConversations, ActionDelete, true},
		{"user can add comparisons", RoleUser, ResourceComparisons, ActionCreate, true},
		{"user can estimate", RoleUser, ResourceEstimates, ActionCreate, true},
		{"user can update settings", RoleUser, ResourceSettings, ActionUpdate, true},
		{"user cannot update comparisons", RoleUser, ResourceComparisons, ActionUpdate, false},
		{"user cannot read overview", RoleUser, ResourceAdmin, ActionRead, false},

		{"none cannot read conversations", RoleNone, ResourceConversations, ActionRead, false},
		{"unknown role denied", Role("superuser"), ResourceSettings, ActionRead, false},
		{"unknown resource denied", RoleAdmin, "secrets", ActionRead, false},
		{"unknown action denied", RoleAdmin, ResourceSettings, "execute", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasPermission(tt.role, tt.resource, tt.action)
			if got != tt.want {
				t.Errorf("HasPermission(%q, %q, %q) = %v, want %v",
					tt.role, tt.resource, tt.action, got, tt.want)
			}
		})
	}
}

func TestGetPermissions(t *testing.T) {
	admin := GetPermissions(RoleAdmin)
	user := GetPermissions(RoleUser)
	if len(admin) != len(user)+1 {
		t.Errorf("admin has %d permissions, user %d; want admin = user + 1", len(admin), len(user))
	}
	if GetPermissions(Role("ghost")) != nil {
		t.Error("unknown role should have no permissions")
	}

	admin[0] = Permission{"mutated", "mutated"}
	if GetPermissions(RoleAdmin)[0].Resource == "mutated" {
		t.Error("GetPermissions must return a copy")
	}
}

func TestPermission_String(t *testing.T) {
	p := Permission{Resource: ResourceSettings, Action: ActionRead}
	if got := p.String(); got != "settings:read" {
		t.Errorf("String() = %q, want %q", got, "settings:read")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"admin", RoleAdmin},
		{" ADMIN ", RoleAdmin},
		{"user", RoleUser},
		{"operator", RoleNone},
		{"", RoleNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRole(tt.in); got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if len(ValidRoles()) != 2 {
		t.Errorf("ValidRoles() = %v", ValidRoles())
	}
}
