package rbac

import "testing"

func TestMapToRole(t *testing.T) {
	adminGroups := []string{"ouderschaps-admins", "beheer"}

	tests := []struct {
		name       string
		groups     []string
		realmRoles []string
		want       string
	}{
		{name: "без групп и ролей", want: RoleUser},
		{name: "группа admin", groups: []string{"beheer"}, want: RoleAdmin},
		{name: "посторонние группы", groups: []string{"ouders", "mediators"}, want: RoleUser},
		{name: "realm-роль admin", realmRoles: []string{"offline_access", "admin"}, want: RoleAdmin},
		{name: "realm-роли без admin", realmRoles: []string{"offline_access", "uma_authorization"}, want: RoleUser},
		{name: "регистр группы важен", groups: []string{"Beheer"}, want: RoleUser},
		{
			name:       "группа и роль вместе",
			groups:     []string{"ouders", "ouderschaps-admins"},
			realmRoles: []string{"user"},
			want:       RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapToRole(tt.groups, tt.realmRoles, adminGroups)
			if got != tt.want {
				t.Errorf("MapToRole(%v, %v) = %q, хотели %q", tt.groups, tt.realmRoles, got, tt.want)
			}
		})
	}
}

func TestMapToRole_NoAdminGroups(t *testing.T) {
	if got := MapToRole([]string{"beheer"}, nil, nil); got != RoleUser {
		t.Errorf("без adminGroups роль = %q, хотели %q", got, RoleUser)
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{RoleUser, RoleAdmin} {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	for _, r := range []string{"", "readonly", "Admin"} {
		if IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = true", r)
		}
	}
}
