package model

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"user":        RoleUser,
		" Admin ":     RoleAdmin,
		"SUPER_ADMIN": RoleSuperAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestRoleSets(t *testing.T) {
	if AdminTier.Has(RoleUser) {
		t.Fatalf("user must not be admin tier")
	}
	if !AdminTier.Has(RoleAdmin) || !AdminTier.Has(RoleSuperAdmin) {
		t.Fatalf("admin tier incomplete")
	}
	if SuperAdminOnly.Has(RoleAdmin) {
		t.Fatalf("admin must not be super-admin only")
	}
}

func TestPublicOmitsSecrets(t *testing.T) {
	h := "digest"
	a := &Account{ID: "1", Email: "a@b.com", PasswordHash: "$2a$...", VerificationTokenHash: &h, Role: RoleUser}
	p := a.Public()
	if p.ID != "1" || p.Email != "a@b.com" || p.Role != RoleUser {
		t.Fatalf("unexpected projection: %+v", p)
	}
}
