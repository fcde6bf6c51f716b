package db

import (
	"context"
	"testing"

	"github.com/geocoder89/tourhub/internal/config"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/repo/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func TestEnsureAdminUser(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsersRepo()
	cfg := config.AdminConfig{Email: " Admin@Example.com", Password: "admin-pass", Name: "Admin"}

	created, err := EnsureAdminUser(ctx, users, plainHasher{}, cfg)
	if err != nil || !created {
		t.Fatalf("expected admin to be created, got created=%v err=%v", created, err)
	}

	u, err := users.GetByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("admin not stored: %v", err)
	}
	if u.Role != user.RoleAdmin || !u.IsActive || u.PasswordHash != "hashed:admin-pass" {
		t.Fatalf("unexpected admin: %+v", u)
	}

	created, err = EnsureAdminUser(ctx, users, plainHasher{}, cfg)
	if err != nil || created {
		t.Fatalf("expected second call to be a no-op, got created=%v err=%v", created, err)
	}
}

func TestEnsureAdminUser_NotConfigured(t *testing.T) {
	created, err := EnsureAdminUser(context.Background(), memory.NewUsersRepo(), plainHasher{}, config.AdminConfig{})
	if err != nil || created {
		t.Fatalf("expected no-op, got created=%v err=%v", created, err)
	}
}
