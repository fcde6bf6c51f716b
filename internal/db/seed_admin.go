package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/tourhub/internal/config"
	"github.com/geocoder89/tourhub/internal/domain/user"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type Hasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin account once. It is a no-op
// when no admin credentials are configured or the email already exists.
func EnsureAdminUser(ctx context.Context, users AdminStore, hasher Hasher, cfg config.AdminConfig) (created bool, err error) {
	if cfg.Email == "" || cfg.Password == "" {
		return false, nil
	}

	email := user.NormalizeEmail(cfg.Email)

	_, err = users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return false, err
	}

	hash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	_, err = users.Create(ctx, user.User{
		Email:        email,
		PasswordHash: hash,
		Name:         cfg.Name,
		Role:         user.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		// another instance seeded it first
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
