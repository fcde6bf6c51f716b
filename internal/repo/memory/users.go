package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/query"
)

// UsersRepo is an in-process credential store for dev and tests.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User
	byEmail map[string]string // email -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}

	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != hash {
			continue
		}
		if u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(now) {
			continue
		}
		return u, nil
	}
	return user.User{}, user.ErrUserNotFound
}

func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.update(id, func(u *user.User) error {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &changedAt
		u.PasswordResetTokenHash = nil
		u.PasswordResetExpiresAt = nil
		u.UpdatedAt = changedAt
		return nil
	})
}

func (r *UsersRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(u *user.User) error {
		u.PasswordResetTokenHash = &tokenHash
		u.PasswordResetExpiresAt = &expiresAt
		return nil
	})
}

func (r *UsersRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.update(id, func(u *user.User) error {
		u.PasswordResetTokenHash = nil
		u.PasswordResetExpiresAt = nil
		return nil
	})
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, p user.Profile, now time.Time) (user.User, error) {
	var out user.User

	err := r.update(id, func(u *user.User) error {
		if p.Email != nil && *p.Email != u.Email {
			if _, taken := r.byEmail[*p.Email]; taken {
				return user.ErrEmailTaken
			}
			delete(r.byEmail, u.Email)
			r.byEmail[*p.Email] = u.ID
			u.Email = *p.Email
		}
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.Photo != nil {
			u.Photo = *p.Photo
		}
		u.UpdatedAt = now
		out = *u
		return nil
	})

	return out, err
}

func (r *UsersRepo) Deactivate(ctx context.Context, id string, now time.Time) error {
	return r.update(id, func(u *user.User) error {
		u.IsActive = false
		u.UpdatedAt = now
		return nil
	})
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrUserNotFound
	}
	delete(r.items, id)
	delete(r.byEmail, u.Email)
	return nil
}

// Count and Find support plain equality filters on id, name, email, role and isActive.
func (r *UsersRepo) Count(ctx context.Context, filter map[string]any) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.items {
		if matches(u, filter) {
			n++
		}
	}
	return n, nil
}

func (r *UsersRepo) Find(ctx context.Context, spec query.Spec) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		if matches(u, spec.Filter) {
			out = append(out, u)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range spec.Sort {
			a, b := sortValue(out[i], k.Field), sortValue(out[j], k.Field)
			if a == b {
				continue
			}
			if k.Desc {
				return a > b
			}
			return a < b
		}
		return out[i].ID < out[j].ID
	})

	if spec.Skip >= int64(len(out)) {
		return []user.User{}, nil
	}
	if spec.Skip > 0 {
		out = out[spec.Skip:]
	}
	if spec.Limit > 0 && spec.Limit < int64(len(out)) {
		out = out[:spec.Limit]
	}
	return out, nil
}

func (r *UsersRepo) update(id string, fn func(u *user.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	r.items[id] = u
	return nil
}

func fieldValue(u user.User, field string) (string, bool) {
	switch field {
	case "id", "_id":
		return u.ID, true
	case "name":
		return u.Name, true
	case "email":
		return u.Email, true
	case "role":
		return string(u.Role), true
	case "isActive":
		return fmt.Sprint(u.IsActive), true
	default:
		return "", false
	}
}

func matches(u user.User, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := fieldValue(u, field)
		if !ok || got != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// fixed width so string order matches time order
const sortableTime = "2006-01-02T15:04:05.000000000"

func sortValue(u user.User, field string) string {
	switch field {
	case "createdAt":
		return u.CreatedAt.UTC().Format(sortableTime)
	case "updatedAt":
		return u.UpdatedAt.UTC().Format(sortableTime)
	}
	v, _ := fieldValue(u, field)
	return strings.ToLower(v)
}
