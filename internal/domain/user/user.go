package user

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/tourhub/internal/query"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already in use")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleLead      Role = "lead"
	RoleLeadGuide Role = "lead-guide"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleLead, RoleLeadGuide:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.New("unknown role " + s)
	}
	return r, nil
}

type User struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	Photo                  string     `json:"photo,omitempty"`
	PasswordHash           string     `json:"-"` // never expose hash in JSON
	Role                   Role       `json:"role"`
	IsActive               bool       `json:"isActive"`
	PasswordChangedAt      *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetTokenHash *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password changed after a token issued at iat.
// Both sides are compared in whole epoch seconds.
func (u User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > iat.Unix()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile holds the fields a user may change about themselves.
type Profile struct {
	Name  *string
	Email *string
	Photo *string
}

// QuerySchema types the filterable user fields for query.Builder.
var QuerySchema = query.Schema{
	"isActive":  query.Bool,
	"createdAt": query.Date,
	"updatedAt": query.Date,
}
