package user

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChangedPasswordAfter_ComparesWholeSeconds(t *testing.T) {
	iat := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		changed *time.Time
		want    bool
	}{
		{name: "never changed", changed: nil, want: false},
		{name: "changed before token", changed: ptr(iat.Add(-time.Second)), want: false},
		{name: "changed in the same second", changed: ptr(iat.Add(900 * time.Millisecond)), want: false},
		{name: "changed after token", changed: ptr(iat.Add(time.Second)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{PasswordChangedAt: tt.changed}
			if got := u.ChangedPasswordAfter(iat); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserJSON_HidesSecrets(t *testing.T) {
	hash := "deadbeef"
	exp := time.Now()
	u := User{
		ID:                     "u1",
		Email:                  "a@example.com",
		PasswordHash:           "$2a$10$hash",
		PasswordResetTokenHash: &hash,
		PasswordResetExpiresAt: &exp,
		Role:                   RoleUser,
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"PasswordHash", "passwordHash", "PasswordResetTokenHash", "PasswordResetExpiresAt"} {
		if _, ok := out[key]; ok {
			t.Fatalf("expected %s to be hidden, body=%s", key, b)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Lead-Guide ")
	if err != nil || r != RoleLeadGuide {
		t.Fatalf("got %q, %v", r, err)
	}

	if _, err := ParseRole("superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func ptr[T any](v T) *T { return &v }
