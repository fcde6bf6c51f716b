package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/query"
)

var userCols = []string{
	"id", "name", "email", "photo", "password_hash", "role", "is_active",
	"password_changed_at", "password_reset_token_hash", "password_reset_expires_at",
	"created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*UsersRepo, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})

	return NewUsersRepo(mock, nil), mock
}

func userRow(id, email string, created time.Time) []any {
	return []any{id, "Sam", email, "", "$2a$10$hash", "user", true, nil, nil, nil, created, created}
}

func TestUsersRepo_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantKind  apperr.Kind
	}{
		{
			name: "inserts the user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "Sam", "sam@example.com", "", "hash", "user", true, now, now).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "Sam", "sam@example.com", "", "hash", "user", true, now, now).
					WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: user.ErrEmailTaken,
		},
		{
			name: "database down",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "Sam", "sam@example.com", "", "hash", "user", true, now, now).
					WillReturnError(errors.New("connection refused"))
			},
			wantKind: apperr.StoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.setupMock(mock)

			got, err := repo.Create(context.Background(), user.User{
				Name:         "Sam",
				Email:        "sam@example.com",
				PasswordHash: "hash",
				Role:         user.RoleUser,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			})

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantKind != "":
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			default:
				require.NoError(t, err)
				assert.NotEmpty(t, got.ID)
			}
		})
	}
}

func TestUsersRepo_GetByEmail(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`(?s)SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("sam@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(userRow("6f1c2b1e-0d7e-4a57-9a57-0c0d5b8f1a11", "sam@example.com", created)...))

		got, err := repo.GetByEmail(context.Background(), "sam@example.com")
		require.NoError(t, err)
		assert.Equal(t, "sam@example.com", got.Email)
		assert.Equal(t, user.RoleUser, got.Role)
		assert.Nil(t, got.PasswordChangedAt)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`(?s)SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
		assert.ErrorIs(t, err, user.ErrUserNotFound)
	})
}

func TestUsersRepo_GetByID_SkipsQueryForMalformedID(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestUsersRepo_SetResetToken_NoRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	expires := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET password_reset_token_hash = \$2`).
		WithArgs("u1", "hash", expires).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetResetToken(context.Background(), "u1", "hash", expires)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestUsersRepo_CountAndFind(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE role = \$1`).
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	mock.ExpectQuery(`(?s)SELECT (.+) FROM users WHERE role = \$1 ORDER BY created_at DESC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("admin", int64(5), int64(5)).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(userRow("6f1c2b1e-0d7e-4a57-9a57-0c0d5b8f1a11", "a@example.com", created)...).
			AddRow(userRow("0b6a1c4d-1b2e-4f3a-8c9d-2e3f4a5b6c7d", "b@example.com", created)...))

	ctx := context.Background()
	filter := map[string]any{"role": "admin"}

	n, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	got, err := repo.Find(ctx, query.Spec{
		Filter: filter,
		Sort:   []query.SortKey{{Field: "createdAt", Desc: true}},
		Limit:  5,
		Skip:   5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b@example.com", got[1].Email)
}

func TestUsersRepo_Find_NegativeSkipBecomesZeroOffset(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`(?s)SELECT (.+) FROM users(.*) LIMIT \$1 OFFSET \$2`).
		WithArgs(int64(2), int64(0)).
		WillReturnRows(pgxmock.NewRows(userCols))

	got, err := repo.Find(context.Background(), query.Spec{Limit: 2, Skip: -4})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUsersRepo_Find_RejectsUnknownFilter(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.Find(context.Background(), query.Spec{Filter: map[string]any{"password_hash": "x"}, Limit: 10})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}
