package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/query"
)

const userColumns = `id, name, email, photo, password_hash, role, is_active,
	password_changed_at, password_reset_token_hash, password_reset_expires_at,
	created_at, updated_at`

// queryable API field -> column
var userFieldColumns = map[string]string{
	"id":        "id",
	"_id":       "id",
	"name":      "name",
	"email":     "email",
	"photo":     "photo",
	"role":      "role",
	"isActive":  "is_active",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

var sqlOperators = map[string]string{
	"$gte": ">=",
	"$gt":  ">",
	"$lte": "<=",
	"$lt":  "<",
}

// DBTX is the subset of *pgxpool.Pool the repo uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UsersRepo struct {
	pool DBTX
	prom *observability.Prom
}

func NewUsersRepo(pool DBTX, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, photo, password_hash, role, is_active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			u.ID, u.Name, u.Email, u.Photo, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, storeErr("users.create", err)
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrUserNotFound
	}
	return r.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UsersRepo) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (user.User, error) {
	return r.getOne(ctx, "users.get_by_reset_token",
		`SELECT `+userColumns+` FROM users
		WHERE password_reset_token_hash = $1 AND password_reset_expires_at > $2`,
		hash, now,
	)
}

func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.exec(ctx, "users.set_password",
		`UPDATE users
		SET password_hash = $2,
			password_changed_at = $3,
			password_reset_token_hash = NULL,
			password_reset_expires_at = NULL,
			updated_at = $3
		WHERE id = $1`,
		id, passwordHash, changedAt,
	)
}

func (r *UsersRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx, "users.set_reset_token",
		`UPDATE users SET password_reset_token_hash = $2, password_reset_expires_at = $3 WHERE id = $1`,
		id, tokenHash, expiresAt,
	)
}

func (r *UsersRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.exec(ctx, "users.clear_reset_token",
		`UPDATE users SET password_reset_token_hash = NULL, password_reset_expires_at = NULL WHERE id = $1`,
		id,
	)
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, p user.Profile, now time.Time) (user.User, error) {
	return r.getOne(ctx, "users.update_profile",
		`UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			photo = COALESCE($4, photo),
			updated_at = $5
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.Name, p.Email, p.Photo, now,
	)
}

func (r *UsersRepo) Deactivate(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, "users.deactivate",
		`UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, now,
	)
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "users.delete", `DELETE FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) Count(ctx context.Context, filter map[string]any) (int64, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}

	var n int64
	err = r.prom.ObserveDB("users.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&n)
	})
	if err != nil {
		return 0, storeErr("users.count", err)
	}
	return n, nil
}

// Find ignores spec.Fields; the handler applies the projection to the JSON.
func (r *UsersRepo) Find(ctx context.Context, spec query.Spec) ([]user.User, error) {
	where, args, err := whereClause(spec.Filter)
	if err != nil {
		return nil, err
	}

	offset := max(spec.Skip, 0)

	sql := `SELECT ` + userColumns + ` FROM users` + where + orderBy(spec.Sort)
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, spec.Limit, offset)

	out := make([]user.User, 0, spec.Limit)

	err = r.prom.ObserveDB("users.find", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeErr("users.find", err)
	}

	return out, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, sql string, args ...any) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB(op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, sql, args...))
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return user.User{}, user.ErrUserNotFound
		case isUniqueViolation(err):
			return user.User{}, user.ErrEmailTaken
		default:
			return user.User{}, storeErr(op, err)
		}
	}
	return u, nil
}

func (r *UsersRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return storeErr(op, err)
	}

	// if no rows were affected the user does not exist
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var role string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Photo,
		&u.PasswordHash,
		&role,
		&u.IsActive,
		&u.PasswordChangedAt,
		&u.PasswordResetTokenHash,
		&u.PasswordResetExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.Role = user.Role(role)
	return u, err
}

// whereClause translates a query filter into SQL. Fields outside the
// whitelist are rejected rather than silently dropped.
func whereClause(filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var conds []string
	var args []any

	for _, f := range fields {
		col, ok := userFieldColumns[f]
		if !ok {
			return "", nil, apperr.New(apperr.InvalidInput, "Cannot filter users by "+f)
		}

		ops, isMap := filter[f].(map[string]any)
		if !isMap {
			args = append(args, filter[f])
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
			continue
		}

		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)

		for _, op := range opNames {
			v := ops[op]
			if op == "$in" {
				args = append(args, v)
				conds = append(conds, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
				continue
			}
			sqlOp, ok := sqlOperators[op]
			if !ok {
				return "", nil, apperr.New(apperr.InvalidInput, "Unsupported operator "+op+" on "+f)
			}
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("%s %s $%d", col, sqlOp, len(args)))
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderBy keeps whitelisted keys and ends with id for stable pagination.
func orderBy(keys []query.SortKey) string {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		col, ok := userFieldColumns[k.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return apperr.Wrap(apperr.StoreUnavailable,
		"The database is temporarily unavailable, please try again later",
		oops.In("postgres").With("op", op).Wrap(err),
	)
}
