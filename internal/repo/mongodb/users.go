package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/query"
)

// Stored field names callers may query on; secrets are excluded.
var userQueryFields = []string{"name", "email", "photo", "role", "isActive", "createdAt", "updatedAt"}

type userDoc struct {
	ID                       string     `bson:"_id"`
	Name                     string     `bson:"name"`
	Email                    string     `bson:"email"`
	Photo                    string     `bson:"photo,omitempty"`
	Password                 string     `bson:"password"`
	Role                     string     `bson:"role"`
	IsActive                 bool       `bson:"isActive"`
	PasswordChangedAt        *time.Time `bson:"passwordChangedAt,omitempty"`
	PasswordResetToken       *string    `bson:"passwordResetToken,omitempty"`
	PasswordResetTokenExpire *time.Time `bson:"passwordResetTokenExpire,omitempty"`
	CreatedAt                time.Time  `bson:"createdAt"`
	UpdatedAt                time.Time  `bson:"updatedAt"`
}

func toUserDoc(u user.User) userDoc {
	return userDoc{
		ID:                       u.ID,
		Name:                     u.Name,
		Email:                    u.Email,
		Photo:                    u.Photo,
		Password:                 u.PasswordHash,
		Role:                     string(u.Role),
		IsActive:                 u.IsActive,
		PasswordChangedAt:        u.PasswordChangedAt,
		PasswordResetToken:       u.PasswordResetTokenHash,
		PasswordResetTokenExpire: u.PasswordResetExpiresAt,
		CreatedAt:                u.CreatedAt,
		UpdatedAt:                u.UpdatedAt,
	}
}

func (d userDoc) toUser() user.User {
	return user.User{
		ID:                     d.ID,
		Name:                   d.Name,
		Email:                  d.Email,
		Photo:                  d.Photo,
		PasswordHash:           d.Password,
		Role:                   user.Role(d.Role),
		IsActive:               d.IsActive,
		PasswordChangedAt:      d.PasswordChangedAt,
		PasswordResetTokenHash: d.PasswordResetToken,
		PasswordResetExpiresAt: d.PasswordResetTokenExpire,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

type UsersRepo struct {
	coll  *mongo.Collection
	query *Collection[userDoc]
	prom  *observability.Prom
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	coll := db.Collection(UsersCollection)
	return &UsersRepo{
		coll:  coll,
		query: NewCollection[userDoc](coll, CollectionOptions{Fields: userQueryFields, Prom: prom}),
		prom:  prom,
	}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = bson.NewObjectID().Hex()
	}

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.coll.InsertOne(ctx, toUserDoc(u))
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, storeErr("users.create", err)
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_id", bson.D{{Key: "_id", Value: id}})
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.D{{Key: "email", Value: email}})
}

func (r *UsersRepo) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (user.User, error) {
	return r.findOne(ctx, "users.get_by_reset_token", bson.D{
		{Key: "passwordResetToken", Value: hash},
		{Key: "passwordResetTokenExpire", Value: bson.D{{Key: "$gt", Value: now}}},
	})
}

func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.updateByID(ctx, "users.set_password", id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password", Value: passwordHash},
			{Key: "passwordChangedAt", Value: changedAt},
			{Key: "updatedAt", Value: changedAt},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "passwordResetToken", Value: ""},
			{Key: "passwordResetTokenExpire", Value: ""},
		}},
	})
}

func (r *UsersRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, "users.set_reset_token", id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "passwordResetToken", Value: tokenHash},
			{Key: "passwordResetTokenExpire", Value: expiresAt},
		}},
	})
}

func (r *UsersRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.updateByID(ctx, "users.clear_reset_token", id, bson.D{
		{Key: "$unset", Value: bson.D{
			{Key: "passwordResetToken", Value: ""},
			{Key: "passwordResetTokenExpire", Value: ""},
		}},
	})
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, p user.Profile, now time.Time) (user.User, error) {
	set := bson.D{{Key: "updatedAt", Value: now}}
	if p.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *p.Name})
	}
	if p.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *p.Email})
	}
	if p.Photo != nil {
		set = append(set, bson.E{Key: "photo", Value: *p.Photo})
	}

	if err := r.updateByID(ctx, "users.update_profile", id, bson.D{{Key: "$set", Value: set}}); err != nil {
		return user.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *UsersRepo) Deactivate(ctx context.Context, id string, now time.Time) error {
	return r.updateByID(ctx, "users.deactivate", id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "isActive", Value: false},
			{Key: "updatedAt", Value: now},
		}},
	})
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult

	err := r.prom.ObserveDB("users.delete", func() error {
		var err error
		res, err = r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
		return err
	})
	if err != nil {
		return storeErr("users.delete", err, "user_id", id)
	}
	if res.DeletedCount == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func (r *UsersRepo) Count(ctx context.Context, filter map[string]any) (int64, error) {
	return r.query.Count(ctx, filter)
}

func (r *UsersRepo) Find(ctx context.Context, spec query.Spec) ([]user.User, error) {
	docs, err := r.query.Find(ctx, spec)
	if err != nil {
		return nil, err
	}

	out := make([]user.User, len(docs))
	for i, d := range docs {
		out[i] = d.toUser()
	}
	return out, nil
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.D) (user.User, error) {
	var doc userDoc

	err := r.prom.ObserveDB(op, func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, storeErr(op, err)
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) updateByID(ctx context.Context, op, id string, update bson.D) error {
	var res *mongo.UpdateResult

	err := r.prom.ObserveDB(op, func() error {
		var err error
		res, err = r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrEmailTaken
		}
		return storeErr(op, err, "user_id", id)
	}
	if res.MatchedCount == 0 {
		return user.ErrUserNotFound
	}
	return nil
}
