package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/actorctx"
	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/auth"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/query"
)

type UserStore interface {
	query.Queryable[user.User]
	GetByID(ctx context.Context, id string) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type ProfileService interface {
	UpdateMe(ctx context.Context, userID string, in auth.UpdateMeInput) (user.User, error)
	DeactivateMe(ctx context.Context, userID string) error
}

type UsersHandler struct {
	users   UserStore
	profile ProfileService
	builder *query.Builder
}

func NewUsersHandler(users UserStore, profile ProfileService, builder *query.Builder) *UsersHandler {
	return &UsersHandler{
		users:   users,
		profile: profile,
		builder: builder.WithSchema(user.QuerySchema),
	}
}

type UpdateMeRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2"`
	Email *string `json:"email" binding:"omitempty,email"`
	Photo *string `json:"photo" binding:"omitempty,max=500"`

	// rejected when present
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	items, spec, err := query.Apply[user.User](cctx, h.users, h.builder, query.ParseValues(ctx.Request.URL.Query()))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	out, err := project(items, spec.Fields)
	if err != nil {
		RespondInternal(ctx, "Could not render users")
		return
	}

	respondList(ctx, "users", out, len(out))
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, userErr(err))
		return
	}

	respondData(ctx, http.StatusOK, gin.H{"user": u})
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.users.Delete(cctx, ctx.Param("id")); err != nil {
		RespondAppError(ctx, userErr(err))
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *UsersHandler) UpdateMe(ctx *gin.Context) {
	var req UpdateMeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Password != nil || req.ConfirmPassword != nil {
		RespondAppError(ctx, apperr.New(apperr.InvalidInput, "This route is not for password updates. Please use /update-password."))
		return
	}

	userID, ok := actorctx.UserIDFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.New(apperr.Unauthenticated, "You are not logged in, please log in to get access"))
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := h.profile.UpdateMe(cctx, userID, auth.UpdateMeInput{
		Name:  req.Name,
		Email: req.Email,
		Photo: req.Photo,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	respondData(ctx, http.StatusOK, gin.H{"user": u})
}

func (h *UsersHandler) DeleteMe(ctx *gin.Context) {
	userID, ok := actorctx.UserIDFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.New(apperr.Unauthenticated, "You are not logged in, please log in to get access"))
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.profile.DeactivateMe(cctx, userID); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func userErr(err error) error {
	if errors.Is(err, user.ErrUserNotFound) {
		return apperr.Wrap(apperr.NotFound, "No user found with that ID", err)
	}
	return err
}
