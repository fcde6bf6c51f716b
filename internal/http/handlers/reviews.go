package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/actorctx"
	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/domain/review"
	"github.com/geocoder89/tourhub/internal/query"
)

type ReviewStore interface {
	query.Queryable[review.Review]
	Create(ctx context.Context, rv review.Review) (review.Review, error)
}

type ReviewsHandler struct {
	reviews ReviewStore
	builder *query.Builder
	now     func() time.Time
}

func NewReviewsHandler(reviews ReviewStore, builder *query.Builder) *ReviewsHandler {
	return &ReviewsHandler{
		reviews: reviews,
		builder: builder.WithSchema(review.QuerySchema),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *ReviewsHandler) ListReviews(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	items, spec, err := query.Apply[review.Review](cctx, h.reviews, h.builder, query.ParseValues(ctx.Request.URL.Query()))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	out, err := project(items, spec.Fields)
	if err != nil {
		RespondInternal(ctx, "Could not render reviews")
		return
	}

	respondList(ctx, "reviews", out, len(out))
}

func (h *ReviewsHandler) CreateReview(ctx *gin.Context) {
	var req review.CreateReviewRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := actorctx.UserIDFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.New(apperr.Unauthenticated, "You are not logged in, please log in to get access"))
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	rv, err := h.reviews.Create(cctx, review.NewFromCreateRequest(req, userID, h.now()))
	if err != nil {
		if errors.Is(err, review.ErrTourNotFound) {
			RespondAppError(ctx, apperr.Wrap(apperr.NotFound, "No tour found with that ID", err))
			return
		}
		RespondAppError(ctx, err)
		return
	}

	respondData(ctx, http.StatusCreated, gin.H{"review": rv})
}
