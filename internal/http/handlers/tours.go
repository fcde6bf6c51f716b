package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/cache"
	"github.com/geocoder89/tourhub/internal/domain/tour"
	"github.com/geocoder89/tourhub/internal/query"
	"github.com/geocoder89/tourhub/internal/utils"
)

const toursCachePrefix = "tours:"

type TourStore interface {
	query.Queryable[tour.Tour]
	Create(ctx context.Context, t tour.Tour) (tour.Tour, error)
	GetByID(ctx context.Context, id string) (tour.Tour, error)
	Update(ctx context.Context, id string, changes map[string]any) (tour.Tour, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) ([]tour.DifficultyStats, error)
	MonthlyPlan(ctx context.Context, year int) ([]tour.MonthlyPlan, error)
}

// CacheRecorder counts list cache lookups. Optional.
type CacheRecorder interface {
	CacheLookup(cache string, hit bool)
}

type ToursHandler struct {
	tours   TourStore
	cache   cache.Store
	metrics CacheRecorder
	builder *query.Builder
	now     func() time.Time
}

// NewToursHandler wires the tour endpoints. A nil cache disables list caching.
func NewToursHandler(tours TourStore, c cache.Store, metrics CacheRecorder, builder *query.Builder) *ToursHandler {
	return &ToursHandler{
		tours:   tours,
		cache:   c,
		metrics: metrics,
		builder: builder.WithSchema(tour.QuerySchema),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *ToursHandler) ListTours(ctx *gin.Context) {
	h.list(ctx, query.ParseValues(ctx.Request.URL.Query()))
}

// TopCheap is ListTours with the top-5-cheap preset applied over the caller's parameters.
func (h *ToursHandler) TopCheap(ctx *gin.Context) {
	p := query.ParseValues(ctx.Request.URL.Query())
	for k, v := range tour.TopCheapParams() {
		p[k] = v
	}
	h.list(ctx, p)
}

func (h *ToursHandler) list(ctx *gin.Context, p query.Params) {
	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	key := utils.BuildListCacheKey("tours", p)

	if h.cache != nil {
		body, ok, err := h.cache.Get(cctx, key)
		if err != nil {
			slog.Default().WarnContext(cctx, "tour list cache read failed", "key", key, "err", err)
		}
		h.recordLookup(ok)
		if ok {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}
	}

	items, spec, err := query.Apply[tour.Tour](cctx, h.tours, h.builder, p)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	out, err := project(items, spec.Fields)
	if err != nil {
		RespondInternal(ctx, "Could not render tours")
		return
	}

	body, err := json.Marshal(gin.H{
		"status":  "success",
		"results": len(out),
		"data":    gin.H{"tours": out},
	})
	if err != nil {
		RespondInternal(ctx, "Could not render tours")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(cctx, key, body); err != nil {
			slog.Default().WarnContext(cctx, "tour list cache write failed", "key", key, "err", err)
		}
		ctx.Header("X-Cache", "MISS")
	}

	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *ToursHandler) GetTour(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.tours.GetByID(cctx, ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"status": "success", "data": gin.H{"tour": t}})
}

func (h *ToursHandler) CreateTour(ctx *gin.Context) {
	var req tour.CreateTourRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.tours.Create(cctx, tour.NewFromCreateRequest(req, h.now()))
	if err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	h.invalidate(cctx)

	respondData(ctx, http.StatusCreated, gin.H{"tour": t})
}

func (h *ToursHandler) UpdateTour(ctx *gin.Context) {
	var req tour.UpdateTourRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	if req.Empty() {
		RespondBadRequest(ctx, "No fields to update", nil)
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.tours.Update(cctx, ctx.Param("id"), req.Changes())
	if err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	h.invalidate(cctx)

	respondData(ctx, http.StatusOK, gin.H{"tour": t})
}

func (h *ToursHandler) DeleteTour(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.tours.Delete(cctx, ctx.Param("id")); err != nil {
		RespondAppError(ctx, tourErr(err))
		return
	}

	h.invalidate(cctx)

	ctx.Status(http.StatusNoContent)
}

func (h *ToursHandler) TourStats(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	stats, err := h.tours.Stats(cctx)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	respondData(ctx, http.StatusOK, gin.H{"stats": stats})
}

func (h *ToursHandler) MonthlyPlan(ctx *gin.Context) {
	year, err := strconv.Atoi(ctx.Param("year"))
	if err != nil || year < 1 || year > 9999 {
		RespondBadRequest(ctx, "Invalid year", gin.H{"year": ctx.Param("year")})
		return
	}

	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	plan, err := h.tours.MonthlyPlan(cctx, year)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	respondData(ctx, http.StatusOK, gin.H{"plan": plan})
}

func (h *ToursHandler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	// runs even when the request deadline has passed
	if err := h.cache.DeletePrefix(context.WithoutCancel(ctx), toursCachePrefix); err != nil {
		slog.Default().ErrorContext(ctx, "tour list cache invalidation failed", "err", err)
	}
}

func (h *ToursHandler) recordLookup(hit bool) {
	if h.metrics != nil {
		h.metrics.CacheLookup("tours_list", hit)
	}
}

func tourErr(err error) error {
	switch {
	case errors.Is(err, tour.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "No tour found with that ID", err)
	case errors.Is(err, tour.ErrNameTaken):
		return apperr.Wrap(apperr.Conflict, "A tour with that name already exists", err)
	case errors.Is(err, tour.ErrDiscountTooHigh):
		return apperr.Wrap(apperr.InvalidInput, "Discount price should be below the regular price", err)
	default:
		return err
	}
}
