package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/observability"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unauthorized, apperr.Unauthenticated, apperr.InvalidToken:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound, apperr.PageOutOfRange:
		return http.StatusNotFound
	case apperr.InvalidOrExpiredToken, apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondAppError writes err using its apperr kind. 5xx errors are logged
// with their cause; clients only see the safe message.
func RespondAppError(ctx *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	if status >= http.StatusInternalServerError {
		observability.LogError(ctx.Request.Context(), slog.Default(), "request failed", err,
			"kind", string(kind),
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
		)
	}

	RespondError(ctx, status, string(kind), apperr.Message(err, "Something went wrong"), nil)
}

// success envelope
func respondData(ctx *gin.Context, status int, data gin.H) {
	ctx.JSON(status, gin.H{"status": "success", "data": data})
}

func respondList(ctx *gin.Context, resource string, items interface{}, results int) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": results,
		"data":    gin.H{resource: items},
	})
}
