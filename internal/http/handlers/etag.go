package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/apperr"
)

// RespondJSONWithETag writes payload with an ETag derived from the exact bytes
// sent, so any change to a tour or its derived fields yields a new tag.
// GET and HEAD requests whose If-None-Match names the tag get 304.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		RespondAppError(ctx, apperr.Wrap(apperr.Internal, "Something went wrong", err))
		return
	}

	etag := contentETag(body)
	ctx.Header("Cache-Control", "private, no-cache")
	ctx.Header("ETag", etag)

	if isConditionalRead(ctx.Request.Method) && etagListed(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", body)
}

// 128 bits of the body hash are plenty to tell two representations apart.
func contentETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func isConditionalRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// etagListed uses the weak comparison If-None-Match calls for.
func etagListed(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
