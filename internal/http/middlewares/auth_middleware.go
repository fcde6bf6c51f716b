package middlewares

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/actorctx"
	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/auth"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/http/handlers"
)

// Keep this small interface so tests can fake it easily.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (user.User, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(a Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// RequireAuth resolves the bearer token to a user and stores it on both the
// gin context and the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := m.auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			handlers.RespondAppError(c, err)
			return
		}

		c.Set(CtxUser, u)
		c.Request = c.Request.WithContext(actorctx.WithUser(c.Request.Context(), u))

		c.Next()
	}
}

// RestrictTo must run after RequireAuth.
func (m *AuthMiddleware) RestrictTo(roles ...user.Role) gin.HandlerFunc {
	guard := auth.RestrictTo(roles...)

	return func(c *gin.Context) {
		u, ok := UserFromContext(c)
		if !ok {
			handlers.RespondAppError(c, apperr.New(apperr.Unauthenticated, "You are not logged in, please log in to get access"))
			return
		}

		if err := guard(u); err != nil {
			handlers.RespondAppError(c, err)
			return
		}

		c.Next()
	}
}

func UserFromContext(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok && u.ID != ""
}
