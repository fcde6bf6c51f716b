package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/tourhub/internal/cache"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/http/handlers"
	"github.com/geocoder89/tourhub/internal/http/middlewares"
	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/query"
)

const serviceName = "tourhub-api"

// AuthService is everything the HTTP layer needs from auth.Service.
type AuthService interface {
	handlers.AuthService
	handlers.ProfileService
	middlewares.Authenticator
}

type RouterDeps struct {
	Log *slog.Logger
	Env string

	Auth    AuthService
	Users   handlers.UserStore
	Tours   handlers.TourStore
	Reviews handlers.ReviewStore
	Cache   cache.Store // nil disables list caching
	Builder *query.Builder

	Prom     *observability.Prom // nil disables metrics
	Gatherer prometheus.Gatherer

	Health      map[string]handlers.Pinger
	AuthLimiter *middlewares.RateLimiter

	CORSOrigins   []string
	MaxBodyBytes  int64
	Cookie        handlers.CookieConfig
	PublicBaseURL string
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health + metrics
	health := handlers.NewHealthHandler(d.Health)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authMW := middlewares.NewAuthMiddleware(d.Auth)
	requireAuth := authMW.RequireAuth()
	staff := authMW.RestrictTo(user.RoleAdmin, user.RoleLeadGuide)

	limited := func(c *gin.Context) { c.Next() }
	if d.AuthLimiter != nil {
		limited = d.AuthLimiter.Middleware(middlewares.KeyByIP)
	}

	api := r.Group("/api/v1")

	// auth
	authHandler := handlers.NewAuthHandler(d.Auth, d.Cookie, d.PublicBaseURL)
	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", limited, authHandler.SignUp)
	authRoutes.POST("/login", limited, authHandler.Login)
	authRoutes.POST("/logout", authHandler.Logout)
	authRoutes.POST("/forgot-password", limited, authHandler.ForgotPassword)
	authRoutes.PATCH("/reset-password/:token", limited, authHandler.ResetPassword)
	authRoutes.PATCH("/update-password", requireAuth, authHandler.UpdatePassword)

	// tours
	toursHandler := handlers.NewToursHandler(d.Tours, d.Cache, d.Prom, d.Builder)
	tours := api.Group("/tours")
	tours.GET("", requireAuth, toursHandler.ListTours)
	tours.GET("/top-5-cheap", toursHandler.TopCheap)
	tours.GET("/tour-stats", toursHandler.TourStats)
	tours.GET("/monthly-plan/:year", toursHandler.MonthlyPlan)
	tours.POST("", requireAuth, staff, toursHandler.CreateTour)
	tours.GET("/:id", toursHandler.GetTour)
	tours.PATCH("/:id", requireAuth, staff, toursHandler.UpdateTour)
	tours.DELETE("/:id", requireAuth, staff, toursHandler.DeleteTour)

	// users
	usersHandler := handlers.NewUsersHandler(d.Users, d.Auth, d.Builder)
	users := api.Group("/users")
	users.PATCH("/updateMe", requireAuth, usersHandler.UpdateMe)
	users.PATCH("/deleteMe", requireAuth, usersHandler.DeleteMe)
	admin := users.Group("", requireAuth, authMW.RestrictTo(user.RoleAdmin))
	admin.GET("", usersHandler.ListUsers)
	admin.GET("/:id", usersHandler.GetUser)
	admin.DELETE("/:id", usersHandler.DeleteUser)

	// reviews
	reviewsHandler := handlers.NewReviewsHandler(d.Reviews, d.Builder)
	reviews := api.Group("/reviews")
	reviews.GET("", reviewsHandler.ListReviews)
	reviews.POST("", requireAuth, authMW.RestrictTo(user.RoleUser), reviewsHandler.CreateReview)

	r.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, http.StatusNotFound, "not_found", "Can't find "+c.Request.URL.Path+" on this server", nil)
	})

	return r
}
