package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/actorctx"
	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/auth"
)

type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	ForgotPassword(ctx context.Context, email, resetBaseURL string) error
	ResetPassword(ctx context.Context, token, newPassword string) (auth.Session, error)
	UpdatePassword(ctx context.Context, userID, current, newPassword string) (auth.Session, error)
}

// CookieConfig controls the session cookie that mirrors the bearer token.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// ResetPasswordPath is where emailed reset links point, followed by the plaintext token.
const ResetPasswordPath = "/api/v1/auth/reset-password/"

type AuthHandler struct {
	svc          AuthService
	cookie       CookieConfig
	resetBaseURL string
}

// NewAuthHandler builds reset links from publicBaseURL only; request
// headers such as Host never reach an outgoing email.
func NewAuthHandler(svc AuthService, cookie CookieConfig, publicBaseURL string) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "jwt"
	}
	return &AuthHandler{
		svc:          svc,
		cookie:       cookie,
		resetBaseURL: strings.TrimRight(publicBaseURL, "/") + ResetPasswordPath,
	}
}

type SignUpRequest struct {
	Name            string `json:"name" binding:"required,min=2"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=NewPassword"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	sess, err := h.svc.Signup(cctx, auth.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.sendSession(ctx, http.StatusCreated, sess)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	sess, err := h.svc.Login(cctx, req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.sendSession(ctx, http.StatusOK, sess)
}

// Logout overwrites the session cookie. Bearer tokens stay valid until they expire.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.cookie.Name, "loggedout", -1, "/", "", h.cookie.Secure, true)

	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// sending may take a while; the breaker enforces its own timeout
	cctx, cancel := withTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := h.svc.ForgotPassword(cctx, req.Email, h.resetBaseURL); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	sess, err := h.svc.ResetPassword(cctx, ctx.Param("token"), req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.sendSession(ctx, http.StatusOK, sess)
}

func (h *AuthHandler) UpdatePassword(ctx *gin.Context) {
	var req UpdatePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := actorctx.UserIDFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.New(apperr.Unauthenticated, "You are not logged in, please log in to get access"))
		return
	}

	cctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	sess, err := h.svc.UpdatePassword(cctx, userID, req.PasswordCurrent, req.NewPassword)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.sendSession(ctx, http.StatusOK, sess)
}

func (h *AuthHandler) sendSession(ctx *gin.Context, status int, sess auth.Session) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.cookie.Name, sess.Token, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)

	ctx.JSON(status, gin.H{
		"status": "success",
		"token":  sess.Token,
		"data":   gin.H{"user": sess.User},
	})
}

func withTimeout(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}
