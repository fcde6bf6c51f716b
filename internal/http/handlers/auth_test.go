package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/actorctx"
	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/auth"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/http/handlers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthService struct {
	signupFn         func(ctx context.Context, in auth.SignupInput) (auth.Session, error)
	loginFn          func(ctx context.Context, email, password string) (auth.Session, error)
	forgotFn         func(ctx context.Context, email, resetBaseURL string) error
	resetFn          func(ctx context.Context, token, newPassword string) (auth.Session, error)
	updatePasswordFn func(ctx context.Context, userID, current, newPassword string) (auth.Session, error)
}

func (f *fakeAuthService) Signup(ctx context.Context, in auth.SignupInput) (auth.Session, error) {
	return f.signupFn(ctx, in)
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (auth.Session, error) {
	return f.loginFn(ctx, email, password)
}

func (f *fakeAuthService) ForgotPassword(ctx context.Context, email, resetBaseURL string) error {
	return f.forgotFn(ctx, email, resetBaseURL)
}

func (f *fakeAuthService) ResetPassword(ctx context.Context, token, newPassword string) (auth.Session, error) {
	return f.resetFn(ctx, token, newPassword)
}

func (f *fakeAuthService) UpdatePassword(ctx context.Context, userID, current, newPassword string) (auth.Session, error) {
	return f.updatePasswordFn(ctx, userID, current, newPassword)
}

func newAuthRouter(svc handlers.AuthService) *gin.Engine {
	h := handlers.NewAuthHandler(svc, handlers.CookieConfig{MaxAge: 90 * 24 * time.Hour}, "https://tours.example/")

	// stands in for RequireAuth
	withUser := func(c *gin.Context) {
		c.Request = c.Request.WithContext(actorctx.WithUser(c.Request.Context(), user.User{ID: "u1"}))
	}

	r := gin.New()
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/forgot-password", h.ForgotPassword)
	r.PATCH("/auth/reset-password/:token", h.ResetPassword)
	r.PATCH("/auth/update-password", withUser, h.UpdatePassword)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type sessionResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Data   struct {
		User map[string]any `json:"user"`
	} `json:"data"`
}

func TestSignUpHandler_SetsCookieAndHidesHash(t *testing.T) {
	var got auth.SignupInput
	svc := &fakeAuthService{
		signupFn: func(ctx context.Context, in auth.SignupInput) (auth.Session, error) {
			got = in
			return auth.Session{
				Token: "tok-1",
				User:  user.User{ID: "u1", Name: in.Name, Email: in.Email, PasswordHash: "$2a$10$secret", Role: user.RoleUser},
			}, nil
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPost, "/auth/signup",
		`{"name":"Ann","email":"ann@example.com","password":"pass1234","confirmPassword":"pass1234"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if got.Email != "ann@example.com" || got.Password != "pass1234" {
		t.Fatalf("unexpected input %+v", got)
	}

	var resp sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token != "tok-1" || resp.Data.User["id"] != "u1" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "jwt=tok-1") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("unexpected cookie %q", cookie)
	}
}

func TestSignUpHandler_ConflictIs409(t *testing.T) {
	svc := &fakeAuthService{
		signupFn: func(ctx context.Context, in auth.SignupInput) (auth.Session, error) {
			return auth.Session{}, apperr.New(apperr.Conflict, "Email already in use")
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPost, "/auth/signup",
		`{"name":"Ann","email":"ann@example.com","password":"pass1234","confirmPassword":"pass1234"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("got %d", w.Code)
	}
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	svc := &fakeAuthService{
		loginFn: func(ctx context.Context, email, password string) (auth.Session, error) {
			return auth.Session{}, apperr.New(apperr.Unauthorized, "Incorrect email or password")
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"nope"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", w.Code)
	}

	var resp bindErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "unauthorized" || resp.Error.Message != "Incorrect email or password" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if w.Header().Get("Set-Cookie") != "" {
		t.Fatalf("no cookie expected on failure")
	}
}

func TestForgotPasswordHandler_BuildsResetURL(t *testing.T) {
	var gotURL string
	svc := &fakeAuthService{
		forgotFn: func(ctx context.Context, email, resetBaseURL string) error {
			gotURL = resetBaseURL
			return nil
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPost, "/auth/forgot-password", `{"email":"ann@example.com"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if gotURL != "https://tours.example/api/v1/auth/reset-password/" {
		t.Fatalf("got %q", gotURL)
	}
}

func TestForgotPasswordHandler_IgnoresSpoofedHost(t *testing.T) {
	var gotURL string
	svc := &fakeAuthService{
		forgotFn: func(ctx context.Context, email, resetBaseURL string) error {
			gotURL = resetBaseURL
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", strings.NewReader(`{"email":"ann@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "evil.example"
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "evil.example")
	w := httptest.NewRecorder()
	newAuthRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if gotURL != "https://tours.example/api/v1/auth/reset-password/" {
		t.Fatalf("reset link must use the configured base, got %q", gotURL)
	}
}

func TestForgotPasswordHandler_DeliveryFailureIs500(t *testing.T) {
	svc := &fakeAuthService{
		forgotFn: func(ctx context.Context, email, resetBaseURL string) error {
			return apperr.Wrap(apperr.DeliveryError, "There was an error sending the email, try again later", errors.New("smtp down"))
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPost, "/auth/forgot-password", `{"email":"ann@example.com"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "smtp down") {
		t.Fatalf("cause leaked to client: %s", w.Body.String())
	}
}

func TestResetPasswordHandler_PassesTokenFromPath(t *testing.T) {
	var gotToken string
	svc := &fakeAuthService{
		resetFn: func(ctx context.Context, token, newPassword string) (auth.Session, error) {
			gotToken = token
			return auth.Session{Token: "tok-2", User: user.User{ID: "u1"}}, nil
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPatch, "/auth/reset-password/abc123",
		`{"password":"newpass123","confirmPassword":"newpass123"}`)

	if w.Code != http.StatusOK || gotToken != "abc123" {
		t.Fatalf("got %d token=%q", w.Code, gotToken)
	}
}

func TestResetPasswordHandler_ExpiredTokenIs400(t *testing.T) {
	svc := &fakeAuthService{
		resetFn: func(ctx context.Context, token, newPassword string) (auth.Session, error) {
			return auth.Session{}, apperr.New(apperr.InvalidOrExpiredToken, "Token is invalid or has expired")
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPatch, "/auth/reset-password/abc123",
		`{"password":"newpass123","confirmPassword":"newpass123"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}
}

func TestUpdatePasswordHandler_UsesActingUser(t *testing.T) {
	var gotID, gotCurrent string
	svc := &fakeAuthService{
		updatePasswordFn: func(ctx context.Context, userID, current, newPassword string) (auth.Session, error) {
			gotID, gotCurrent = userID, current
			return auth.Session{Token: "tok-3", User: user.User{ID: userID}}, nil
		},
	}

	w := doJSON(newAuthRouter(svc), http.MethodPatch, "/auth/update-password",
		`{"passwordCurrent":"oldpass12","newPassword":"newpass123","confirmPassword":"newpass123"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}
	if gotID != "u1" || gotCurrent != "oldpass12" {
		t.Fatalf("got id=%q current=%q", gotID, gotCurrent)
	}
}

func TestLogoutHandler_ExpiresCookie(t *testing.T) {
	w := doJSON(newAuthRouter(&fakeAuthService{}), http.MethodPost, "/auth/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if cookie := w.Header().Get("Set-Cookie"); !strings.Contains(cookie, "Max-Age=0") {
		t.Fatalf("unexpected cookie %q", cookie)
	}
}
