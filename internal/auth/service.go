package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/notifications"
)

const (
	msgCredentialsRequired = "Please provide email and password"
	msgBadCredentials      = "Incorrect email or password"
	msgEmailTaken          = "Email already in use"
	msgNotLoggedIn         = "You are not logged in, please log in to get access"
	msgUserGone            = "The user belonging to this token no longer exists"
	msgPasswordChanged     = "User recently changed password, please log in again"
	msgForbidden           = "You do not have permission to perform this action"
	msgNoSuchEmail         = "There is no user with that email address"
	msgDeliveryFailed      = "There was an error sending the email, try again later"
	msgResetTokenInvalid   = "Token is invalid or has expired"
	msgWrongPassword       = "Your current password is wrong"
	msgStoreUnavailable    = "Service temporarily unavailable, please try again later"
)

// UserStore is the credential store the service depends on.
// Emails passed in are already normalized.
type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	// GetByResetTokenHash only matches tokens whose expiry is after now.
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (user.User, error)
	// SetPassword also clears any pending reset token.
	SetPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, p user.Profile, now time.Time) (user.User, error)
	Deactivate(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

type TokenCodec interface {
	Issue(userID string) (string, error)
	Verify(token string) (*Claims, error)
}

// Recorder receives one outcome per service call. Optional.
type Recorder interface {
	AuthOutcome(op, outcome string)
}

type Deps struct {
	Users    UserStore
	Hasher   PasswordHasher
	Tokens   TokenCodec
	Notifier notifications.Notifier
	Clock    Clock
	Random   io.Reader
	Logger   *slog.Logger
	Metrics  Recorder
}

type Config struct {
	ResetTokenTTL time.Duration
}

type Session struct {
	Token string
	User  user.User
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

type UpdateMeInput struct {
	Name  *string
	Email *string
	Photo *string
}

type Service struct {
	users    UserStore
	hasher   PasswordHasher
	tokens   TokenCodec
	notifier notifications.Notifier
	clock    Clock
	random   io.Reader
	log      *slog.Logger
	metrics  Recorder
	resetTTL time.Duration
}

func NewService(d Deps, cfg Config) (*Service, error) {
	switch {
	case d.Users == nil:
		return nil, errors.New("auth: user store is required")
	case d.Hasher == nil:
		return nil, errors.New("auth: password hasher is required")
	case d.Tokens == nil:
		return nil, errors.New("auth: token codec is required")
	case d.Notifier == nil:
		return nil, errors.New("auth: notifier is required")
	}

	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Random == nil {
		d.Random = rand.Reader
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 10 * time.Minute
	}

	return &Service{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		clock:    d.Clock,
		random:   d.Random,
		log:      d.Logger,
		metrics:  d.Metrics,
		resetTTL: cfg.ResetTokenTTL,
	}, nil
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (sess Session, err error) {
	defer func() { s.record("signup", err) }()

	email := user.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return Session{}, apperr.New(apperr.InvalidInput, msgCredentialsRequired)
	}

	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return Session{}, apperr.New(apperr.Conflict, msgEmailTaken)
	case !errors.Is(err, user.ErrUserNotFound):
		return Session{}, storeErr(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "could not hash password", err)
	}

	now := s.clock.Now()
	u, err := s.users.Create(ctx, user.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return Session{}, apperr.Wrap(apperr.Conflict, msgEmailTaken, err)
		}
		return Session{}, storeErr(err)
	}

	return s.session(u)
}

// Login fails with the same Unauthorized message whether the email is
// unknown, the account is inactive, or the password is wrong.
func (s *Service) Login(ctx context.Context, email, password string) (sess Session, err error) {
	defer func() { s.record("login", err) }()

	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperr.New(apperr.InvalidInput, msgCredentialsRequired)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return Session{}, apperr.New(apperr.Unauthorized, msgBadCredentials)
		}
		return Session{}, storeErr(err)
	}
	if !u.IsActive {
		return Session{}, apperr.New(apperr.Unauthorized, msgBadCredentials)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "could not verify password", err)
	}
	if !ok {
		return Session{}, apperr.New(apperr.Unauthorized, msgBadCredentials)
	}

	return s.session(u)
}

// Authenticate resolves the user behind an Authorization header value.
func (s *Service) Authenticate(ctx context.Context, authorization string) (u user.User, err error) {
	defer func() { s.record("authenticate", err) }()

	token, ok := bearerToken(authorization)
	if !ok {
		return user.User{}, apperr.New(apperr.Unauthenticated, msgNotLoggedIn)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		if apperr.Is(err, apperr.InvalidToken) {
			return user.User{}, err
		}
		return user.User{}, apperr.Wrap(apperr.InvalidToken, msgTokenInvalid, err)
	}

	u, err = s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return user.User{}, apperr.New(apperr.Unauthenticated, msgUserGone)
		}
		return user.User{}, storeErr(err)
	}
	if !u.IsActive {
		return user.User{}, apperr.New(apperr.Unauthenticated, msgUserGone)
	}

	if u.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return user.User{}, apperr.New(apperr.Unauthenticated, msgPasswordChanged)
	}

	return u, nil
}

// Guard decides whether an authenticated user may proceed.
type Guard func(u user.User) error

// RestrictTo allows only the listed roles.
func RestrictTo(roles ...user.Role) Guard {
	allowed := make(map[user.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(u user.User) error {
		if _, ok := allowed[u.Role]; !ok {
			return apperr.New(apperr.Forbidden, msgForbidden)
		}
		return nil
	}
}

// ForgotPassword stores a hashed reset token and emails the plaintext as
// resetBaseURL+token. A failed send clears the token again.
func (s *Service) ForgotPassword(ctx context.Context, email, resetBaseURL string) (err error) {
	defer func() { s.record("forgot_password", err) }()

	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return apperr.New(apperr.NotFound, msgNoSuchEmail)
		}
		return storeErr(err)
	}

	token, hash, err := GenerateResetToken(s.random)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "could not generate reset token", err)
	}

	expiresAt := s.clock.Now().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, u.ID, hash, expiresAt); err != nil {
		return storeErr(err)
	}

	msg := notifications.Message{
		To:      u.Email,
		Subject: fmt.Sprintf("Your password reset token (valid for %d min)", int(s.resetTTL.Minutes())),
		Body: fmt.Sprintf(
			"Forgot your password? Submit a PATCH request with your new password and confirmPassword to: %s%s\n"+
				"If you didn't forget your password, please ignore this email.",
			resetBaseURL, token,
		),
	}

	if sendErr := s.notifier.Send(ctx, msg); sendErr != nil {
		// ctx may already be done; the rollback must still run
		if clearErr := s.users.ClearResetToken(context.WithoutCancel(ctx), u.ID); clearErr != nil {
			s.log.ErrorContext(ctx, "reset token rollback failed", "user_id", u.ID, "err", clearErr)
		}
		s.log.WarnContext(ctx, "reset email not delivered", "user_id", u.ID, "err", sendErr)
		return apperr.Wrap(apperr.DeliveryError, msgDeliveryFailed, sendErr)
	}

	return nil
}

func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) (sess Session, err error) {
	defer func() { s.record("reset_password", err) }()

	if plainToken == "" {
		return Session{}, apperr.New(apperr.InvalidOrExpiredToken, msgResetTokenInvalid)
	}

	now := s.clock.Now()
	u, err := s.users.GetByResetTokenHash(ctx, HashResetToken(plainToken), now)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return Session{}, apperr.New(apperr.InvalidOrExpiredToken, msgResetTokenInvalid)
		}
		return Session{}, storeErr(err)
	}

	if err := s.setPassword(ctx, &u, newPassword, now); err != nil {
		return Session{}, err
	}

	return s.session(u)
}

func (s *Service) UpdatePassword(ctx context.Context, userID, current, newPassword string) (sess Session, err error) {
	defer func() { s.record("update_password", err) }()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return Session{}, apperr.New(apperr.Unauthenticated, msgUserGone)
		}
		return Session{}, storeErr(err)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, current)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "could not verify password", err)
	}
	if !ok {
		return Session{}, apperr.New(apperr.Unauthorized, msgWrongPassword)
	}

	if err := s.setPassword(ctx, &u, newPassword, s.clock.Now()); err != nil {
		return Session{}, err
	}

	return s.session(u)
}

// UpdateMe changes profile fields only; password fields are never touched here.
func (s *Service) UpdateMe(ctx context.Context, userID string, in UpdateMeInput) (user.User, error) {
	p := user.Profile{Name: in.Name, Photo: in.Photo}
	if in.Email != nil {
		email := user.NormalizeEmail(*in.Email)
		if email == "" {
			return user.User{}, apperr.New(apperr.InvalidInput, "Email cannot be empty")
		}
		p.Email = &email
	}

	u, err := s.users.UpdateProfile(ctx, userID, p, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			return user.User{}, apperr.Wrap(apperr.Conflict, msgEmailTaken, err)
		case errors.Is(err, user.ErrUserNotFound):
			return user.User{}, apperr.New(apperr.NotFound, "No user found with that ID")
		default:
			return user.User{}, storeErr(err)
		}
	}

	return u, nil
}

// DeactivateMe marks the account inactive; the record is kept.
func (s *Service) DeactivateMe(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID, s.clock.Now()); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return apperr.New(apperr.NotFound, "No user found with that ID")
		}
		return storeErr(err)
	}
	return nil
}

func (s *Service) setPassword(ctx context.Context, u *user.User, plain string, now time.Time) error {
	if plain == "" {
		return apperr.New(apperr.InvalidInput, "Please provide a new password")
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "could not hash password", err)
	}

	if err := s.users.SetPassword(ctx, u.ID, hash, now); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return apperr.New(apperr.Unauthenticated, msgUserGone)
		}
		return storeErr(err)
	}

	u.PasswordHash = hash
	u.PasswordChangedAt = &now
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
	u.UpdatedAt = now
	return nil
}

func (s *Service) session(u user.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "could not issue token", err)
	}
	return Session{Token: token, User: u}, nil
}

func (s *Service) record(op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	s.metrics.AuthOutcome(op, outcome)
}

func storeErr(err error) error {
	return apperr.Wrap(apperr.StoreUnavailable, msgStoreUnavailable, err)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
