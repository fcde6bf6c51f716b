package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/geocoder89/tourhub/internal/apperr"
	"github.com/geocoder89/tourhub/internal/domain/user"
	"github.com/geocoder89/tourhub/internal/notifications"
	"github.com/geocoder89/tourhub/internal/repo/memory"
	"github.com/geocoder89/tourhub/internal/security"
)

const resetBase = "http://localhost:8080/api/v1/auth/reset-password/"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	err  error
	sent []notifications.Message
}

func (n *recordingNotifier) Send(ctx context.Context, msg notifications.Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) lastToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, n.sent)
	body := n.sent[len(n.sent)-1].Body
	i := strings.Index(body, resetBase)
	require.GreaterOrEqual(t, i, 0, "reset url missing from body: %s", body)
	rest := body[i+len(resetBase):]
	return strings.Fields(rest)[0]
}

type fixture struct {
	svc      *Service
	users    *memory.UsersRepo
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	users := memory.NewUsersRepo()
	notifier := &recordingNotifier{}

	hasher, err := security.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := NewTokenManager("test-secret", time.Hour, clock)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Users:    users,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: notifier,
		Clock:    clock,
	}, Config{ResetTokenTTL: 10 * time.Minute})
	require.NoError(t, err)

	return &fixture{svc: svc, users: users, clock: clock, notifier: notifier, tokens: tokens}
}

func (f *fixture) signup(t *testing.T, email string) Session {
	t.Helper()
	sess, err := f.svc.Signup(context.Background(), SignupInput{Name: "Ada", Email: email, Password: "pass1234"})
	require.NoError(t, err)
	return sess
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(Deps{}, Config{})
	require.Error(t, err)
}

func TestSignup_OncePerEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.signup(t, "Ada@Example.com ")
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, user.RoleUser, sess.User.Role)
	assert.True(t, sess.User.IsActive)
	assert.NotEqual(t, "pass1234", sess.User.PasswordHash)

	_, err := f.svc.Signup(ctx, SignupInput{Name: "Ada", Email: "ada@example.com", Password: "other-pass"})
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestLogin_UnifiedFailureMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	sess, err := f.svc.Login(ctx, "ADA@example.com", "pass1234")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	_, wrongPass := f.svc.Login(ctx, "ada@example.com", "nope-nope")
	_, unknown := f.svc.Login(ctx, "ghost@example.com", "pass1234")

	for _, err := range []error{wrongPass, unknown} {
		require.Error(t, err)
		assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
		assert.Equal(t, "Incorrect email or password", apperr.Message(err, ""))
	}

	_, err = f.svc.Login(ctx, "", "")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestLogin_InactiveUserRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	require.NoError(t, f.svc.DeactivateMe(ctx, sess.User.ID))

	_, err := f.svc.Login(ctx, "ada@example.com", "pass1234")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = f.svc.Authenticate(ctx, "Bearer "+sess.Token)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
}

func TestAuthenticate_ValidUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	f.clock.Advance(59 * time.Minute)
	u, err := f.svc.Authenticate(ctx, "Bearer "+sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.Authenticate(ctx, "Bearer "+sess.Token)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidToken, apperr.KindOf(err))
	assert.Equal(t, msgTokenExpired, apperr.Message(err, ""))
}

func TestAuthenticate_HeaderAndTokenFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc", sess.Token} {
		_, err := f.svc.Authenticate(ctx, header)
		assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err), "header %q", header)
	}

	_, err := f.svc.Authenticate(ctx, "Bearer "+sess.Token+"x")
	assert.Equal(t, apperr.InvalidToken, apperr.KindOf(err))
	assert.Equal(t, msgTokenInvalid, apperr.Message(err, ""))

	other, err := NewTokenManager("another-secret", time.Hour, f.clock)
	require.NoError(t, err)
	forged, err := other.Issue(sess.User.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, "Bearer "+forged)
	assert.Equal(t, apperr.InvalidToken, apperr.KindOf(err))

	require.NoError(t, f.users.Delete(ctx, sess.User.ID))
	_, err = f.svc.Authenticate(ctx, "Bearer "+sess.Token)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
	assert.Equal(t, msgUserGone, apperr.Message(err, ""))
}

func TestUpdatePassword_RevokesOlderTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	_, err := f.svc.UpdatePassword(ctx, sess.User.ID, "wrong-pass", "newpass123")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	f.clock.Advance(5 * time.Second)
	fresh, err := f.svc.UpdatePassword(ctx, sess.User.ID, "pass1234", "newpass123")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, "Bearer "+sess.Token)
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
	assert.Equal(t, msgPasswordChanged, apperr.Message(err, ""))

	// minted in the same second as the change
	_, err = f.svc.Authenticate(ctx, "Bearer "+fresh.Token)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	later, err := f.svc.Login(ctx, "ada@example.com", "newpass123")
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, "Bearer "+later.Token)
	require.NoError(t, err)
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com", resetBase))
	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Your password reset token (valid for 10 min)", msg.Subject)

	token := f.notifier.lastToken(t)
	assert.Len(t, token, 64)

	stored, err := f.users.GetByID(ctx, sess.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetTokenHash)
	assert.Equal(t, HashResetToken(token), *stored.PasswordResetTokenHash)
	assert.NotEqual(t, token, *stored.PasswordResetTokenHash)

	f.clock.Advance(time.Minute)
	reset, err := f.svc.ResetPassword(ctx, token, "brandnew123")
	require.NoError(t, err)
	assert.NotEmpty(t, reset.Token)

	_, err = f.svc.Login(ctx, "ada@example.com", "brandnew123")
	require.NoError(t, err)

	_, err = f.svc.ResetPassword(ctx, token, "again12345")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidOrExpiredToken, apperr.KindOf(err))
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com", resetBase))
	token := f.notifier.lastToken(t)

	f.clock.Advance(11 * time.Minute)
	_, err := f.svc.ResetPassword(ctx, token, "brandnew123")
	assert.Equal(t, apperr.InvalidOrExpiredToken, apperr.KindOf(err))

	_, err = f.svc.ResetPassword(ctx, "", "brandnew123")
	assert.Equal(t, apperr.InvalidOrExpiredToken, apperr.KindOf(err))
}

func TestForgotPassword_RollsBackOnDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "ada@example.com")

	f.notifier.err = errors.New("smtp down")

	err := f.svc.ForgotPassword(ctx, "ada@example.com", resetBase)
	require.Error(t, err)
	assert.Equal(t, apperr.DeliveryError, apperr.KindOf(err))

	stored, err := f.users.GetByID(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetTokenHash)
	assert.Nil(t, stored.PasswordResetExpiresAt)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ForgotPassword(context.Background(), "ghost@example.com", resetBase)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Empty(t, f.notifier.sent)
}

func TestRestrictTo(t *testing.T) {
	adminOnly := RestrictTo(user.RoleAdmin)

	err := adminOnly(user.User{Role: user.RoleUser})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	assert.NoError(t, adminOnly(user.User{Role: user.RoleAdmin}))

	staff := RestrictTo(user.RoleAdmin, user.RoleLeadGuide)
	assert.NoError(t, staff(user.User{Role: user.RoleLeadGuide}))
	assert.Error(t, staff(user.User{Role: user.RoleLead}))
}

func TestUpdateMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "ada@example.com")
	f.signup(t, "bob@example.com")

	name := "Ada Lovelace"
	got, err := f.svc.UpdateMe(ctx, a.User.ID, UpdateMeInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, a.User.PasswordHash, got.PasswordHash)

	taken := "BOB@example.com"
	_, err = f.svc.UpdateMe(ctx, a.User.ID, UpdateMeInput{Email: &taken})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

type countingRecorder struct{ outcomes []string }

func (r *countingRecorder) AuthOutcome(op, outcome string) {
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func TestService_RecordsOutcomes(t *testing.T) {
	f := newFixture(t)
	rec := &countingRecorder{}
	f.svc.metrics = rec

	f.signup(t, "ada@example.com")
	_, _ = f.svc.Login(context.Background(), "ada@example.com", "bad-pass")

	assert.Equal(t, []string{"signup:ok", "login:unauthorized"}, rec.outcomes)
}

func TestGenerateResetToken_Deterministic(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xab}, 32))

	token, hash, err := GenerateResetToken(src)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), token)
	assert.Equal(t, HashResetToken(token), hash)

	_, _, err = GenerateResetToken(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}
