package services_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/repository"
	"github.com/abrezinsky/votedesk/internal/repository/mock"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/session"
	"github.com/abrezinsky/votedesk/internal/testutil"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

var authNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type authFixture struct {
	svc    *services.AuthService
	store  *session.Store
	repo   *repository.Repository
	client *votingapi.MockClient
	clock  *time.Time
}

func newAuthFixture(t *testing.T, opts ...votingapi.MockOption) *authFixture {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	store := session.NewStore()
	client := votingapi.NewMockClient(opts...)
	svc := services.NewAuthService(logger.Discard(), client, store, repo)

	now := authNow
	f := &authFixture{svc: svc, store: store, repo: repo, client: client, clock: &now}
	svc.SetClock(func() time.Time { return *f.clock })
	return f
}

func (f *authFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestAuthService_Login_Admin(t *testing.T) {
	token := testutil.NewToken(t, models.RoleAdmin, authNow.Add(time.Hour))
	f := newAuthFixture(t, votingapi.WithLogin("admin@example.com", token))
	ctx := context.Background()

	claims, err := f.svc.Login(ctx, " admin@example.com ", "whatever")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("expected ADMIN, got %s", claims.Role)
	}

	snap := f.store.Snapshot()
	if !snap.Authenticated() || snap.Token != token {
		t.Errorf("session not set: %+v", snap)
	}
	persisted, err := f.repo.GetSetting(ctx, repository.KeyAuthToken)
	if err != nil || persisted != token {
		t.Errorf("token not persisted: %q %v", persisted, err)
	}
}

func TestAuthService_Login_ValidationSkipsNetwork(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Login(context.Background(), "not-an-email", "")
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.client.Calls != 0 {
		t.Errorf("expected no backend calls, got %d", f.client.Calls)
	}
}

func TestAuthService_Login_BadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Login(context.Background(), "nobody@example.com", "wrong")
	if !errors.Is(err, errors.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if err.Error() != "Invalid email or password" {
		t.Errorf("expected backend message verbatim, got %q", err.Error())
	}
}

func TestAuthService_Login_UndecodableToken(t *testing.T) {
	f := newAuthFixture(t, votingapi.WithLogin("a@example.com", "not.a.jwt"))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "a@example.com", "pw")
	if err == nil || err.Error() != "Invalid token structure" {
		t.Fatalf("expected invalid token structure, got %v", err)
	}
	if f.store.Snapshot().Authenticated() {
		t.Error("session must not be set")
	}
	if _, err := f.repo.GetSetting(ctx, repository.KeyAuthToken); !stderrors.Is(err, repository.ErrNotFound) {
		t.Error("token must not be persisted")
	}
}

func TestAuthService_Login_AlreadyExpiredToken(t *testing.T) {
	token := testutil.NewToken(t, models.RoleVoter, authNow.Add(-time.Minute))
	f := newAuthFixture(t, votingapi.WithLogin("a@example.com", token))

	_, err := f.svc.Login(context.Background(), "a@example.com", "pw")
	if !errors.Is(err, errors.ErrCredential) {
		t.Errorf("expected credential error, got %v", err)
	}
	if f.store.Snapshot().Authenticated() {
		t.Error("expired token must not create a session")
	}
}

func TestAuthService_Login_TransportFailure(t *testing.T) {
	f := newAuthFixture(t, votingapi.WithLoginError(votingapi.TransportError()))
	_, err := f.svc.Login(context.Background(), "a@example.com", "pw")
	if !errors.Is(err, errors.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var appErr *errors.Error
	if !errors.As(err, &appErr) || !strings.Contains(appErr.Message, "Unable to reach") {
		t.Errorf("expected generic message, got %v", err)
	}
}

func TestAuthService_Login_PersistFailure(t *testing.T) {
	token := testutil.NewToken(t, models.RoleVoter, authNow.Add(time.Hour))
	repo := mock.NewRepository(testutil.NewTestRepository(t))
	repo.SetSettingError = stderrors.New("readonly database")
	store := session.NewStore()
	svc := services.NewAuthService(logger.Discard(), votingapi.NewMockClient(votingapi.WithLogin("a@example.com", token)), store, repo)
	svc.SetClock(func() time.Time { return authNow })

	if _, err := svc.Login(context.Background(), "a@example.com", "pw"); !errors.Is(err, errors.ErrInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
	if store.Snapshot().Authenticated() {
		t.Error("session must not be set when the token could not be persisted")
	}
}

func TestAuthService_Logout(t *testing.T) {
	token := testutil.NewToken(t, models.RoleVoter, authNow.Add(time.Hour))
	f := newAuthFixture(t, votingapi.WithLogin("a@example.com", token))
	ctx := context.Background()
	f.svc.Login(ctx, "a@example.com", "pw")

	if err := f.svc.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if f.store.Snapshot().Authenticated() {
		t.Error("session should be cleared")
	}
	if _, err := f.repo.GetSetting(ctx, repository.KeyAuthToken); !stderrors.Is(err, repository.ErrNotFound) {
		t.Error("persisted token should be deleted")
	}
}

func TestAuthService_Current_ClearsExpiredSession(t *testing.T) {
	token := testutil.NewToken(t, models.RoleCandidate, authNow.Add(time.Minute))
	f := newAuthFixture(t, votingapi.WithLogin("a@example.com", token))
	ctx := context.Background()
	f.svc.Login(ctx, "a@example.com", "pw")

	if !f.svc.Current(ctx).Authenticated() {
		t.Fatal("expected session before expiry")
	}

	f.advance(time.Minute)
	if f.svc.Current(ctx).Authenticated() {
		t.Error("session at expiry must be cleared")
	}
	if _, err := f.repo.GetSetting(ctx, repository.KeyAuthToken); !stderrors.Is(err, repository.ErrNotFound) {
		t.Error("expired token should be deleted")
	}
}

func TestAuthService_RegistrationFlow(t *testing.T) {
	f := newAuthFixture(t, votingapi.WithValidOTP("4321"))
	ctx := context.Background()
	email := "New.User@Example.com"

	if err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, email); err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	if len(f.client.OTPsSent) != 1 || f.client.OTPsSent[0].Email != "new.user@example.com" {
		t.Errorf("unexpected OTP sends: %+v", f.client.OTPsSent)
	}

	form := services.RegistrationForm{
		Name: "New User", Email: email, Password: "Str0ng!pass", ConfirmPassword: "Str0ng!pass", AcceptTerms: true,
	}
	if err := f.svc.CompleteRegistration(ctx, form); !stderrors.Is(err, services.ErrNotVerified) {
		t.Errorf("expected ErrNotVerified before verification, got %v", err)
	}

	if err := f.svc.VerifyOTP(ctx, votingapi.PurposeRegister, email, "0000"); !errors.Is(err, errors.ErrRejected) {
		t.Errorf("expected wrong code to be rejected, got %v", err)
	}
	if err := f.svc.VerifyOTP(ctx, votingapi.PurposeRegister, email, "4321"); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if got := f.client.OTPsVerified[len(f.client.OTPsVerified)-1].Purpose; got != votingapi.PurposeRegister {
		t.Errorf("expected REGISTER purpose, got %s", got)
	}

	if err := f.svc.CompleteRegistration(ctx, form); err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
	if len(f.client.Registered) != 1 || f.client.Registered[0].OTP != "4321" {
		t.Errorf("unexpected registrations: %+v", f.client.Registered)
	}

	// The verified code is consumed
	if err := f.svc.CompleteRegistration(ctx, form); !stderrors.Is(err, services.ErrNotVerified) {
		t.Errorf("expected second completion to need verification, got %v", err)
	}
}

func TestAuthService_RegistrationValidation(t *testing.T) {
	f := newAuthFixture(t)
	err := f.svc.CompleteRegistration(context.Background(), services.RegistrationForm{
		Name: "A", Email: "a@example.com", Password: "weak", ConfirmPassword: "weak", AcceptTerms: true,
	})
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.client.Calls != 0 {
		t.Error("validation errors must not reach the backend")
	}
}

func TestAuthService_VerifiedCodeExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.svc.RequestOTP(ctx, votingapi.PurposePasswordReset, "a@example.com")
	if err := f.svc.VerifyOTP(ctx, votingapi.PurposePasswordReset, "a@example.com", "1234"); err != nil {
		t.Fatal(err)
	}

	f.advance(11 * time.Minute)
	err := f.svc.CompletePasswordReset(ctx, services.PasswordResetForm{
		Email: "a@example.com", Password: "N3w!passw", ConfirmPassword: "N3w!passw",
	})
	if !stderrors.Is(err, services.ErrNotVerified) {
		t.Errorf("expected ErrNotVerified after the verified code aged out, got %v", err)
	}
}

func TestAuthService_PasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.RequestOTP(ctx, votingapi.PurposePasswordReset, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	if f.client.OTPsSent[0].Purpose != votingapi.PurposePasswordReset {
		t.Errorf("expected reset OTP, got %+v", f.client.OTPsSent)
	}
	if err := f.svc.VerifyOTP(ctx, votingapi.PurposePasswordReset, "a@example.com", "1234"); err != nil {
		t.Fatal(err)
	}
	// A code verified for reset does not complete a registration
	if err := f.svc.CompleteRegistration(ctx, services.RegistrationForm{
		Name: "A", Email: "a@example.com", Password: "N3w!passw", ConfirmPassword: "N3w!passw", AcceptTerms: true,
	}); !stderrors.Is(err, services.ErrNotVerified) {
		t.Errorf("expected purposes to be separate, got %v", err)
	}

	err := f.svc.CompletePasswordReset(ctx, services.PasswordResetForm{
		Email: "a@example.com", Password: "N3w!passw", ConfirmPassword: "N3w!passw",
	})
	if err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}
	if len(f.client.Resets) != 1 || f.client.Resets[0].OTP != "1234" {
		t.Errorf("unexpected resets: %+v", f.client.Resets)
	}
}

func TestAuthService_OTPCooldown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, "a@example.com"); err != nil {
		t.Fatal(err)
	}

	f.advance(20 * time.Second)
	err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, "A@example.com")
	var cooldown *services.CooldownError
	if !stderrors.As(err, &cooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if cooldown.Remaining != 40*time.Second {
		t.Errorf("expected 40s remaining, got %v", cooldown.Remaining)
	}
	if err.Error() != "Please wait 40s before requesting another code" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict kind, got %v", errors.KindOf(err))
	}

	// Other purposes and emails are independent
	if err := f.svc.RequestOTP(ctx, votingapi.PurposePasswordReset, "a@example.com"); err != nil {
		t.Errorf("reset code should not share the cooldown: %v", err)
	}
	if err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, "b@example.com"); err != nil {
		t.Errorf("other email should not share the cooldown: %v", err)
	}

	f.advance(40 * time.Second)
	if f.svc.ResendIn(votingapi.PurposeRegister, "a@example.com") != 0 {
		t.Error("cooldown should be over")
	}
	if err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, "a@example.com"); err != nil {
		t.Errorf("expected resend after cooldown, got %v", err)
	}
	if len(f.client.OTPsSent) != 4 {
		t.Errorf("expected 4 sends, got %d", len(f.client.OTPsSent))
	}
}

func TestAuthService_FailedSendDoesNotStartCooldown(t *testing.T) {
	f := newAuthFixture(t, votingapi.WithOTPSendError(&votingapi.APIError{Status: 409, Message: "Email already registered"}))
	ctx := context.Background()

	err := f.svc.RequestOTP(ctx, votingapi.PurposeRegister, "a@example.com")
	if err == nil || err.Error() != "Email already registered" {
		t.Fatalf("expected backend message, got %v", err)
	}
	if f.svc.ResendIn(votingapi.PurposeRegister, "a@example.com") != 0 {
		t.Error("failed send must not start the cooldown")
	}
}

func TestAuthService_Expire(t *testing.T) {
	token := testutil.NewToken(t, models.RoleVoter, authNow.Add(time.Hour))
	f := newAuthFixture(t, votingapi.WithLogin("a@example.com", token))
	ctx := context.Background()
	f.svc.Login(ctx, "a@example.com", "pw")

	f.svc.Expire(ctx)
	if f.store.Snapshot().Authenticated() {
		t.Error("expected session cleared")
	}
	// Expiring without a session is a no-op
	f.svc.Expire(ctx)
}
