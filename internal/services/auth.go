package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/repository"
	"github.com/abrezinsky/votedesk/internal/session"
	"github.com/abrezinsky/votedesk/internal/tokens"
	"github.com/abrezinsky/votedesk/internal/validate"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

const (
	// OTPCooldown is the minimum time between two codes for the same flow and email.
	OTPCooldown = 60 * time.Second
	// verifiedTTL bounds how long a verified code may be used to finish a flow.
	verifiedTTL = 10 * time.Minute
)

// RegistrationForm is the final registration step
type RegistrationForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
}

// PasswordResetForm is the final password reset step
type PasswordResetForm struct {
	Email           string
	Password        string
	ConfirmPassword string
}

type flowKey struct {
	purpose votingapi.OTPPurpose
	email   string
}

type verifiedOTP struct {
	otp string
	at  time.Time
}

// AuthService handles sign-in, sign-out and the OTP-verified account flows
type AuthService struct {
	log    logger.Logger
	client votingapi.Client
	store  *session.Store
	tokens session.TokenStore
	now    func() time.Time

	mu       sync.Mutex
	sentAt   map[flowKey]time.Time
	verified map[flowKey]verifiedOTP
}

// NewAuthService creates a new AuthService
func NewAuthService(log logger.Logger, client votingapi.Client, store *session.Store, ts session.TokenStore) *AuthService {
	return &AuthService{
		log:      log,
		client:   client,
		store:    store,
		tokens:   ts,
		now:      time.Now,
		sentAt:   map[flowKey]time.Time{},
		verified: map[flowKey]verifiedOTP{},
	}
}

// SetClock overrides the wall clock. Used by tests.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// Login validates credentials, exchanges them for a token and persists the session.
// Nothing is stored unless the token decodes and has not expired.
func (s *AuthService) Login(ctx context.Context, email, password string) (tokens.Claims, error) {
	email = strings.TrimSpace(email)
	if err := validate.Login(email, password); err != nil {
		return tokens.Claims{}, err
	}

	token, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.log.Info("Login rejected", "email", email, "error", err)
		return tokens.Claims{}, remoteFailure(err, errors.ErrCredential)
	}

	claims, err := tokens.Decode(token)
	if err != nil {
		s.log.Warn("Backend issued an undecodable token", "email", email, "error", err)
		return tokens.Claims{}, errors.Credential(msgInvalidToken)
	}
	if claims.Expired(s.now()) {
		return tokens.Claims{}, errors.Credential("Your session has expired. Please sign in again.")
	}

	if err := s.tokens.SetSetting(ctx, repository.KeyAuthToken, token); err != nil {
		return tokens.Claims{}, errors.Internal(err)
	}
	if err := s.store.SetAuthenticated(token, claims); err != nil {
		return tokens.Claims{}, err
	}

	s.log.Info("Signed in", "email", claims.Email, "role", claims.Role)
	return claims, nil
}

// Logout clears the session and the persisted token
func (s *AuthService) Logout(ctx context.Context) error {
	snap := s.store.Snapshot()
	s.store.Clear()
	if err := s.tokens.DeleteSetting(ctx, repository.KeyAuthToken); err != nil {
		return errors.Internal(err)
	}
	if snap.Claims != nil {
		s.log.Info("Signed out", "email", snap.Claims.Email)
	}
	return nil
}

// Current returns the session, clearing it first if the token has expired
func (s *AuthService) Current(ctx context.Context) session.Snapshot {
	snap := s.store.Snapshot()
	if snap.Authenticated() && snap.Claims.Expired(s.now()) {
		s.Expire(ctx)
		return s.store.Snapshot()
	}
	return snap
}

// Expire silently drops a session the backend or the clock no longer accepts
func (s *AuthService) Expire(ctx context.Context) {
	snap := s.store.Snapshot()
	if !snap.Authenticated() {
		return
	}
	s.store.Clear()
	if err := s.tokens.DeleteSetting(ctx, repository.KeyAuthToken); err != nil {
		s.log.Warn("Failed to delete expired session token", "error", err)
	}
	s.log.Info("Session expired", "email", snap.Claims.Email)
}

// ResendIn returns how long until another code may be requested
func (s *AuthService) ResendIn(purpose votingapi.OTPPurpose, email string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resendInLocked(flowKey{purpose, normalizeEmail(email)})
}

func (s *AuthService) resendInLocked(key flowKey) time.Duration {
	last, ok := s.sentAt[key]
	if !ok {
		return 0
	}
	return max(OTPCooldown-s.now().Sub(last), 0)
}

// RequestOTP sends a verification code for purpose to email
func (s *AuthService) RequestOTP(ctx context.Context, purpose votingapi.OTPPurpose, email string) error {
	var p validate.Problems
	validate.Email(&p, email)
	if err := p.Err(); err != nil {
		return err
	}

	key := flowKey{purpose, normalizeEmail(email)}
	s.mu.Lock()
	if wait := s.resendInLocked(key); wait > 0 {
		s.mu.Unlock()
		return &CooldownError{Remaining: wait}
	}
	s.sentAt[key] = s.now()
	delete(s.verified, key)
	s.mu.Unlock()

	var err error
	switch purpose {
	case votingapi.PurposeRegister:
		err = s.client.RequestRegistrationOTP(ctx, key.email)
	case votingapi.PurposePasswordReset:
		err = s.client.RequestPasswordResetOTP(ctx, key.email)
	default:
		err = errors.InvalidInputf("unknown OTP purpose %q", purpose)
	}
	if err != nil {
		// A code that was never sent does not start the cooldown.
		s.mu.Lock()
		delete(s.sentAt, key)
		s.mu.Unlock()
		return remoteFailure(err, errors.ErrRejected)
	}

	s.log.Info("Verification code requested", "purpose", purpose, "email", key.email)
	return nil
}

// VerifyOTP checks a code and remembers it for the final step of the flow
func (s *AuthService) VerifyOTP(ctx context.Context, purpose votingapi.OTPPurpose, email, otp string) error {
	var p validate.Problems
	validate.Email(&p, email)
	validate.OTP(&p, otp)
	if err := p.Err(); err != nil {
		return err
	}

	key := flowKey{purpose, normalizeEmail(email)}
	otp = strings.TrimSpace(otp)
	if err := s.client.VerifyOTP(ctx, key.email, otp, purpose); err != nil {
		return remoteFailure(err, errors.ErrRejected)
	}

	s.mu.Lock()
	s.verified[key] = verifiedOTP{otp: otp, at: s.now()}
	s.mu.Unlock()
	return nil
}

func (s *AuthService) takeVerified(purpose votingapi.OTPPurpose, email string) (string, error) {
	key := flowKey{purpose, normalizeEmail(email)}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verified[key]
	if !ok || s.now().Sub(v.at) > verifiedTTL {
		delete(s.verified, key)
		return "", ErrNotVerified
	}
	return v.otp, nil
}

func (s *AuthService) finish(purpose votingapi.OTPPurpose, email string) {
	key := flowKey{purpose, normalizeEmail(email)}
	s.mu.Lock()
	delete(s.verified, key)
	delete(s.sentAt, key)
	s.mu.Unlock()
}

// CompleteRegistration creates the account using the verified code
func (s *AuthService) CompleteRegistration(ctx context.Context, form RegistrationForm) error {
	if err := validate.Registration(form.Name, form.Email, form.Password, form.ConfirmPassword, form.AcceptTerms); err != nil {
		return err
	}
	otp, err := s.takeVerified(votingapi.PurposeRegister, form.Email)
	if err != nil {
		return err
	}

	err = s.client.Register(ctx, votingapi.RegisterRequest{
		Email:    normalizeEmail(form.Email),
		Password: form.Password,
		Name:     strings.TrimSpace(form.Name),
		OTP:      otp,
	})
	if err != nil {
		return remoteFailure(err, errors.ErrRejected)
	}

	s.finish(votingapi.PurposeRegister, form.Email)
	s.log.Info("Account registered", "email", normalizeEmail(form.Email))
	return nil
}

// CompletePasswordReset sets the new password using the verified code
func (s *AuthService) CompletePasswordReset(ctx context.Context, form PasswordResetForm) error {
	if err := validate.PasswordReset(form.Email, form.Password, form.ConfirmPassword); err != nil {
		return err
	}
	otp, err := s.takeVerified(votingapi.PurposePasswordReset, form.Email)
	if err != nil {
		return err
	}

	err = s.client.ResetPassword(ctx, votingapi.ResetPasswordRequest{
		Email:    normalizeEmail(form.Email),
		Password: form.Password,
		OTP:      otp,
	})
	if err != nil {
		return remoteFailure(err, errors.ErrRejected)
	}

	s.finish(votingapi.PurposePasswordReset, form.Email)
	s.log.Info("Password reset", "email", normalizeEmail(form.Email))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
