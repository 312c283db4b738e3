// Package flow implements the login and registration form flows: starting a
// flow, verifying its one-time password and turning a verified flow into a
// client session.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/citizen_portal/internal/identity"
	"github.com/congo-pay/citizen_portal/internal/otp"
	"github.com/congo-pay/citizen_portal/internal/session"
)

var (
	ErrNoPendingLogin        = errors.New("no pending login found")
	ErrNoPendingRegistration = errors.New("no pending registration found")
	// ErrUnavailable marks storage or verification backend failures. The user may retry.
	ErrUnavailable = errors.New("verification service unavailable")
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(user identity.User) (string, error)
}

// Codes issues and verifies one-time passwords.
type Codes interface {
	otp.Issuer
	otp.Verifier
}

// Options configures a Service.
type Options struct {
	// LandingPath is where a verified flow navigates to.
	LandingPath string
	// Placeholders lets verification proceed for markers that match no stored
	// account by synthesizing a demo profile. Only for mock OTP mode.
	Placeholders bool
}

// Result tells the caller where to navigate after a verified flow. FullReload is
// always set: the navigation must be a full page load so every cached view of
// the client session is re-read.
type Result struct {
	Redirect   string
	FullReload bool
}

// Service runs the form flows against one client's Store.
type Service struct {
	accounts *identity.Service
	codes    Codes
	tokens   TokenIssuer
	opts     Options
	logger   *slog.Logger
}

// NewService wires a flow service.
func NewService(accounts *identity.Service, codes Codes, tokens TokenIssuer, opts Options, logger *slog.Logger) *Service {
	if opts.LandingPath == "" {
		opts.LandingPath = "/dashboard"
	}
	return &Service{accounts: accounts, codes: codes, tokens: tokens, opts: opts, logger: logger}
}

// StartLogin checks the User ID and password, sends the account a code and
// leaves a pending login marker on the client. With placeholders enabled an
// unknown User ID proceeds without a password check.
func (s *Service) StartLogin(ctx context.Context, store *session.Store, loginID, password string) error {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return &ValidationError{Fields: FieldErrors{FieldLoginID: msgLoginIDRequired}}
	}

	subject, phone := loginID, ""
	account, err := s.accounts.Authenticate(ctx, loginID, password)
	switch {
	case err == nil:
		subject, phone = account.ID, account.PhoneNumber
	case errors.Is(err, identity.ErrNotFound) && s.opts.Placeholders:
	case errors.Is(err, identity.ErrNotFound):
		return &ValidationError{Fields: FieldErrors{FieldLoginID: msgNoAccount}}
	case errors.Is(err, identity.ErrInvalidCredentials):
		s.logger.Info("flow.login rejected", slog.String("client", store.ClientID()), slog.String("login_id", loginID))
		return &ValidationError{Fields: FieldErrors{FieldPassword: msgWrongPassword}}
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := s.codes.Issue(ctx, otp.PurposeLogin, subject, phone); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := store.SetPendingLogin(ctx, subject); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("flow.login started", slog.String("client", store.ClientID()), slog.String("user_id", subject))
	return nil
}

// StartRegistration creates a pending account, sends it a code and leaves the
// pending registration markers on the client.
func (s *Service) StartRegistration(ctx context.Context, store *session.Store, in identity.RegistrationInput) (identity.Account, error) {
	account, err := s.accounts.Register(ctx, in)
	var regErr *identity.RegistrationError
	switch {
	case err == nil:
	case errors.As(err, &regErr):
		return identity.Account{}, &ValidationError{Fields: FieldErrors(regErr.Fields)}
	case errors.Is(err, identity.ErrExists):
		return identity.Account{}, &ValidationError{Fields: FieldErrors{FieldEmail: msgEmailTaken}}
	default:
		return identity.Account{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := s.codes.Issue(ctx, otp.PurposeRegistration, account.ID, account.PhoneNumber); err != nil {
		return identity.Account{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	pending := session.PendingRegistration{UserID: account.ID, GeneratedID: account.LoginID}
	if err := store.SetPendingRegistration(ctx, pending); err != nil {
		return identity.Account{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("flow.registration started", slog.String("client", store.ClientID()), slog.String("user_id", account.ID))
	return account, nil
}

// VerifyLogin completes a pending login.
func (s *Service) VerifyLogin(ctx context.Context, store *session.Store, code string) (Result, error) {
	userID, ok, err := store.PendingLogin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return Result{}, ErrNoPendingLogin
	}
	if errs := ValidateCode(code); errs != nil {
		return Result{}, &ValidationError{Fields: errs}
	}
	if err := s.verify(ctx, otp.PurposeLogin, userID, code); err != nil {
		if errors.Is(err, otp.ErrTooManyAttempts) {
			s.dropMarker(ctx, store.ClearPendingLogin)
		}
		return Result{}, err
	}

	user, err := s.loginUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPendingLogin) {
			s.dropMarker(ctx, store.ClearPendingLogin)
		}
		return Result{}, err
	}
	if err := s.establish(ctx, store, user); err != nil {
		return Result{}, err
	}
	if err := store.ClearPendingLogin(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("flow.login verified", slog.String("client", store.ClientID()), slog.String("user_id", user.ID))
	return Result{Redirect: s.opts.LandingPath, FullReload: true}, nil
}

// VerifyRegistration completes a pending registration and sets its password.
func (s *Service) VerifyRegistration(ctx context.Context, store *session.Store, code, password, confirm string) (Result, error) {
	pending, ok, err := store.PendingRegistration(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return Result{}, ErrNoPendingRegistration
	}
	if errs := ValidateRegistration(code, password, confirm); errs != nil {
		return Result{}, &ValidationError{Fields: errs}
	}
	if err := s.verify(ctx, otp.PurposeRegistration, pending.UserID, code); err != nil {
		if errors.Is(err, otp.ErrTooManyAttempts) {
			s.dropMarker(ctx, store.ClearPendingRegistration)
		}
		return Result{}, err
	}

	user, err := s.activate(ctx, pending.UserID, password)
	if err != nil {
		if errors.Is(err, ErrNoPendingRegistration) {
			s.dropMarker(ctx, store.ClearPendingRegistration)
		}
		return Result{}, err
	}
	if err := s.establish(ctx, store, user); err != nil {
		return Result{}, err
	}
	if err := store.ClearPendingRegistration(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("flow.registration verified", slog.String("client", store.ClientID()), slog.String("user_id", user.ID))
	return Result{Redirect: s.opts.LandingPath, FullReload: true}, nil
}

// Resend issues a fresh code for the client's pending flow.
func (s *Service) Resend(ctx context.Context, store *session.Store, purpose otp.Purpose) error {
	var (
		subject string
		ok      bool
		err     error
		missing error
	)
	switch purpose {
	case otp.PurposeLogin:
		subject, ok, err = store.PendingLogin(ctx)
		missing = ErrNoPendingLogin
	case otp.PurposeRegistration:
		var p session.PendingRegistration
		p, ok, err = store.PendingRegistration(ctx)
		subject, missing = p.UserID, ErrNoPendingRegistration
	default:
		return fmt.Errorf("unknown otp purpose %q", purpose)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return missing
	}

	phone := ""
	account, err := s.accounts.Get(ctx, subject)
	switch {
	case err == nil:
		phone = account.PhoneNumber
	case errors.Is(err, identity.ErrNotFound) && s.opts.Placeholders:
	case errors.Is(err, identity.ErrNotFound):
		return missing
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.codes.Issue(ctx, purpose, subject, phone); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SignOut removes the session and any pending markers.
func (s *Service) SignOut(ctx context.Context, store *session.Store) error {
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("flow.signed out", slog.String("client", store.ClientID()))
	return nil
}

// verify passes rejections through unchanged and wraps everything else as ErrUnavailable.
func (s *Service) verify(ctx context.Context, purpose otp.Purpose, subject, code string) error {
	err := s.codes.Verify(ctx, purpose, subject, code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrCodeIncorrect), errors.Is(err, otp.ErrCodeExpired), errors.Is(err, otp.ErrTooManyAttempts):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *Service) loginUser(ctx context.Context, userID string) (identity.User, error) {
	account, err := s.accounts.Get(ctx, userID)
	switch {
	case err == nil && account.Status == identity.StatusActive:
		return account.User, nil
	case err == nil, errors.Is(err, identity.ErrNotFound):
		if s.opts.Placeholders {
			return placeholderUser(userID), nil
		}
		return identity.User{}, ErrNoPendingLogin
	default:
		return identity.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *Service) activate(ctx context.Context, userID, password string) (identity.User, error) {
	account, err := s.accounts.Activate(ctx, userID, password)
	switch {
	case err == nil:
		return account.User, nil
	case errors.Is(err, identity.ErrPasswordTooShort):
		return identity.User{}, &ValidationError{Fields: FieldErrors{FieldPassword: msgPasswordLength}}
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, identity.ErrNotPending):
		if s.opts.Placeholders {
			return placeholderUser(userID), nil
		}
		return identity.User{}, ErrNoPendingRegistration
	default:
		return identity.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *Service) establish(ctx context.Context, store *session.Store, user identity.User) error {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if err := store.Write(ctx, token, user); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Service) dropMarker(ctx context.Context, clear func(context.Context) error) {
	if err := clear(ctx); err != nil {
		s.logger.Warn("flow.clear pending marker failed", slog.Any("error", err))
	}
}

// placeholderUser is the demo profile used when OTP checks are mocked.
func placeholderUser(id string) identity.User {
	return identity.User{
		ID:            id,
		FullName:      "Demo User",
		Email:         "demo@example.com",
		PhoneNumber:   "9876543210",
		Role:          identity.RoleUser,
		AadhaarNumber: "123456789012",
		Address:       "Demo Address, Demo City",
	}
}
