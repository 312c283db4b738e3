package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/congo-pay/citizen_portal/internal/identity"
)

// ErrEmptyToken is returned by Write when no token is supplied.
var ErrEmptyToken = errors.New("session token is required")

// Session is an authenticated token and the profile it belongs to.
type Session struct {
	Token string
	User  identity.User
}

// PendingRegistration bridges the registration form and its OTP step.
type PendingRegistration struct {
	UserID      string
	GeneratedID string
}

// Store is one client's view of Storage. Handlers receive it from the request
// context and never touch Storage directly.
type Store struct {
	storage Storage
	client  string
}

// NewStore binds storage to a client ID.
func NewStore(storage Storage, client string) *Store {
	return &Store{storage: storage, client: client}
}

// ClientID returns the client this store is bound to.
func (s *Store) ClientID() string { return s.client }

// Read returns the session only when both the token and a well-formed user
// record are present.
func (s *Store) Read(ctx context.Context) (Session, bool, error) {
	token, ok, err := s.storage.Get(ctx, s.client, KeyAuthToken)
	if err != nil || !ok || token == "" {
		return Session{}, false, err
	}
	raw, ok, err := s.storage.Get(ctx, s.client, KeyUserData)
	if err != nil || !ok {
		return Session{}, false, err
	}
	var user identity.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return Session{}, false, nil
	}
	if user.ID == "" || !user.Role.Valid() {
		return Session{}, false, nil
	}
	return Session{Token: token, User: user}, true, nil
}

// Write stores token and user together.
func (s *Store) Write(ctx context.Context, token string, user identity.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.storage.SetMany(ctx, s.client, map[string]string{
		KeyAuthToken: token,
		KeyUserData:  string(payload),
	})
}

// Clear removes the session and every pending marker.
func (s *Store) Clear(ctx context.Context) error {
	return s.storage.Delete(ctx, s.client,
		KeyAuthToken, KeyUserData, KeyLoginUserID, KeyPendingUserID, KeyGeneratedUserID)
}

// IsAuthenticated reports whether Read would yield a session.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	_, ok, err := s.Read(ctx)
	return ok, err
}

// PendingLogin returns the user awaiting login OTP verification.
func (s *Store) PendingLogin(ctx context.Context) (string, bool, error) {
	id, ok, err := s.storage.Get(ctx, s.client, KeyLoginUserID)
	if err != nil || !ok || id == "" {
		return "", false, err
	}
	return id, true, nil
}

// SetPendingLogin records the user awaiting login OTP verification.
func (s *Store) SetPendingLogin(ctx context.Context, userID string) error {
	return s.storage.SetMany(ctx, s.client, map[string]string{KeyLoginUserID: userID})
}

// ClearPendingLogin drops the login marker.
func (s *Store) ClearPendingLogin(ctx context.Context) error {
	return s.storage.Delete(ctx, s.client, KeyLoginUserID)
}

// PendingRegistration returns the registration awaiting OTP verification.
func (s *Store) PendingRegistration(ctx context.Context) (PendingRegistration, bool, error) {
	id, ok, err := s.storage.Get(ctx, s.client, KeyPendingUserID)
	if err != nil || !ok || id == "" {
		return PendingRegistration{}, false, err
	}
	generated, _, err := s.storage.Get(ctx, s.client, KeyGeneratedUserID)
	if err != nil {
		return PendingRegistration{}, false, err
	}
	return PendingRegistration{UserID: id, GeneratedID: generated}, true, nil
}

// SetPendingRegistration records the registration awaiting OTP verification.
func (s *Store) SetPendingRegistration(ctx context.Context, p PendingRegistration) error {
	values := map[string]string{KeyPendingUserID: p.UserID}
	if p.GeneratedID != "" {
		values[KeyGeneratedUserID] = p.GeneratedID
	}
	return s.storage.SetMany(ctx, s.client, values)
}

// ClearPendingRegistration drops both registration markers.
func (s *Store) ClearPendingRegistration(ctx context.Context) error {
	return s.storage.Delete(ctx, s.client, KeyPendingUserID, KeyGeneratedUserID)
}
