// Package otp issues and checks six-digit one-time passwords.
package otp

import (
	"context"
	"errors"
)

// Purpose scopes a code to one flow.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeRegistration Purpose = "registration"
)

// CodeLength is the number of digits in every code.
const CodeLength = 6

var (
	ErrCodeIncorrect   = errors.New("code incorrect")
	ErrCodeExpired     = errors.New("code expired")
	ErrTooManyAttempts = errors.New("too many attempts")
)

// Verifier decides whether code is the live code for subject.
type Verifier interface {
	Verify(ctx context.Context, purpose Purpose, subject, code string) error
}

// Issuer creates a fresh code for subject and delivers it to destination.
type Issuer interface {
	Issue(ctx context.Context, purpose Purpose, subject, destination string) error
}

// AcceptAll accepts every code it is given. It stands in for a real check in
// local development and must never be enabled in a deployed environment.
type AcceptAll struct{}

func (AcceptAll) Verify(context.Context, Purpose, string, string) error { return nil }

// Issue does not generate anything; any code will be accepted.
func (AcceptAll) Issue(context.Context, Purpose, string, string) error { return nil }
