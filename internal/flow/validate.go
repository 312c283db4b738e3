package flow

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/congo-pay/citizen_portal/internal/otp"
)

// Form field names, shared with the page templates.
const (
	FieldOTP             = "otp"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldLoginID         = "login_id"
	FieldEmail           = "email"
	FieldForm            = "form"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

const (
	msgCodeLength     = "OTP must be 6 digits"
	msgCodeDigits     = "OTP must contain only digits"
	msgPasswordLength = "Password must be at least 6 characters"
	msgPasswordMatch  = "Passwords don't match"

	msgLoginIDRequired = "User ID is required"
	msgNoAccount       = "No account found for this User ID"
	msgWrongPassword   = "Incorrect password"
	msgEmailTaken      = "An account with this email already exists"
)

// FieldErrors maps a form field to its message.
type FieldErrors map[string]string

// ValidationError reports field-level shape problems. Nothing was stored or sent.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// ValidateCode checks the shape of an OTP. It returns nil when the code is
// exactly six ASCII digits.
func ValidateCode(code string) FieldErrors {
	if len(code) != otp.CodeLength {
		return FieldErrors{FieldOTP: msgCodeLength}
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return FieldErrors{FieldOTP: msgCodeDigits}
		}
	}
	return nil
}

// ValidateRegistration checks the OTP and the new password pair. Password length
// counts characters, not bytes. A password that is too short is reported on its own; the match is only compared once the
// password itself is acceptable.
func ValidateRegistration(code, password, confirm string) FieldErrors {
	errs := ValidateCode(code)
	if errs == nil {
		errs = FieldErrors{}
	}
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		errs[FieldPassword] = msgPasswordLength
	case password != confirm:
		errs[FieldConfirmPassword] = msgPasswordMatch
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
