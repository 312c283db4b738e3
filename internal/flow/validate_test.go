package flow

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateCodeAcceptsSixDigits(t *testing.T) {
	for i := 0; i < 1_000_000; i += 7919 {
		code := fmt.Sprintf("%06d", i)
		if errs := ValidateCode(code); errs != nil {
			t.Fatalf("code %s rejected: %v", code, errs)
		}
	}
	if errs := ValidateCode("123456"); errs != nil {
		t.Fatalf("123456 rejected: %v", errs)
	}
}

func TestValidateCodeRejectsOtherLengths(t *testing.T) {
	for n := 0; n <= 12; n++ {
		if n == 6 {
			continue
		}
		code := strings.Repeat("1", n)
		errs := ValidateCode(code)
		if errs[FieldOTP] != msgCodeLength {
			t.Fatalf("length %d: expected length error, got %v", n, errs)
		}
	}
}

func TestValidateCodeRejectsNonDigits(t *testing.T) {
	for _, code := range []string{"12345a", " 12345", "١٢٣", "12.456"} {
		errs := ValidateCode(code)
		if errs == nil {
			t.Fatalf("%q accepted", code)
		}
	}
	if errs := ValidateCode("abcdef"); errs[FieldOTP] != msgCodeDigits {
		t.Fatalf("expected digits error, got %v", errs)
	}
}

func TestValidateRegistrationPasswords(t *testing.T) {
	for n := 0; n < MinPasswordLength; n++ {
		pw := strings.Repeat("p", n)
		for _, confirm := range []string{pw, pw + "x", ""} {
			errs := ValidateRegistration("123456", pw, confirm)
			if errs[FieldPassword] != msgPasswordLength {
				t.Fatalf("short password %q/%q: expected length error, got %v", pw, confirm, errs)
			}
		}
	}

	for n := MinPasswordLength; n < 12; n++ {
		pw := strings.Repeat("p", n)
		errs := ValidateRegistration("123456", pw, pw+"!")
		if errs[FieldConfirmPassword] != msgPasswordMatch {
			t.Fatalf("mismatch %q: expected match error, got %v", pw, errs)
		}
		if errs := ValidateRegistration("123456", pw, pw); errs != nil {
			t.Fatalf("matching %q rejected: %v", pw, errs)
		}
	}
}

func TestValidateRegistrationCombinesFields(t *testing.T) {
	errs := ValidateRegistration("12", "secret1", "secret2")
	if errs[FieldOTP] != msgCodeLength || errs[FieldConfirmPassword] != msgPasswordMatch {
		t.Fatalf("expected otp and confirm errors, got %v", errs)
	}
	err := &ValidationError{Fields: errs}
	if !strings.Contains(err.Error(), "confirm_password") || !strings.Contains(err.Error(), "otp") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestValidateRegistrationCountsCharacters(t *testing.T) {
	for _, pw := range []string{"ééé", "日本語", "🔑🔑🔑🔑🔑"} {
		if errs := ValidateRegistration("123456", pw, pw); errs[FieldPassword] != msgPasswordLength {
			t.Fatalf("%q (%d bytes): expected length error, got %v", pw, len(pw), errs)
		}
	}
	if errs := ValidateRegistration("123456", "éééééé", "éééééé"); errs != nil {
		t.Fatalf("six multi-byte characters rejected: %v", errs)
	}
}
