package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/config"
	"github.com/congo-pay/citizen_portal/internal/logging"
	"github.com/congo-pay/citizen_portal/internal/session"
)

const testClient = "0b3c8a52-0f6e-4d7e-9a55-3f2b7d1c9e10"

type response struct {
	status   int
	location string
	body     string
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := config.Config{
		AppName:         "CitizenPortal",
		AppEnv:          "test",
		Port:            "8080",
		IdempotencyTTL:  time.Minute,
		AccessTokenTTL:  time.Hour,
		OTPMode:         config.OTPModeMock,
		OTPTTL:          time.Minute,
		OTPMaxAttempts:  5,
		LoginRatePerMin: 100,
		SnowflakeNode:   1,
	}
	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, form url.Values, header http.Header) response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: testClient})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, location: resp.Header.Get(fiber.HeaderLocation), body: string(raw)}
}

func expectRedirect(t *testing.T, r response, location string) {
	t.Helper()
	if r.status != fiber.StatusSeeOther || r.location != location {
		t.Fatalf("expected 303 to %q, got %d %q", location, r.status, r.location)
	}
}

func TestLoginVerifyWithoutPendingMarker(t *testing.T) {
	app := newTestApp(t)

	expectRedirect(t, do(t, app, fiber.MethodGet, "/login-verify", nil, nil), "/login?notice=login-expired")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {"123456"}}, nil), "/login?notice=login-expired")
	expectRedirect(t, do(t, app, fiber.MethodGet, "/verify-otp", nil, nil), "/register?notice=registration-expired")

	if r := do(t, app, fiber.MethodGet, "/api/v1/session", nil, nil); r.status != fiber.StatusUnauthorized {
		t.Fatalf("expected no session, got %d", r.status)
	}
}

func TestMockLoginFlow(t *testing.T) {
	app := newTestApp(t)

	expectRedirect(t, do(t, app, fiber.MethodGet, "/dashboard", nil, nil), "/login")
	expectRedirect(t, do(t, app, fiber.MethodGet, "/", nil, nil), "/login")
	if r := do(t, app, fiber.MethodGet, "/login", nil, nil); r.status != fiber.StatusOK || !strings.Contains(r.body, `name="idempotency_key"`) {
		t.Fatalf("expected login form, got %d", r.status)
	}

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login", url.Values{"login_id": {"1700"}}, nil), "/login-verify")
	if r := do(t, app, fiber.MethodGet, "/login-verify", nil, nil); r.status != fiber.StatusOK {
		t.Fatalf("expected verification page, got %d", r.status)
	}

	r := do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {"12345"}}, nil)
	if r.status != fiber.StatusUnprocessableEntity || !strings.Contains(r.body, "OTP must be 6 digits") {
		t.Fatalf("expected length error, got %d", r.status)
	}
	r = do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {"12a456"}}, nil)
	if r.status != fiber.StatusUnprocessableEntity || !strings.Contains(r.body, "OTP must contain only digits") {
		t.Fatalf("expected digit error, got %d", r.status)
	}
	if r := do(t, app, fiber.MethodGet, "/api/v1/session", nil, nil); r.status != fiber.StatusUnauthorized {
		t.Fatalf("rejected codes must not create a session, got %d", r.status)
	}

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {"123456"}}, nil), "/dashboard")

	if r := do(t, app, fiber.MethodGet, "/dashboard", nil, nil); r.status != fiber.StatusOK || !strings.Contains(r.body, "Demo User") {
		t.Fatalf("expected dashboard with placeholder user, got %d", r.status)
	}
	expectRedirect(t, do(t, app, fiber.MethodGet, "/login", nil, nil), "/dashboard")
	expectRedirect(t, do(t, app, fiber.MethodGet, "/register", nil, nil), "/dashboard")
	// The marker is gone, so the verification page restarts the flow even with a session.
	expectRedirect(t, do(t, app, fiber.MethodGet, "/login-verify", nil, nil), "/login?notice=login-expired")

	r = do(t, app, fiber.MethodGet, "/api/v1/session", nil, nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("expected session, got %d", r.status)
	}
	var payload struct {
		Token string `json:"auth_token"`
		User  struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user_data"`
	}
	if err := json.Unmarshal([]byte(r.body), &payload); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if payload.Token == "" || payload.User.ID != "1700" || payload.User.Role != "USER" {
		t.Fatalf("unexpected session payload %+v", payload)
	}

	me := do(t, app, fiber.MethodGet, "/api/v1/me", nil, http.Header{"Authorization": {"Bearer " + payload.Token}})
	if me.status != fiber.StatusOK || !strings.Contains(me.body, `"1700"`) {
		t.Fatalf("expected profile, got %d %s", me.status, me.body)
	}
	if r := do(t, app, fiber.MethodGet, "/api/v1/me", nil, nil); r.status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", r.status)
	}
}

func TestRegistrationFlowAndLogout(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{
		"full_name":      {"Asha Rao"},
		"email":          {"asha@example.com"},
		"phone_number":   {"9876543210"},
		"aadhaar_number": {"123412341234"},
		"address":        {"12 MG Road"},
	}
	expectRedirect(t, do(t, app, fiber.MethodPost, "/register", form, nil), "/verify-otp")

	page := do(t, app, fiber.MethodGet, "/verify-otp", nil, nil)
	if page.status != fiber.StatusOK || !strings.Contains(page.body, "Your User ID is") {
		t.Fatalf("expected verification page with generated id, got %d", page.status)
	}

	r := do(t, app, fiber.MethodPost, "/verify-otp", url.Values{
		"otp": {"123456"}, "password": {"secret1"}, "confirm_password": {"secret2"},
	}, nil)
	if r.status != fiber.StatusUnprocessableEntity || !strings.Contains(r.body, "match") {
		t.Fatalf("expected mismatch error, got %d", r.status)
	}
	r = do(t, app, fiber.MethodPost, "/verify-otp", url.Values{
		"otp": {"123456"}, "password": {"abc"}, "confirm_password": {"abc"},
	}, nil)
	if r.status != fiber.StatusUnprocessableEntity || !strings.Contains(r.body, "at least 6 characters") {
		t.Fatalf("expected short password error, got %d", r.status)
	}

	expectRedirect(t, do(t, app, fiber.MethodPost, "/verify-otp", url.Values{
		"otp": {"123456"}, "password": {"secret1"}, "confirm_password": {"secret1"},
	}, nil), "/dashboard")

	if r := do(t, app, fiber.MethodGet, "/dashboard", nil, nil); r.status != fiber.StatusOK || !strings.Contains(r.body, "Asha Rao") {
		t.Fatalf("expected dashboard for registered user, got %d", r.status)
	}

	expectRedirect(t, do(t, app, fiber.MethodPost, "/logout", url.Values{}, nil), "/login?notice=signed-out")
	expectRedirect(t, do(t, app, fiber.MethodGet, "/dashboard", nil, nil), "/login")
	if r := do(t, app, fiber.MethodGet, "/login?notice=signed-out", nil, nil); !strings.Contains(r.body, "You have been signed out.") {
		t.Fatalf("expected sign-out notice on login page")
	}
}

func TestResendWithPendingMarker(t *testing.T) {
	app := newTestApp(t)

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify/resend", url.Values{}, nil), "/login?notice=login-expired")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/verify-otp/resend", url.Values{}, nil), "/register?notice=registration-expired")

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login", url.Values{"login_id": {"1700"}}, nil), "/login-verify")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify/resend", url.Values{}, nil), "/login-verify?notice=code-sent")
	if r := do(t, app, fiber.MethodGet, "/login-verify?notice=code-sent", nil, nil); !strings.Contains(r.body, "A new code has been sent.") {
		t.Fatalf("expected code-sent notice, got %d", r.status)
	}

	form := url.Values{
		"full_name":    {"Asha Rao"},
		"email":        {"asha@example.com"},
		"phone_number": {"9876543210"},
	}
	expectRedirect(t, do(t, app, fiber.MethodPost, "/register", form, nil), "/verify-otp")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/verify-otp/resend", url.Values{}, nil), "/verify-otp?notice=code-sent")
}

func TestRegistrationFieldErrors(t *testing.T) {
	app := newTestApp(t)
	r := do(t, app, fiber.MethodPost, "/register", url.Values{
		"full_name":    {"Asha Rao"},
		"email":        {"asha"},
		"phone_number": {"98765"},
	}, nil)
	if r.status != fiber.StatusUnprocessableEntity ||
		!strings.Contains(r.body, "Enter a valid email address") ||
		!strings.Contains(r.body, "Phone number must be 10 to 15 digits") {
		t.Fatalf("expected field errors, got %d", r.status)
	}
	if !strings.Contains(r.body, `value="Asha Rao"`) {
		t.Fatalf("expected submitted values kept")
	}
}

func TestUnknownNoticeIsNotRendered(t *testing.T) {
	app := newTestApp(t)
	r := do(t, app, fiber.MethodGet, "/login?notice=%3Cscript%3E", nil, nil)
	if r.status != fiber.StatusOK || strings.Contains(r.body, "script") {
		t.Fatalf("unexpected notice rendering: %d", r.status)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	r := do(t, app, fiber.MethodGet, "/healthz", nil, nil)
	if r.status != fiber.StatusOK || !strings.Contains(r.body, `"redis":"disabled"`) {
		t.Fatalf("unexpected health response %d %s", r.status, r.body)
	}
}

func TestSetupRequiresBackingServicesOutsideDev(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{Cfg: config.Config{AppEnv: "production", OTPMode: config.OTPModeRedis}, Logger: logging.Discard()})
	if err == nil {
		t.Fatalf("expected setup to fail without database and redis")
	}
}
