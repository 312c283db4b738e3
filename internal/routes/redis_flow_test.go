package routes

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/citizen_portal/internal/config"
)

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var (
	codePattern    = regexp.MustCompile(`\b(\d{6})\b`)
	loginIDPattern = regexp.MustCompile(`Your User ID is <strong>(\d+)</strong>`)
)

func newRedisTestApp(t *testing.T) (*fiber.App, *miniredis.Miniredis, *logBuffer) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	cfg := config.Config{
		AppName:         "CitizenPortal",
		AppEnv:          "test",
		Port:            "8080",
		IdempotencyTTL:  time.Minute,
		AccessTokenTTL:  time.Hour,
		OTPMode:         config.OTPModeRedis,
		OTPTTL:          time.Minute,
		OTPMaxAttempts:  3,
		LoginRatePerMin: 100,
		SnowflakeNode:   1,
	}
	logs := &logBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logger}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, mr, logs
}

// deliveredCode returns the code in the most recent notification log line.
func deliveredCode(t *testing.T, logs *logBuffer) string {
	t.Helper()
	code := ""
	scanner := bufio.NewScanner(strings.NewReader(logs.String()))
	for scanner.Scan() {
		var line struct {
			Msg  string `json:"msg"`
			Body string `json:"body"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil || line.Msg != "notification" {
			continue
		}
		if m := codePattern.FindStringSubmatch(line.Body); m != nil {
			code = m[1]
		}
	}
	if code == "" {
		t.Fatalf("no code delivered")
	}
	return code
}

func wrongCode(code string) string {
	if code == "000000" {
		return "999999"
	}
	return "000000"
}

func expectFormError(t *testing.T, r response, message string) {
	t.Helper()
	if r.status != fiber.StatusUnprocessableEntity || !strings.Contains(r.body, message) {
		t.Fatalf("expected 422 with %q, got %d", message, r.status)
	}
}

func registerAccount(t *testing.T, app *fiber.App, logs *logBuffer) string {
	t.Helper()
	form := url.Values{
		"full_name":    {"Asha Rao"},
		"email":        {"asha@example.com"},
		"phone_number": {"9876543210"},
	}
	expectRedirect(t, do(t, app, fiber.MethodPost, "/register", form, nil), "/verify-otp")

	page := do(t, app, fiber.MethodGet, "/verify-otp", nil, nil)
	m := loginIDPattern.FindStringSubmatch(page.body)
	if m == nil {
		t.Fatalf("generated user id not shown")
	}

	code := deliveredCode(t, logs)
	expectFormError(t, do(t, app, fiber.MethodPost, "/verify-otp", url.Values{
		"otp": {wrongCode(code)}, "password": {"secret1"}, "confirm_password": {"secret1"},
	}, nil), "Incorrect OTP")

	expectRedirect(t, do(t, app, fiber.MethodPost, "/verify-otp/resend", url.Values{}, nil), "/verify-otp?notice=code-sent")
	code = deliveredCode(t, logs)

	expectRedirect(t, do(t, app, fiber.MethodPost, "/verify-otp", url.Values{
		"otp": {code}, "password": {"secret1"}, "confirm_password": {"secret1"},
	}, nil), "/dashboard")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/logout", url.Values{}, nil), "/login?notice=signed-out")
	return m[1]
}

func TestRedisRegistrationAndLogin(t *testing.T) {
	app, _, logs := newRedisTestApp(t)
	loginID := registerAccount(t, app, logs)

	expectFormError(t, do(t, app, fiber.MethodPost, "/login", url.Values{
		"login_id": {loginID}, "password": {"secret2"},
	}, nil), "Incorrect password")
	expectFormError(t, do(t, app, fiber.MethodPost, "/login", url.Values{
		"login_id": {"42"}, "password": {"secret1"},
	}, nil), "No account found")

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login", url.Values{
		"login_id": {loginID}, "password": {"secret1"},
	}, nil), "/login-verify")
	code := deliveredCode(t, logs)
	expectFormError(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {wrongCode(code)}}, nil), "Incorrect OTP")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {code}}, nil), "/dashboard")

	if r := do(t, app, fiber.MethodGet, "/dashboard", nil, nil); r.status != fiber.StatusOK || !strings.Contains(r.body, "Asha Rao") {
		t.Fatalf("expected dashboard, got %d", r.status)
	}
}

func TestRedisExpiredCodeAndResend(t *testing.T) {
	app, mr, logs := newRedisTestApp(t)
	loginID := registerAccount(t, app, logs)

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login", url.Values{
		"login_id": {loginID}, "password": {"secret1"},
	}, nil), "/login-verify")
	expired := deliveredCode(t, logs)
	mr.FastForward(2 * time.Minute)

	expectFormError(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {expired}}, nil), "OTP has expired")

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify/resend", url.Values{}, nil), "/login-verify?notice=code-sent")
	fresh := deliveredCode(t, logs)
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {fresh}}, nil), "/dashboard")
}

func TestRedisLockoutRestartsLogin(t *testing.T) {
	app, _, logs := newRedisTestApp(t)
	loginID := registerAccount(t, app, logs)

	expectRedirect(t, do(t, app, fiber.MethodPost, "/login", url.Values{
		"login_id": {loginID}, "password": {"secret1"},
	}, nil), "/login-verify")
	wrong := wrongCode(deliveredCode(t, logs))

	for i := 0; i < 2; i++ {
		expectFormError(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {wrong}}, nil), "Incorrect OTP")
	}
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify", url.Values{"otp": {wrong}}, nil), "/login?notice=locked")

	expectRedirect(t, do(t, app, fiber.MethodGet, "/login-verify", nil, nil), "/login?notice=login-expired")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/login-verify/resend", url.Values{}, nil), "/login?notice=login-expired")
	if r := do(t, app, fiber.MethodGet, "/api/v1/session", nil, nil); r.status != fiber.StatusUnauthorized {
		t.Fatalf("lockout must not leave a session, got %d", r.status)
	}
}

func TestRedisAbandonedRegistrationCanRestart(t *testing.T) {
	app, _, _ := newRedisTestApp(t)
	form := url.Values{
		"full_name":    {"Asha Rao"},
		"email":        {"asha@example.com"},
		"phone_number": {"9876543210"},
	}
	expectRedirect(t, do(t, app, fiber.MethodPost, "/register", form, nil), "/verify-otp")
	expectRedirect(t, do(t, app, fiber.MethodPost, "/register", form, nil), "/verify-otp")
}
