package middleware

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/citizen_portal/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int) {
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

	calls := 0
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/login-verify", func(c *fiber.Ctx) error {
		calls++
		return c.Redirect("/dashboard", fiber.StatusSeeOther)
	})
	return app, &calls
}

func postForm(t *testing.T, app *fiber.App, values url.Values) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/login-verify", strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header.Get(fiber.HeaderLocation)
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	app, calls := setupTestApp(t)

	for i := 0; i < 2; i++ {
		if status, _ := postForm(t, app, url.Values{"otp": {"123456"}}); status != fiber.StatusSeeOther {
			t.Fatalf("expected %d got %d", fiber.StatusSeeOther, status)
		}
	}
	if *calls != 2 {
		t.Fatalf("expected handler called twice without a key, got %d", *calls)
	}
}

func TestIdempotencyReplaysFormSubmission(t *testing.T) {
	app, calls := setupTestApp(t)
	form := url.Values{"otp": {"123456"}, IdempotencyFormField: {"form-abc"}}

	status, location := postForm(t, app, form)
	if status != fiber.StatusSeeOther || location != "/dashboard" {
		t.Fatalf("first submit: status %d location %q", status, location)
	}

	status, location = postForm(t, app, form)
	if status != fiber.StatusSeeOther || location != "/dashboard" {
		t.Fatalf("replayed submit: status %d location %q", status, location)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, got %d", *calls)
	}
}

func TestIdempotencyHeaderKey(t *testing.T) {
	app, calls := setupTestApp(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/login-verify", strings.NewReader("otp=123456"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
		req.Header.Set(idempotencyKeyHeader, "hdr-1")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusSeeOther {
			t.Fatalf("expected %d got %d", fiber.StatusSeeOther, resp.StatusCode)
		}
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, got %d", *calls)
	}
}
