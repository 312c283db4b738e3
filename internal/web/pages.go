// Package web serves the portal's HTML pages and form submissions.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/citizen_portal/internal/flow"
	"github.com/congo-pay/citizen_portal/internal/identity"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLogin       = "login"
	pageRegister    = "register"
	pageVerifyOTP   = "verify_otp"
	pageLoginVerify = "login_verify"
	pageDashboard   = "dashboard"
)

var pageTitles = map[string]string{
	pageLogin:       "Sign in",
	pageRegister:    "Register",
	pageVerifyOTP:   "Verify registration",
	pageLoginVerify: "Verify sign in",
	pageDashboard:   "Dashboard",
}

// notices are shown after a redirect. Only known codes are rendered so the
// query string cannot inject text into a page.
var notices = map[string]string{
	"login-expired":        "Your sign-in session was not found. Please enter your User ID again.",
	"registration-expired": "Your registration session was not found. Please register again.",
	"locked":               "Too many incorrect codes. Please start again.",
	"code-sent":            "A new code has been sent.",
	"signed-out":           "You have been signed out.",
}

type pageData struct {
	AppName        string
	Title          string
	Notice         string
	Errors         flow.FieldErrors
	Values         map[string]string
	IdempotencyKey string
	GeneratedID    string
	User           *identity.User
}

type renderer struct {
	appName string
	pages   map[string]*template.Template
}

func newRenderer(appName string) (*renderer, error) {
	pages := make(map[string]*template.Template, len(pageTitles))
	for name := range pageTitles {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &renderer{appName: appName, pages: pages}, nil
}

func (r *renderer) render(c *fiber.Ctx, status int, name string, data pageData) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %s", name)
	}
	data.AppName = r.appName
	data.Title = pageTitles[name]
	if data.Notice == "" {
		data.Notice = notices[c.Query("notice")]
	}
	if data.IdempotencyKey == "" {
		data.IdempotencyKey = uuid.NewString()
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render page %s: %w", name, err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}
