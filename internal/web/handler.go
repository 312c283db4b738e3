package web

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/flow"
	"github.com/congo-pay/citizen_portal/internal/identity"
	"github.com/congo-pay/citizen_portal/internal/otp"
	"github.com/congo-pay/citizen_portal/internal/session"
)

const (
	msgCodeIncorrect = "Incorrect OTP"
	msgCodeExpired   = "OTP has expired. Request a new one."
	msgUnavailable   = "Service unavailable, please try again."
)

// Handler serves the login, registration and verification pages.
type Handler struct {
	flows   *flow.Service
	pages   *renderer
	landing string
	logger  *slog.Logger
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(flows *flow.Service, appName, landing string, logger *slog.Logger) (*Handler, error) {
	pages, err := newRenderer(appName)
	if err != nil {
		return nil, err
	}
	if landing == "" {
		landing = "/dashboard"
	}
	return &Handler{flows: flows, pages: pages, landing: landing, logger: logger}, nil
}

// Home sends the client to the landing page; the guard turns that into /login
// for clients without a session.
func (h *Handler) Home(c *fiber.Ctx) error {
	return c.Redirect(h.landing, fiber.StatusSeeOther)
}

func (h *Handler) LoginPage(c *fiber.Ctx) error {
	return h.pages.render(c, fiber.StatusOK, pageLogin, pageData{})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	loginID := c.FormValue("login_id")
	err = h.flows.StartLogin(c.UserContext(), store, loginID, c.FormValue("password"))
	if err != nil {
		return h.formError(c, pageLogin, err, pageData{Values: map[string]string{"login_id": loginID}})
	}
	return c.Redirect("/login-verify", fiber.StatusSeeOther)
}

func (h *Handler) RegisterPage(c *fiber.Ctx) error {
	return h.pages.render(c, fiber.StatusOK, pageRegister, pageData{})
}

func (h *Handler) Register(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	in := identity.RegistrationInput{
		FullName:      c.FormValue("full_name"),
		Email:         c.FormValue("email"),
		PhoneNumber:   c.FormValue("phone_number"),
		AadhaarNumber: c.FormValue("aadhaar_number"),
		Address:       c.FormValue("address"),
	}
	if _, err := h.flows.StartRegistration(c.UserContext(), store, in); err != nil {
		return h.formError(c, pageRegister, err, pageData{Values: map[string]string{
			"full_name":      in.FullName,
			"email":          in.Email,
			"phone_number":   in.PhoneNumber,
			"aadhaar_number": in.AadhaarNumber,
			"address":        in.Address,
		}})
	}
	return c.Redirect("/verify-otp", fiber.StatusSeeOther)
}

// VerifyOTPPage is the registration verification page. Without a pending
// registration it sends the client back to /register.
func (h *Handler) VerifyOTPPage(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	pending, ok, err := store.PendingRegistration(c.UserContext())
	if err != nil {
		return h.unavailable(c, pageVerifyOTP, err)
	}
	if !ok {
		return restart(c, "/register", "registration-expired")
	}
	return h.pages.render(c, fiber.StatusOK, pageVerifyOTP, pageData{GeneratedID: pending.GeneratedID})
}

func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	res, err := h.flows.VerifyRegistration(c.UserContext(), store,
		c.FormValue("otp"), c.FormValue("password"), c.FormValue("confirm_password"))
	if err != nil {
		data := pageData{}
		if pending, ok, perr := store.PendingRegistration(c.UserContext()); perr == nil && ok {
			data.GeneratedID = pending.GeneratedID
		}
		return h.formError(c, pageVerifyOTP, err, data)
	}
	return navigate(c, res)
}

func (h *Handler) ResendRegistration(c *fiber.Ctx) error {
	return h.resend(c, otp.PurposeRegistration, "/verify-otp")
}

// LoginVerifyPage is the login verification page. Without a pending login it
// sends the client back to /login.
func (h *Handler) LoginVerifyPage(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	_, ok, err := store.PendingLogin(c.UserContext())
	if err != nil {
		return h.unavailable(c, pageLoginVerify, err)
	}
	if !ok {
		return restart(c, "/login", "login-expired")
	}
	return h.pages.render(c, fiber.StatusOK, pageLoginVerify, pageData{})
}

func (h *Handler) LoginVerify(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	res, err := h.flows.VerifyLogin(c.UserContext(), store, c.FormValue("otp"))
	if err != nil {
		return h.formError(c, pageLoginVerify, err, pageData{})
	}
	return navigate(c, res)
}

func (h *Handler) ResendLogin(c *fiber.Ctx) error {
	return h.resend(c, otp.PurposeLogin, "/login-verify")
}

func (h *Handler) Dashboard(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	sess, ok, err := store.Read(c.UserContext())
	if err != nil {
		return h.unavailable(c, pageDashboard, err)
	}
	if !ok {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return h.pages.render(c, fiber.StatusOK, pageDashboard, pageData{User: &sess.User})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	if err := h.flows.SignOut(c.UserContext(), store); err != nil {
		return err
	}
	return restart(c, "/login", "signed-out")
}

func (h *Handler) resend(c *fiber.Ctx, purpose otp.Purpose, page string) error {
	store, err := storeFrom(c)
	if err != nil {
		return err
	}
	err = h.flows.Resend(c.UserContext(), store, purpose)
	switch {
	case err == nil:
		return restart(c, page, "code-sent")
	case errors.Is(err, flow.ErrNoPendingLogin):
		return restart(c, "/login", "login-expired")
	case errors.Is(err, flow.ErrNoPendingRegistration):
		return restart(c, "/register", "registration-expired")
	default:
		return err
	}
}

// formError maps a flow error onto the page that submitted the form.
func (h *Handler) formError(c *fiber.Ctx, page string, err error, data pageData) error {
	var verr *flow.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Errors = verr.Fields
		return h.pages.render(c, fiber.StatusUnprocessableEntity, page, data)
	case errors.Is(err, flow.ErrNoPendingLogin):
		return restart(c, "/login", "login-expired")
	case errors.Is(err, flow.ErrNoPendingRegistration):
		return restart(c, "/register", "registration-expired")
	case errors.Is(err, otp.ErrTooManyAttempts):
		if page == pageVerifyOTP {
			return restart(c, "/register", "locked")
		}
		return restart(c, "/login", "locked")
	case errors.Is(err, otp.ErrCodeIncorrect):
		data.Errors = flow.FieldErrors{flow.FieldOTP: msgCodeIncorrect}
		return h.pages.render(c, fiber.StatusUnprocessableEntity, page, data)
	case errors.Is(err, otp.ErrCodeExpired):
		data.Errors = flow.FieldErrors{flow.FieldOTP: msgCodeExpired}
		return h.pages.render(c, fiber.StatusUnprocessableEntity, page, data)
	case errors.Is(err, flow.ErrUnavailable):
		h.logger.Error("web.flow unavailable", slog.String("path", c.Path()), slog.Any("error", err))
		data.Errors = flow.FieldErrors{flow.FieldForm: msgUnavailable}
		return h.pages.render(c, fiber.StatusServiceUnavailable, page, data)
	default:
		return err
	}
}

func (h *Handler) unavailable(c *fiber.Ctx, page string, err error) error {
	h.logger.Error("web.session unavailable", slog.String("path", c.Path()), slog.Any("error", err))
	return h.pages.render(c, fiber.StatusServiceUnavailable, page, pageData{
		Errors: flow.FieldErrors{flow.FieldForm: msgUnavailable},
	})
}

// navigate performs the post-verification navigation. A 303 makes the browser
// load the landing page from scratch.
func navigate(c *fiber.Ctx, res flow.Result) error {
	return c.Redirect(res.Redirect, fiber.StatusSeeOther)
}

func restart(c *fiber.Ctx, path, notice string) error {
	return c.Redirect(path+"?notice="+url.QueryEscape(notice), fiber.StatusSeeOther)
}

func storeFrom(c *fiber.Ctx) (*session.Store, error) {
	store, ok := session.FromCtx(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "session store not bound")
	}
	return store, nil
}
