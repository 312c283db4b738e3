package routes

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/citizen_portal/internal/auth"
	"github.com/congo-pay/citizen_portal/internal/config"
	"github.com/congo-pay/citizen_portal/internal/flow"
	"github.com/congo-pay/citizen_portal/internal/guard"
	"github.com/congo-pay/citizen_portal/internal/identity"
	"github.com/congo-pay/citizen_portal/internal/middleware"
	"github.com/congo-pay/citizen_portal/internal/notification"
	"github.com/congo-pay/citizen_portal/internal/otp"
	"github.com/congo-pay/citizen_portal/internal/session"
	"github.com/congo-pay/citizen_portal/internal/web"
)

const landingPath = "/dashboard"

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	SQLite *sql.DB
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce backing services outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.SQLite == nil {
			return fmt.Errorf("a database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// A nil *redis.Client must not reach the middlewares as a non-nil interface.
	var cache redis.UniversalClient
	if d.Cache != nil {
		cache = d.Cache
	}

	var storage session.Storage = session.NewMemoryStorage()
	if cache != nil {
		storage = session.NewRedisStorage(cache, d.Cfg.StorageTTL)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(session.Middleware(storage, session.CookieOptions{
		Secure: d.Cfg.CookieSecure,
		MaxAge: d.Cfg.StorageTTL,
	}))
	app.Use(middleware.Audit(d.Logger))
	if cache != nil {
		app.Use(middleware.Idempotency(cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	identityRepo, err := newIdentityRepository(context.Background(), d)
	if err != nil {
		return err
	}
	accounts, err := identity.NewService(identityRepo, d.Cfg.SnowflakeNode)
	if err != nil {
		return err
	}
	codes, placeholders, err := newCodes(d, cache)
	if err != nil {
		return err
	}
	tokens, err := newTokens(d)
	if err != nil {
		return err
	}
	flows := flow.NewService(accounts, codes, tokens, flow.Options{
		LandingPath:  landingPath,
		Placeholders: placeholders,
	}, d.Logger)
	pages, err := web.NewHandler(flows, d.Cfg.AppName, landingPath, d.Logger)
	if err != nil {
		return err
	}

	// Pages
	gate := guard.Middleware(guard.DefaultPolicy(), d.Logger)
	rateLimiter := middleware.LoginRateLimit(cache, d.Cfg.LoginRatePerMin)
	RegisterPageRoutes(app, pages, gate, rateLimiter)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFromCtx(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterSessionRoutes(api)

	// Protected routes. Placeholder sessions have no stored account, so the
	// subject check is skipped in mock mode.
	var lookup middleware.AccountLookup = accounts
	if placeholders {
		lookup = nil
	}
	protected := api.Group("", middleware.JWTAuth(tokens, lookup))
	RegisterProfileRoute(protected, accounts)

	return nil
}

func newIdentityRepository(ctx context.Context, d Deps) (identity.Repository, error) {
	switch {
	case d.DB != nil:
		repo := identity.NewPostgresRepository(d.DB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return repo, nil
	case d.SQLite != nil:
		repo := identity.NewSQLiteRepository(d.SQLite)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return repo, nil
	default:
		d.Logger.Warn("identity store is in memory; accounts are lost on restart")
		return identity.NewMemoryRepository(), nil
	}
}

// newCodes selects the OTP backend. The boolean reports whether unknown
// accounts are replaced with a placeholder profile.
func newCodes(d Deps, cache redis.UniversalClient) (flow.Codes, bool, error) {
	switch d.Cfg.OTPMode {
	case config.OTPModeMock:
		d.Logger.Warn("otp verification is mocked; any 6-digit code is accepted")
		return otp.AcceptAll{}, true, nil
	case config.OTPModeRedis:
		if cache == nil {
			return nil, false, fmt.Errorf("OTP_MODE=%s requires redis", d.Cfg.OTPMode)
		}
		notifier := notification.NewLoggerNotifier(d.Logger)
		return otp.NewRedisCodes(cache, notifier, d.Cfg.OTPTTL, d.Cfg.OTPMaxAttempts), false, nil
	default:
		return nil, false, fmt.Errorf("unknown OTP_MODE %q", d.Cfg.OTPMode)
	}
}

func newTokens(d Deps) (*auth.Tokens, error) {
	secret := d.Cfg.JWTSecret
	if secret == "" && d.Cfg.IsDev() {
		// Tokens signed with a per-process secret do not survive a restart.
		d.Logger.Warn("JWT_SECRET not set; using an ephemeral signing secret")
		secret = uuid.NewString()
	}
	return auth.NewTokens(secret, d.Cfg.AppName, d.Cfg.AccessTokenTTL)
}
