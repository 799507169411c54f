package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/learnhub/identity-service/docs"
	"github.com/learnhub/identity-service/internal/api/handler"
	"github.com/learnhub/identity-service/internal/api/middleware"
	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

// Deps are the collaborators the HTTP layer needs. Registry is optional;
// the default Prometheus registry is used when nil.
type Deps struct {
	Auth     ports.AuthService
	Verifier ports.AccessVerifier
	Policy   *domain.Policy
	Checks   map[string]handler.Check
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	// TrustProxy takes the client address for rate limiting from
	// X-Forwarded-For. Enable only behind a proxy that overwrites it.
	TrustProxy bool
}

// adminRoles may use the admin session endpoints.
var adminRoles = []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin, domain.RoleModerator}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)
	e.IPExtractor = echo.ExtractIPDirect()
	if deps.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	}

	policy := deps.Policy
	if policy == nil {
		policy = domain.DefaultPolicy()
	}

	promMW := echoprometheus.MiddlewareConfig{Subsystem: "identity"}
	promHandler := echoprometheus.HandlerConfig{}
	if deps.Registry != nil {
		promMW.Registerer = deps.Registry
		promHandler.Gatherer = deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(promMW))

	authHandler := handler.NewAuthHandler(deps.Auth)
	requireAuth := middleware.Auth(deps.Verifier)

	// --- User session routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, requireAuth)
	auth.GET("/me", authHandler.Me, requireAuth)

	// --- Admin session routes ---
	admin := e.Group("/admin")
	admin.POST("/auth/login", authHandler.AdminLogin)
	admin.POST("/auth/refresh", authHandler.AdminRefresh)
	admin.POST("/auth/logout", authHandler.Logout, requireAuth, middleware.RequireRole(policy, adminRoles...))

	// --- Administration ---
	admin.POST("/admins", authHandler.CreateAdmin, requireAuth, middleware.RequirePermission(policy, "admins", "create"))
	admin.POST("/principals/:kind/:id/deactivate", authHandler.Deactivate, requireAuth, middleware.RequirePermission(policy, "users", "deactivate"))

	// --- Health probes and operations (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(promHandler))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
