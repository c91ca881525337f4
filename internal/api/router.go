package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/ledger-gateway/docs"
	"github.com/99minutos/ledger-gateway/internal/api/handler"
	"github.com/99minutos/ledger-gateway/internal/api/middleware"
	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Auth     ports.AuthService
	Ledger   ports.LedgerService
	Audit    ports.AuditService
	Verifier ports.TokenVerifier
	// Checks are probed by /health/ready, keyed by dependency name.
	Checks map[string]handler.CheckFunc
	Log    zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
// Prometheus middleware is attached by the caller so tests can build many routers.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))

	authHandler := handler.NewAuthHandler(d.Auth)
	adminHandler := handler.NewAdminHandler(d.Auth, d.Audit)
	accountHandler := handler.NewAccountHandler(d.Ledger)
	healthHandler := handler.NewHealthHandler(d.Checks)

	authenticated := middleware.Auth(d.Verifier)
	anyRole := middleware.RBAC(domain.RoleUser, domain.RoleModerator, domain.RoleAdmin)
	staff := middleware.RBAC(domain.RoleModerator, domain.RoleAdmin)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Public routes ---
	e.POST("/login", authHandler.Login)
	e.POST("/register", authHandler.Register)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Transfer ---
	e.POST("/transfer", accountHandler.Transfer, authenticated, anyRole)

	v1 := e.Group("/v1", authenticated)

	v1.GET("/me", authHandler.Me)
	v1.GET("/user/profile", authHandler.Profile, anyRole)
	v1.GET("/moderator/manage", authHandler.ModeratorManage, middleware.RBAC(domain.RoleModerator))

	admin := v1.Group("/admin", adminOnly)
	admin.GET("/dashboard", authHandler.AdminDashboard)
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users", adminHandler.CreateUser)
	admin.DELETE("/users/:username", adminHandler.DeleteUser)
	admin.GET("/audit", adminHandler.Audit)

	accounts := v1.Group("/accounts")
	accounts.POST("", accountHandler.Open, staff)
	accounts.GET("", accountHandler.List, staff)
	accounts.GET("/:name", accountHandler.Get, anyRole)
	accounts.GET("/:name/entries", accountHandler.Entries, anyRole)
	accounts.POST("/:name/deposit", accountHandler.Deposit, adminOnly)
	accounts.POST("/:name/withdraw", accountHandler.Withdraw, adminOnly)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
