package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/api/metrics"
	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/service"
)

// RBAC enforces role-based access control. It must run after Auth; a request
// without a credential is unauthenticated, not forbidden.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := domain.NewRoleSet(allowedRoles...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cred := CredentialFrom(c)
			if cred == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthenticated)
			}

			decision := service.Authorize(cred, allowed)
			metrics.AuthorizationDecisionsTotal.WithLabelValues(decision.String()).Inc()
			if decision != domain.DecisionAllow {
				return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
			}
			return next(c)
		}
	}
}
