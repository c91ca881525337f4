package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/api/metrics"
	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

// CredentialKey is the echo context key holding the verified *domain.Credential.
const CredentialKey = "credential"

const (
	msgUnauthenticated = "Unauthenticated"
	msgInvalidToken    = "Invalid or expired token"
	msgForbidden       = "Forbidden"
)

// Auth verifies the bearer token and injects the credential into context.
// Every verification failure is answered with 401.
func Auth(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				metrics.TokenVerificationsTotal.WithLabelValues("missing").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthenticated)
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				metrics.TokenVerificationsTotal.WithLabelValues("missing").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthenticated)
			}

			cred, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				metrics.TokenVerificationsTotal.WithLabelValues(verificationResult(err)).Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidToken).SetInternal(err)
			}

			metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
			c.Set(CredentialKey, cred)
			return next(c)
		}
	}
}

// CredentialFrom returns the credential stored by Auth, or nil.
func CredentialFrom(c echo.Context) *domain.Credential {
	cred, _ := c.Get(CredentialKey).(*domain.Credential)
	return cred
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "malformed"
	}
}
