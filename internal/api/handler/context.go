package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/api/middleware"
	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// ctxCredential returns the credential injected by the Auth middleware.
// A missing credential means the route was wired without Auth.
func ctxCredential(c echo.Context) (*domain.Credential, error) {
	cred := middleware.CredentialFrom(c)
	if cred == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated")
	}
	return cred, nil
}

// bindAndValidate decodes the JSON body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload").SetInternal(err)
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(req)
}

// queryLimit reads the optional ?limit= parameter; zero means the service default.
func queryLimit(c echo.Context) (int, error) {
	var limit int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer").SetInternal(err)
	}
	if limit < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must not be negative")
	}
	return limit, nil
}
