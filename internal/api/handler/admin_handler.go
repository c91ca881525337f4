package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

// AdminHandler serves user management and the audit trail.
type AdminHandler struct {
	authService  ports.AuthService
	auditService ports.AuditService
}

func NewAdminHandler(authService ports.AuthService, auditService ports.AuditService) *AdminHandler {
	return &AdminHandler{authService: authService, auditService: auditService}
}

// ListUsers handles GET /v1/admin/users.
//
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  usersResponse
// @Failure      401  {object}  messageResponse
// @Failure      403  {object}  messageResponse
// @Router       /v1/admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.authService.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, usersResponse{Users: users})
}

// CreateUser handles POST /v1/admin/users. Unlike /register it may grant any role.
//
// @Summary      Create a user with a role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "User details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  messageResponse
// @Failure      403   {object}  messageResponse
// @Failure      409   {object}  messageResponse
// @Router       /v1/admin/users [post]
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.CreateUser(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// DeleteUser handles DELETE /v1/admin/users/:username.
//
// @Summary      Delete a user
// @Tags         admin
// @Security     BearerAuth
// @Param        username  path  string  true  "Username"
// @Success      204
// @Failure      403  {object}  messageResponse
// @Failure      404  {object}  messageResponse
// @Router       /v1/admin/users/{username} [delete]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	if err := h.authService.DeleteUser(c.Request().Context(), c.Param("username")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Audit handles GET /v1/admin/audit.
//
// @Summary      Recent audit events
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum number of events (default 100)"
// @Success      200    {object}  auditResponse
// @Failure      400    {object}  messageResponse
// @Failure      403    {object}  messageResponse
// @Router       /v1/admin/audit [get]
func (h *AdminHandler) Audit(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	events, err := h.auditService.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auditResponse{Events: events})
}
