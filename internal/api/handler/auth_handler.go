package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register creates a new user account with the user role.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  messageResponse
// @Failure      409   {object}  messageResponse
// @Failure      500   {object}  messageResponse
// @Router       /register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// Login authenticates a user and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  messageResponse
// @Failure      401   {object}  messageResponse
// @Router       /login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{Token: token, User: user})
}

// Me echoes the verified credential.
//
// @Summary      Current credential
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  meResponse
// @Failure      401  {object}  messageResponse
// @Router       /v1/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	cred, err := ctxCredential(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{
		SubjectID: cred.SubjectID,
		Username:  cred.Username,
		Role:      cred.Role,
		IssuedAt:  cred.IssuedAt,
		ExpiresAt: cred.ExpiresAt,
	})
}

// Profile is open to every role.
//
// @Summary      User profile greeting
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  messageResponse
// @Router       /v1/user/profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	return h.greet(c, "Welcome to your profile, %s!")
}

// ModeratorManage is restricted to moderators.
//
// @Summary      Moderator area
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      403  {object}  messageResponse
// @Router       /v1/moderator/manage [get]
func (h *AuthHandler) ModeratorManage(c echo.Context) error {
	return h.greet(c, "Welcome Moderator %s!")
}

// AdminDashboard is restricted to admins.
//
// @Summary      Admin dashboard
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      403  {object}  messageResponse
// @Router       /v1/admin/dashboard [get]
func (h *AuthHandler) AdminDashboard(c echo.Context) error {
	return h.greet(c, "Welcome Admin %s!")
}

func (h *AuthHandler) greet(c echo.Context, format string) error {
	cred, err := ctxCredential(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: fmt.Sprintf(format, cred.Username)})
}
