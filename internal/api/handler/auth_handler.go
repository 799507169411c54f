package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name"`
	Role     string `json:"role"     validate:"omitempty,oneof=student instructor"`
}

type createAdminRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
	Name     string `json:"name"`
	Role     string `json:"role"     validate:"omitempty,oneof=admin moderator super-admin"`
}

// loginRequest is deliberately unvalidated beyond the audience: empty or
// malformed credentials fail as CredentialsInvalid like any other mismatch.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Audience string `json:"audience" validate:"omitempty,oneof=user admin"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

type principalResponse struct {
	Principal *domain.Principal `json:"principal"`
}

type loginResponse struct {
	Principal    *domain.Principal `json:"principal"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Register creates a new user account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  principalResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, principalResponse{Principal: p})
}

// CreateAdmin creates an admin account. Requires admins:create.
//
// @Summary      Create an admin
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAdminRequest  true  "Admin details"
// @Success      201   {object}  principalResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /admin/admins [post]
func (h *AuthHandler) CreateAdmin(c echo.Context) error {
	var req createAdminRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := h.authService.CreateAdmin(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, principalResponse{Principal: p})
}

// Login authenticates a user or, with audience "admin", an admin.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	return h.login(c, "")
}

// AdminLogin authenticates an admin.
//
// @Summary      Admin login
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /admin/auth/login [post]
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	return h.login(c, domain.KindAdmin)
}

func (h *AuthHandler) login(c echo.Context, audience domain.Kind) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if audience == "" {
		audience = domain.Kind(req.Audience)
	}

	res, err := h.authService.Login(c.Request().Context(), ports.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Audience: audience,
		Source:   c.RealIP(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{
		Principal:    res.Principal,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
	})
}

// Refresh rotates a user refresh token.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	return h.refresh(c, domain.KindUser)
}

// AdminRefresh rotates an admin refresh token.
//
// @Summary      Admin refresh tokens
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /admin/auth/refresh [post]
func (h *AuthHandler) AdminRefresh(c echo.Context) error {
	return h.refresh(c, domain.KindAdmin)
}

func (h *AuthHandler) refresh(c echo.Context, audience domain.Kind) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.authService.Refresh(c.Request().Context(), ports.RefreshInput{
		RefreshToken: req.RefreshToken,
		Audience:     audience,
	})
	if err != nil {
		return domain.RefreshFailure(err)
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	})
}

// Logout revokes the given refresh token. Without one, or with "all": true,
// every session of the principal is revoked.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  logoutRequest  false  "Token to revoke"
// @Success      200
// @Failure      401   {object}  errorResponse
// @Router       /auth/logout [post]
// @Router       /admin/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	who, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req logoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token := req.RefreshToken
	if req.All {
		token = ""
	}
	if err := h.authService.Logout(c.Request().Context(), who, token); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// Me returns the authenticated principal.
//
// @Summary      Current principal
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  domain.CurrentPrincipal
// @Failure      401   {object}  errorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	who, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, who)
}

// Deactivate soft-deletes a user or admin. Requires users:deactivate.
//
// @Summary      Deactivate a principal
// @Tags         admin
// @Security     BearerAuth
// @Param        kind  path  string  true  "user or admin"
// @Param        id    path  string  true  "Principal id"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /admin/principals/{kind}/{id}/deactivate [post]
func (h *AuthHandler) Deactivate(c echo.Context) error {
	who, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	kind := domain.Kind(c.Param("kind"))
	if !kind.Valid() {
		return invalidInput("kind must be user or admin")
	}
	if err := h.authService.Deactivate(c.Request().Context(), kind, c.Param("id"), who); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
