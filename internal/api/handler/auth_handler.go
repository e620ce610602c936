package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/core/rbac"
)

type AuthHandler struct {
	auth     ports.AuthService
	creds    ports.CredentialService
	sessions ports.SessionService
	engine   *rbac.Engine
}

func NewAuthHandler(auth ports.AuthService, creds ports.CredentialService, sessions ports.SessionService, engine *rbac.Engine) *AuthHandler {
	return &AuthHandler{auth: auth, creds: creds, sessions: sessions, engine: engine}
}

type loginRequest struct {
	// Username or email address.
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token              string            `json:"token"`
	ExpiresAt          time.Time         `json:"session_expires_at"`
	MustChangePassword bool              `json:"must_change_password"`
	User               *domain.User      `json:"user"`
	Role               rbac.Role         `json:"role"`
	Permissions        []rbac.Permission `json:"permissions"`
}

type meResponse struct {
	User        *domain.User      `json:"user"`
	Role        rbac.Role         `json:"role"`
	RoleName    string            `json:"role_name,omitempty"`
	Permissions []rbac.Permission `json:"permissions"`
	Session     *domain.Session   `json:"session"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Login authenticates a user, replaces any session on another device and
// returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  api.errorResponse
// @Failure      401   {object}  api.errorResponse
// @Failure      422   {object}  api.errorResponse
// @Router       /api/v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.Request().Context(), ports.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{
		Token:              res.Token,
		ExpiresAt:          res.Session.ExpiresAt,
		MustChangePassword: res.User.MustChangePassword,
		User:               res.User,
		Role:               rbac.RoleOf(res.User),
		Permissions:        h.engine.Permissions(res.User),
	})
}

// Logout ends the caller's session.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401   {object}  api.errorResponse
// @Router       /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), p.Session.Key); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller, their role and effective permissions.
//
// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200   {object}  meResponse
// @Failure      401   {object}  api.errorResponse
// @Router       /api/v1/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	resp := meResponse{
		User:        p.User,
		Role:        p.Role,
		Permissions: h.engine.Permissions(p.User),
		Session:     p.Session,
	}
	if info, ok := h.engine.Catalog().Describe(p.Role); ok {
		resp.RoleName = info.Name
	}
	return c.JSON(http.StatusOK, resp)
}

// ChangePassword replaces the caller's password.
//
// @Summary      Change password
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Param        body  body      changePasswordRequest  true  "Old and new password"
// @Success      204
// @Failure      401   {object}  api.errorResponse
// @Failure      422   {object}  api.errorResponse
// @Router       /api/v1/auth/password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.creds.ChangePassword(ctx, p.User.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	// No other device keeps a session past a password change. Failures are
	// logged by the registry and do not undo the change.
	_, _ = h.sessions.InvalidateAllExceptCurrent(ctx, p.User.ID, p.Session.Key)
	return c.NoContent(http.StatusNoContent)
}

// SessionStatus reports whether the caller's session is about to expire.
// Polling it does not extend the session.
//
// @Summary      Session expiry warning
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200   {object}  domain.WarningState
// @Failure      401   {object}  api.errorResponse
// @Router       /api/v1/auth/session [get]
func (h *AuthHandler) SessionStatus(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	state, err := h.sessions.WarningState(c.Request().Context(), p.Session.Key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// ExtendSession slides the caller's session expiry and returns the new state.
//
// @Summary      Extend session
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200   {object}  domain.WarningState
// @Failure      401   {object}  api.errorResponse
// @Router       /api/v1/auth/session/extend [post]
func (h *AuthHandler) ExtendSession(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.sessions.Touch(ctx, p.Session.Key); err != nil {
		return err
	}
	state, err := h.sessions.WarningState(ctx, p.Session.Key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}
