package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/authz"
	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/ports"
	"github.com/imo-platform/access-control/internal/core/rbac"
)

// UserHandler serves account administration for managers.
type UserHandler struct {
	creds    ports.CredentialService
	users    ports.UserDirectory
	sessions ports.SessionService
	engine   *rbac.Engine
	log      zerolog.Logger
}

func NewUserHandler(creds ports.CredentialService, users ports.UserDirectory, sessions ports.SessionService, engine *rbac.Engine, log zerolog.Logger) *UserHandler {
	return &UserHandler{
		creds:    creds,
		users:    users,
		sessions: sessions,
		engine:   engine,
		log:      log.With().Str("component", "user_handler").Logger(),
	}
}

type createUserRequest struct {
	UserType       domain.UserType    `json:"user_type" validate:"required,oneof=owner tenant manager"`
	Username       string             `json:"username" validate:"required"`
	Email          string             `json:"email" validate:"required"`
	FirstName      string             `json:"first_name"`
	LastName       string             `json:"last_name"`
	Phone          string             `json:"phone"`
	AccessLevel    domain.AccessLevel `json:"access_level"`
	CanCreateUsers bool               `json:"can_create_users"`
	EmployeeID     string             `json:"employee_id"`
	Department     string             `json:"department"`
}

type resetPasswordRequest struct {
	// Empty password generates a temporary one.
	Password string `json:"password"`
}

type userListResponse struct {
	Items []*domain.User `json:"items"`
	Total int            `json:"total"`
}

type sessionListResponse struct {
	Items []*domain.Session `json:"items"`
	Total int               `json:"total"`
}

type forceLogoutResponse struct {
	SessionsEnded int `json:"sessions_ended"`
}

// Create provisions an account and emails its temporary credentials.
//
// @Summary      Create user
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      createUserRequest  true  "Account profile"
// @Success      201   {object}  domain.User
// @Failure      403   {object}  api.errorResponse
// @Failure      409   {object}  api.errorResponse
// @Failure      422   {object}  api.errorResponse
// @Failure      502   {object}  api.errorResponse
// @Router       /api/manager/users [post]
func (h *UserHandler) Create(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if !h.engine.CanCreateUserType(p.User, req.UserType) {
		return authz.Forbid("permission: create " + string(req.UserType) + " users").Err()
	}

	user, _, err := h.creds.CreateAccount(c.Request().Context(), ports.CreateAccountInput{
		Type:           req.UserType,
		Username:       req.Username,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		AccessLevel:    req.AccessLevel,
		CanCreateUsers: req.CanCreateUsers,
		EmployeeID:     req.EmployeeID,
		Department:     req.Department,
	}, p.User)
	if err != nil {
		if user != nil {
			h.log.Error().Err(err).Str("user_id", user.ID).Msg("account created but credentials were not delivered")
		}
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// List returns the accounts of one user type.
//
// @Summary      List users
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        type    query     string  true   "owner, tenant or manager"
// @Param        active  query     bool    false  "only active accounts"
// @Success      200     {object}  userListResponse
// @Failure      403     {object}  api.errorResponse
// @Failure      422     {object}  api.errorResponse
// @Router       /api/manager/users [get]
func (h *UserHandler) List(c echo.Context) error {
	userType := domain.UserType(c.QueryParam("type"))
	if !userType.Valid() {
		return domain.NewValidationError("type", "type must be one of: owner tenant manager")
	}
	activeOnly := false
	if raw := c.QueryParam("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.NewValidationError("active", "active must be a boolean")
		}
		activeOnly = v
	}

	users, err := h.users.ListByType(c.Request().Context(), userType, activeOnly)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*domain.User{}
	}
	return c.JSON(http.StatusOK, userListResponse{Items: users, Total: len(users)})
}

// Verify marks an account verified.
//
// @Summary      Verify user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/verify [post]
func (h *UserHandler) Verify(c echo.Context) error {
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	if err := h.creds.Verify(c.Request().Context(), target.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Activate reactivates a deactivated account.
//
// @Summary      Activate user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/activate [post]
func (h *UserHandler) Activate(c echo.Context) error {
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	if err := h.creds.Activate(c.Request().Context(), target.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Deactivate soft-deletes an account and ends its sessions.
//
// @Summary      Deactivate user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/deactivate [post]
func (h *UserHandler) Deactivate(c echo.Context) error {
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	if err := h.creds.Deactivate(c.Request().Context(), target.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ResetPassword sets a new password, or a generated one when the body is
// empty, and emails it to the user.
//
// @Summary      Reset password
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Param        id    path  string                true   "User id"
// @Param        body  body  resetPasswordRequest  false  "New password"
// @Success      204
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Failure      422  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/reset-password [post]
func (h *UserHandler) ResetPassword(c echo.Context) error {
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	var req resetPasswordRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
	}

	ctx := c.Request().Context()
	if req.Password == "" {
		_, err = h.creds.GenerateResetPassword(ctx, target.ID)
	} else {
		err = h.creds.ResetPassword(ctx, target.ID, req.Password)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ForceLogout ends every session of an account.
//
// @Summary      Force logout
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  forceLogoutResponse
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/force-logout [post]
func (h *UserHandler) ForceLogout(c echo.Context) error {
	p, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	n, err := h.sessions.ForceLogout(c.Request().Context(), target.ID, "forced by "+p.User.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, forceLogoutResponse{SessionsEnded: n})
}

// Sessions lists the unexpired sessions of an account. Session keys are
// never included.
//
// @Summary      List user sessions
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  sessionListResponse
// @Failure      403  {object}  api.errorResponse
// @Failure      404  {object}  api.errorResponse
// @Router       /api/manager/users/{id}/sessions [get]
func (h *UserHandler) Sessions(c echo.Context) error {
	target, err := h.managedTarget(c)
	if err != nil {
		return err
	}
	list, err := h.sessions.ActiveSessions(c.Request().Context(), target.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionListResponse{Items: list, Total: len(list)})
}

// managedTarget loads the :id user and checks the caller may manage it.
func (h *UserHandler) managedTarget(c echo.Context) (*domain.User, error) {
	p, err := currentPrincipal(c)
	if err != nil {
		return nil, err
	}
	target, err := h.users.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !h.engine.CanManage(p.User, target) {
		return nil, authz.Forbid("permission: manage " + string(target.Type) + " users").Err()
	}
	return target, nil
}
