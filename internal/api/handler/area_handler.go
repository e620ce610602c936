package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/core/domain"
	"github.com/imo-platform/access-control/internal/core/rbac"
)

// AreaHandler serves the landing endpoint of each user-type area. The gate
// has already checked the area's user type when these run.
type AreaHandler struct {
	engine *rbac.Engine
}

func NewAreaHandler(engine *rbac.Engine) *AreaHandler {
	return &AreaHandler{engine: engine}
}

type dashboardResponse struct {
	Area        domain.UserType    `json:"area"`
	Username    string             `json:"username"`
	FullName    string             `json:"full_name"`
	Role        rbac.Role          `json:"role"`
	AccessLevel domain.AccessLevel `json:"access_level,omitempty"`
	Permissions []rbac.Permission  `json:"permissions"`
}

// Dashboard returns a handler for the given area.
//
// @Summary      Area dashboard
// @Tags         areas
// @Security     BearerAuth
// @Produce      json
// @Success      200   {object}  dashboardResponse
// @Failure      401   {object}  api.errorResponse
// @Failure      403   {object}  api.errorResponse
// @Router       /api/owner/dashboard [get]
// @Router       /api/tenant/dashboard [get]
// @Router       /api/manager/dashboard [get]
func (h *AreaHandler) Dashboard(area domain.UserType) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := currentPrincipal(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, dashboardResponse{
			Area:        area,
			Username:    p.User.Username,
			FullName:    p.User.FullName(),
			Role:        p.Role,
			AccessLevel: p.User.AccessLevel(),
			Permissions: h.engine.Permissions(p.User),
		})
	}
}
