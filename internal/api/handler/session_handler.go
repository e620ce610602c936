package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imo-platform/access-control/internal/core/ports"
)

// SessionHandler exposes session store maintenance to administrators.
type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sweepResponse struct {
	Removed int `json:"removed"`
}

// Stats
//
// @Summary      Session store statistics
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  domain.SessionStats
// @Failure      403  {object}  api.errorResponse
// @Router       /api/manager/sessions/stats [get]
func (h *SessionHandler) Stats(c echo.Context) error {
	stats, err := h.sessions.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// Sweep removes expired sessions now instead of waiting for the scheduler.
//
// @Summary      Sweep expired sessions
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  sweepResponse
// @Failure      403  {object}  api.errorResponse
// @Router       /api/manager/sessions/sweep [post]
func (h *SessionHandler) Sweep(c echo.Context) error {
	n, err := h.sessions.SweepExpired(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sweepResponse{Removed: n})
}
