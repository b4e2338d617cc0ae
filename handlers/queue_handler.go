package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/services"
)

type QueueHandler struct {
	queue *services.QueueService
	cfg   *config.Config
}

func NewQueueHandler(queue *services.QueueService, cfg *config.Config) *QueueHandler {
	return &QueueHandler{queue: queue, cfg: cfg}
}

// isTokenCreationAllowed enforces the web creation policy: an explicit
// allow-all flag, or a matching admin-secret header. With neither, web
// creation is disabled and tokens come only from kiosks.
func (h *QueueHandler) isTokenCreationAllowed(c echo.Context) bool {
	if h.cfg.AllowWebTokens {
		return true
	}
	if h.cfg.AdminSecret != "" {
		provided := c.Request().Header.Get("x-admin-token")
		if provided == "" {
			provided = c.Request().Header.Get("x-admin-secret")
		}
		return provided == h.cfg.AdminSecret
	}
	return false
}

func (h *QueueHandler) GetQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.queue.Snapshot())
}

func (h *QueueHandler) TakeToken(c echo.Context) error {
	if !h.isTokenCreationAllowed(c) {
		log.Println("Blocked web token creation - no admin secret provided and web tokens disabled")
		return c.JSON(http.StatusForbidden, map[string]any{
			"success": false,
			"error":   "token creation disabled via web",
		})
	}

	var profile models.Profile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request body",
		})
	}

	entry, err := h.queue.TakeToken(c.Request().Context(), profile, "web")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":              true,
		"token":                entry.Token,
		"estimatedWaitSeconds": entry.EstimatedWaitSeconds,
	})
}

func (h *QueueHandler) Cancel(c echo.Context) error {
	var req struct {
		Token int `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "token required",
		})
	}

	if _, err := h.queue.Cancel(c.Request().Context(), req.Token); err != nil {
		return transitionError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *QueueHandler) Arrive(c echo.Context) error {
	var req struct {
		Token       int  `json:"token"`
		ElapsedTime *int `json:"elapsedTime"`
	}
	if err := c.Bind(&req); err != nil || req.Token == 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "token required",
		})
	}

	entry, err := h.queue.Arrive(c.Request().Context(), req.Token, req.ElapsedTime)
	if err != nil {
		return transitionError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"waitingTime": entry.WaitingTime,
	})
}

func (h *QueueHandler) ETA(c echo.Context) error {
	token, err := strconv.Atoi(c.QueryParam("token"))
	if err != nil || token <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "token query required",
		})
	}

	eta := h.queue.ETA(c.Request().Context(), token)
	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"token":             eta.Token,
		"etaSeconds":        eta.ETASeconds,
		"etaHuman":          eta.ETAHuman,
		"avgServiceSeconds": eta.AvgServiceSeconds,
		"ahead":             eta.Ahead,
	})
}

// transitionError maps the ledger's error taxonomy onto HTTP statuses.
func transitionError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, status.ErrTokenNotFound):
		code = http.StatusNotFound
	case errors.Is(err, status.ErrInvalidTransition):
		code = http.StatusConflict
	}
	return c.JSON(code, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
