package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/realtime"
	"queue-system/services"
	"queue-system/utils"
)

type AdminHandler struct {
	queue  *services.QueueService
	hub    *realtime.Hub
	remote *redis.Client
	cfg    *config.Config
}

func NewAdminHandler(queue *services.QueueService, hub *realtime.Hub, remote *redis.Client, cfg *config.Config) *AdminHandler {
	return &AdminHandler{queue: queue, hub: hub, remote: remote, cfg: cfg}
}

func (h *AdminHandler) AdminAction(c echo.Context) error {
	var req struct {
		Action string `json:"action"`
		Token  int    `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Action == "" || req.Token == 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "action and token required",
		})
	}
	if req.Action != "serve" && req.Action != "skip" {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "unknown action",
		})
	}

	if _, err := h.queue.AdminAction(c.Request().Context(), req.Action, req.Token); err != nil {
		return transitionError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) Reset(c echo.Context) error {
	if err := h.queue.Reset(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// SyncFromRemote is the operator-invoked reconcile trigger.
func (h *AdminHandler) SyncFromRemote(c echo.Context) error {
	n, err := h.queue.SyncFromRemote(c.Request().Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, status.ErrRemoteDisabled) {
			code = http.StatusBadRequest
		}
		return c.JSON(code, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"entries": n,
	})
}

// RemoteWebhook lets the remote store's change notifications trigger a
// reconcile, authenticated by the shared sync secret.
func (h *AdminHandler) RemoteWebhook(c echo.Context) error {
	if h.cfg.SyncSecret != "" {
		provided := c.Request().Header.Get("x-sync-secret")
		if provided != h.cfg.SyncSecret {
			log.Println("Rejected remote webhook call with invalid secret")
			return c.JSON(http.StatusForbidden, map[string]any{
				"success": false,
				"error":   "invalid secret",
			})
		}
	}
	return h.SyncFromRemote(c)
}

// Kiosks lists connected field devices.
func (h *AdminHandler) Kiosks(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"kiosks":  h.hub.Kiosks(),
	})
}

// Debug exposes runtime sync configuration for troubleshooting.
func (h *AdminHandler) Debug(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"info": map[string]any{
			"clinicId":      h.cfg.ClinicID,
			"remoteEnabled": h.cfg.RemoteEnable,
			"remoteUrl":     h.cfg.RemoteURL,
			"pollInterval":  h.cfg.PollInterval.String(),
			"sessions":      h.hub.SessionCount(),
		},
	})
}

func (h *AdminHandler) Health(c echo.Context) error {
	if h.cfg.RemoteEnable && h.remote != nil {
		if err := utils.RemoteHealthCheck(h.remote); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
