package handlers

import (
	"context"
	"log"
	"math"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"

	"queue-system/models"
	"queue-system/realtime"
	"queue-system/services"
	"queue-system/utils"
)

// WSHandler upgrades connections into the hub and routes the inbound
// websocket protocol: pairing, kiosk creation, elapsed-time telemetry and
// admin actions.
type WSHandler struct {
	hub      *realtime.Hub
	queue    *services.QueueService
	pairing  *services.PairingService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, queue *services.QueueService, pairing *services.PairingService) *WSHandler {
	h := &WSHandler{
		hub:     hub,
		queue:   queue,
		pairing: pairing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Kiosks and the UI connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	hub.OnMessage = h.Route
	return h
}

func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := h.hub.Serve(conn)

	// New sessions immediately get the current queue.
	client.Send(realtime.Message{
		Type: realtime.TypeQueueUpdate,
		Data: h.queue.Snapshot(),
	})
	return nil
}

func (h *WSHandler) Route(c *realtime.Client, msg realtime.Message) {
	switch msg.Type {
	case realtime.TypeRequestToken:
		requestID := msg.RequestID
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		profile := models.Profile{}
		if msg.Profile != nil {
			profile = *msg.Profile
		}
		if err := h.pairing.RequestToken(c, requestID, profile); err != nil {
			log.Printf("Pairing request %s failed: %v", requestID, err)
		}

	case realtime.TypeKioskCreate:
		if !c.IsKiosk() {
			c.Send(realtime.Message{
				Type:      realtime.TypeKioskCreateFailed,
				RequestID: msg.RequestID,
				Error:     "not_registered",
			})
			return
		}
		profile := models.Profile{}
		if msg.Profile != nil {
			profile = *msg.Profile
		}
		if _, err := h.pairing.HandleKioskCreate(context.Background(), c, msg.RequestID, profile); err != nil {
			log.Printf("Kiosk create for request %s failed: %v", msg.RequestID, err)
		}

	case realtime.TypeKioskCreateFailed:
		// A kiosk reporting it could not issue the token it was asked for.
		if c.IsKiosk() {
			if err := h.pairing.HandleKioskFailed(msg.RequestID, msg.Error); err != nil {
				log.Printf("Kiosk failure for request %s not relayed: %v", msg.RequestID, err)
			}
		}

	case realtime.TypeUpdateElapsedTime:
		if msg.Token > 0 && msg.ElapsedTime != nil {
			h.queue.UpdateElapsed(context.Background(), msg.Token, int(math.Floor(*msg.ElapsedTime)))
		}

	case realtime.TypeAdminAction:
		if msg.Token > 0 {
			if _, err := h.queue.AdminAction(context.Background(), msg.Action, msg.Token); err != nil {
				log.Printf("Admin action %q on token %d failed: %v", msg.Action, msg.Token, err)
			}
		}

	default:
		log.Printf("Unhandled websocket message type %q from session %d", msg.Type, c.ID())
	}
}
