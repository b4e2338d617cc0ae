package realtime

import "queue-system/models"

const (
	// client -> server
	TypeRegister          = "register"
	TypeRequestToken      = "request_token"
	TypeKioskCreate       = "kiosk_create"
	TypeUpdateElapsedTime = "update_elapsed_time"
	TypeAdminAction       = "admin_action"

	// server -> client
	TypeRegistered        = "registered"
	TypeQueueUpdate       = "queue_update"
	TypeRequestSent       = "request_sent"
	TypeRequestFailed     = "request_failed"
	TypeKioskCreateAck    = "kiosk_create_ack"
	TypeKioskCreateFailed = "kiosk_create_failed"
	TypeTokenIssued       = "token_issued"
	TypeDeviceMessage     = "device_message"
)

// RoleKiosk marks a connection as a field device able to issue tokens.
const RoleKiosk = "kiosk"

// Message is the single envelope for every WebSocket exchange. Unused
// fields are omitted on the wire.
type Message struct {
	Type        string          `json:"type"`
	Role        string          `json:"role,omitempty"`
	ClientID    string          `json:"clientId,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	Token       int             `json:"token,omitempty"`
	Profile     *models.Profile `json:"profile,omitempty"`
	Action      string          `json:"action,omitempty"`
	// Clients time their own wait with sub-second precision; the value is
	// floored to whole seconds on ingestion.
	ElapsedTime *float64 `json:"elapsedTime,omitempty"`
	Error       string          `json:"error,omitempty"`
	OK          bool            `json:"ok,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Data        interface{}     `json:"data,omitempty"`
}

// Sender is the outbound half of a connected session. Send must never
// block; it reports whether the message was accepted.
type Sender interface {
	Send(msg Message) bool
}
