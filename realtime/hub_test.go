package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attach registers a bare client without starting connection pumps.
func attach(h *Hub) *Client {
	c := newClient(h, nil)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_RegisterKiosk(t *testing.T) {
	h := NewHub()
	c := attach(h)

	h.route(c, Message{Type: TypeRegister, Role: RoleKiosk, ClientID: "kiosk-1"})

	assert.True(t, c.IsKiosk())
	assert.Equal(t, "kiosk-1", c.DeviceID())

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeRegistered, msgs[0].Type)
	assert.True(t, msgs[0].OK)
}

func TestHub_RegisterSubscriberStaysPlain(t *testing.T) {
	h := NewHub()
	c := attach(h)

	h.route(c, Message{Type: TypeRegister, Role: "viewer"})

	assert.False(t, c.IsKiosk())
	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeRegistered, msgs[0].Type)
}

func TestHub_FindKiosk(t *testing.T) {
	h := NewHub()
	attach(h)

	_, found := h.FindKiosk()
	assert.False(t, found)

	first := attach(h)
	h.route(first, Message{Type: TypeRegister, Role: RoleKiosk, ClientID: "a"})
	second := attach(h)
	h.route(second, Message{Type: TypeRegister, Role: RoleKiosk, ClientID: "b"})

	kiosk, found := h.FindKiosk()
	require.True(t, found)
	// lowest connection id wins; there is no load balancing
	assert.Same(t, first, kiosk)
}

func TestHub_Kiosks(t *testing.T) {
	h := NewHub()
	attach(h)
	kiosk := attach(h)
	h.route(kiosk, Message{Type: TypeRegister, Role: RoleKiosk, ClientID: "front-desk"})

	infos := h.Kiosks()
	require.Len(t, infos, 1)
	assert.Equal(t, "front-desk", infos[0].ClientID)
	assert.Equal(t, kiosk.id, infos[0].ID)
}

func TestHub_BroadcastCountsDrops(t *testing.T) {
	h := NewHub()
	healthy := attach(h)
	stuck := attach(h)

	// Fill the stuck client's buffer so the next send must drop.
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, stuck.Send(Message{Type: TypeQueueUpdate}))
	}

	delivered, dropped := h.Broadcast(Message{Type: TypeQueueUpdate})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, dropped)
	assert.Len(t, drain(healthy), 1)
}

func TestHub_RouteDispatchesToOnMessage(t *testing.T) {
	h := NewHub()
	c := attach(h)

	var got Message
	h.OnMessage = func(_ *Client, msg Message) { got = msg }

	h.route(c, Message{Type: TypeRequestToken, RequestID: "req-9"})
	assert.Equal(t, TypeRequestToken, got.Type)
	assert.Equal(t, "req-9", got.RequestID)

	// register is handled by the hub itself, never the router
	got = Message{}
	h.route(c, Message{Type: TypeRegister, Role: RoleKiosk})
	assert.Empty(t, got.Type)
}

func TestHub_SendAfterDisconnectDropsMessage(t *testing.T) {
	h := NewHub()
	c := attach(h)

	// A pairing timer may hold this sender long after the session is gone.
	h.remove(c)

	assert.NotPanics(t, func() {
		assert.False(t, c.Send(Message{Type: TypeRequestFailed}))
	})
}

func TestHub_BroadcastAfterDisconnect(t *testing.T) {
	h := NewHub()
	stale := attach(h)
	live := attach(h)
	h.remove(stale)

	var delivered, dropped int
	assert.NotPanics(t, func() {
		delivered, dropped = h.Broadcast(Message{Type: TypeQueueUpdate})
	})
	assert.Equal(t, 1, delivered)
	assert.Zero(t, dropped)
	assert.Len(t, drain(live), 1)

	// even a sender captured before removal must only drop
	assert.False(t, stale.Send(Message{Type: TypeQueueUpdate}))
}

func TestMessage_AcceptsFractionalElapsedTime(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"type":"update_elapsed_time","token":3,"elapsedTime":45.7}`), &msg)
	require.NoError(t, err)
	assert.Equal(t, 3, msg.Token)
	require.NotNil(t, msg.ElapsedTime)
	assert.Equal(t, 45.7, *msg.ElapsedTime)
}

func TestHub_SessionCount(t *testing.T) {
	h := NewHub()
	assert.Zero(t, h.SessionCount())

	c := attach(h)
	attach(h)
	assert.Equal(t, 2, h.SessionCount())

	h.remove(c)
	assert.Equal(t, 1, h.SessionCount())
}
