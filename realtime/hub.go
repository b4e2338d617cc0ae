package realtime

import (
	"log"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks all live websocket sessions, including which ones registered
// as kiosk devices. Inbound messages are handed to the OnMessage router
// installed at wiring time; outbound fan-out never blocks on any client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// OnMessage routes inbound messages. Set once before Serve is called.
	OnMessage func(c *Client, msg Message)
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Serve attaches a new connection to the hub and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn) *Client {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("Session %d connected (%d total)", client.id, count)

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("Session %d disconnected (%d total)", c.id, count)
}

func (h *Hub) route(c *Client, msg Message) {
	if msg.Type == TypeRegister {
		h.registerRole(c, msg)
		return
	}
	if h.OnMessage != nil {
		h.OnMessage(c, msg)
	}
}

// registerRole flags a connection as a kiosk device. Non-kiosk registers
// are acknowledged but change nothing; every connection is a subscriber.
func (h *Hub) registerRole(c *Client, msg Message) {
	if msg.Role == RoleKiosk {
		c.kiosk.Store(true)
		c.deviceID.Store(msg.ClientID)
		log.Printf("Session %d registered as kiosk %q", c.id, msg.ClientID)
	}
	c.Send(Message{Type: TypeRegistered, OK: true, ClientID: msg.ClientID})
}

// Broadcast fans a message out to every connected session, in stable
// client order. Clients with full buffers are skipped.
func (h *Hub) Broadcast(msg Message) (delivered, dropped int) {
	for _, c := range h.snapshot() {
		if c.Send(msg) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// FindKiosk returns the first connected kiosk device, if any. At most one
// device serves a pairing request; there is no load balancing.
func (h *Hub) FindKiosk() (Sender, bool) {
	for _, c := range h.snapshot() {
		if c.IsKiosk() {
			return c, true
		}
	}
	return nil, false
}

// KioskInfo describes one connected device for the debug endpoint.
type KioskInfo struct {
	ID       uint64 `json:"id"`
	ClientID string `json:"clientId,omitempty"`
}

func (h *Hub) Kiosks() []KioskInfo {
	infos := []KioskInfo{}
	for _, c := range h.snapshot() {
		if c.IsKiosk() {
			infos = append(infos, KioskInfo{ID: c.id, ClientID: c.DeviceID()})
		}
	}
	return infos
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot copies the client set sorted by connection id so iteration
// order is deterministic.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}
