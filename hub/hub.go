package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const EventAvailabilityUpdate = "availability_update"

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many messages a client may fall behind before it is dropped.
	sendBuffer = 32
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// AvailabilityUpdate is sent to every client after a booking changes
// the seats left for a (date, slot) pair.
type AvailabilityUpdate struct {
	Date       string `json:"date"`
	TimeSlotID uint   `json:"time_slot_id"`
	Remaining  int    `json:"remaining"`
	Available  bool   `json:"available"`
}

type client struct {
	conn *websocket.Conn
	role string
	send chan []byte
}

// Hub keeps the connected websocket clients. Guests get availability
// updates; staff additionally get operational alerts. Each client has its
// own writer goroutine so a slow socket never holds up a broadcast.
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.Mutex
}

func New() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *Hub) Register(conn *websocket.Conn, role string) {
	c := &client{conn: conn, role: role, send: make(chan []byte, sendBuffer)}

	h.mutex.Lock()
	h.clients[conn] = c
	h.mutex.Unlock()

	go h.writePump(c)
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		h.remove(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) AvailabilityChanged(date string, timeSlotID uint, remaining int) {
	h.broadcast(Message{
		Event: EventAvailabilityUpdate,
		Data: AvailabilityUpdate{
			Date:       date,
			TimeSlotID: timeSlotID,
			Remaining:  remaining,
			Available:  remaining > 0,
		},
	}, false)
}

// StaffNotice goes to staff and admin clients only.
func (h *Hub) StaffNotice(event string, data interface{}) {
	h.broadcast(Message{Event: event, Data: data}, true)
}

func (h *Hub) broadcast(msg Message, staffOnly bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.Error(logrus.Fields{"event": msg.Event}).WithError(err).Error("Error marshaling message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, c := range h.clients {
		if staffOnly && !models.IsStaffRole(c.role) {
			continue
		}
		select {
		case c.send <- data:
		default:
			utils.Info(logrus.Fields{"event": msg.Event, "role": c.role}).
				Warn("Dropping websocket client that fell behind")
			h.remove(c)
		}
	}
}

// remove must be called with the mutex held. Closing send stops the
// client's writer, which closes the connection.
func (h *Hub) remove(c *client) {
	delete(h.clients, c.conn)
	close(c.send)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.Info(logrus.Fields{"role": c.role}).WithError(err).Warn("Dropping websocket client")
			h.Unregister(c.conn)
			return
		}
	}
}
