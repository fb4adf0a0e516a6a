package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mining-economy/internal/constants"
	"mining-economy/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Message is the JSON envelope written to every socket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type envelope struct {
	userID string // empty broadcasts to everyone
	data   []byte
}

// client is one browser connection, optionally bound to a player.
type client struct {
	hub      *Hub
	conn     *websocket.Conn
	playerID string
	send     chan []byte
}

// Hub keeps the connected sockets and routes notifications to the player they belong to.
type Hub struct {
	clients    map[*client]bool
	outbound   chan envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		outbound:   make(chan envelope, constants.WSSendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.WSReadBufferSize,
			WriteBufferSize: constants.WSWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run is the hub event loop. It returns when ctx is cancelled and closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug().Str("player_id", c.playerID).Int("clients", len(h.clients)).Msg("websocket registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.outbound:
			for c := range h.clients {
				if msg.userID != "" && c.playerID != msg.userID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Notify queues n for the sockets of n.UserID. A full queue drops the message.
func (h *Hub) Notify(_ context.Context, n domain.Notification) error {
	return h.enqueue(n.UserID, Message{Type: "notification", Payload: n})
}

// Broadcast queues e for every socket.
func (h *Hub) Broadcast(_ context.Context, e Event) error {
	return h.enqueue("", Message{Type: e.Type, Payload: e.Payload})
}

func (h *Hub) enqueue(userID string, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode websocket message: %w", err)
	}
	select {
	case h.outbound <- envelope{userID: userID, data: data}:
		return nil
	default:
		return fmt.Errorf("websocket queue full, dropped %s", m.Type)
	}
}

// ServeWS upgrades the request. ?player_id= binds the socket to that player's notifications.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		playerID: r.URL.Query().Get("player_id"),
		send:     make(chan []byte, constants.WSSendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for the close; inbound messages are ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("player_id", c.playerID).Msg("websocket closed")
			}
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
