package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"energysense/internal/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Authorizer resolves a raw bearer token to an account. *auth.Service
// satisfies it.
type Authorizer interface {
	Authenticate(token string) (auth.User, error)
}

// Handler upgrades dashboard stream connections. Browsers cannot set an
// Authorization header on a WebSocket handshake, so the token rides the
// "token" query parameter instead.
type Handler struct {
	hub      *Hub
	auth     Authorizer
	snapshot func() any
	log      *slog.Logger
}

// NewHandler wires the stream endpoint. snapshot supplies the initial
// dashboard payload for a fresh connection and may be nil.
func NewHandler(hub *Hub, auth Authorizer, snapshot func() any, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, auth: auth, snapshot: snapshot, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		detail := "Invalid token"
		if errors.Is(err, auth.ErrUserNotFound) {
			detail = "User not found"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	h.log.Info("dashboard client connected",
		"user", user.Username, "clients", h.hub.ClientCount())

	h.sendSnapshot(client)
	h.readPump(client)
}

// sendSnapshot pushes the current dashboard state so a fresh console
// does not wait for the next broadcast tick.
func (h *Handler) sendSnapshot(c *Client) {
	if h.snapshot == nil {
		return
	}
	msg, err := NewEnvelope(TypeDashboardUpdate, h.snapshot())
	if err != nil {
		h.log.Warn("dropping initial dashboard payload", "error", err)
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump discards client frames; reading keeps close and ping control
// frames flowing.
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "error", err)
			}
			return
		}
	}
}
