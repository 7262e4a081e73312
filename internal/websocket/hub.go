// Package websocket pushes link events to a user's connected clients so
// open sessions see new saves and thumbnail updates without polling.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"github.com/linksaver/linksaver/internal/auth"
)

// Message is the wire format for hub events.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one connected socket, owned by a single user.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte
}

type userMessage struct {
	userID string
	data   []byte
}

// TokenVerifier validates an access token. Satisfied by auth.TokenManager.
type TokenVerifier interface {
	ParseAccess(token string) (*auth.Claims, error)
}

// Hub maintains active clients and delivers per-user messages.
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan userMessage
	register       chan *Client
	unregister     chan *Client
	mu             sync.RWMutex
	tokens         TokenVerifier
	allowedOrigins []string
}

func NewHub(tokens TokenVerifier, allowedOrigins []string) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan userMessage, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
	}
}

// Run processes register, unregister and broadcast events. Call it in its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("websocket: client connected for user %s", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("websocket: client disconnected for user %s", client.UserID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.UserID != msg.userID {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToUser queues a message for every socket the user has open.
// Marshal failures are logged and dropped; event delivery is best-effort.
func (h *Hub) BroadcastToUser(userID, messageType string, payload any) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("websocket: marshal %s payload: %v", messageType, err)
		return
	}

	data, err := json.Marshal(Message{Type: messageType, Payload: payloadJSON})
	if err != nil {
		log.Printf("websocket: marshal %s message: %v", messageType, err)
		return
	}

	h.broadcast <- userMessage{userID: userID, data: data}
}

// HandleWebSocket authenticates and upgrades a connection. The access
// token comes from the token query parameter or a bearer header.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ParseAccess(token)
	if err != nil {
		log.Printf("websocket: rejected connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	client := &Client{
		UserID: claims.Subject,
		Conn:   conn,
		Hub:    h,
		Send:   make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				log.Printf("websocket: unexpected read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("websocket: bad message from user %s: %v", c.UserID, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ctx := context.Background()
	for data := range c.Send {
		if err := c.Conn.Write(ctx, websocket.MessageText, data); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				log.Printf("websocket: unexpected write error: %v", err)
			}
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{Type: "pong", Payload: json.RawMessage(`{}`)})
		c.Send <- response
	default:
		log.Printf("websocket: unknown message type %q from user %s", msg.Type, c.UserID)
	}
}
