// Package websocket pushes live updates to connected clients. Patients
// receive changes to their own bids; staff can also follow tracked events.
package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/auth"
)

// TopicEvents carries every tracked analytics event.
const TopicEvents = "events"

const patientTopicPrefix = "patient:"

// PatientTopic is the topic on which a patient's bid updates are published.
func PatientTopic(patientID string) string {
	return patientTopicPrefix + patientID
}

// Message is one update pushed to subscribers.
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connection. UserID and Role come from the session that
// opened it.
type Client struct {
	ID     string
	UserID string
	Role   string
	Topics []string
	Send   chan []byte
}

// CanSubscribe reports whether the client may follow topic. Patients and
// doctors are limited to their own patient topic; admin and service callers
// may follow anything.
func (c *Client) CanSubscribe(topic string) bool {
	if auth.HasRole(c.Role, auth.RoleAdmin) {
		return true
	}
	return topic == PatientTopic(c.UserID)
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds a client with its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.add(topic, client)
	}
}

// Unregister removes the client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.remove(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds the topics the client is allowed to follow and returns
// the ones it was refused.
func (h *Hub) Subscribe(client *Client, topics []string) (denied []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if !client.CanSubscribe(topic) {
			denied = append(denied, topic)
			continue
		}
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.add(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
		h.remove(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a client request. Refused topics are reported back
// to the client as a "subscribe.denied" message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if denied := h.Subscribe(client, msg.Topics); len(denied) > 0 {
			h.sendTo(client, Message{Type: "subscribe.denied", Timestamp: h.now().UTC(), Data: denied})
		}
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Publish sends a message to every subscriber of topic. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Publish(topic, typ string, data interface{}) {
	payload, err := json.Marshal(Message{Type: typ, Topic: topic, Timestamp: h.now().UTC(), Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("websocket: marshal message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("websocket: client buffer full")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) sendTo(client *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

// add and remove expect h.mu to be held.
func (h *Hub) add(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) remove(topic string, client *Client) {
	if subs, ok := h.clients[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Handler upgrades GET /api/ws to a WebSocket connection.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds a handler. allowedOrigins empty or containing "*"
// accepts any Origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws", h.Connect)
}

// Connect registers the caller. Patients start subscribed to their own
// topic.
func (h *Handler) Connect(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing_token")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: uid,
		Role:   auth.RoleFromContext(ctx),
		Send:   make(chan []byte, 64),
	}
	if client.Role == auth.RolePatient {
		client.Topics = []string{PatientTopic(uid)}
	}
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()
	for payload := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, payload); err != nil {
			return
		}
	}
}
