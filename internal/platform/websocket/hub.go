// Package websocket broadcasts domain events to live WebSocket subscribers.
// A Notifier attached to the appointment service's event bus forwards every
// event to the Hub; the hub fans it out to all connected clients with no
// backpressure and no delivery guarantee. A disconnected client simply
// misses events published while it was away.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event is the wire format sent to subscribers: the domain event kind as
// the topic and the affected record as the payload.
type Event struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// clientMessage is an inbound message narrowing a client's subscription.
type clientMessage struct {
	Action string   `json:"action"`
	Kinds  []string `json:"kinds"`
}

// Client is a single WebSocket connection. A client with no kind filter
// receives every event.
type Client struct {
	ID    string
	Kinds []string
	Send  chan []byte
}

// Hub tracks connected clients. Connect and disconnect are independent of
// event publication and never block it; all operations are guarded by a
// read/write mutex.
type Hub struct {
	mu     sync.RWMutex
	all    map[*Client]struct{}
	byKind map[string]map[*Client]struct{}
	log    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		all:    make(map[*Client]struct{}),
		byKind: make(map[string]map[*Client]struct{}),
		log:    logger,
	}
}

// Register adds a newly connected client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.all[client] = struct{}{}
	h.mu.Unlock()
	h.log.Info().Str("client_id", client.ID).Msg("subscriber connected")
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return
	}
	for _, kind := range client.Kinds {
		if subs, ok := h.byKind[kind]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.byKind, kind)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
	h.mu.Unlock()
	h.log.Info().Str("client_id", client.ID).Msg("subscriber disconnected")
}

// Narrow restricts an already-registered client to the given event kinds.
func (h *Hub) Narrow(client *Client, kinds []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, kind := range kinds {
		if h.byKind[kind] == nil {
			h.byKind[kind] = make(map[*Client]struct{})
		}
		h.byKind[kind][client] = struct{}{}
	}
	client.Kinds = append(client.Kinds, kinds...)
}

// Widen removes kinds from a client's filter; a client whose filter becomes
// empty goes back to receiving everything.
func (h *Hub) Widen(client *Client, kinds []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removeSet := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		removeSet[kind] = struct{}{}
		if subs, ok := h.byKind[kind]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.byKind, kind)
			}
		}
	}
	remaining := client.Kinds[:0]
	for _, kind := range client.Kinds {
		if _, rm := removeSet[kind]; !rm {
			remaining = append(remaining, kind)
		}
	}
	client.Kinds = remaining
}

// Broadcast fans the event out: clients filtered to the event's kind plus
// every unfiltered client. Sends are non-blocking; a client with a full
// buffer misses the event rather than stalling the publisher.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error().Err(err).Str("kind", evt.Kind).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.all {
		if len(client.Kinds) > 0 {
			continue
		}
		h.send(client, data)
	}
	for client := range h.byKind[evt.Kind] {
		h.send(client, data)
	}
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// ---------------------------------------------------------------------------
// Notifier — event-bus subscriber feeding the hub
// ---------------------------------------------------------------------------

// Notifier forwards every (kind, payload) it receives to the hub. It is the
// single bus subscriber the fan-out needs; attach HandleEvent to the
// appointment service.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// HandleEvent matches events.Handler.
func (n *Notifier) HandleEvent(kind string, payload any) {
	n.hub.Broadcast(Event{Kind: kind, Timestamp: time.Now().UTC(), Data: payload})
}

// ---------------------------------------------------------------------------
// Handler — Echo endpoint upgrading connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections and pumps messages between the socket
// and the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wh.HandleConnect)
}

func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)

	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}
		switch msg.Action {
		case "subscribe":
			wh.hub.Narrow(client, msg.Kinds)
		case "unsubscribe":
			wh.hub.Widen(client, msg.Kinds)
		}
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
