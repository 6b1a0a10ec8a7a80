package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultPath is where the hub is mounted.
const DefaultPath = "/_bigpipe/realtime"

// ErrUnknownChannel is returned when pushing to a channel that was never
// opened or already expired.
var ErrUnknownChannel = errors.New("realtime: unknown channel")

// MessageType identifies a message for the client.
type MessageType string

const (
	// MessagePagelet carries markup for a pagelet placeholder.
	MessagePagelet MessageType = "pagelet"

	// MessageRedirect tells the page to navigate to Data.
	MessageRedirect MessageType = "redirect"

	// MessageReload asks the page to reload.
	MessageReload MessageType = "reload"
)

// Message is sent to a page as one JSON text frame.
type Message struct {
	Type    MessageType `json:"type"`
	Pagelet string      `json:"pagelet,omitempty"`
	Data    any         `json:"data,omitempty"`
}

type channel struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
	pending [][]byte
	opened  time.Time
}

// Hub manages page channels.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channel
	upgrader websocket.Upgrader

	ttl        time.Duration
	maxPending int
	logger     *slog.Logger
	now        func() time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithTTL sets how long a channel may stay unconnected before Sweep drops it.
func WithTTL(d time.Duration) HubOption {
	return func(h *Hub) { h.ttl = d }
}

// WithMaxPending limits the messages buffered for an unconnected channel.
// The oldest messages are dropped first.
func WithMaxPending(n int) HubOption {
	return func(h *Hub) { h.maxPending = n }
}

// WithCheckOrigin sets the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// WithHubLogger sets the logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		channels: make(map[string]*channel),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ttl:        time.Minute,
		maxPending: 32,
		logger:     slog.Default().With("component", "realtime"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open creates a channel and returns its id.
func (h *Hub) Open() string {
	id := uuid.NewString()
	h.mu.Lock()
	h.channels[id] = &channel{opened: h.now()}
	h.mu.Unlock()
	return id
}

// Push sends msg to the channel id, buffering it while no client is
// connected.
func (h *Hub) Push(id string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	ch, ok := h.channels[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownChannel
	}

	ch.writeMu.Lock()
	if ch.conn == nil {
		ch.pending = append(ch.pending, data)
		if over := len(ch.pending) - h.maxPending; over > 0 {
			ch.pending = ch.pending[over:]
		}
		ch.writeMu.Unlock()
		return nil
	}
	err = ch.conn.WriteMessage(websocket.TextMessage, data)
	ch.writeMu.Unlock()

	if err != nil {
		h.logger.Debug("push failed", "channel", id, "error", err)
		h.drop(id, ch)
		return err
	}
	return nil
}

// ServeHTTP upgrades the request and attaches it to ?channel=<id>.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("channel")
	h.mu.RLock()
	ch, ok := h.channels[id]
	h.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch.writeMu.Lock()
	if ch.conn != nil {
		ch.conn.Close()
	}
	ch.conn = conn
	for _, data := range ch.pending {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	ch.pending = nil
	ch.writeMu.Unlock()
	h.logger.Debug("channel connected", "channel", id)

	// Keep the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	ch.writeMu.Lock()
	current := ch.conn == conn
	ch.writeMu.Unlock()
	if current {
		h.drop(id, ch)
	}
	conn.Close()
}

// drop removes the channel if it is still registered as ch.
func (h *Hub) drop(id string, ch *channel) {
	h.mu.Lock()
	if h.channels[id] == ch {
		delete(h.channels, id)
	}
	h.mu.Unlock()
}

// Close closes the channel id.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	ch, ok := h.channels[id]
	delete(h.channels, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if ch.conn != nil {
		ch.conn.Close()
	}
}

// Len returns the number of open channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Sweep drops channels no client connected to within the TTL and returns
// how many were dropped.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.ttl)

	h.mu.RLock()
	candidates := make(map[string]*channel, len(h.channels))
	for id, ch := range h.channels {
		candidates[id] = ch
	}
	h.mu.RUnlock()

	n := 0
	for id, ch := range candidates {
		ch.writeMu.Lock()
		stale := ch.conn == nil && ch.opened.Before(cutoff)
		ch.writeMu.Unlock()
		if !stale {
			continue
		}
		h.mu.Lock()
		if h.channels[id] == ch {
			delete(h.channels, id)
			n++
		}
		h.mu.Unlock()
	}
	return n
}

// Run sweeps every interval until ctx is done, then closes every channel.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.logger.Debug("swept channels", "count", n)
			}
		}
	}
}

// Shutdown closes every channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]*channel)
	h.mu.Unlock()

	for _, ch := range channels {
		ch.writeMu.Lock()
		if ch.conn != nil {
			ch.conn.Close()
		}
		ch.writeMu.Unlock()
	}
}
