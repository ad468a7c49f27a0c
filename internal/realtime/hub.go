package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"go.uber.org/zap"
)

// Conn is one live client connection as seen by the hub. Frames are queued on
// a bounded buffer and written by the connection's own writer goroutine.
type Conn struct {
	ID       string
	Identity models.Identity

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu            sync.Mutex
	subscriptions map[string]time.Time // channel -> authorized at
}

func NewConn(id string, identity models.Identity, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{
		ID:            id,
		Identity:      identity,
		send:          make(chan []byte, buffer),
		subscriptions: make(map[string]time.Time),
	}
}

// Send queues frame without blocking. It reports false when the buffer is
// full or the connection has been released.
func (c *Conn) Send(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		framesDropped.Inc()
		return false
	}
}

// Outbound is drained by the writer goroutine. It is closed when the hub
// releases the connection.
func (c *Conn) Outbound() <-chan []byte { return c.send }

func (c *Conn) Subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *Conn) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}

func (c *Conn) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans frames out to the local connections subscribed to a channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
	conns    map[*Conn]struct{}
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		channels: make(map[string]map[*Conn]struct{}),
		conns:    make(map[*Conn]struct{}),
		log:      log.With(zap.String("component", "realtime.hub")),
	}
}

// Register makes c known to the hub so it can later be released.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	activeConnections.Inc()
}

// Subscribe adds c to channel. It returns false when c already holds that
// subscription, so a connection never receives a push twice.
func (h *Hub) Subscribe(channel string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return false
	}
	c.mu.Lock()
	_, exists := c.subscriptions[channel]
	if !exists {
		c.subscriptions[channel] = time.Now().UTC()
	}
	c.mu.Unlock()
	if exists {
		return false
	}

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Conn]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	activeSubscriptions.Inc()
	return true
}

func (h *Hub) Unsubscribe(channel string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribeLocked(channel, c)
}

func (h *Hub) unsubscribeLocked(channel string, c *Conn) bool {
	c.mu.Lock()
	_, exists := c.subscriptions[channel]
	delete(c.subscriptions, channel)
	c.mu.Unlock()
	if !exists {
		return false
	}

	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	activeSubscriptions.Dec()
	return true
}

// Release drops every subscription of c and closes its outbound queue.
func (h *Hub) Release(c *Conn) {
	h.mu.Lock()
	for _, ch := range c.Channels() {
		h.unsubscribeLocked(ch, c)
	}
	_, known := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if known {
		activeConnections.Dec()
	}
	c.close()
}

// Shutdown releases every connection; their writers send a close frame.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.Release(c)
	}
	h.log.Info("hub shut down", zap.Int("connections", len(conns)))
}

// Publish queues frame on every local subscriber of channel and returns how
// many accepted it.
func (h *Hub) Publish(channel string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[channel] {
		if c.Send(frame) {
			delivered++
		} else {
			h.log.Warn("send buffer full, frame dropped",
				zap.String("socket_id", c.ID), zap.String("channel", channel))
		}
	}
	return delivered
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Broadcast implements Broadcaster for a single instance.
func (h *Hub) Broadcast(_ context.Context, channel string, frame []byte) error {
	if h.Publish(channel, frame) == 0 {
		return notify.ErrNoSubscribers
	}
	return nil
}
