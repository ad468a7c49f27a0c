package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WSConfig tunes the websocket endpoint.
type WSConfig struct {
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	AuthTimeout     time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

func (c WSConfig) withDefaults() WSConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4096
	}
	return c
}

// WebSocketHandler serves GET /ws. The connection's identity comes from the
// auth middleware; subscribe frames are checked against it.
type WebSocketHandler struct {
	hub        *Hub
	authorizer *ChannelAuthorizer
	cfg        WSConfig
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

func NewWebSocketHandler(hub *Hub, authorizer *ChannelAuthorizer, cfg WSConfig, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	h := &WebSocketHandler{
		hub:        hub,
		authorizer: authorizer,
		cfg:        cfg,
		log:        log.With(zap.String("component", "realtime.ws")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterWebSocketRoutes registers the websocket endpoint behind auth.
func (h *WebSocketHandler) RegisterWebSocketRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/ws", h.Serve, auth)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *WebSocketHandler) Serve(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug("upgrade failed", zap.Error(err))
		return nil
	}

	conn := NewConn(uuid.NewString(), identity, h.cfg.SendBuffer)
	log := h.log.With(zap.String("socket_id", conn.ID), zap.Uint("user_id", identity.UserID))
	h.hub.Register(conn)
	log.Info("connection opened")

	hello, _ := wire.EncodeFrame(wire.EventConnectionEstablished, "", wire.ConnectionEstablished{SocketID: conn.ID})
	conn.Send(hello)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ws, conn, log)
	}()

	h.readLoop(ws, conn, log)
	h.hub.Release(conn)
	<-done
	_ = ws.Close()
	log.Info("connection closed")
	return nil
}

func (h *WebSocketHandler) readLoop(ws *websocket.Conn, conn *Conn, log *zap.Logger) {
	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			log.Debug("bad frame", zap.Error(err))
			continue
		}
		switch frame.Event {
		case wire.EventSubscribe:
			h.subscribe(conn, frame.Channel, log)
		case wire.EventUnsubscribe:
			if h.hub.Unsubscribe(frame.Channel, conn) {
				log.Debug("unsubscribed", zap.String("channel", frame.Channel))
			}
		default:
			log.Debug("ignored frame", zap.String("event", frame.Event))
		}
	}
}

func (h *WebSocketHandler) subscribe(conn *Conn, channel string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AuthTimeout)
	defer cancel()

	data, err := h.authorizer.Authorize(ctx, conn.Identity, channel)
	if err != nil {
		reply, _ := wire.EncodeFrame(wire.EventSubscriptionError, channel,
			wire.SubscriptionError{Status: http.StatusForbidden, Error: "Forbidden"})
		conn.Send(reply)
		return
	}

	if h.hub.Subscribe(channel, conn) {
		log.Debug("subscribed", zap.String("channel", channel))
	}
	reply, _ := wire.EncodeFrame(wire.EventSubscriptionSucceeded, channel, data)
	conn.Send(reply)
}

func (h *WebSocketHandler) writeLoop(ws *websocket.Conn, conn *Conn, log *zap.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.Error(err))
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
