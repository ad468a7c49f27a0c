package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Status is the state of the realtime subscription.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Subscribed
	AuthError
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case AuthError:
		return "auth_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Listener receives subscription events. Callbacks run on the
// subscription's goroutine and must not call Subscription.Close.
type Listener struct {
	OnStatus       func(Status, error)
	OnNotification func(wire.Envelope)
}

type Subscription interface {
	// Close detaches the listener, then unsubscribes and drops the
	// connection. No callback fires after Close returns.
	Close() error
}

// Realtime opens a subscription to one private channel.
type Realtime interface {
	Subscribe(ctx context.Context, channel string, l Listener) (Subscription, error)
}

// ErrSessionRejected means the server refused the credentials or the
// channel. Reconnecting will not help.
var ErrSessionRejected = errors.New("realtime session rejected")

type rejectedError struct {
	status int
}

func (e rejectedError) Error() string {
	return fmt.Sprintf("%v: status %d", ErrSessionRejected, e.status)
}

func (e rejectedError) Unwrap() error { return ErrSessionRejected }

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

type SocketConfig struct {
	Dialer           *websocket.Dialer
	Backoff          Backoff
	HandshakeTimeout time.Duration
	Log              *zap.Logger
}

// Socket implements Realtime over the service's websocket endpoint.
type Socket struct {
	url   string
	token TokenSource
	cfg   SocketConfig
	log   *zap.Logger
}

func NewSocket(wsURL string, token TokenSource, cfg SocketConfig) *Socket {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultReconnectBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Socket{url: wsURL, token: token, cfg: cfg, log: log.With(zap.String("component", "client.socket"))}
}

// Subscribe connects in the background and keeps reconnecting until the
// subscription is closed, ctx ends or the server rejects the session.
func (s *Socket) Subscribe(ctx context.Context, channel string, l Listener) (Subscription, error) {
	if _, err := wire.ParseUserChannel(channel); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &socketSubscription{
		socket:   s,
		channel:  channel,
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      s.log.With(zap.String("channel", channel)),
	}
	go sub.run(ctx)
	return sub, nil
}

type socketSubscription struct {
	socket   *Socket
	channel  string
	listener Listener
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger

	detached  atomic.Bool
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func (sub *socketSubscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.detached.Store(true)
		sub.cancel()
		<-sub.done
	})
	return nil
}

func (sub *socketSubscription) emitStatus(st Status, err error) {
	if sub.detached.Load() || sub.listener.OnStatus == nil {
		return
	}
	sub.listener.OnStatus(st, err)
}

func (sub *socketSubscription) emitNotification(env wire.Envelope) {
	if sub.detached.Load() || sub.listener.OnNotification == nil {
		return
	}
	sub.listener.OnNotification(env)
}

func (sub *socketSubscription) run(ctx context.Context) {
	defer close(sub.done)

	attempt := 0
	for {
		sub.emitStatus(Connecting, nil)
		err := sub.session(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			sub.emitStatus(Disconnected, nil)
			return
		}
		if errors.Is(err, ErrSessionRejected) {
			sub.log.Warn("session rejected", zap.Error(err))
			sub.emitStatus(AuthError, err)
			return
		}
		sub.emitStatus(Disconnected, err)

		wait := sub.socket.cfg.Backoff.Next(attempt)
		attempt++
		sub.log.Debug("reconnecting", zap.Duration("in", wait), zap.Error(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one connection until it fails or ctx ends.
func (sub *socketSubscription) session(ctx context.Context, onSubscribed func()) error {
	header := http.Header{}
	if sub.socket.token != nil {
		if tok := sub.socket.token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	ws, resp, err := sub.socket.cfg.Dialer.DialContext(ctx, sub.socket.url, header)
	if err != nil {
		if resp != nil && isAuthStatus(resp.StatusCode) {
			return rejectedError{status: resp.StatusCode}
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		if frame, err := wire.EncodeFrame(wire.EventUnsubscribe, sub.channel, nil); err == nil {
			_ = sub.write(ws, frame)
		}
		_ = ws.Close()
	})
	defer stop()

	_ = ws.SetReadDeadline(time.Now().Add(sub.socket.cfg.HandshakeTimeout))
	subscribed := false

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil {
			sub.log.Debug("bad frame", zap.Error(err))
			continue
		}

		switch frame.Event {
		case wire.EventConnectionEstablished:
			req, err := wire.EncodeFrame(wire.EventSubscribe, sub.channel, nil)
			if err != nil {
				return err
			}
			if err := sub.write(ws, req); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
		case wire.EventSubscriptionSucceeded:
			if frame.Channel != sub.channel || subscribed {
				continue
			}
			subscribed = true
			_ = ws.SetReadDeadline(time.Time{})
			onSubscribed()
			sub.emitStatus(Subscribed, nil)
		case wire.EventSubscriptionError:
			var se wire.SubscriptionError
			_ = json.Unmarshal(frame.Data, &se)
			if isAuthStatus(se.Status) {
				return rejectedError{status: se.Status}
			}
			return fmt.Errorf("subscription error %d: %s", se.Status, se.Error)
		case wire.EventNotification:
			var env wire.Envelope
			if err := json.Unmarshal(frame.Data, &env); err != nil {
				sub.log.Debug("bad envelope", zap.Error(err))
				continue
			}
			sub.emitNotification(env)
		}
	}
}

func (sub *socketSubscription) write(ws *websocket.Conn, frame []byte) error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, frame)
}
