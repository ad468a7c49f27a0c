package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"go.uber.org/zap"
)

// DefaultMaxEnvelopeBytes bounds the encoded envelope of a single push.
const DefaultMaxEnvelopeBytes = 8192

var ErrEnvelopeTooLarge = errors.New("envelope exceeds size limit")

// Broadcaster delivers an encoded frame to whoever is subscribed to channel.
// Implementations must not block on slow subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, frame []byte) error
}

// AsyncBroadcaster is a Broadcaster that only hands frames to a bus. A nil
// error from it means published, not delivered.
type AsyncBroadcaster interface {
	Broadcaster
	Async() bool
}

// Dispatcher turns stored notifications into pushes on the recipient's
// private channel. Delivery is best effort: nothing is retried or queued.
type Dispatcher struct {
	bus              Broadcaster
	maxEnvelopeBytes int
	okResult         string
	now              func() time.Time
	log              *zap.Logger
}

type DispatcherOption func(*Dispatcher)

func WithMaxEnvelopeBytes(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxEnvelopeBytes = n
		}
	}
}

func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(bus Broadcaster, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		bus:              bus,
		maxEnvelopeBytes: DefaultMaxEnvelopeBytes,
		okResult:         "delivered",
		now:              time.Now,
		log:              log.With(zap.String("component", "realtime.dispatcher")),
	}
	if a, ok := bus.(AsyncBroadcaster); ok && a.Async() {
		d.okResult = "published"
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch pushes n to its recipient. Every failure is a TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	channel := wire.ChannelForUser(n.RecipientID)

	payload, err := json.Marshal(wire.NewEnvelope(n, d.now()))
	if err != nil {
		pushesTotal.WithLabelValues("failed").Inc()
		return notify.NewTransportError(channel, fmt.Errorf("encode envelope: %w", err))
	}
	if len(payload) > d.maxEnvelopeBytes {
		pushesTotal.WithLabelValues("oversized").Inc()
		d.log.Warn("envelope too large, push skipped",
			zap.Uint("notification_id", n.ID), zap.Int("bytes", len(payload)))
		return notify.NewTransportError(channel, ErrEnvelopeTooLarge)
	}

	frame, err := wire.EncodeFrame(wire.EventNotification, channel, json.RawMessage(payload))
	if err != nil {
		pushesTotal.WithLabelValues("failed").Inc()
		return notify.NewTransportError(channel, err)
	}

	if err := d.bus.Broadcast(ctx, channel, frame); err != nil {
		if errors.Is(err, notify.ErrNoSubscribers) {
			pushesTotal.WithLabelValues("no_subscribers").Inc()
		} else {
			pushesTotal.WithLabelValues("failed").Inc()
		}
		return notify.NewTransportError(channel, err)
	}
	pushesTotal.WithLabelValues(d.okResult).Inc()
	return nil
}
