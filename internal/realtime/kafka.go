package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the cross-instance broadcast bus. GroupID must be
// unique per instance so that every instance sees every frame.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaBroadcaster publishes frames to a topic and delivers frames read from
// that topic to the local hub. It lets several server instances share
// subscribers without sticky routing.
type KafkaBroadcaster struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	hub    *Hub
	log    *zap.Logger
}

func NewKafkaBroadcaster(cfg KafkaConfig, hub *Hub, log *zap.Logger) *KafkaBroadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	l := log.With(
		zap.String("component", "realtime.kafka"),
		zap.String("topic", cfg.Topic),
		zap.String("group", cfg.GroupID),
	)
	return &KafkaBroadcaster{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
			Async:                  true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					pushesTotal.WithLabelValues("failed").Add(float64(len(messages)))
					l.Warn("kafka publish failed", zap.Int("messages", len(messages)), zap.Error(err))
				}
			},
		},
		hub: hub,
		log: l,
	}
}

// Broadcast hands frame to the async writer. It never waits for the broker.
func (b *KafkaBroadcaster) Broadcast(ctx context.Context, channel string, frame []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(channel), Value: frame})
}

// Run consumes the topic until ctx is canceled.
func (b *KafkaBroadcaster) Run(ctx context.Context) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               b.cfg.Brokers,
		GroupID:               b.cfg.GroupID,
		Topic:                 b.cfg.Topic,
		StartOffset:           kafka.LastOffset,
		WatchPartitionChanges: true,
		MinBytes:              1,
		MaxBytes:              10e6,
		MaxWait:               250 * time.Millisecond,
		SessionTimeout:        10 * time.Second,
		HeartbeatInterval:     3 * time.Second,
	})
	defer reader.Close()

	b.log.Info("broadcast consumer started")
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info("broadcast consumer stopped")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				b.log.Debug("fetch EOF; retry", zap.Duration("backoff", backoff))
			} else {
				b.log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		b.deliver(msg)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("commit failed", zap.Error(err))
		}
	}
}

func (b *KafkaBroadcaster) deliver(msg kafka.Message) int {
	channel := string(msg.Key)
	if channel == "" {
		b.log.Warn("frame without channel key", zap.Int64("offset", msg.Offset))
		return 0
	}
	n := b.hub.Publish(channel, msg.Value)
	if n > 0 {
		pushesTotal.WithLabelValues("delivered").Inc()
	}
	return n
}

// Async reports that Broadcast only publishes; delivery happens in Run on
// whichever instance holds the subscriber.
func (b *KafkaBroadcaster) Async() bool { return true }

func (b *KafkaBroadcaster) Close() error { return b.writer.Close() }
