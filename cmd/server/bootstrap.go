package main

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/notifications/internal/events"
	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/anonto42/nano-midea/notifications/internal/realtime"
	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/pkg/config"
	"github.com/anonto42/nano-midea/notifications/pkg/firebase"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type app struct {
	deps router.Dependencies
	hub  *realtime.Hub

	stopConsumer context.CancelFunc
	consumerDone chan struct{}
	kafka        *realtime.KafkaBroadcaster
}

func buildApp(ctx context.Context, cfg *config.Config, db *config.DB, l *zap.Logger) (*app, error) {
	notifications, users := db.Repositories()

	identity, err := buildIdentity(ctx, cfg, users, l)
	if err != nil {
		return nil, err
	}

	a := &app{hub: realtime.NewHub(l)}

	var bus realtime.Broadcaster = a.hub
	if cfg.BroadcastDriver == config.BroadcastKafka {
		// Every instance needs its own group so each one sees every push.
		group := cfg.Kafka.GroupPrefix + "-" + uuid.NewString()
		a.kafka = realtime.NewKafkaBroadcaster(realtime.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: group,
		}, a.hub, l)
		bus = a.kafka

		consumerCtx, cancel := context.WithCancel(ctx)
		a.stopConsumer = cancel
		a.consumerDone = make(chan struct{})
		go func() {
			defer close(a.consumerDone)
			if err := a.kafka.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("broadcast consumer", zap.Error(err))
			}
		}()
	}

	dispatcher := realtime.NewDispatcher(bus, l, realtime.WithMaxEnvelopeBytes(cfg.Notifications.MaxEnvelopeBytes))
	factory := notify.NewFactory(notify.WithBodyMaxRunes(cfg.Notifications.BodyMaxRunes))
	notifier := notify.NewNotifier(factory, notifications, dispatcher, l)
	authorizer := realtime.NewChannelAuthorizer(users, l)

	ws := realtime.NewWebSocketHandler(a.hub, authorizer, realtime.WSConfig{
		SendBuffer:      cfg.WebSocket.SendBuffer,
		PingInterval:    cfg.WebSocket.PingInterval,
		PongWait:        cfg.WebSocket.PongWait,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	}, l)

	a.deps = router.Dependencies{
		Notifications: notifications,
		Authorizer:    authorizer,
		Events:        events.NewAdapter(notifier),
		WebSocket:     ws,
		Identity:      identity,
		InternalKey:   cfg.InternalAPIKey,
		Log:           l,
	}
	return a, nil
}

// buildIdentity accepts service JWTs and, when credentials are configured,
// Firebase ID tokens.
func buildIdentity(ctx context.Context, cfg *config.Config, users middleware.UserLookup, l *zap.Logger) (middleware.IdentityResolver, error) {
	var resolvers []middleware.IdentityResolver
	if cfg.JWTSecret != "" {
		resolvers = append(resolvers, middleware.NewJWTResolver(cfg.JWTSecret))
	}

	verifier, err := firebase.New(ctx, firebase.Config{
		CredentialsPath: cfg.FirebaseCredentialsPath,
		CredentialsJSON: cfg.FirebaseCredentialsJSON,
		ProjectID:       cfg.FirebaseProjectID,
	}, l)
	switch {
	case err == nil:
		resolvers = append(resolvers, middleware.NewFirebaseResolver(verifier, users))
	case errors.Is(err, firebase.ErrNoCredentials):
		l.Info("Firebase credentials not configured; accepting JWTs only.")
	default:
		return nil, err
	}

	if len(resolvers) == 1 {
		return resolvers[0], nil
	}
	return middleware.FirstOf(resolvers...), nil
}

func (a *app) close() {
	if a.kafka == nil {
		return
	}
	a.stopConsumer()
	<-a.consumerDone
	_ = a.kafka.Close()
}
