package notify

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/pkg/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the durable side of the pipeline.
type Store interface {
	Append(ctx context.Context, n *models.Notification) (uint, error)
}

// Dispatcher pushes an already persisted notification to live subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *models.Notification) error
}

// Result describes what Handle did with one event. A zero Result means the
// event was suppressed. Dispatched means the broadcaster accepted the push:
// a local subscriber got it, or with the kafka driver it reached the topic.
type Result struct {
	Notification *models.Notification
	Dispatched   bool
}

var (
	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notifications persisted, by type.",
	}, []string{"type"})
	notificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_suppressed_total",
		Help: "Events that produced no notification, by event kind.",
	}, []string{"kind"})
	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Events rejected by validation or storage, by reason.",
	}, []string{"reason"})
)

// Notifier runs factory, store and dispatcher for a single event.
type Notifier struct {
	factory    *Factory
	store      Store
	dispatcher Dispatcher
	log        *zap.Logger
	tracer     trace.Tracer
}

func NewNotifier(factory *Factory, store Store, dispatcher Dispatcher, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		factory:    factory,
		store:      store,
		dispatcher: dispatcher,
		log:        log.With(zap.String("component", "notifier")),
		tracer:     otel.Tracer("notify"),
	}
}

// Handle persists the notification for e and then attempts a push. A push
// failure never fails the call; a store failure means nothing is pushed.
func (n *Notifier) Handle(ctx context.Context, e models.DomainEvent) (Result, error) {
	ctx, span := n.tracer.Start(ctx, "notify.Handle", trace.WithAttributes(
		attribute.String("event.kind", string(e.Kind)),
		attribute.Int64("event.actor_id", int64(e.ActorID)),
		attribute.Int64("event.target_owner_id", int64(e.TargetOwnerID)),
	))
	defer span.End()
	log := obs.WithTrace(ctx, n.log)

	notification, err := n.factory.Create(e)
	if err != nil {
		notificationsFailed.WithLabelValues("validation").Inc()
		span.SetStatus(codes.Error, "invalid event")
		span.RecordError(err)
		return Result{}, err
	}
	if notification == nil {
		notificationsSuppressed.WithLabelValues(string(e.Kind)).Inc()
		log.Debug("self action, notification suppressed",
			zap.String("kind", string(e.Kind)), zap.Uint("actor_id", e.ActorID))
		return Result{}, nil
	}

	id, err := n.store.Append(ctx, notification)
	if err != nil {
		notificationsFailed.WithLabelValues("storage").Inc()
		serr := NewStorageError("append", err)
		span.SetStatus(codes.Error, "append failed")
		span.RecordError(serr)
		log.Error("append failed", zap.Uint("recipient_id", notification.RecipientID), zap.Error(err))
		return Result{}, serr
	}
	notification.ID = id
	notificationsCreated.WithLabelValues(string(notification.Type)).Inc()
	span.SetAttributes(attribute.Int64("notification.id", int64(id)))

	res := Result{Notification: notification}
	if n.dispatcher == nil || !TargetsFor(notification.Type).Has(DeliverBroadcast) {
		return res, nil
	}

	if err := n.dispatcher.Dispatch(ctx, notification); err != nil {
		span.AddEvent("push.undelivered")
		if errors.Is(err, ErrNoSubscribers) {
			log.Debug("push not delivered", zap.Uint("notification_id", id), zap.Error(err))
		} else {
			log.Warn("push not delivered", zap.Uint("notification_id", id), zap.Error(err))
		}
		return res, nil
	}
	res.Dispatched = true
	return res, nil
}
