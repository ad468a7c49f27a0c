package notify

import "github.com/anonto42/nano-midea/notifications/internal/models"

// DeliveryTarget is a set of channels a notification type is delivered on.
type DeliveryTarget uint8

const (
	DeliverDatabase DeliveryTarget = 1 << iota
	DeliverBroadcast
)

func (t DeliveryTarget) Has(o DeliveryTarget) bool { return t&o == o }

var deliveryTargets = map[models.NotificationType]DeliveryTarget{
	models.NotificationCommentReceived: DeliverDatabase | DeliverBroadcast,
	models.NotificationPostLiked:       DeliverDatabase | DeliverBroadcast,
	models.NotificationNewFollower:     DeliverDatabase | DeliverBroadcast,
}

// TargetsFor returns the delivery targets of t. Unknown types are only stored.
func TargetsFor(t models.NotificationType) DeliveryTarget {
	if d, ok := deliveryTargets[t]; ok {
		return d
	}
	return DeliverDatabase
}
