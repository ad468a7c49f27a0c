package wire

import (
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// Envelope is the payload of a notification frame. The kind-specific fields
// of NotificationData are flattened next to the envelope fields.
type Envelope struct {
	Type           models.NotificationType `json:"type"`
	NotificationID uint                    `json:"notification_id"`
	ReadAt         *time.Time              `json:"read_at"`
	CreatedAt      string                  `json:"created_at"`
	models.NotificationData
}

// NewEnvelope builds the push envelope for n. CreatedAt is the dispatch time.
func NewEnvelope(n *models.Notification, dispatchedAt time.Time) Envelope {
	return Envelope{
		Type:             n.Type,
		NotificationID:   n.ID,
		CreatedAt:        dispatchedAt.UTC().Format(time.RFC3339),
		NotificationData: n.Data.Data(),
	}
}
