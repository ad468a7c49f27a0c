package notify

import (
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/datatypes"
)

// Factory turns domain events into notification records. It performs no I/O.
type Factory struct {
	bodyMaxRunes int
	now          func() time.Time
}

type FactoryOption func(*Factory)

// WithBodyMaxRunes caps comment and post excerpts at n runes.
func WithBodyMaxRunes(n int) FactoryOption {
	return func(f *Factory) {
		if n > 0 {
			f.bodyMaxRunes = n
		}
	}
}

// WithClock replaces the clock used for CreatedAt.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
	}
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{bodyMaxRunes: DefaultBodyMaxRunes, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the notification for e. It returns nil and no error when the
// actor is also the target owner: acting on your own resource notifies nobody.
func (f *Factory) Create(e models.DomainEvent) (*models.Notification, error) {
	if err := ValidateEvent(e); err != nil {
		return nil, err
	}
	if e.ActorID == e.TargetOwnerID {
		return nil, nil
	}

	var (
		typ  models.NotificationType
		data models.NotificationData
	)
	switch p := e.Payload.(type) {
	case models.CommentCreatedPayload:
		typ = models.NotificationCommentReceived
		data = models.NotificationData{
			Message:       fmt.Sprintf("%s commented on your post.", e.ActorName),
			CommentID:     p.CommentID,
			CommentBody:   Truncate(p.CommentBody, f.bodyMaxRunes),
			CommenterID:   e.ActorID,
			CommenterName: e.ActorName,
			PostID:        p.PostID,
		}
	case models.PostLikedPayload:
		typ = models.NotificationPostLiked
		data = models.NotificationData{
			Message:   fmt.Sprintf("%s liked your post.", e.ActorName),
			LikerID:   e.ActorID,
			LikerName: e.ActorName,
			PostID:    p.PostID,
			PostBody:  Truncate(p.PostBody, f.bodyMaxRunes),
		}
	case models.UserFollowedPayload:
		typ = models.NotificationNewFollower
		data = models.NotificationData{
			Message:      fmt.Sprintf("%s followed you.", e.ActorName),
			FollowerID:   e.ActorID,
			FollowerName: e.ActorName,
		}
	default:
		return nil, NewValidationError("Payload", "unsupported payload %T", e.Payload)
	}

	return &models.Notification{
		RecipientID: e.TargetOwnerID,
		Type:        typ,
		Data:        datatypes.NewJSONType(data),
		CreatedAt:   f.now().UTC(),
	}, nil
}
