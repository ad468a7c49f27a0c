package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType discriminates the stored notification records
type NotificationType string

const (
	NotificationCommentReceived NotificationType = "CommentReceived"
	NotificationPostLiked       NotificationType = "PostLiked"
	NotificationNewFollower     NotificationType = "NewFollower"
)

// NotificationData is the kind-specific payload of a notification.
// Message is pre-rendered; the ids are enough to build a deep link.
type NotificationData struct {
	Message       string `json:"message" bson:"message"`
	CommentID     uint   `json:"comment_id,omitempty" bson:"comment_id,omitempty"`
	CommentBody   string `json:"comment_body,omitempty" bson:"comment_body,omitempty"`
	CommenterID   uint   `json:"commenter_id,omitempty" bson:"commenter_id,omitempty"`
	CommenterName string `json:"commenter_name,omitempty" bson:"commenter_name,omitempty"`
	PostID        uint   `json:"post_id,omitempty" bson:"post_id,omitempty"`
	PostBody      string `json:"post_body,omitempty" bson:"post_body,omitempty"`
	LikerID       uint   `json:"liker_id,omitempty" bson:"liker_id,omitempty"`
	LikerName     string `json:"liker_name,omitempty" bson:"liker_name,omitempty"`
	FollowerID    uint   `json:"follower_id,omitempty" bson:"follower_id,omitempty"`
	FollowerName  string `json:"follower_name,omitempty" bson:"follower_name,omitempty"`
}

// Notification represents a user notification (PostgreSQL).
// Records are append-only; only ReadAt ever changes.
type Notification struct {
	ID          uint                                 `json:"id" gorm:"primaryKey"`
	RecipientID uint                                 `json:"recipient_id" gorm:"not null;index:idx_notifications_recipient_created,priority:1;index:idx_notifications_recipient_read,priority:1"`
	Type        NotificationType                     `json:"type" gorm:"size:30;not null"`
	Data        datatypes.JSONType[NotificationData] `json:"data" gorm:"type:jsonb"`
	ReadAt      *time.Time                           `json:"read_at" gorm:"index:idx_notifications_recipient_read,priority:2"`
	CreatedAt   time.Time                            `json:"created_at" gorm:"index:idx_notifications_recipient_created,priority:2,sort:desc"`
}

// IsRead reports whether the notification has been marked as read
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
