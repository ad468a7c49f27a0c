package models

// EventKind names the domain actions that may produce a notification
type EventKind string

const (
	EventCommentCreated EventKind = "CommentCreated"
	EventPostLiked      EventKind = "PostLiked"
	EventUserFollowed   EventKind = "UserFollowed"
)

// DomainEvent is a normalized fact emitted by the surrounding application.
// It is never persisted on its own.
type DomainEvent struct {
	Kind          EventKind    `validate:"required,oneof=CommentCreated PostLiked UserFollowed"`
	ActorID       uint         `validate:"required"`
	ActorName     string       `validate:"required,max=255"`
	TargetOwnerID uint         `validate:"required"`
	Payload       EventPayload `validate:"-"`
}

// EventPayload is implemented by the kind-specific payloads below
type EventPayload interface {
	EventKind() EventKind
}

// CommentCreatedPayload carries the comment that was written on the target's post
type CommentCreatedPayload struct {
	CommentID   uint `validate:"required"`
	CommentBody string
	PostID      uint `validate:"required"`
}

func (CommentCreatedPayload) EventKind() EventKind { return EventCommentCreated }

// PostLikedPayload carries the post that was liked
type PostLikedPayload struct {
	PostID   uint `validate:"required"`
	PostBody string
}

func (PostLikedPayload) EventKind() EventKind { return EventPostLiked }

// UserFollowedPayload has no data beyond the actor and the followed user
type UserFollowedPayload struct{}

func (UserFollowedPayload) EventKind() EventKind { return EventUserFollowed }
