// Package events adapts the surrounding application's "something happened"
// calls into domain events and hands them to the notification pipeline.
package events

import (
	"context"
	"reflect"
	"strings"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/go-playground/validator/v10"
)

// Handler consumes domain events. *notify.Notifier implements it.
type Handler interface {
	Handle(ctx context.Context, e models.DomainEvent) (notify.Result, error)
}

// CommentCreated is reported after a comment was written on a post.
type CommentCreated struct {
	CommentID     uint   `json:"comment_id" validate:"required"`
	CommentBody   string `json:"comment_body"`
	CommenterID   uint   `json:"commenter_id" validate:"required"`
	CommenterName string `json:"commenter_name" validate:"required,max=255"`
	PostID        uint   `json:"post_id" validate:"required"`
	PostOwnerID   uint   `json:"post_owner_id" validate:"required"`
}

func (in CommentCreated) Event() models.DomainEvent {
	return models.DomainEvent{
		Kind:          models.EventCommentCreated,
		ActorID:       in.CommenterID,
		ActorName:     in.CommenterName,
		TargetOwnerID: in.PostOwnerID,
		Payload: models.CommentCreatedPayload{
			CommentID:   in.CommentID,
			CommentBody: in.CommentBody,
			PostID:      in.PostID,
		},
	}
}

// PostLiked is reported after a user liked a post.
type PostLiked struct {
	LikerID     uint   `json:"liker_id" validate:"required"`
	LikerName   string `json:"liker_name" validate:"required,max=255"`
	PostID      uint   `json:"post_id" validate:"required"`
	PostBody    string `json:"post_body"`
	PostOwnerID uint   `json:"post_owner_id" validate:"required"`
}

func (in PostLiked) Event() models.DomainEvent {
	return models.DomainEvent{
		Kind:          models.EventPostLiked,
		ActorID:       in.LikerID,
		ActorName:     in.LikerName,
		TargetOwnerID: in.PostOwnerID,
		Payload:       models.PostLikedPayload{PostID: in.PostID, PostBody: in.PostBody},
	}
}

// UserFollowed is reported after a user followed another user.
type UserFollowed struct {
	FollowerID     uint   `json:"follower_id" validate:"required"`
	FollowerName   string `json:"follower_name" validate:"required,max=255"`
	FollowedUserID uint   `json:"followed_user_id" validate:"required"`
}

func (in UserFollowed) Event() models.DomainEvent {
	return models.DomainEvent{
		Kind:          models.EventUserFollowed,
		ActorID:       in.FollowerID,
		ActorName:     in.FollowerName,
		TargetOwnerID: in.FollowedUserID,
		Payload:       models.UserFollowedPayload{},
	}
}

// Adapter is the entry point of the pipeline for the surrounding application.
type Adapter struct {
	handler  Handler
	validate *validator.Validate
}

func NewAdapter(handler Handler) *Adapter {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Adapter{handler: handler, validate: v}
}

func (a *Adapter) CommentCreated(ctx context.Context, in CommentCreated) (notify.Result, error) {
	return a.handle(ctx, in, in.Event)
}

func (a *Adapter) PostLiked(ctx context.Context, in PostLiked) (notify.Result, error) {
	return a.handle(ctx, in, in.Event)
}

func (a *Adapter) UserFollowed(ctx context.Context, in UserFollowed) (notify.Result, error) {
	return a.handle(ctx, in, in.Event)
}

func (a *Adapter) handle(ctx context.Context, in any, event func() models.DomainEvent) (notify.Result, error) {
	if err := a.validate.Struct(in); err != nil {
		return notify.Result{}, notify.AsValidationError(err)
	}
	return a.handler.Handle(ctx, event())
}
