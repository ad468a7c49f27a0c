package realtime

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"go.uber.org/zap"
)

// UserDirectory resolves display names for channel metadata.
type UserDirectory interface {
	GetUserByID(id uint) (*models.User, error)
}

// ChannelAuthorizer decides whether an authenticated identity may subscribe
// to a channel. Only the identity's own notification channel is granted.
type ChannelAuthorizer struct {
	users UserDirectory
	log   *zap.Logger
}

func NewChannelAuthorizer(users UserDirectory, log *zap.Logger) *ChannelAuthorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChannelAuthorizer{users: users, log: log.With(zap.String("component", "realtime.authorizer"))}
}

// Authorize returns the member descriptor for channel, or an
// AuthorizationError when identity does not own it.
func (a *ChannelAuthorizer) Authorize(ctx context.Context, identity models.Identity, channel string) (*wire.ChannelData, error) {
	id, err := wire.ParseUserChannel(channel)
	if err != nil {
		return nil, a.deny(identity, channel, "unknown channel")
	}
	if identity.UserID == 0 {
		return nil, a.deny(identity, channel, "unauthenticated")
	}
	if identity.UserID != id {
		return nil, a.deny(identity, channel, "identity does not own channel")
	}

	name := identity.Name
	if a.users != nil {
		if u, err := a.users.GetUserByID(id); err == nil && u.Name != "" {
			name = u.Name
		} else if err != nil {
			a.log.Debug("user lookup failed, using token name", zap.Uint("user_id", id), zap.Error(err))
		}
	}

	authorizationsTotal.WithLabelValues("granted").Inc()
	return &wire.ChannelData{ID: id, Name: name}, nil
}

func (a *ChannelAuthorizer) deny(identity models.Identity, channel, reason string) error {
	authorizationsTotal.WithLabelValues("denied").Inc()
	a.log.Warn("channel authorization denied",
		zap.Uint("identity_id", identity.UserID),
		zap.String("channel", channel),
		zap.String("reason", reason))
	return notify.NewAuthorizationError(identity.UserID, channel, reason)
}
