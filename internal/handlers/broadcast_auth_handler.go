package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ChannelAuthorizer grants or denies a channel subscription.
type ChannelAuthorizer interface {
	Authorize(ctx context.Context, identity models.Identity, channel string) (*wire.ChannelData, error)
}

type BroadcastAuthRequest struct {
	ChannelName string `json:"channel_name" form:"channel_name" validate:"required"`
	SocketID    string `json:"socket_id" form:"socket_id" validate:"required"`
}

// BroadcastAuthHandler answers channel-authorization requests made by
// clients before they subscribe to a private channel.
type BroadcastAuthHandler struct {
	authorizer ChannelAuthorizer
	log        *zap.Logger
}

func NewBroadcastAuthHandler(authorizer ChannelAuthorizer, log *zap.Logger) *BroadcastAuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BroadcastAuthHandler{authorizer: authorizer, log: log.With(zap.String("component", "handlers.broadcasting"))}
}

func (h *BroadcastAuthHandler) RegisterBroadcastRoutes(g *echo.Group) {
	g.POST("/broadcasting/auth", h.Authorize)
}

func (h *BroadcastAuthHandler) Authorize(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req BroadcastAuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	member, err := h.authorizer.Authorize(c.Request().Context(), identity, req.ChannelName)
	if err != nil {
		if notify.IsAuthorization(err) {
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Authorization failed")
	}

	h.log.Debug("channel authorized",
		zap.Uint("user_id", identity.UserID),
		zap.String("channel", req.ChannelName),
		zap.String("socket_id", req.SocketID))
	return c.JSON(http.StatusOK, echo.Map{"channel_data": member})
}
