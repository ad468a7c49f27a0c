package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/events"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EventSource is the subset of events.Adapter the internal routes call.
type EventSource interface {
	CommentCreated(ctx context.Context, in events.CommentCreated) (notify.Result, error)
	PostLiked(ctx context.Context, in events.PostLiked) (notify.Result, error)
	UserFollowed(ctx context.Context, in events.UserFollowed) (notify.Result, error)
}

// EventsHandler lets the surrounding application report domain events over HTTP.
type EventsHandler struct {
	source EventSource
	log    *zap.Logger
}

func NewEventsHandler(source EventSource, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{source: source, log: log.With(zap.String("component", "handlers.events"))}
}

func (h *EventsHandler) RegisterEventRoutes(g *echo.Group) {
	g.POST("/events/comments", h.CommentCreated)
	g.POST("/events/likes", h.PostLiked)
	g.POST("/events/follows", h.UserFollowed)
}

func (h *EventsHandler) CommentCreated(c echo.Context) error {
	var in events.CommentCreated
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	res, err := h.source.CommentCreated(c.Request().Context(), in)
	return h.respond(c, res, err)
}

func (h *EventsHandler) PostLiked(c echo.Context) error {
	var in events.PostLiked
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	res, err := h.source.PostLiked(c.Request().Context(), in)
	return h.respond(c, res, err)
}

func (h *EventsHandler) UserFollowed(c echo.Context) error {
	var in events.UserFollowed
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	res, err := h.source.UserFollowed(c.Request().Context(), in)
	return h.respond(c, res, err)
}

func (h *EventsHandler) respond(c echo.Context, res notify.Result, err error) error {
	switch {
	case err == nil:
	case notify.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case notify.IsStorage(err):
		h.log.Error("event not stored", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store notification")
	default:
		h.log.Error("event failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to handle event")
	}

	data := echo.Map{"created": res.Notification != nil, "dispatched": res.Dispatched}
	status := http.StatusOK
	if res.Notification != nil {
		data["notification_id"] = res.Notification.ID
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
