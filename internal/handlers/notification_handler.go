package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	log                    *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, log *zap.Logger) *NotificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandler{
		notificationRepository: notifRepo,
		log:                    log.With(zap.String("component", "handlers.notifications")),
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.POST("/notifications/read-all", h.MarkAllAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns one page of the caller's notifications, newest
// first. The returned cursor pins page membership for follow-up requests.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID, err := currentUserID(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	var before uint64
	if raw := c.QueryParam("before"); raw != "" {
		if before, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid cursor")
		}
	}

	result, err := h.notificationRepository.ListForRecipient(c.Request().Context(), currentUserID,
		repositories.PageRequest{Page: page, PageSize: limit, Before: uint(before)})
	if err != nil {
		h.log.Error("list notifications", zap.Uint("user_id", currentUserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notifications")
	}

	totalPages := int(math.Ceil(float64(result.Total) / float64(result.PageSize)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": result.Items,
		},
		"meta": echo.Map{
			"currentPage":     result.Page,
			"totalPages":      totalPages,
			"totalItems":      result.Total,
			"itemsPerPage":    result.PageSize,
			"hasNextPage":     result.Page < totalPages,
			"hasPreviousPage": result.Page > 1,
			"cursor":          result.Cursor,
		},
	})
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	currentUserID, err := currentUserID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	groups, err := h.notificationRepository.Grouped(ctx, currentUserID)
	if err != nil {
		h.log.Error("group notifications", zap.Uint("user_id", currentUserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notifications")
	}
	unread, err := h.notificationRepository.CountUnread(ctx, currentUserID)
	if err != nil {
		h.log.Error("count unread", zap.Uint("user_id", currentUserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count notifications")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": groups,
			"unreadCount":   unread,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID, err := currentUserID(c)
	if err != nil {
		return err
	}

	count, err := h.notificationRepository.CountUnread(c.Request().Context(), currentUserID)
	if err != nil {
		h.log.Error("count unread", zap.Uint("user_id", currentUserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count notifications")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks one of the caller's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID, err := currentUserID(c)
	if err != nil {
		return err
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || notifID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	updated, err := h.notificationRepository.MarkRead(c.Request().Context(), currentUserID, uint(notifID))
	if err != nil {
		h.log.Error("mark read", zap.Uint("user_id", currentUserID), zap.Uint64("notification_id", notifID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notification")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated": updated}})
}

// MarkAllAsRead marks every unread notification of the caller as read.
// Repeating the call is harmless.
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID, err := currentUserID(c)
	if err != nil {
		return err
	}

	n, err := h.notificationRepository.MarkAllRead(c.Request().Context(), currentUserID)
	if err != nil {
		h.log.Error("mark all read", zap.Uint("user_id", currentUserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notifications")
	}
	h.log.Debug("marked all read", zap.Uint("user_id", currentUserID), zap.Int64("updated", n))

	return c.NoContent(http.StatusNoContent)
}
