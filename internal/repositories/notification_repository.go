package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// PageRequest selects one page of a recipient's notifications. Before is the
// cursor baseline: only ids at or below it are listed. Zero means "now".
type PageRequest struct {
	Page     int
	PageSize int
	Before   uint
}

// Normalize applies the default page and page size.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		p.PageSize = DefaultPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// NotificationPage is one page of notifications, newest first. Cursor is the
// baseline used; passing it back as Before keeps page membership stable.
type NotificationPage struct {
	Items    []models.Notification
	Total    int64
	Page     int
	PageSize int
	Cursor   uint
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	Append(ctx context.Context, n *models.Notification) (uint, error)
	ListForRecipient(ctx context.Context, recipientID uint, req PageRequest) (*NotificationPage, error)
	CountUnread(ctx context.Context, recipientID uint) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID uint) (bool, error)
	Grouped(ctx context.Context, recipientID uint) (*GroupedNotifications, error)
}

type postgresNotificationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db, now: time.Now}
}

// Append serializes inserts per recipient with a transaction-scoped advisory
// lock, so a recipient's ids commit in the order they are allocated and the
// MAX(id) cursor never skips a row that commits late.
func (r *postgresNotificationRepository) Append(ctx context.Context, n *models.Notification) (uint, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(n.RecipientID)).Error; err != nil {
			return err
		}
		return tx.Create(n).Error
	})
	if err != nil {
		return 0, err
	}
	return n.ID, nil
}

func (r *postgresNotificationRepository) ListForRecipient(ctx context.Context, recipientID uint, req PageRequest) (*NotificationPage, error) {
	req = req.Normalize()
	db := r.db.WithContext(ctx)
	page := &NotificationPage{Items: []models.Notification{}, Page: req.Page, PageSize: req.PageSize, Cursor: req.Before}

	if page.Cursor == 0 {
		if err := db.Model(&models.Notification{}).
			Where("recipient_id = ?", recipientID).
			Select("COALESCE(MAX(id), 0)").
			Scan(&page.Cursor).Error; err != nil {
			return nil, err
		}
		if page.Cursor == 0 {
			return page, nil
		}
	}

	if err := db.Model(&models.Notification{}).
		Where("recipient_id = ? AND id <= ?", recipientID, page.Cursor).
		Count(&page.Total).Error; err != nil {
		return nil, err
	}

	if err := db.Where("recipient_id = ? AND id <= ?", recipientID, page.Cursor).
		Order("id DESC").
		Offset(req.Offset()).Limit(req.PageSize).
		Find(&page.Items).Error; err != nil {
		return nil, err
	}
	return page, nil
}

func (r *postgresNotificationRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Update("read_at", r.now().UTC())
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) MarkRead(ctx context.Context, recipientID, notificationID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, recipientID).
		Update("read_at", r.now().UTC())
	return res.RowsAffected > 0, res.Error
}

// Grouped loads the last week in full and at most OlderGroupLimit older
// notifications.
func (r *postgresNotificationRepository) Grouped(ctx context.Context, recipientID uint) (*GroupedNotifications, error) {
	bounds := boundsAt(r.now())
	db := r.db.WithContext(ctx)

	var recent, older []models.Notification
	if err := db.Where("recipient_id = ? AND created_at >= ?", recipientID, bounds.week).
		Order("id DESC").Find(&recent).Error; err != nil {
		return nil, err
	}
	if err := db.Where("recipient_id = ? AND created_at < ?", recipientID, bounds.week).
		Order("id DESC").Limit(OlderGroupLimit).Find(&older).Error; err != nil {
		return nil, err
	}

	groups := newGroupedNotifications()
	for _, n := range append(recent, older...) {
		bounds.place(groups, n)
	}
	return groups, nil
}
