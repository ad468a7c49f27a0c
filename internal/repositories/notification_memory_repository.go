package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// MemoryNotificationRepository keeps notifications in process. It backs
// local development and tests.
type MemoryNotificationRepository struct {
	mu     sync.RWMutex
	nextID uint
	items  []models.Notification // ascending by id
	now    func() time.Time
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{now: time.Now}
}

func (r *MemoryNotificationRepository) Append(_ context.Context, n *models.Notification) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	n.ID = r.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	r.items = append(r.items, *n)
	return n.ID, nil
}

func (r *MemoryNotificationRepository) ListForRecipient(_ context.Context, recipientID uint, req PageRequest) (*NotificationPage, error) {
	req = req.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := &NotificationPage{Items: []models.Notification{}, Page: req.Page, PageSize: req.PageSize, Cursor: req.Before}
	if page.Cursor == 0 {
		for _, n := range r.items {
			if n.RecipientID == recipientID && n.ID > page.Cursor {
				page.Cursor = n.ID
			}
		}
	}

	skip := req.Offset()
	for i := len(r.items) - 1; i >= 0; i-- {
		n := r.items[i]
		if n.RecipientID != recipientID || n.ID > page.Cursor {
			continue
		}
		page.Total++
		if skip > 0 {
			skip--
			continue
		}
		if len(page.Items) < req.PageSize {
			page.Items = append(page.Items, n)
		}
	}
	return page, nil
}

func (r *MemoryNotificationRepository) CountUnread(_ context.Context, recipientID uint) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.items {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkAllRead(_ context.Context, recipientID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	var updated int64
	for i := range r.items {
		if r.items[i].RecipientID == recipientID && r.items[i].ReadAt == nil {
			r.items[i].ReadAt = &now
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, recipientID, notificationID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		n := &r.items[i]
		if n.ID == notificationID && n.RecipientID == recipientID && n.ReadAt == nil {
			now := r.now().UTC()
			n.ReadAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryNotificationRepository) Grouped(_ context.Context, recipientID uint) (*GroupedNotifications, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bounds := boundsAt(r.now())
	groups := newGroupedNotifications()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].RecipientID == recipientID {
			bounds.place(groups, r.items[i])
		}
	}
	return groups, nil
}
