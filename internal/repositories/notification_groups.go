package repositories

import (
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// OlderGroupLimit caps the "older" bucket of a grouped listing.
const OlderGroupLimit = 50

// GroupedNotifications buckets a recipient's notifications by age, each
// bucket newest first. Day boundaries are local midnights.
type GroupedNotifications struct {
	Today     []models.Notification `json:"today"`
	Yesterday []models.Notification `json:"yesterday"`
	ThisWeek  []models.Notification `json:"thisWeek"`
	Older     []models.Notification `json:"older"`
}

type groupBounds struct {
	today     time.Time
	yesterday time.Time
	week      time.Time
}

func boundsAt(now time.Time) groupBounds {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return groupBounds{
		today:     today,
		yesterday: today.AddDate(0, 0, -1),
		week:      today.AddDate(0, 0, -7),
	}
}

func newGroupedNotifications() *GroupedNotifications {
	return &GroupedNotifications{
		Today:     []models.Notification{},
		Yesterday: []models.Notification{},
		ThisWeek:  []models.Notification{},
		Older:     []models.Notification{},
	}
}

// place appends n to its bucket. Callers feed notifications newest first.
func (b groupBounds) place(g *GroupedNotifications, n models.Notification) {
	switch {
	case !n.CreatedAt.Before(b.today):
		g.Today = append(g.Today, n)
	case !n.CreatedAt.Before(b.yesterday):
		g.Yesterday = append(g.Yesterday, n)
	case !n.CreatedAt.Before(b.week):
		g.ThisWeek = append(g.ThisWeek, n)
	case len(g.Older) < OlderGroupLimit:
		g.Older = append(g.Older, n)
	}
}
