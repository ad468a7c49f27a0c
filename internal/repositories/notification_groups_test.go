package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var groupNow = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func TestBoundsAtUsesLocalMidnight(t *testing.T) {
	b := boundsAt(groupNow)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), b.today)
	assert.Equal(t, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), b.yesterday)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), b.week)
}

func TestPlaceCapsOlderBucket(t *testing.T) {
	b := boundsAt(groupNow)
	g := newGroupedNotifications()
	for i := 0; i < OlderGroupLimit+5; i++ {
		b.place(g, models.Notification{ID: uint(i + 1), CreatedAt: groupNow.AddDate(0, -1, 0)})
	}
	assert.Len(t, g.Older, OlderGroupLimit)
	assert.Empty(t, g.Today)
}

func TestMemoryGrouped(t *testing.T) {
	r := NewMemoryNotificationRepository()
	r.now = func() time.Time { return groupNow }

	at := []time.Time{
		groupNow.AddDate(0, 0, -20),                  // older
		groupNow.AddDate(0, 0, -3),                   // this week
		time.Date(2024, 5, 9, 23, 0, 0, 0, time.UTC), // yesterday
		time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), // today, at midnight
		groupNow.Add(-time.Hour),                     // today
	}
	for _, ts := range at {
		_, err := r.Append(context.Background(), &models.Notification{RecipientID: 2, Type: models.NotificationPostLiked, CreatedAt: ts})
		require.NoError(t, err)
	}
	_, err := r.Append(context.Background(), &models.Notification{RecipientID: 3, Type: models.NotificationPostLiked, CreatedAt: groupNow})
	require.NoError(t, err)

	g, err := r.Grouped(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{5, 4}, notificationIDs(g.Today))
	assert.Equal(t, []uint{3}, notificationIDs(g.Yesterday))
	assert.Equal(t, []uint{2}, notificationIDs(g.ThisWeek))
	assert.Equal(t, []uint{1}, notificationIDs(g.Older))

	empty, err := r.Grouped(context.Background(), 9)
	require.NoError(t, err)
	assert.NotNil(t, empty.Today)
	assert.Empty(t, empty.Older)
}

func TestPostgresGrouped(t *testing.T) {
	assert := assert.New(t)
	db, mock := newMockDB(t)
	repo := &postgresNotificationRepository{db: db, now: func() time.Time { return groupNow }}

	cols := []string{"id", "recipient_id", "type", "data", "read_at", "created_at"}
	mock.ExpectQuery(`SELECT \* FROM "notifications" WHERE recipient_id = \$1 AND created_at >= \$2 ORDER BY id DESC`).
		WithArgs(2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(9, 2, "PostLiked", []byte(`{"message":"Lia liked your post."}`), nil, groupNow.Add(-time.Hour)).
			AddRow(8, 2, "NewFollower", []byte(`{"message":"Sam followed you."}`), nil, groupNow.AddDate(0, 0, -1)).
			AddRow(7, 2, "NewFollower", []byte(`{"message":"Ava followed you."}`), nil, groupNow.AddDate(0, 0, -4)))
	mock.ExpectQuery(`SELECT \* FROM "notifications" WHERE recipient_id = \$1 AND created_at < \$2 ORDER BY id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, 2, "PostLiked", []byte(`{"message":"Old liked your post."}`), groupNow, groupNow.AddDate(0, -2, 0)))

	g, err := repo.Grouped(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal([]uint{9}, notificationIDs(g.Today))
	assert.Equal([]uint{8}, notificationIDs(g.Yesterday))
	assert.Equal([]uint{7}, notificationIDs(g.ThisWeek))
	assert.Equal([]uint{2}, notificationIDs(g.Older))
	assert.Equal("Lia liked your post.", g.Today[0].Data.Data().Message)
	assert.NoError(mock.ExpectationsWereMet())
}

func TestCreatedFilter(t *testing.T) {
	ts := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, bson.M{"recipient_id": uint(2), "created_at": bson.M{"$gte": ts}}, createdFilter(2, ts, true))
	assert.Equal(t, bson.M{"recipient_id": uint(2), "created_at": bson.M{"$lt": ts}}, createdFilter(2, ts, false))
}

func notificationIDs(items []models.Notification) []uint {
	ids := make([]uint, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ID)
	}
	return ids
}
