package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/datatypes"
)

const (
	notificationsCollection = "notifications"
	countersCollection      = "counters"
	notificationsCounterKey = "notifications"
)

// notificationDoc is the MongoDB shape of a notification. _id comes from a
// counter document so ids stay monotonic like the SQL sequence.
type notificationDoc struct {
	ID          uint                    `bson:"_id"`
	RecipientID uint                    `bson:"recipient_id"`
	Type        models.NotificationType `bson:"type"`
	Data        models.NotificationData `bson:"data"`
	ReadAt      *time.Time              `bson:"read_at"`
	CreatedAt   time.Time               `bson:"created_at"`
}

func toNotificationDoc(n *models.Notification) notificationDoc {
	return notificationDoc{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Data:        n.Data.Data(),
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}

func (d notificationDoc) toModel() models.Notification {
	return models.Notification{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		Type:        d.Type,
		Data:        datatypes.NewJSONType(d.Data),
		ReadAt:      d.ReadAt,
		CreatedAt:   d.CreatedAt,
	}
}

func recipientFilter(recipientID, cursor uint) bson.M {
	f := bson.M{"recipient_id": recipientID}
	if cursor > 0 {
		f["_id"] = bson.M{"$lte": cursor}
	}
	return f
}

// createdFilter selects a recipient's notifications created before (or at
// and after, with since) t.
func createdFilter(recipientID uint, t time.Time, since bool) bson.M {
	op := "$lt"
	if since {
		op = "$gte"
	}
	return bson.M{"recipient_id": recipientID, "created_at": bson.M{op: t}}
}

func unreadFilter(recipientID uint) bson.M {
	return bson.M{"recipient_id": recipientID, "read_at": nil}
}

type mongoNotificationRepository struct {
	notifications *mongo.Collection
	counters      *mongo.Collection
	now           func() time.Time
}

// NewMongoNotificationRepository stores notifications in db.
func NewMongoNotificationRepository(db *mongo.Database) NotificationRepository {
	return &mongoNotificationRepository{
		notifications: db.Collection(notificationsCollection),
		counters:      db.Collection(countersCollection),
		now:           time.Now,
	}
}

// EnsureNotificationIndexes creates the recipient indexes used for listing
// and unread counting.
func EnsureNotificationIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read_at", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *mongoNotificationRepository) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": notificationsCounterKey},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next notification id: %w", err)
	}
	return uint(counter.Seq), nil
}

func (r *mongoNotificationRepository) Append(ctx context.Context, n *models.Notification) (uint, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	n.ID = id
	if _, err := r.notifications.InsertOne(ctx, toNotificationDoc(n)); err != nil {
		n.ID = 0
		return 0, err
	}
	return id, nil
}

func (r *mongoNotificationRepository) ListForRecipient(ctx context.Context, recipientID uint, req PageRequest) (*NotificationPage, error) {
	req = req.Normalize()
	page := &NotificationPage{Items: []models.Notification{}, Page: req.Page, PageSize: req.PageSize, Cursor: req.Before}

	if page.Cursor == 0 {
		var newest notificationDoc
		err := r.notifications.FindOne(ctx, recipientFilter(recipientID, 0),
			options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}).SetProjection(bson.M{"_id": 1}),
		).Decode(&newest)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return page, nil
		}
		if err != nil {
			return nil, err
		}
		page.Cursor = newest.ID
	}

	filter := recipientFilter(recipientID, page.Cursor)
	total, err := r.notifications.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	page.Total = total

	cur, err := r.notifications.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(int64(req.Offset())).
		SetLimit(int64(req.PageSize)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		page.Items = append(page.Items, d.toModel())
	}
	return page, nil
}

func (r *mongoNotificationRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	return r.notifications.CountDocuments(ctx, unreadFilter(recipientID))
}

func (r *mongoNotificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res, err := r.notifications.UpdateMany(ctx, unreadFilter(recipientID),
		bson.M{"$set": bson.M{"read_at": r.now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoNotificationRepository) MarkRead(ctx context.Context, recipientID, notificationID uint) (bool, error) {
	filter := unreadFilter(recipientID)
	filter["_id"] = notificationID
	res, err := r.notifications.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"read_at": r.now().UTC()}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoNotificationRepository) Grouped(ctx context.Context, recipientID uint) (*GroupedNotifications, error) {
	bounds := boundsAt(r.now())
	newestFirst := bson.D{{Key: "_id", Value: -1}}

	recent, err := r.find(ctx, createdFilter(recipientID, bounds.week, true), options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	older, err := r.find(ctx, createdFilter(recipientID, bounds.week, false),
		options.Find().SetSort(newestFirst).SetLimit(OlderGroupLimit))
	if err != nil {
		return nil, err
	}

	groups := newGroupedNotifications()
	for _, d := range append(recent, older...) {
		bounds.place(groups, d.toModel())
	}
	return groups, nil
}

func (r *mongoNotificationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]notificationDoc, error) {
	cur, err := r.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
