package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestChannelForUser(t *testing.T) {
	assert.Equal(t, "private-user-notifications-2", ChannelForUser(2))

	id, err := ParseUserChannel(ChannelForUser(123456))
	require.NoError(t, err)
	assert.Equal(t, uint(123456), id)
}

func TestParseUserChannelRejectsNonCanonical(t *testing.T) {
	for _, ch := range []string{
		"",
		"private-user-notifications-",
		"private-user-notifications-0",
		"private-user-notifications-007",
		"private-user-notifications-+7",
		"private-user-notifications--7",
		"private-user-notifications-7a",
		"private-user-notifications-7 ",
		"presence-user-notifications-7",
		"private-user-notifications-99999999999999999999999",
	} {
		_, err := ParseUserChannel(ch)
		assert.Error(t, err, "channel %q", ch)
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	n := &models.Notification{
		ID:          42,
		RecipientID: 2,
		Type:        models.NotificationCommentReceived,
		Data: datatypes.NewJSONType(models.NotificationData{
			Message:       "X commented on your post.",
			CommentID:     7,
			CommentBody:   "Hello",
			CommenterID:   1,
			CommenterName: "X",
			PostID:        10,
		}),
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	b, err := json.Marshal(NewEnvelope(n, at))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "CommentReceived", got["type"])
	assert.Equal(t, float64(42), got["notification_id"])
	assert.Equal(t, "X commented on your post.", got["message"])
	assert.Equal(t, "2024-03-01T11:00:00Z", got["created_at"])
	assert.Equal(t, float64(10), got["post_id"])
	assert.Equal(t, float64(7), got["comment_id"])
	assert.Equal(t, "X", got["commenter_name"])
	v, ok := got["read_at"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.NotContains(t, got, "follower_id")
}

func TestFrameRoundTrip(t *testing.T) {
	b, err := EncodeFrame(EventSubscriptionError, "private-user-notifications-3", SubscriptionError{Status: 403, Error: "forbidden"})
	require.NoError(t, err)

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionError, f.Event)
	assert.Equal(t, "private-user-notifications-3", f.Channel)

	var se SubscriptionError
	require.NoError(t, json.Unmarshal(f.Data, &se))
	assert.Equal(t, 403, se.Status)

	b, err = EncodeFrame(EventUnsubscribe, "c", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"unsubscribe","channel":"c"}`, string(b))

	_, err = DecodeFrame([]byte(`{"channel":"c"}`))
	assert.Error(t, err)
	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)
}
