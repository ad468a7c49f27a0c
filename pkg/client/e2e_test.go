package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/events"
	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notify"
	"github.com/anonto42/nano-midea/notifications/internal/realtime"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/internal/validators"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eSecret = "e2e-secret"

type server struct {
	srv     *httptest.Server
	hub     *realtime.Hub
	adapter *events.Adapter
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := repositories.NewMemoryNotificationRepository()
	users := repositories.NewMemoryUserRepository(
		models.User{ID: 1, Name: "X"},
		models.User{ID: 2, Name: "Y"},
	)
	hub := realtime.NewHub(nil)
	authorizer := realtime.NewChannelAuthorizer(users, nil)
	adapter := events.NewAdapter(notify.NewNotifier(notify.NewFactory(), store, realtime.NewDispatcher(hub, nil), nil))

	e := echo.New()
	e.Validator = validators.NewValidator()
	router.SetupRoutes(e, router.Dependencies{
		Notifications: store,
		Authorizer:    authorizer,
		Events:        adapter,
		WebSocket:     realtime.NewWebSocketHandler(hub, authorizer, realtime.WSConfig{}, nil),
		Identity:      middleware.NewJWTResolver(e2eSecret),
		InternalKey:   "k",
	})

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &server{srv: srv, hub: hub, adapter: adapter}
}

func (s *server) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func token(t *testing.T, id uint) TokenSource {
	t.Helper()
	tok, err := middleware.IssueToken(e2eSecret, models.User{ID: id}, time.Hour)
	require.NoError(t, err)
	return StaticToken(tok)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []Status
	pushes   []wire.Envelope
}

func (l *statusLog) listener() Listener {
	return Listener{
		OnStatus: func(s Status, _ error) {
			l.mu.Lock()
			l.statuses = append(l.statuses, s)
			l.mu.Unlock()
		},
		OnNotification: func(env wire.Envelope) {
			l.mu.Lock()
			l.pushes = append(l.pushes, env)
			l.mu.Unlock()
		},
	}
}

func (l *statusLog) last() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.statuses) == 0 {
		return -1
	}
	return l.statuses[len(l.statuses)-1]
}

func (l *statusLog) count(s Status) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, x := range l.statuses {
		if x == s {
			n++
		}
	}
	return n
}

func (l *statusLog) pushCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pushes)
}

func fastSocket(s *server, tok TokenSource) *Socket {
	return NewSocket(s.wsURL(), tok, SocketConfig{Backoff: ExpoJitter{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}})
}

func TestSocketSubscribesAndReceivesPush(t *testing.T) {
	s := newServer(t)
	log := &statusLog{}
	sub, err := fastSocket(s, token(t, 2)).Subscribe(context.Background(), wire.ChannelForUser(2), log.listener())
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return log.last() == Subscribed }, 2*time.Second, 5*time.Millisecond)

	res, err := s.adapter.CommentCreated(context.Background(), events.CommentCreated{
		CommentID: 7, CommentBody: "Hello there, this is a test comment that is somewhat long",
		CommenterID: 1, CommenterName: "X", PostID: 10, PostOwnerID: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Dispatched)

	require.Eventually(t, func() bool { return log.pushCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	log.mu.Lock()
	env := log.pushes[0]
	log.mu.Unlock()
	assert.Equal(t, res.Notification.ID, env.NotificationID)
	assert.Equal(t, models.NotificationCommentReceived, env.Type)
	assert.Equal(t, "X commented on your post.", env.Message)
	assert.Equal(t, uint(10), env.PostID)
	assert.Nil(t, env.ReadAt)
}

func TestSocketForeignChannelIsAuthError(t *testing.T) {
	s := newServer(t)
	log := &statusLog{}
	sub, err := fastSocket(s, token(t, 1)).Subscribe(context.Background(), wire.ChannelForUser(2), log.listener())
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return log.last() == AuthError }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, log.count(Subscribed))
	assert.Equal(t, 0, s.hub.Subscribers(wire.ChannelForUser(2)))

	_, err = s.adapter.PostLiked(context.Background(), events.PostLiked{LikerID: 3, LikerName: "Z", PostID: 1, PostOwnerID: 2})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, log.pushCount())
}

func TestSocketRejectedTokenIsAuthError(t *testing.T) {
	s := newServer(t)
	log := &statusLog{}
	sub, err := fastSocket(s, StaticToken("garbage")).Subscribe(context.Background(), wire.ChannelForUser(2), log.listener())
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return log.last() == AuthError }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, log.count(Connecting))
}

func TestSocketReconnectsAfterServerDrop(t *testing.T) {
	s := newServer(t)
	log := &statusLog{}
	sub, err := fastSocket(s, token(t, 2)).Subscribe(context.Background(), wire.ChannelForUser(2), log.listener())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return log.last() == Subscribed }, 2*time.Second, 5*time.Millisecond)
	s.hub.Shutdown()

	require.Eventually(t, func() bool { return log.count(Subscribed) == 2 && log.last() == Subscribed }, 3*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, log.count(Disconnected), 1)
	assert.Equal(t, 1, s.hub.Subscribers(wire.ChannelForUser(2)))

	require.NoError(t, sub.Close())
	log.mu.Lock()
	n := len(log.statuses)
	log.mu.Unlock()
	assert.Eventually(t, func() bool { return s.hub.Subscribers(wire.ChannelForUser(2)) == 0 }, 2*time.Second, 5*time.Millisecond)
	log.mu.Lock()
	assert.Len(t, log.statuses, n, "no callbacks after Close")
	log.mu.Unlock()
}

// Y receives three likes live, opens the dropdown and finds them read.
func TestCacheEndToEnd(t *testing.T) {
	s := newServer(t)
	tok := token(t, 2)
	api := NewAPIClient(s.srv.URL, tok, nil)
	rec := &recorder{}
	cache := NewCache(api, fastSocket(s, tok), CacheConfig{RefetchDelay: 20 * time.Millisecond, Callbacks: rec.callbacks()})
	defer cache.OnLogout()

	require.NoError(t, cache.OnLogin(context.Background(), 2))
	require.Eventually(t, func() bool { return cache.Status() == Subscribed }, 2*time.Second, 5*time.Millisecond)

	for i := uint(1); i <= 3; i++ {
		_, err := s.adapter.PostLiked(context.Background(), events.PostLiked{
			LikerID: 1, LikerName: "X", PostID: 10 + i, PostBody: "post", PostOwnerID: 2,
		})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		alerts, _, _ := rec.snapshot()
		return len(alerts) == 3 && cache.UnreadCount() == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, cache.OnDropdownOpened(context.Background()))
	assert.Equal(t, int64(0), cache.UnreadCount())

	items, err := cache.Page(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, n := range items {
		assert.NotNil(t, n.ReadAt, "notification %d", n.ID)
		assert.Equal(t, "X liked your post.", n.Data.Message)
	}
	assert.Greater(t, items[0].ID, items[2].ID)

	count, err := api.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	cache.OnLogout()
	assert.Eventually(t, func() bool { return s.hub.Subscribers(wire.ChannelForUser(2)) == 0 }, 2*time.Second, 5*time.Millisecond)
	_, errOps, logouts := rec.snapshot()
	assert.Empty(t, errOps)
	assert.Zero(t, logouts)
}

func TestCacheForcedLogoutOnRejectedSession(t *testing.T) {
	s := newServer(t)
	rec := &recorder{}
	cache := NewCache(NewAPIClient(s.srv.URL, StaticToken("expired"), nil),
		fastSocket(s, StaticToken("expired")), CacheConfig{Callbacks: rec.callbacks()})

	_ = cache.OnLogin(context.Background(), 2)
	require.Eventually(t, func() bool {
		_, _, logouts := rec.snapshot()
		return logouts == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Disconnected, cache.Status())
}

func TestAPIClientErrors(t *testing.T) {
	s := newServer(t)
	_, err := NewAPIClient(s.srv.URL, nil, nil).UnreadCount(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	api := NewAPIClient(s.srv.URL, token(t, 2), nil)
	updated, err := api.MarkRead(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, updated)
}
