package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	unread      int64
	unreadCalls int
	markCalls   int
	listCalls   int
	lastBefore  uint
	cursor      uint
	items       []Notification
	markErr     error

	// unreadGate, when set, blocks the next UnreadCount call once.
	unreadGate    chan struct{}
	unreadStarted chan struct{}
	// markGate blocks MarkAllRead until closed.
	markGate    chan struct{}
	markStarted chan struct{}
	onMark      func()
}

func (f *fakeAPI) List(_ context.Context, page, limit int, before uint) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastBefore = before
	return &Page{Items: append([]Notification(nil), f.items...), CurrentPage: page, ItemsPerPage: limit, Cursor: f.cursor}, nil
}

func (f *fakeAPI) UnreadCount(context.Context) (int64, error) {
	f.mu.Lock()
	gate := f.unreadGate
	f.unreadGate = nil
	f.unreadCalls++
	f.mu.Unlock()

	if gate != nil {
		f.unreadStarted <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeAPI) MarkAllRead(context.Context) error {
	f.mu.Lock()
	f.markCalls++
	gate, hook, err := f.markGate, f.onMark, f.markErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if gate != nil {
		f.markStarted <- struct{}{}
		<-gate
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.unread = 0
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) calls() (unread, mark, list int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadCalls, f.markCalls, f.listCalls
}

func (f *fakeAPI) setUnread(n int64) {
	f.mu.Lock()
	f.unread = n
	f.mu.Unlock()
}

type fakeRealtime struct {
	mu        sync.Mutex
	channels  []string
	listeners []Listener
	closed    int
}

type fakeSubscription struct{ rt *fakeRealtime }

func (s fakeSubscription) Close() error {
	s.rt.mu.Lock()
	s.rt.closed++
	s.rt.mu.Unlock()
	return nil
}

func (r *fakeRealtime) Subscribe(_ context.Context, channel string, l Listener) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
	r.listeners = append(r.listeners, l)
	return fakeSubscription{rt: r}, nil
}

func (r *fakeRealtime) listener(i int) Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeners[i]
}

func (r *fakeRealtime) closedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type recorder struct {
	mu      sync.Mutex
	alerts  []string
	errOps  []string
	logouts int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnAlert: func(m string) { r.mu.Lock(); r.alerts = append(r.alerts, m); r.mu.Unlock() },
		OnError: func(op string, _ error) { r.mu.Lock(); r.errOps = append(r.errOps, op); r.mu.Unlock() },
		OnForcedLogout: func(error) {
			r.mu.Lock()
			r.logouts++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() (alerts, errOps []string, logouts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...), append([]string(nil), r.errOps...), r.logouts
}

func newTestCache(t *testing.T, api *fakeAPI, cfg CacheConfig) (*Cache, *fakeRealtime, *recorder) {
	t.Helper()
	rt := &fakeRealtime{}
	rec := &recorder{}
	cfg.Callbacks = rec.callbacks()
	c := NewCache(api, rt, cfg)
	t.Cleanup(c.OnLogout)
	return c, rt, rec
}

func push(msg string) wire.Envelope {
	return wire.Envelope{Type: models.NotificationPostLiked, NotificationData: models.NotificationData{Message: msg}}
}

func TestCacheLoginSubscribesOwnChannel(t *testing.T) {
	api := &fakeAPI{unread: 3}
	c, rt, _ := newTestCache(t, api, CacheConfig{})

	require.NoError(t, c.OnLogin(context.Background(), 2))
	assert.Equal(t, []string{"private-user-notifications-2"}, rt.channels)
	assert.Equal(t, Connecting, c.Status())
	assert.Equal(t, int64(3), c.UnreadCount())

	rt.listener(0).OnStatus(Subscribed, nil)
	assert.Equal(t, Subscribed, c.Status())

	rt.listener(0).OnStatus(Disconnected, errors.New("reset"))
	assert.Equal(t, Disconnected, c.Status())
	rt.listener(0).OnStatus(Connecting, nil)
	assert.Equal(t, Connecting, c.Status())
}

func TestCachePushIncrementsAndDebouncesRefetch(t *testing.T) {
	api := &fakeAPI{unread: 0}
	c, rt, rec := newTestCache(t, api, CacheConfig{RefetchDelay: 50 * time.Millisecond})
	require.NoError(t, c.OnLogin(context.Background(), 2))
	_, err := c.Page(context.Background(), 1)
	require.NoError(t, err)

	api.setUnread(5)
	l := rt.listener(0)
	l.OnNotification(push("X liked your post."))
	l.OnNotification(push("Y liked your post."))
	l.OnNotification(push("Z liked your post."))

	assert.Equal(t, int64(3), c.UnreadCount())
	p, ok := c.Peek(1)
	require.True(t, ok)
	assert.True(t, p.Stale)
	alerts, _, _ := rec.snapshot()
	assert.Equal(t, []string{"X liked your post.", "Y liked your post.", "Z liked your post."}, alerts)

	// a poll tick while the push refetch is pending is suppressed
	c.poll(context.Background())
	unreadCalls, _, _ := api.calls()
	assert.Equal(t, 1, unreadCalls)

	assert.Eventually(t, func() bool {
		n, _, _ := api.calls()
		c.mu.Lock()
		pending := c.refetchPending
		c.mu.Unlock()
		return n == 2 && !pending && c.UnreadCount() == 5
	}, 2*time.Second, 5*time.Millisecond)

	c.poll(context.Background())
	unreadCalls, _, _ = api.calls()
	assert.Equal(t, 2+1, unreadCalls)
}

func TestCacheDiscardsCountFetchedAcrossPush(t *testing.T) {
	api := &fakeAPI{}
	c, _, _ := newTestCache(t, api, CacheConfig{RefetchDelay: time.Hour})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	api.mu.Lock()
	api.unreadGate = make(chan struct{})
	api.unreadStarted = make(chan struct{}, 1)
	gate := api.unreadGate
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.RefreshUnread(context.Background()) }()
	<-api.unreadStarted

	c.OnPushReceived(push("X followed you."))
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, int64(1), c.UnreadCount())
}

func TestCacheForcedRefetchRunsAfterInFlightFetch(t *testing.T) {
	api := &fakeAPI{}
	c, _, _ := newTestCache(t, api, CacheConfig{RefetchDelay: time.Hour})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	api.mu.Lock()
	api.unreadGate = make(chan struct{})
	api.unreadStarted = make(chan struct{}, 1)
	gate := api.unreadGate
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.RefreshUnread(context.Background()) }()
	<-api.unreadStarted

	c.OnPushReceived(push("X followed you."))
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	require.NoError(t, c.refreshUnread(context.Background(), epoch, true))

	api.setUnread(7)
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, int64(7), c.UnreadCount())
	unreadCalls, _, _ := api.calls()
	assert.Equal(t, 3, unreadCalls)
}

// Three unread, the dropdown is opened.
func TestCacheDropdownMarksAllRead(t *testing.T) {
	api := &fakeAPI{unread: 3}
	c, _, _ := newTestCache(t, api, CacheConfig{})
	require.NoError(t, c.OnLogin(context.Background(), 2))
	require.Equal(t, int64(3), c.UnreadCount())

	var seenDuringCall int64 = -1
	api.onMark = func() { seenDuringCall = c.UnreadCount() }

	require.NoError(t, c.OnDropdownOpened(context.Background()))
	assert.Equal(t, int64(0), seenDuringCall)
	assert.Equal(t, int64(0), c.UnreadCount())

	require.NoError(t, c.OnDropdownOpened(context.Background()))
	_, markCalls, _ := api.calls()
	assert.Equal(t, 1, markCalls)

	require.NoError(t, c.RefreshUnread(context.Background()))
	assert.Equal(t, int64(0), c.UnreadCount())
}

func TestCacheDropdownSkipsWhileMarkInFlight(t *testing.T) {
	api := &fakeAPI{unread: 2, markGate: make(chan struct{}), markStarted: make(chan struct{}, 1)}
	c, _, _ := newTestCache(t, api, CacheConfig{RefetchDelay: time.Hour})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	done := make(chan error, 1)
	go func() { done <- c.OnDropdownOpened(context.Background()) }()
	<-api.markStarted

	c.OnPushReceived(push("X followed you."))
	assert.Equal(t, int64(1), c.UnreadCount())
	require.NoError(t, c.OnDropdownOpened(context.Background()))

	// a count fetched while the mark call runs is not trusted
	require.NoError(t, c.RefreshUnread(context.Background()))
	assert.Equal(t, int64(1), c.UnreadCount())

	close(api.markGate)
	require.NoError(t, <-done)
	_, markCalls, _ := api.calls()
	assert.Equal(t, 1, markCalls)
}

func TestCacheMarkAllReadFailureKeepsOptimisticCount(t *testing.T) {
	api := &fakeAPI{unread: 4, markErr: errors.New("503")}
	c, _, rec := newTestCache(t, api, CacheConfig{})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	err := c.OnMarkAllReadRequested(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int64(0), c.UnreadCount())
	_, errOps, _ := rec.snapshot()
	assert.Equal(t, []string{"mark_all_read"}, errOps)

	require.NoError(t, c.RefreshUnread(context.Background()))
	assert.Equal(t, int64(4), c.UnreadCount())
}

func TestCacheAuthErrorForcesLogout(t *testing.T) {
	api := &fakeAPI{unread: 1}
	c, rt, rec := newTestCache(t, api, CacheConfig{})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	rt.listener(0).OnStatus(AuthError, ErrSessionRejected)

	assert.Eventually(t, func() bool {
		_, _, logouts := rec.snapshot()
		return logouts == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Disconnected, c.Status())
	assert.Equal(t, int64(0), c.UnreadCount())
	assert.Equal(t, 1, rt.closedCount())
}

func TestCacheIgnoresCallbacksFromPreviousSession(t *testing.T) {
	api := &fakeAPI{}
	c, rt, rec := newTestCache(t, api, CacheConfig{RefetchDelay: time.Hour})
	require.NoError(t, c.OnLogin(context.Background(), 2))
	old := rt.listener(0)

	c.OnLogout()
	assert.Equal(t, 1, rt.closedCount())
	assert.Equal(t, Disconnected, c.Status())

	require.NoError(t, c.OnLogin(context.Background(), 3))
	assert.Equal(t, "private-user-notifications-3", rt.channels[1])

	old.OnNotification(push("for the old user"))
	old.OnStatus(AuthError, ErrSessionRejected)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int64(0), c.UnreadCount())
	assert.Equal(t, Connecting, c.Status())
	alerts, _, logouts := rec.snapshot()
	assert.Empty(t, alerts)
	assert.Zero(t, logouts)
}

func TestCachePagesShareCursorAndRefetchWhenStale(t *testing.T) {
	api := &fakeAPI{cursor: 42, items: []Notification{{ID: 42}, {ID: 41}}}
	c, _, _ := newTestCache(t, api, CacheConfig{PageSize: 2, RefetchDelay: time.Hour})
	require.NoError(t, c.OnLogin(context.Background(), 2))

	items, err := c.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	_, err = c.Page(context.Background(), 1)
	require.NoError(t, err)
	_, _, listCalls := api.calls()
	assert.Equal(t, 1, listCalls)

	_, err = c.Page(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint(42), api.lastBefore)

	c.OnPushReceived(push("new"))
	p, ok := c.Peek(2)
	require.True(t, ok)
	assert.True(t, p.Stale)

	_, err = c.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(0), api.lastBefore)
	_, _, listCalls = api.calls()
	assert.Equal(t, 3, listCalls)
}

func TestCacheWithoutSessionIsInert(t *testing.T) {
	api := &fakeAPI{unread: 9}
	c, _, _ := newTestCache(t, api, CacheConfig{})

	c.OnPushReceived(push("x"))
	require.NoError(t, c.OnMarkAllReadRequested(context.Background()))
	require.NoError(t, c.RefreshUnread(context.Background()))
	items, err := c.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, items)

	unreadCalls, markCalls, listCalls := api.calls()
	assert.Zero(t, unreadCalls+markCalls+listCalls)
	assert.Equal(t, int64(0), c.UnreadCount())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "subscribed", Subscribed.String())
	assert.Equal(t, "auth_error", AuthError.String())
}

func TestExpoJitter(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))

	j := ExpoJitter{Base: 100 * time.Millisecond, Jitter: 0.2}
	for i := 0; i < 20; i++ {
		d := j.Next(0)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestExpoJitterStaysBoundedForLongOutages(t *testing.T) {
	for _, attempt := range []int{30, 34, 35, 40, 60, 1000} {
		d := DefaultReconnectBackoff.Next(attempt)
		assert.GreaterOrEqual(t, d, 24*time.Second, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 30*time.Second, "attempt %d", attempt)
	}

	unbounded := ExpoJitter{Base: time.Second}
	assert.Positive(t, unbounded.Next(1000))
}
