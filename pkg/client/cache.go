package client

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/wire"
	"go.uber.org/zap"
)

// API is the part of APIClient the Cache needs.
type API interface {
	List(ctx context.Context, page, limit int, before uint) (*Page, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkAllRead(ctx context.Context) error
}

// Callbacks surface cache events to the UI. All are optional and are never
// called with the cache lock held.
type Callbacks struct {
	// OnAlert shows a transient alert for a pushed notification.
	OnAlert func(message string)
	// OnError reports a failed fetch or mark-all-read; op names the call.
	OnError func(op string, err error)
	// OnForcedLogout fires when the server rejected the realtime session.
	OnForcedLogout func(err error)
}

type CacheConfig struct {
	PageSize     int
	PollInterval time.Duration
	RefetchDelay time.Duration
	// RequestTimeout bounds background fetches.
	RequestTimeout time.Duration
	Callbacks      Callbacks
	Log            *zap.Logger
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.RefetchDelay <= 0 {
		c.RefetchDelay = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	return c
}

// CachedPage is one fetched page. A stale page is served by Peek but
// refetched by Page.
type CachedPage struct {
	Items     []Notification
	Stale     bool
	FetchedAt time.Time
}

// Cache keeps the unread counter and notification pages of the signed-in
// user. The counter is fetched independently of the pages and reconciled
// by pushes, mark-all-read and polling.
//
// Polling and push-driven refetches share refreshUnread, which allows one
// fetch at a time. Counts fetched across a local mutation are discarded.
type Cache struct {
	api API
	rt  Realtime
	cfg CacheConfig
	log *zap.Logger

	mu          sync.Mutex
	epoch       uint64
	recipientID uint
	status      Status
	sub         Subscription

	unread       int64
	countVersion uint64
	fetching     bool
	fetchAgain   bool
	markInFlight bool

	refetchTimer   *time.Timer
	refetchPending bool

	pages        map[int]*CachedPage
	pagesVersion uint64
	cursor       uint
}

func NewCache(api API, rt Realtime, cfg CacheConfig) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		api:   api,
		rt:    rt,
		cfg:   cfg,
		log:   cfg.Log.With(zap.String("component", "client.cache")),
		pages: make(map[int]*CachedPage),
	}
}

func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Cache) UnreadCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Peek returns the cached page without fetching.
func (c *Cache) Peek(page int) (CachedPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[page]
	if !ok {
		return CachedPage{}, false
	}
	cp := *p
	cp.Items = append([]Notification(nil), p.Items...)
	return cp, true
}

// OnLogin subscribes to recipientID's channel and loads the unread count.
// A previous session is torn down first.
func (c *Cache) OnLogin(ctx context.Context, recipientID uint) error {
	c.teardown()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.recipientID = recipientID
	c.status = Connecting
	c.mu.Unlock()

	sub, err := c.rt.Subscribe(ctx, wire.ChannelForUser(recipientID), Listener{
		OnStatus:       func(s Status, err error) { c.onStatus(epoch, s, err) },
		OnNotification: func(env wire.Envelope) { c.onPush(epoch, env) },
	})
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.status = Disconnected
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	_ = c.refreshUnread(ctx, epoch, false)
	return nil
}

// OnLogout unsubscribes and clears all cached state. Callbacks of the old
// subscription are ignored from here on.
func (c *Cache) OnLogout() {
	c.teardown()
}

func (c *Cache) teardown() {
	c.mu.Lock()
	c.epoch++
	sub := c.sub
	c.sub = nil
	if c.refetchTimer != nil {
		c.refetchTimer.Stop()
		c.refetchTimer = nil
	}
	c.refetchPending = false
	c.recipientID = 0
	c.status = Disconnected
	c.unread = 0
	c.countVersion++
	c.markInFlight = false
	c.fetching = false
	c.fetchAgain = false
	c.pages = make(map[int]*CachedPage)
	c.pagesVersion++
	c.cursor = 0
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
}

func (c *Cache) onStatus(epoch uint64, s Status, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	c.log.Debug("subscription status", zap.Stringer("status", s), zap.Error(err))
	if s == AuthError {
		// The subscription's own goroutine delivers this; closing it from
		// here would wait on ourselves.
		go c.forceLogout(epoch, err)
	}
}

func (c *Cache) forceLogout(epoch uint64, err error) {
	c.mu.Lock()
	current := c.epoch == epoch
	c.mu.Unlock()
	if !current {
		return
	}
	c.teardown()
	if c.cfg.Callbacks.OnForcedLogout != nil {
		c.cfg.Callbacks.OnForcedLogout(err)
	}
}

// OnPushReceived applies a pushed notification for the current session.
func (c *Cache) OnPushReceived(env wire.Envelope) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.onPush(epoch, env)
}

func (c *Cache) onPush(epoch uint64, env wire.Envelope) {
	c.mu.Lock()
	if c.epoch != epoch || c.recipientID == 0 {
		c.mu.Unlock()
		return
	}
	c.unread++
	c.countVersion++
	c.invalidateLocked()
	c.scheduleRefetchLocked(epoch)
	c.mu.Unlock()

	if c.cfg.Callbacks.OnAlert != nil {
		c.cfg.Callbacks.OnAlert(env.Message)
	}
}

// scheduleRefetchLocked debounces the authoritative count refetch after
// pushes; a burst of pushes yields one request.
func (c *Cache) scheduleRefetchLocked(epoch uint64) {
	c.refetchPending = true
	if c.refetchTimer != nil {
		c.refetchTimer.Reset(c.cfg.RefetchDelay)
		return
	}
	c.refetchTimer = time.AfterFunc(c.cfg.RefetchDelay, func() {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		c.refetchTimer = nil
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()
		_ = c.refreshUnread(ctx, epoch, true)

		c.mu.Lock()
		if c.epoch == epoch && c.refetchTimer == nil {
			c.refetchPending = false
		}
		c.mu.Unlock()
	})
}

func (c *Cache) invalidateLocked() {
	for _, p := range c.pages {
		p.Stale = true
	}
	c.pagesVersion++
	c.cursor = 0
}

// OnMarkAllReadRequested zeroes the counter at once and then asks the
// server to mark everything read. A failure is reported but the counter is
// left for the next fetch to correct.
func (c *Cache) OnMarkAllReadRequested(ctx context.Context) error {
	c.mu.Lock()
	if c.recipientID == 0 || c.markInFlight {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	c.markInFlight = true
	c.unread = 0
	c.countVersion++
	c.invalidateLocked()
	c.mu.Unlock()

	err := c.api.MarkAllRead(ctx)

	c.mu.Lock()
	if c.epoch == epoch {
		c.markInFlight = false
		c.invalidateLocked()
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("mark all read failed", zap.Error(err))
		c.reportError("mark_all_read", err)
		return err
	}
	return nil
}

// OnDropdownOpened marks everything read when there is something unread
// and no mark-all-read call is already running.
func (c *Cache) OnDropdownOpened(ctx context.Context) error {
	c.mu.Lock()
	should := c.unread > 0 && !c.markInFlight
	c.mu.Unlock()
	if !should {
		return nil
	}
	return c.OnMarkAllReadRequested(ctx)
}

// Page returns page n, fetching it when missing or stale. Pages fetched
// after page 1 share its cursor so their membership stays stable.
func (c *Cache) Page(ctx context.Context, n int) ([]Notification, error) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	if c.recipientID == 0 {
		c.mu.Unlock()
		return nil, nil
	}
	if p, ok := c.pages[n]; ok && !p.Stale {
		items := append([]Notification(nil), p.Items...)
		c.mu.Unlock()
		return items, nil
	}
	epoch, version, cursor := c.epoch, c.pagesVersion, c.cursor
	c.mu.Unlock()

	page, err := c.api.List(ctx, n, c.cfg.PageSize, cursor)
	if err != nil {
		c.reportError("list", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, nil
	}
	c.pages[n] = &CachedPage{
		Items:     page.Items,
		Stale:     c.pagesVersion != version,
		FetchedAt: time.Now(),
	}
	if c.pagesVersion == version && c.cursor == 0 {
		c.cursor = page.Cursor
	}
	return append([]Notification(nil), page.Items...), nil
}

// RefreshUnread fetches the authoritative unread count.
func (c *Cache) RefreshUnread(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.refreshUnread(ctx, epoch, false)
}

// refreshUnread runs at most one count fetch at a time. With force, a call
// that finds a fetch running makes that fetch go around once more.
func (c *Cache) refreshUnread(ctx context.Context, epoch uint64, force bool) error {
	c.mu.Lock()
	if c.epoch != epoch || c.recipientID == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.fetching {
		if force {
			c.fetchAgain = true
		}
		c.mu.Unlock()
		return nil
	}
	c.fetching = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		version := c.countVersion
		c.fetchAgain = false
		c.mu.Unlock()

		n, err := c.api.UnreadCount(ctx)

		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return nil
		}
		if err != nil {
			c.fetching = false
			c.mu.Unlock()
			c.reportError("unread_count", err)
			return err
		}
		if c.countVersion == version && !c.markInFlight {
			c.unread = n
		} else {
			c.log.Debug("discarding unread count fetched across a local change", zap.Int64("count", n))
		}
		if !c.fetchAgain {
			c.fetching = false
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}
}

// poll is one polling tick. It is skipped while a push-driven refetch is
// pending.
func (c *Cache) poll(ctx context.Context) {
	c.mu.Lock()
	epoch, pending, active := c.epoch, c.refetchPending, c.recipientID != 0
	c.mu.Unlock()
	if !active || pending {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	_ = c.refreshUnread(ctx, epoch, false)
}

// Run polls the unread count until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Cache) reportError(op string, err error) {
	if c.cfg.Callbacks.OnError != nil {
		c.cfg.Callbacks.OnError(op, err)
	}
}
