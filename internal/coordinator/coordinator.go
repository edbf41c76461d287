// Package coordinator polls the server on a fixed interval, merges the
// dependent queries into one immutable snapshot and publishes it atomically.
package coordinator

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"embymirror/internal/emby"
	"embymirror/internal/events"
	"embymirror/internal/models"
)

const DefaultInterval = 10 * time.Second

const (
	liveTVChannelLimit = 30
	latestItemLimit    = 5
	playableItemTypes  = "Movie,Series,Episode,Audio,Video"
)

// UpdateFailedError means a whole refresh cycle failed. The previously
// published snapshot stays the last known-good value; consumers should
// report the mirrored state as unavailable until a refresh succeeds.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string { return "update failed: " + e.Err.Error() }
func (e *UpdateFailedError) Unwrap() error { return e.Err }

type Coordinator struct {
	client   *emby.Client
	registry *events.Registry
	interval time.Duration

	mu        sync.RWMutex
	snapshot  *models.Snapshot
	available bool

	subMu       sync.Mutex
	subscribers map[chan *models.Snapshot]struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	trigger       chan struct{}
	refreshNotify chan struct{}
}

func New(client *emby.Client, registry *events.Registry, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		client:      client,
		registry:    registry,
		interval:    interval,
		subscribers: make(map[chan *models.Snapshot]struct{}),
		trigger:     make(chan struct{}, 1),
	}
}

// Start launches the background refresh loop: one immediate refresh, then
// one per interval plus any on-demand triggers.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.done = make(chan struct{})
		go c.run(ctx)
	})
}

func (c *Coordinator) Stop() {
	if c.cancel != nil && c.done != nil {
		c.cancel()
		<-c.done
	}
}

// Snapshot returns the last successfully published snapshot, or nil before
// the first successful refresh.
func (c *Coordinator) Snapshot() *models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Available reports whether the most recent refresh succeeded. A single
// successful refresh after failures flips it back; no manual reset exists.
func (c *Coordinator) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Subscribe returns a channel receiving each published snapshot. Slow
// consumers miss intermediate snapshots rather than blocking the publisher.
func (c *Coordinator) Subscribe() chan *models.Snapshot {
	ch := make(chan *models.Snapshot, 1)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

func (c *Coordinator) Unsubscribe(ch chan *models.Snapshot) {
	c.subMu.Lock()
	_, exists := c.subscribers[ch]
	delete(c.subscribers, ch)
	c.subMu.Unlock()
	if exists {
		close(ch)
	}
}

// TriggerRefresh requests an out-of-cycle refresh. Triggers arriving while a
// refresh is in flight coalesce into at most one subsequent run.
func (c *Coordinator) TriggerRefresh() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// WatchEvents wires server-pushed events that imply state changed into
// on-demand refreshes.
func (c *Coordinator) WatchEvents() {
	refresh := func(any) { c.TriggerRefresh() }
	for _, t := range []events.Type{events.Sessions, events.SessionData, events.Playstate, events.UserDataChanged} {
		c.registry.Subscribe(t, refresh)
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		case <-c.trigger:
			c.refresh(ctx)
		}
	}
}

func (c *Coordinator) refresh(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("coordinator: %v", err)
	}
	if c.refreshNotify != nil {
		select {
		case c.refreshNotify <- struct{}{}:
		default:
		}
	}
}

// Refresh performs one full poll cycle and publishes the resulting snapshot.
// The session and system-info seed fetches failing abort the cycle with
// *UpdateFailedError; a single library's failure only drops that library.
func (c *Coordinator) Refresh(ctx context.Context) (*models.Snapshot, error) {
	fetchedAt := time.Now().UTC()

	var sessions []models.Session
	var info models.SystemInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = c.client.GetSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = c.client.GetSystemInfo(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.markUnavailable()
		return nil, &UpdateFailedError{Err: err}
	}

	views, err := c.client.GetViews(ctx)
	if err != nil {
		c.markUnavailable()
		return nil, &UpdateFailedError{Err: err}
	}

	libraries := c.fetchLibraries(ctx, views)

	if sessions == nil {
		sessions = []models.Session{}
	}
	snap := &models.Snapshot{
		Sessions:  sessions,
		Libraries: libraries,
		Server:    info,
		FetchedAt: fetchedAt,
	}
	c.publish(snap)
	return snap, nil
}

// fetchLibraries fans out one fetch per view. A failing view is logged and
// dropped; its siblings are unaffected.
func (c *Coordinator) fetchLibraries(ctx context.Context, views []emby.View) []models.Library {
	results := make([]*models.Library, len(views))
	var g errgroup.Group
	for i, view := range views {
		i, view := i, view
		g.Go(func() error {
			lib, err := c.fetchLibrary(ctx, view)
			if err != nil {
				log.Printf("coordinator: fetching library %q: %v", view.Name, err)
				return nil
			}
			results[i] = lib
			return nil
		})
	}
	g.Wait()

	libraries := make([]models.Library, 0, len(views))
	for _, lib := range results {
		if lib != nil {
			libraries = append(libraries, *lib)
		}
	}
	return libraries
}

func (c *Coordinator) fetchLibrary(ctx context.Context, view emby.View) (*models.Library, error) {
	colType := models.CollectionType(view.CollectionType)
	if colType == "" {
		colType = models.CollectionTypeUnknown
	}

	if colType == models.CollectionTypeLiveTV {
		channels, total, err := c.client.GetLiveTVChannels(ctx, liveTVChannelLimit)
		if err != nil {
			return nil, err
		}
		return &models.Library{
			ID:       view.ID,
			Name:     view.Name,
			Type:     colType,
			Count:    total,
			Channels: channels,
		}, nil
	}

	// A zero-limit query gets the total count without transferring items.
	countPage, err := c.client.GetItems(ctx, url.Values{
		"ParentId":         {view.ID},
		"Recursive":        {"true"},
		"IncludeItemTypes": {playableItemTypes},
		"Limit":            {"0"},
	})
	if err != nil {
		return nil, err
	}

	latestPage, err := c.client.GetItems(ctx, url.Values{
		"ParentId":         {view.ID},
		"Recursive":        {"true"},
		"IncludeItemTypes": {playableItemTypes},
		"Limit":            {strconv.Itoa(latestItemLimit)},
		"SortBy":           {"DateCreated"},
		"SortOrder":        {"Descending"},
	})
	if err != nil {
		return nil, err
	}

	return &models.Library{
		ID:     view.ID,
		Name:   view.Name,
		Type:   colType,
		Count:  countPage.TotalRecordCount,
		Latest: latestPage.Items,
	}, nil
}

func (c *Coordinator) markUnavailable() {
	c.mu.Lock()
	c.available = false
	c.mu.Unlock()
}

func (c *Coordinator) publish(snap *models.Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.available = true
	c.mu.Unlock()

	c.subMu.Lock()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
	c.subMu.Unlock()

	c.registry.Notify(events.SnapshotUpdated, snap)
}
