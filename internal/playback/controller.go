package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
)

type entry struct {
	desc  remote.AssetDescriptor
	state EntryState
	res   Resource

	// token identifies the resource (or in-flight acquisition) whose events
	// this entry accepts. Zero means none.
	token       uint64
	pendingSeek *float64
}

// Controller keeps one playback entry per asset of the latest completed
// batch. Each entry plays, pauses and seeks independently.
type Controller struct {
	acquire Acquirer
	cfg     Config
	logger  *slog.Logger
	feed    *stream.Broadcaster[Snapshot]

	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	gen       uint64
	nextToken uint64
	disposed  bool
}

// NewController creates an empty playback controller.
func NewController(acquire Acquirer, cfg Config, logger *slog.Logger) *Controller {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	return &Controller{
		acquire: acquire,
		cfg:     cfg,
		logger:  logger.With("component", "playback"),
		feed:    stream.NewBroadcaster[Snapshot](32),
		entries: make(map[string]*entry),
	}
}

// Install replaces the entry set. Every resource of the previous batch is
// closed before the new entries appear. Later duplicates of a name are
// dropped.
func (c *Controller) Install(descs []remote.AssetDescriptor) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	old := c.detachLocked()
	c.publishLocked()
	c.mu.Unlock()

	closeAll(old, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	for _, d := range descs {
		if d.Name == "" {
			c.logger.Warn("dropping asset without a name", "source_url", d.SourceURL)
			continue
		}
		if _, dup := c.entries[d.Name]; dup {
			c.logger.Warn("dropping duplicate asset", "name", d.Name)
			continue
		}
		c.entries[d.Name] = &entry{
			desc: d,
			state: EntryState{
				Name:      d.Name,
				Label:     d.Label,
				SourceURL: d.SourceURL,
			},
		}
		c.order = append(c.order, d.Name)
	}
	c.logger.Info("batch installed", "generation", c.gen, "assets", len(c.order))
	c.publishLocked()
	return nil
}

// Play starts the named entry, acquiring its resource on first use. A
// failed acquisition leaves the entry stopped and returns *StreamError.
func (c *Controller) Play(ctx context.Context, name string) error {
	c.mu.Lock()
	e, err := c.lookupLocked(name)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if c.cfg.Exclusive {
		for _, other := range c.entries {
			if other != e && other.state.Playing {
				other.state.Playing = false
				if other.res != nil {
					other.res.Pause()
				}
			}
		}
	}

	e.state.Playing = true
	e.state.Err = ""

	if e.res != nil {
		e.res.Play()
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	if e.state.Loading {
		// the pending acquisition starts playback if still wanted
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}

	c.nextToken++
	token := c.nextToken
	gen := c.gen
	e.token = token
	e.state.Loading = true
	c.publishLocked()
	c.mu.Unlock()

	// the load is shared by every Play waiting on this entry
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AcquireTimeout)
	defer cancel()
	res, acqErr := c.acquire(actx, e.desc, &entryEvents{c: c, name: name, token: token})

	c.mu.Lock()
	if c.disposed || c.gen != gen || c.entries[name] != e || e.token != token {
		c.mu.Unlock()
		if res != nil {
			res.Close()
		}
		c.logger.Debug("discarding resource of a replaced entry", "name", name)
		return nil
	}
	e.state.Loading = false

	if acqErr != nil {
		e.token = 0
		e.state.Playing = false
		e.state.Err = acqErr.Error()
		c.publishLocked()
		c.mu.Unlock()
		c.logger.Warn("asset unavailable", "name", name, "error", acqErr)
		return &StreamError{Name: name, Err: acqErr}
	}

	e.res = res
	e.state.Loaded = true
	if e.pendingSeek != nil {
		res.Seek(secondsToDuration(*e.pendingSeek))
		e.pendingSeek = nil
	}
	if e.state.Playing {
		res.Play()
	}
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// Pause stops the named entry. Other entries keep playing.
func (c *Controller) Pause(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(name)
	if err != nil {
		return err
	}
	e.state.Playing = false
	if e.res != nil {
		e.res.Pause()
	}
	c.publishLocked()
	return nil
}

// Toggle pauses a playing entry and plays a stopped one.
func (c *Controller) Toggle(ctx context.Context, name string) error {
	c.mu.Lock()
	e, err := c.lookupLocked(name)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	playing := e.state.Playing
	c.mu.Unlock()

	if playing {
		return c.Pause(name)
	}
	return c.Play(ctx, name)
}

// Seek moves the named entry to seconds, clamped to [0, duration] once the
// duration is known. A seek before the resource exists is applied when it
// is acquired.
func (c *Controller) Seek(name string, seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(name)
	if err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	if e.state.DurationKnown && seconds > e.state.Duration {
		seconds = e.state.Duration
	}
	e.state.Position = seconds
	if e.res != nil {
		e.res.Seek(secondsToDuration(seconds))
	} else {
		e.pendingSeek = &seconds
	}
	c.publishLocked()
	return nil
}

// Entry returns the state of the named entry.
func (c *Controller) Entry(name string) (EntryState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(name)
	if err != nil {
		return EntryState{}, err
	}
	return copyState(e.state), nil
}

// Snapshot returns every entry in install order.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a feed receiving one snapshot per state change.
func (c *Controller) Subscribe() *stream.Listener[Snapshot] {
	return c.feed.Subscribe()
}

// Unsubscribe stops a feed listener.
func (c *Controller) Unsubscribe(l *stream.Listener[Snapshot]) {
	c.feed.Unsubscribe(l)
}

// Source returns the PCM output of the named entry's resource.
func (c *Controller) Source(name string) (*stream.Broadcaster[[]int16], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(name)
	if err != nil {
		return nil, err
	}
	s, ok := e.res.(Streamer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	return s.Output(), nil
}

// Dispose closes every resource. Later calls on the controller return
// ErrDisposed.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	old := c.detachLocked()
	c.disposed = true
	c.publishLocked()
	c.mu.Unlock()

	closeAll(old, c.logger)
	c.feed.Close()
	c.logger.Info("playback disposed")
}

func (c *Controller) lookupLocked(name string) (*entry, error) {
	if c.disposed {
		return nil, ErrDisposed
	}
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return e, nil
}

// detachLocked empties the entry set and starts a new generation, returning
// the resources that must be closed.
func (c *Controller) detachLocked() []Resource {
	var out []Resource
	for _, name := range c.order {
		if e := c.entries[name]; e.res != nil {
			out = append(out, e.res)
		}
	}
	c.entries = make(map[string]*entry)
	c.order = nil
	c.gen++
	return out
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Generation: c.gen,
		Entries:    make([]EntryState, 0, len(c.order)),
	}
	for _, name := range c.order {
		s.Entries = append(s.Entries, copyState(c.entries[name].state))
	}
	return s
}

func (c *Controller) publishLocked() {
	c.feed.Publish(c.snapshotLocked())
}

// update applies fn to the entry owning token. Stale callers are ignored.
func (c *Controller) update(name string, token uint64, fn func(e *entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	e, ok := c.entries[name]
	if !ok || e.token != token {
		c.logger.Debug("ignoring event from stale resource", "name", name)
		return
	}
	fn(e)
	c.publishLocked()
}

func closeAll(resources []Resource, logger *slog.Logger) {
	for _, r := range resources {
		if err := r.Close(); err != nil {
			logger.Warn("close resource", "error", err)
		}
	}
}

func copyState(s EntryState) EntryState {
	if s.Metadata != nil {
		m := *s.Metadata
		s.Metadata = &m
	}
	return s
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type entryEvents struct {
	c     *Controller
	name  string
	token uint64
}

func (ev *entryEvents) DurationKnown(seconds float64) {
	ev.c.update(ev.name, ev.token, func(e *entry) {
		e.state.Duration = seconds
		e.state.DurationKnown = true
		if e.state.Position > seconds {
			e.state.Position = seconds
		}
		if e.pendingSeek != nil && *e.pendingSeek > seconds {
			*e.pendingSeek = seconds
		}
	})
}

func (ev *entryEvents) Position(seconds float64) {
	ev.c.update(ev.name, ev.token, func(e *entry) {
		e.state.Position = seconds
	})
}

func (ev *entryEvents) Ended() {
	ev.c.update(ev.name, ev.token, func(e *entry) {
		e.state.Playing = false
		e.state.Position = 0
	})
}

func (ev *entryEvents) Metadata(m Metadata) {
	ev.c.update(ev.name, ev.token, func(e *entry) {
		e.state.Metadata = &m
	})
}
