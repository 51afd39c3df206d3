package grid

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aarondl/opt/omit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/position"
	"github.com/mpapenbr/racegrid/pkg/processing/reorder"
)

// EventSource is a stream of events with explicit subscription handles.
// broadcast.BroadcastServer[Event] satisfies it.
type EventSource interface {
	Subscribe() <-chan Event
	CancelSubscription(<-chan Event)
}

// Coordinator owns the display slots of all channels and reconciles them
// with the incoming events once per display tick.
//
// Enqueue, FeedReady and FeedFailed may be called from any goroutine.
// Tick (and Run) must only be called from a single goroutine.
type Coordinator struct {
	ctx      context.Context
	l        *log.Logger
	tracer   trace.Tracer
	metrics  *metrics
	display  config.Display
	replay   bool
	extras   bool
	results  model.ResultsService
	recorder model.RaceStateRecorder
	notifier Notifier

	resolver  *position.Resolver
	scheduler *reorder.Scheduler
	race      *model.Race

	// slot arena, keyed by channel. Creation may happen concurrently.
	slotMu sync.Mutex
	slots  map[model.ChannelID]*Slot
	// position of new slots, may be read by feed callbacks
	sentinel atomic.Int64
	roster   []model.Channel
	order    []model.ChannelID
	layout   int // number of slots the current order was computed for
	queueMu  sync.Mutex
	queue    []Event

	source    EventSource
	sub       <-chan Event
	pumpDone  chan struct{}
	closeOnce sync.Once
}

type Option func(*Coordinator)

func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		c.ctx = ctx
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		c.l = l
	}
}

func WithDisplay(d config.Display) Option {
	return func(c *Coordinator) {
		c.display = d
	}
}

// WithReplayMode is used for historical playback, crash-out is not depicted
func WithReplayMode(replay bool) Option {
	return func(c *Coordinator) {
		c.replay = replay
	}
}

// WithChannels sets the channel roster of the session
func WithChannels(channels ...model.Channel) Option {
	return func(c *Coordinator) {
		c.roster = append(c.roster, channels...)
	}
}

func WithSource(source EventSource) Option {
	return func(c *Coordinator) {
		c.source = source
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

func WithRecorder(r model.RaceStateRecorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

func New(results model.ResultsService, opts ...Option) *Coordinator {
	c := &Coordinator{
		ctx:      context.Background(),
		display:  config.DefaultDisplay(),
		results:  results,
		notifier: nopNotifier{},
		slots:    make(map[model.ChannelID]*Slot),
		queue:    make([]Event, 0),
		tracer:   otel.Tracer("racegrid.grid"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.l == nil {
		c.l = log.GetFromContext(c.ctx).Named("grid")
	}
	c.extras = c.display.ExtrasVisible
	c.resolver = position.NewResolver(results,
		position.WithDisplay(c.display),
		position.WithLogger(c.l.Named("position")))
	c.sentinel.Store(int64(c.resolver.Sentinel()))
	c.scheduler = reorder.NewScheduler(c.display.DebounceWindow)
	c.metrics = newMetrics(c)
	if c.source != nil {
		c.sub = c.source.Subscribe()
		c.pumpDone = make(chan struct{})
		go c.pump()
	}
	return c
}

// pump moves events from the subscription into the queue.
// It ends when the subscription channel is closed.
func (c *Coordinator) pump() {
	defer close(c.pumpDone)
	for ev := range c.sub {
		c.Enqueue(ev)
	}
	c.l.Debug("event subscription closed")
}

// Close releases the event subscription. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		if c.source == nil {
			return
		}
		c.source.CancelSubscription(c.sub)
		<-c.pumpDone
		c.l.Debug("coordinator closed")
	})
}

// Enqueue hands an event to the coordinator. It only records the event,
// the work is done by the next tick.
func (c *Coordinator) Enqueue(ev Event) {
	if ev == nil {
		return
	}
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = append(c.queue, ev)
}

func (c *Coordinator) queued() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

func (c *Coordinator) drain() []Event {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	ret := c.queue
	c.queue = make([]Event, 0, len(ret))
	return ret
}

// EnsureSlot returns the slot of the channel, creating it if needed.
// It may be called concurrently (tick and video-source callbacks).
func (c *Coordinator) EnsureSlot(ch model.Channel) *Slot {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()
	return c.ensureSlotLocked(ch)
}

func (c *Coordinator) ensureSlotLocked(ch model.Channel) *Slot {
	if s, ok := c.slots[ch.ID]; ok {
		return s
	}
	s := newSlot(ch, int(c.sentinel.Load()))
	c.slots[ch.ID] = s
	c.l.Debug("slot created", log.Int("channel", int(ch.ID)), log.Stringer("name", ch))
	return s
}

// FeedReady is called by the video collaborator once the channel has a live feed
func (c *Coordinator) FeedReady(ch model.Channel) {
	c.EnsureSlot(ch).hasLiveFeed.Store(true)
}

// FeedFailed is called by the video collaborator if the feed could not be
// created. The slot stays as a placeholder without live feed.
func (c *Coordinator) FeedFailed(ch model.Channel, err error) {
	c.l.Error("could not create video feed, using placeholder",
		log.Stringer("channel", ch), log.ErrorField(err))
	c.EnsureSlot(ch).hasLiveFeed.Store(false)
}

// rosterChannel looks up the roster, unknown channels get a bare identity
func (c *Coordinator) rosterChannel(id model.ChannelID) model.Channel {
	for i := range c.roster {
		if c.roster[i].ID == id {
			return c.roster[i]
		}
	}
	c.l.Warn("channel not in roster", log.Int("channel", int(id)))
	return model.Channel{ID: id}
}

func (c *Coordinator) slotFor(id model.ChannelID) *Slot {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()
	if s, ok := c.slots[id]; ok {
		return s
	}
	return c.ensureSlotLocked(c.rosterChannel(id))
}

// existingSlot looks up a slot without creating it
func (c *Coordinator) existingSlot(id model.ChannelID) (*Slot, bool) {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()
	s, ok := c.slots[id]
	return s, ok
}

// allSlots returns the slots ordered by channel id
func (c *Coordinator) allSlots() []*Slot {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()
	ret := make([]*Slot, 0, len(c.slots))
	for _, s := range c.slots {
		ret = append(ret, s)
	}
	slices.SortFunc(ret, func(a, b *Slot) int {
		return cmp.Compare(a.Channel.ID, b.Channel.ID)
	})
	return ret
}

// slotForPilot returns the slot the pilot is bound to in the current race
func (c *Coordinator) slotForPilot(pilot model.PilotID) (*Slot, bool) {
	if c.race == nil {
		return nil, false
	}
	ch, ok := c.race.ChannelOf(pilot)
	if !ok {
		return nil, false
	}
	return c.slotFor(ch), true
}

// Race returns a copy of the current race
func (c *Coordinator) Race() omit.Val[model.Race] {
	if c.race == nil {
		return omit.Val[model.Race]{}
	}
	return omit.From(*c.race.Clone())
}

func (c *Coordinator) Display() config.Display {
	return c.display
}

// Run ticks the coordinator until ctx is done and hands every frame to sink
func (c *Coordinator) Run(ctx context.Context, sink func(Frame)) {
	ticker := time.NewTicker(c.display.TickInterval)
	defer ticker.Stop()
	interval := c.display.TickInterval
	for {
		select {
		case <-ctx.Done():
			c.l.Info("tick loop stopped")
			return
		case now := <-ticker.C:
			frame := c.Tick(ctx, now)
			if sink != nil {
				sink(frame)
			}
			if c.display.TickInterval != interval {
				interval = c.display.TickInterval
				ticker.Reset(interval)
			}
		}
	}
}
