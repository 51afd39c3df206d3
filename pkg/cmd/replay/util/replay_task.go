package util

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
)

var ErrNoData = errors.New("no replay data")

// Recording is a named stream of codec envelopes, one per line
type Recording struct {
	Name   string
	Reader io.Reader
}

type (
	ReplayTask struct {
		coord       *grid.Coordinator
		observe     func(grid.Event)
		onFrame     func(grid.Frame)
		sleep       func(time.Duration)
		speed       int
		fastForward time.Duration
		l           *log.Logger

		tick  time.Duration
		start time.Time
		clock time.Time
		last  grid.Frame
	}
	Option func(*ReplayTask)
)

// WithSpeed sets the replay speed (0 means: go as fast as possible)
func WithSpeed(speed int) Option {
	return func(r *ReplayTask) {
		r.speed = speed
	}
}

// WithFastForward replays the first d of the recording with max speed
func WithFastForward(d time.Duration) Option {
	return func(r *ReplayTask) {
		r.fastForward = d
	}
}

// WithObserver registers a function which sees every event before the
// coordinator does
func WithObserver(observe func(grid.Event)) Option {
	return func(r *ReplayTask) {
		r.observe = observe
	}
}

func WithFrameHandler(onFrame func(grid.Frame)) Option {
	return func(r *ReplayTask) {
		r.onFrame = onFrame
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *ReplayTask) {
		r.l = l
	}
}

func withSleep(sleep func(time.Duration)) Option {
	return func(r *ReplayTask) {
		r.sleep = sleep
	}
}

func NewReplayTask(coord *grid.Coordinator, opts ...Option) *ReplayTask {
	ret := &ReplayTask{
		coord:   coord,
		observe: func(grid.Event) {},
		onFrame: func(grid.Frame) {},
		sleep:   time.Sleep,
		speed:   1,
		l:       log.Default().Named("replay"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Replay merges the recordings by time and feeds them to the coordinator.
// The coordinator is ticked by a virtual clock derived from the recorded
// times. After the last event the clock keeps running for one debounce
// window so that a pending reordering is applied. The last frame is returned.
//
//nolint:funlen // by design
func (r *ReplayTask) Replay(ctx context.Context, recordings ...Recording) (grid.Frame, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pData := make([]peek, 0, len(recordings))
	for _, rec := range recordings {
		p := newRecordedData(ctx, rec.Name, rec.Reader)
		if !p.refill() {
			r.l.Debug("exhausted", log.String("provider", rec.Name))
			continue
		}
		pData = append(pData, p)
	}
	if len(pData) == 0 {
		return grid.Frame{}, ErrNoData
	}

	r.tick = r.coord.Display().TickInterval
	r.start = pData[0].ts()
	for _, p := range pData[1:] {
		if p.ts().Before(r.start) {
			r.start = p.ts()
		}
	}
	r.clock = r.start.Add(-r.tick)
	r.l.Info("Replaying",
		log.Time("start", r.start),
		log.Int("recordings", len(pData)),
		log.Int("speed", r.speed))

	events := 0
	lastTs := r.start
	for len(pData) > 0 {
		var current peek
		var currentIdx int
		// create a max time from  (don't use time.Unix(1<<63-1), that's not what we want)
		nextTs := time.Unix(0, 0).Add(1<<63 - 1)
		for i, p := range pData {
			if p.ts().Before(nextTs) {
				nextTs = p.ts()
				current = pData[i]
				currentIdx = i
			}
		}
		if err := r.advance(ctx, nextTs); err != nil {
			return r.last, err
		}
		ev := current.current()
		r.observe(ev)
		r.coord.Enqueue(ev)
		events++
		lastTs = nextTs

		if !current.refill() {
			r.l.Debug("exhausted", log.String("provider", current.provider()))
			pData = append(pData[:currentIdx], pData[currentIdx+1:]...)
		}
	}
	r.l.Debug("All providers exhausted", log.Int("events", events))

	settle := lastTs.Add(r.coord.Display().DebounceWindow + 2*r.tick)
	if err := r.advance(ctx, settle); err != nil {
		return r.last, err
	}
	r.l.Info("Replay done",
		log.Int("events", events),
		log.Duration("duration", lastTs.Sub(r.start)))
	return r.last, nil
}

// advance ticks the coordinator until the next tick would be after t
func (r *ReplayTask) advance(ctx context.Context, t time.Time) error {
	for !r.clock.Add(r.tick).After(t) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.clock = r.clock.Add(r.tick)
		r.last = r.coord.Tick(ctx, r.clock)
		r.onFrame(r.last)
		r.pace()
	}
	return nil
}

func (r *ReplayTask) pace() {
	if r.speed <= 0 || r.clock.Sub(r.start) < r.fastForward {
		return
	}
	r.sleep(r.tick / time.Duration(r.speed))
}
