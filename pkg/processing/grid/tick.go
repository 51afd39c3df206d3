package grid

import (
	"context"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
	"github.com/mpapenbr/racegrid/pkg/processing/position"
	"github.com/mpapenbr/racegrid/pkg/processing/reorder"
	"github.com/mpapenbr/racegrid/pkg/processing/visibility"
)

// Frame is the display state after a tick. Slots are in display order.
type Frame struct {
	Time          time.Time              `json:"time"`
	Race          omit.Val[model.RaceID] `json:"race,omitzero"`
	RaceType      model.RaceType         `json:"raceType"`
	RaceState     model.RaceState        `json:"raceState"`
	Slots         []SlotSnapshot         `json:"slots"`
	Reordered     bool                   `json:"reordered"`
	ExtrasVisible bool                   `json:"extrasVisible"`
	ReplayMode    bool                   `json:"replayMode"`
}

// Visible returns the visible slots of the frame in display order
func (f Frame) Visible() []SlotSnapshot {
	return lo.Filter(f.Slots, func(s SlotSnapshot, _ int) bool { return s.Visible })
}

// Tick applies all queued events, resolves the slots which need it and
// applies a due reordering.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) Frame {
	for i := range c.roster {
		c.EnsureSlot(c.roster[i])
	}
	events := c.drain()
	for _, ev := range events {
		c.metrics.event(ctx, ev)
		c.apply(ctx, ev, now)
	}
	c.resolveDirty(ctx, now)
	reordered := c.maybeReorder(ctx, now)
	return c.frame(now, reordered)
}

// Order returns the channels in display order
func (c *Coordinator) Order() []model.ChannelID {
	ret := make([]model.ChannelID, len(c.order))
	copy(ret, c.order)
	return ret
}

//nolint:gocyclo,cyclop,funlen // by design
func (c *Coordinator) apply(ctx context.Context, ev Event, now time.Time) {
	switch e := ev.(type) {
	case LapDetected:
		c.onLap(e.Lap)
	case LapDisqualified:
		c.resolver.Invalidate(ctx, e.Lap.Race, e.Lap.Pilot)
		if s, ok := c.slotForPilot(e.Lap.Pilot); ok {
			s.markAll()
		}
	case SplitDetected:
		c.onSplit(e.Detection)
	case PilotAdded:
		if c.race == nil {
			c.l.Warn("pilot added without race", log.String("pilot", string(e.Binding.Pilot)))
			return
		}
		c.race.Bind(e.Binding)
		c.syncBindings(now)
	case PilotRemoved:
		if c.race == nil {
			return
		}
		c.race.Unbind(e.Binding)
		c.syncBindings(now)
	case RaceStarted:
		c.adoptRace(e.Race, model.RaceStateRunning, now)
		c.markAllSlots()
	case RaceEnded:
		c.adoptRace(e.Race, model.RaceStateEnded, now)
		c.markAllSlots()
	case RaceChanged:
		c.adoptRace(e.Race, -1, now)
		c.resetClassifications(now)
		c.requestReorder(now, true)
	case RaceCleared:
		c.race = nil
		c.syncBindings(now)
		c.resetClassifications(now)
		c.requestReorder(now, true)
	case RaceReset:
		c.adoptRace(e.Race, model.RaceStateReset, now)
		if c.race != nil {
			c.resolver.InvalidateRace(ctx, c.race.ID)
		}
		for _, s := range c.allSlots() {
			s.latest = omit.Val[model.Detection]{}
		}
		c.resetClassifications(now)
		c.requestReorder(now, true)
	case RaceResumed:
		c.adoptRace(e.Race, model.RaceStateResumed, now)
		c.resetClassifications(now)
	case LapsRecalculated:
		if pilot, ok := e.Pilot.Get(); ok {
			c.resolver.Invalidate(ctx, e.Race, pilot)
			if s, ok := c.slotForPilot(pilot); ok {
				s.markAll()
			}
			return
		}
		c.resolver.InvalidateRace(ctx, e.Race)
		c.markAllSlots()
	case NewPersonalBest:
		// the overall best highlight may move to or away from any slot
		for _, s := range c.allSlots() {
			s.markDisplay()
		}
	case CrashSignal:
		s, ok := c.commandSlot(e.Channel, ev)
		if !ok || s.pilot.IsUnset() {
			return
		}
		c.transition(s, s.classifier.Detect(e.Crashed), now)
	case ManualCrashOut:
		if s, ok := c.commandSlot(e.Channel, ev); ok {
			c.onManualCrashOut(s, e.Permanent, now)
		}
	case RestoreSlot:
		if s, ok := c.commandSlot(e.Channel, ev); ok {
			c.onRestore(s, now)
		}
	case HideSlot:
		s, ok := c.commandSlot(e.Channel, ev)
		if !ok || s.pilot.IsUnset() {
			return
		}
		c.transition(s, s.classifier.Hide(), now)
	case FocusFullScreen:
		target, ok := c.commandSlot(e.Channel, ev)
		if !ok {
			return
		}
		if target.pilot.IsUnset() {
			c.l.Debug("focus on unbound slot ignored", log.Int("channel", int(e.Channel)))
			return
		}
		for _, s := range c.allSlots() {
			switch {
			case s == target:
				c.transition(s, s.classifier.Focus(), now)
			case s.pilot.IsValue():
				c.transition(s, s.classifier.Isolate(), now)
			}
		}
	case ClearFocus:
		for _, s := range c.allSlots() {
			c.transition(s, s.classifier.Unfocus(), now)
		}
	case ForceReorder:
		c.requestReorder(now, true)
	case SetExtrasVisible:
		c.extras = e.Visible
	case SettingsChanged:
		c.onSettings(ctx, e, now)
	default:
		c.l.Warn("unhandled event", log.String("kind", ev.Kind()))
	}
}

// commandSlot returns the slot addressed by an operator or crash event.
// Unknown channels are ignored so no phantom slot enters the grid.
func (c *Coordinator) commandSlot(id model.ChannelID, ev Event) (*Slot, bool) {
	s, ok := c.existingSlot(id)
	if !ok {
		c.l.Warn("event for unknown channel ignored",
			log.String("kind", ev.Kind()), log.Int("channel", int(id)))
	}
	return s, ok
}

func (c *Coordinator) onLap(lap model.Lap) {
	s, ok := c.slotForPilot(lap.Pilot)
	if !ok {
		c.l.Debug("lap of unbound pilot", log.String("pilot", string(lap.Pilot)))
		return
	}
	det := lap.Detection
	if det.Time.IsZero() {
		det = model.Detection{
			Pilot:    lap.Pilot,
			Channel:  s.Channel.ID,
			Time:     lap.End,
			IsLapEnd: true,
			Valid:    lap.Valid,
		}
	}
	s.latest = omit.From(det)
	s.markPosition(false)
	s.dirtyLaps = true
}

func (c *Coordinator) onSplit(det model.Detection) {
	s, ok := c.slotForPilot(det.Pilot)
	if !ok {
		if det.Channel == 0 {
			return
		}
		if s, ok = c.existingSlot(det.Channel); !ok || s.pilot.IsUnset() {
			return
		}
	}
	s.latest = omit.From(det)
	s.markPosition(det.IsHoleshot)
}

func (c *Coordinator) onManualCrashOut(s *Slot, permanent bool, now time.Time) {
	pilot, ok := s.pilot.Get()
	if !ok {
		return
	}
	t, accepted := s.classifier.CrashOut()
	if !accepted {
		c.l.Info("crash-out refused, pilot has finished",
			log.String("pilot", string(pilot)))
		return
	}
	c.transition(s, t, now)
	if c.recorder == nil || c.race == nil {
		return
	}
	if err := c.recorder.RecordCrash(c.race, pilot, permanent); err != nil {
		c.l.Error("could not record crash",
			log.String("pilot", string(pilot)), log.ErrorField(err))
	}
	s.markAll()
}

func (c *Coordinator) onRestore(s *Slot, now time.Time) {
	pilot, ok := s.pilot.Get()
	if !ok {
		return
	}
	t := s.classifier.Restore()
	c.transition(s, t, now)
	if t.From != crashout.Manual || c.recorder == nil || c.race == nil {
		return
	}
	if err := c.recorder.ClearCrash(c.race, pilot); err != nil {
		c.l.Error("could not clear crash",
			log.String("pilot", string(pilot)), log.ErrorField(err))
	}
	s.markAll()
}

//nolint:whitespace // can't make the linters happy
func (c *Coordinator) onSettings(
	ctx context.Context,
	e SettingsChanged,
	now time.Time,
) {
	if err := e.Display.Validate(); err != nil {
		c.l.Warn("invalid display settings ignored", log.ErrorField(err))
		return
	}
	c.display = e.Display
	c.extras = e.Display.ExtrasVisible
	c.scheduler.SetWindow(e.Display.DebounceWindow)
	c.resolver.Apply(ctx, e.Display)
	c.sentinel.Store(int64(c.resolver.Sentinel()))
	c.markAllSlots()
	c.requestReorder(now, true)
	c.l.Info("display settings applied",
		log.Duration("debounce", e.Display.DebounceWindow),
		log.Bool("holeshotReorder", e.Display.HoleshotReorder),
		log.Int("maxPilots", e.Display.MaxPilots))
}

// adoptRace takes over the race of a lifecycle event. A nil race keeps the
// current one. A state < 0 keeps the state of the event race.
//
//nolint:whitespace // can't make the linters happy
func (c *Coordinator) adoptRace(
	r *model.Race,
	state model.RaceState,
	now time.Time,
) {
	if r != nil {
		c.race = r.Clone()
	}
	if c.race == nil {
		c.l.Warn("lifecycle event without race")
		return
	}
	if state >= 0 {
		c.race.State = state
	}
	c.syncBindings(now)
}

// syncBindings binds every slot to the pilot of the current race.
// Slots for bound channels outside the roster are created on demand.
func (c *Coordinator) syncBindings(now time.Time) {
	if c.race != nil {
		for _, b := range c.race.Bindings {
			c.slotFor(b.Channel)
		}
	}
	for _, s := range c.allSlots() {
		want := omit.Val[model.PilotID]{}
		if c.race != nil {
			want = c.race.PilotOn(s.Channel.ID)
		}
		if samePilot(want, s.pilot) {
			continue
		}
		c.l.Debug("slot rebound",
			log.Int("channel", int(s.Channel.ID)),
			log.String("pilot", string(want.GetOrZero())))
		c.transition(s, s.bind(want, c.resolver.Sentinel()), now)
	}
}

func samePilot(a, b omit.Val[model.PilotID]) bool {
	av, aok := a.Get()
	bv, bok := b.Get()
	return aok == bok && av == bv
}

func (c *Coordinator) markAllSlots() {
	for _, s := range c.allSlots() {
		s.markAll()
	}
}

func (c *Coordinator) resetClassifications(now time.Time) {
	for _, s := range c.allSlots() {
		c.transition(s, s.classifier.Reset(), now)
		s.markAll()
	}
}

func (c *Coordinator) transition(s *Slot, t crashout.Transition, now time.Time) {
	if !t.Changed {
		return
	}
	c.metrics.add(c.ctx, c.metrics.crashOuts, 1)
	c.l.Debug("crash-out changed",
		log.Int("channel", int(s.Channel.ID)),
		log.Stringer("from", t.From),
		log.Stringer("to", t.To))
	c.notifier.Notify(Notification{
		Kind:    CrashOutChanged,
		Time:    now,
		Channel: s.Channel.ID,
		From:    t.From,
		To:      t.To,
	})
}

func (c *Coordinator) requestReorder(now time.Time, force bool) {
	if !c.scheduler.Request(now, force) && !force {
		return
	}
	c.notifier.Notify(Notification{Kind: ReorderRequested, Time: now, Forced: force})
}

func (c *Coordinator) ranked() bool {
	return c.race != nil && c.race.Type.Ranked()
}

func (c *Coordinator) resolveDirty(ctx context.Context, now time.Time) {
	dirty := lo.Filter(c.allSlots(), func(s *Slot, _ int) bool { return s.dirty() })
	if len(dirty) == 0 {
		return
	}
	ctx, span := c.tracer.Start(ctx, "grid.resolve",
		trace.WithAttributes(attribute.Int("slots", len(dirty))))
	defer span.End()
	start := time.Now()

	for _, s := range dirty {
		keyChanged := false
		if s.dirtyPosition {
			keyChanged = c.resolveSlot(ctx, s)
		}
		if s.dirtyLaps {
			c.refreshLaps(s)
		}
		s.clearFlags()
		if keyChanged && c.ranked() {
			c.requestReorder(now, false)
		}
	}
	c.metrics.add(ctx, c.metrics.resolved, len(dirty))
	if c.metrics.resolveTime != nil {
		c.metrics.resolveTime.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	}
}

// resolveSlot refreshes position and best times. It reports whether the
// ordering key of the slot changed.
func (c *Coordinator) resolveSlot(ctx context.Context, s *Slot) bool {
	if s.holeshotOnly() && !c.display.HoleshotReorder && s.pilot.IsValue() {
		// the pre-holeshot position is kept until a regular trigger
		c.l.Debug("holeshot position change suppressed",
			log.Int("channel", int(s.Channel.ID)))
		// best times still follow, they are no ordering trigger
		c.refreshBest(s)
		return false
	}
	req := position.Request{Race: c.race, Pilot: s.pilot, Latest: s.latest}
	if c.race != nil {
		req.RaceType = c.race.Type
	}
	res := c.resolver.Resolve(ctx, req)
	changed := res.Position != s.position
	s.position = res.Position
	s.behind = res.Behind
	s.behindWho = res.BehindWho
	s.showPosition = res.ShowPosition
	s.finished = res.Finished
	if res.Finished.IsValue() {
		s.classifier.Freeze()
	}
	return c.refreshBest(s) || changed
}

func (c *Coordinator) refreshBest(s *Slot) bool {
	before := s.pb
	s.pb = omit.Val[time.Duration]{}
	s.overallBest = false
	pilot, ok := s.pilot.Get()
	if !ok {
		return before.IsValue()
	}
	if d, ok := c.results.PersonalBest(pilot); ok {
		s.pb = omit.From(d)
	}
	if best, _, ok := c.results.OverallBest(); ok && best == pilot {
		s.overallBest = true
	}
	b, bok := before.Get()
	a, aok := s.pb.Get()
	return aok != bok || a != b
}

func (c *Coordinator) refreshLaps(s *Slot) {
	s.laps = model.LapSummary{}
	pilot, ok := s.pilot.Get()
	if !ok || c.race == nil {
		return
	}
	if summary, ok := c.results.LapSummary(c.race, pilot); ok {
		s.laps = summary
	}
}

// maybeReorder applies a due reordering. A changed number of slots gets a
// fresh layout right away, that is not counted as reordering.
func (c *Coordinator) maybeReorder(ctx context.Context, now time.Time) bool {
	slots := c.allSlots()
	if len(slots) != c.layout {
		c.applyOrder(slots)
		c.layout = len(slots)
		c.l.Debug("layout changed", log.Int("slots", len(slots)))
	}
	if !c.scheduler.ShouldResolveNow(now) {
		return false
	}
	c.scheduler.Consume()
	c.applyOrder(slots)
	c.metrics.add(ctx, c.metrics.reorders, 1)
	c.notifier.Notify(Notification{Kind: Reordered, Time: now, Order: c.Order()})
	c.l.Debug("reordered", log.Any("order", c.order))
	return true
}

func (c *Coordinator) applyOrder(slots []*Slot) {
	ordered := reorder.Order(slots, (*Slot).orderKey, c.ranked())
	c.order = lo.Map(ordered, func(s *Slot, _ int) model.ChannelID { return s.Channel.ID })
}

func (c *Coordinator) frame(now time.Time, reordered bool) Frame {
	ret := Frame{
		Time:          now,
		Reordered:     reordered,
		ExtrasVisible: c.extras,
		ReplayMode:    c.replay,
		RaceState:     model.RaceStateCleared,
	}
	raceFinished := false
	if c.race != nil {
		ret.Race = omit.From(c.race.ID)
		ret.RaceType = c.race.Type
		ret.RaceState = c.race.State
		raceFinished = c.race.Ended()
	}
	slots := make([]*Slot, 0, len(c.order))
	for _, id := range c.order {
		slots = append(slots, c.slotFor(id))
	}
	views := lo.Map(slots, func(s *Slot, _ int) visibility.Slot { return s.visibilityView() })
	visible := visibility.Apply(views, raceFinished, c.replay)
	ret.Slots = lo.Map(slots, func(s *Slot, i int) SlotSnapshot { return s.snapshot(visible[i]) })
	return ret
}
