package position

import (
	"context"
	"time"

	"github.com/aarondl/opt/omit"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/utils/cache"
	"github.com/mpapenbr/racegrid/pkg/utils/cache/loadercache"
)

type Request struct {
	Race     *model.Race
	Pilot    omit.Val[model.PilotID]
	RaceType model.RaceType
	// the most recent detection of the pilot, if any
	Latest omit.Val[model.Detection]
}

type Resolution struct {
	Position     int
	Behind       time.Duration
	BehindWho    omit.Val[model.PilotID]
	ShowPosition bool
	Finished     omit.Val[model.Result]
}

type finishKey struct {
	race  model.RaceID
	pilot model.PilotID
}

// Resolver maps a pilot in a race to the position shown on its slot.
// The ranking itself is computed by the results service.
type Resolver struct {
	results            model.ResultsService
	sentinel           int
	alwaysShowPosition bool
	finished           cache.Cache[finishKey, Resolution]
	l                  *log.Logger
}

type Option func(*Resolver)

func WithDisplay(d config.Display) Option {
	return func(r *Resolver) {
		r.sentinel = d.Sentinel()
		r.alwaysShowPosition = d.AlwaysShowPosition
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.l = l
	}
}

func NewResolver(results model.ResultsService, opts ...Option) *Resolver {
	ret := &Resolver{
		results:  results,
		sentinel: config.DefaultMaxPilots,
		l:        log.Default().Named("position"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	// finished positions are terminal, they only leave the cache by invalidation
	ret.finished = loadercache.New(
		loadercache.WithExpiration[finishKey, Resolution](0),
		loadercache.WithLogger[finishKey, Resolution](ret.l.Named("finished")),
	)
	return ret
}

func (r *Resolver) Sentinel() int {
	return r.sentinel
}

// Apply takes over changed display settings.
// A changed sentinel drops all cached finished positions.
func (r *Resolver) Apply(ctx context.Context, d config.Display) {
	r.alwaysShowPosition = d.AlwaysShowPosition
	if d.Sentinel() != r.sentinel {
		r.sentinel = d.Sentinel()
		r.finished.InvalidateAll(ctx)
	}
}

// Unranked is the resolution of a slot which must not show a position
func (r *Resolver) Unranked() Resolution {
	return Resolution{Position: r.sentinel}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	pilot, ok := req.Pilot.Get()
	if req.Race == nil || !ok || !req.RaceType.Ranked() {
		return r.Unranked()
	}
	key := finishKey{race: req.Race.ID, pilot: pilot}
	if cached, err := r.finished.Get(ctx, key); err == nil {
		return *cached
	}

	if req.RaceType == model.RaceTypeTimeTrial {
		return r.resolveTimeTrial(req, pilot)
	}

	if result, ok := r.results.Result(req.Race, pilot); ok {
		res := r.resolveFinished(req.Race, pilot, result)
		r.finished.Set(ctx, key, &res)
		r.l.Debug("position locked",
			log.String("race", string(req.Race.ID)),
			log.String("pilot", string(pilot)),
			log.Int("position", res.Position),
			log.Bool("dnf", result.DNF))
		return res
	}
	standing, ok := r.results.RaceStanding(req.Race, pilot)
	if !ok {
		return r.Unranked()
	}
	return r.fromStanding(standing)
}

//nolint:whitespace // can't make the linters happy
func (r *Resolver) resolveTimeTrial(
	req Request,
	pilot model.PilotID,
) Resolution {
	standing, ok := r.results.EventStanding(req.RaceType, pilot)
	if !ok {
		return r.Unranked()
	}
	res := r.fromStanding(standing)
	// don't flash interim positions while the pilot is mid-lap
	if latest, ok := req.Latest.Get(); ok && !latest.IsLapEnd && !r.alwaysShowPosition {
		res.ShowPosition = false
	}
	if result, ok := r.results.Result(req.Race, pilot); ok {
		res.Finished = omit.From(result)
	}
	return res
}

//nolint:whitespace // can't make the linters happy
func (r *Resolver) resolveFinished(
	race *model.Race,
	pilot model.PilotID,
	result model.Result,
) Resolution {
	res := Resolution{Position: result.Position, ShowPosition: true}
	if standing, ok := r.results.RaceStanding(race, pilot); ok {
		res.Behind = standing.Behind
		res.BehindWho = standing.BehindWho
	}
	if !r.inRange(res.Position) {
		res = r.Unranked()
	}
	res.Finished = omit.From(result)
	return res
}

func (r *Resolver) fromStanding(standing model.Standing) Resolution {
	if !r.inRange(standing.Position) {
		return r.Unranked()
	}
	return Resolution{
		Position:     standing.Position,
		Behind:       standing.Behind,
		BehindWho:    standing.BehindWho,
		ShowPosition: true,
	}
}

func (r *Resolver) inRange(pos int) bool {
	return pos >= 1 && pos <= r.sentinel
}

// Invalidate drops the locked position of the pilot (laps recalculated)
func (r *Resolver) Invalidate(ctx context.Context, race model.RaceID, pilot model.PilotID) {
	r.finished.Invalidate(ctx, finishKey{race: race, pilot: pilot})
}

// InvalidateRace drops all locked positions of the race
func (r *Resolver) InvalidateRace(ctx context.Context, race model.RaceID) {
	r.finished.InvalidateFunc(ctx, func(k finishKey) bool { return k.race == race })
}
