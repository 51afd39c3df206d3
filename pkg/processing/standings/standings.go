package standings

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/samber/lo"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/model"
)

// Standings keeps the laps of all races of an event in memory and computes
// running standings, results and best times from them.
// It is safe for concurrent use.
type Standings struct {
	mu          sync.RWMutex
	l           *log.Logger
	targetLaps  int
	consecutive int
	races       map[model.RaceID]*model.Race
	laps        map[model.RaceID]map[model.PilotID][]model.Lap
	results     map[model.RaceID]map[model.PilotID]model.Result
	crashed     map[model.RaceID]map[model.PilotID]bool // value: permanent
}

var (
	_ model.ResultsService    = (*Standings)(nil)
	_ model.RaceStateRecorder = (*Standings)(nil)
)

type Option func(*Standings)

// WithTargetLaps sets the number of laps after which a pilot has finished.
// With 0 pilots only finish when the race ends.
func WithTargetLaps(n int) Option {
	return func(s *Standings) {
		s.targetLaps = n
	}
}

// WithConsecutiveLaps sets the number of consecutive laps used for the
// event ranking
func WithConsecutiveLaps(n int) Option {
	return func(s *Standings) {
		s.consecutive = n
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Standings) {
		s.l = l
	}
}

func New(opts ...Option) *Standings {
	ret := &Standings{
		l:           log.Default().Named("standings"),
		consecutive: 3,
		races:       make(map[model.RaceID]*model.Race),
		laps:        make(map[model.RaceID]map[model.PilotID][]model.Lap),
		results:     make(map[model.RaceID]map[model.PilotID]model.Result),
		crashed:     make(map[model.RaceID]map[model.PilotID]bool),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.consecutive < 1 {
		ret.consecutive = 1
	}
	return ret
}

// entry is the computed standing of one pilot in one race
type entry struct {
	pilot    model.PilotID
	laps     []model.Lap // counted laps only
	finished time.Time
}

func (e entry) completed() int {
	return len(e.laps)
}

// counted returns the valid race laps of the pilot, the holeshot (lap 0) is
// not counted. With a target only the first target laps count.
func (s *Standings) counted(raceID model.RaceID, pilot model.PilotID) []model.Lap {
	ret := lo.Filter(s.laps[raceID][pilot], func(l model.Lap, _ int) bool {
		return l.Valid && l.Number > 0
	})
	slices.SortFunc(ret, func(a, b model.Lap) int { return a.End.Compare(b.End) })
	if s.targetLaps > 0 && len(ret) > s.targetLaps {
		ret = ret[:s.targetLaps]
	}
	return ret
}

// ranking computes the standings of all pilots with at least one counted lap
func (s *Standings) ranking(race *model.Race) []entry {
	pilots := lo.Keys(s.laps[race.ID])
	entries := make([]entry, 0, len(pilots))
	for _, p := range pilots {
		laps := s.counted(race.ID, p)
		if len(laps) == 0 {
			continue
		}
		entries = append(entries, entry{pilot: p, laps: laps, finished: laps[len(laps)-1].End})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Or(
			cmp.Compare(b.completed(), a.completed()),
			a.finished.Compare(b.finished),
			cmp.Compare(a.pilot, b.pilot),
		)
	})
	return entries
}

func (s *Standings) RaceStanding(race *model.Race, pilot model.PilotID) (model.Standing, bool) {
	if race == nil {
		return model.Standing{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raceStanding(race, pilot)
}

func (s *Standings) raceStanding(race *model.Race, pilot model.PilotID) (model.Standing, bool) {
	entries := s.ranking(race)
	idx := slices.IndexFunc(entries, func(e entry) bool { return e.pilot == pilot })
	if idx == -1 {
		return model.Standing{}, false
	}
	e := entries[idx]
	ret := model.Standing{
		Pilot:         pilot,
		Position:      idx + 1,
		LapsCompleted: e.completed(),
		Elapsed:       e.finished.Sub(race.Start),
	}
	if idx > 0 {
		ahead := entries[idx-1]
		ret.BehindWho = omit.From(ahead.pilot)
		if ahead.completed() == e.completed() {
			ret.Behind = e.finished.Sub(ahead.finished)
		}
	}
	return ret, true
}

// EventStanding ranks the pilot by the best consecutive laps over all races
// of the given type
//
//nolint:lll // readability
func (s *Standings) EventStanding(raceType model.RaceType, pilot model.PilotID) (model.Standing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type best struct {
		pilot model.PilotID
		time  time.Duration
		at    time.Time
	}
	bests := make([]best, 0)
	for raceID, byPilot := range s.laps {
		race, ok := s.races[raceID]
		if !ok || race.Type != raceType {
			continue
		}
		for p := range byPilot {
			if d, at, ok := s.bestConsecutive(s.counted(raceID, p)); ok {
				idx := slices.IndexFunc(bests, func(b best) bool { return b.pilot == p })
				switch {
				case idx == -1:
					bests = append(bests, best{pilot: p, time: d, at: at})
				case d < bests[idx].time:
					bests[idx] = best{pilot: p, time: d, at: at}
				}
			}
		}
	}
	slices.SortFunc(bests, func(a, b best) int {
		return cmp.Or(
			cmp.Compare(a.time, b.time),
			a.at.Compare(b.at),
			cmp.Compare(a.pilot, b.pilot),
		)
	})
	idx := slices.IndexFunc(bests, func(b best) bool { return b.pilot == pilot })
	if idx == -1 {
		return model.Standing{}, false
	}
	ret := model.Standing{Pilot: pilot, Position: idx + 1, Elapsed: bests[idx].time}
	if idx > 0 {
		ret.BehindWho = omit.From(bests[idx-1].pilot)
		ret.Behind = bests[idx].time - bests[idx-1].time
	}
	return ret, true
}

// bestConsecutive returns the fastest sum of consecutive laps and the time
// it was achieved
func (s *Standings) bestConsecutive(laps []model.Lap) (time.Duration, time.Time, bool) {
	if len(laps) < s.consecutive {
		return 0, time.Time{}, false
	}
	var (
		best time.Duration
		at   time.Time
	)
	for i := 0; i+s.consecutive <= len(laps); i++ {
		window := laps[i : i+s.consecutive]
		sum := lo.SumBy(window, func(l model.Lap) time.Duration { return l.Length() })
		if i == 0 || sum < best {
			best = sum
			at = window[len(window)-1].End
		}
	}
	return best, at, true
}

// Result returns the result of the pilot. It is available once the pilot
// completed the target laps or the race ended.
func (s *Standings) Result(race *model.Race, pilot model.PilotID) (model.Result, bool) {
	if race == nil {
		return model.Result{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.results[race.ID][pilot]; ok {
		return r, true
	}
	if s.targetLaps == 0 {
		return model.Result{}, false
	}
	standing, ok := s.raceStanding(race, pilot)
	if !ok || standing.LapsCompleted < s.targetLaps {
		return model.Result{}, false
	}
	return model.Result{Pilot: pilot, Position: standing.Position}, true
}

func (s *Standings) PersonalBest(pilot model.PilotID) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personalBest(pilot)
}

func (s *Standings) personalBest(pilot model.PilotID) (time.Duration, bool) {
	var (
		best  time.Duration
		found bool
	)
	for raceID := range s.laps {
		for _, l := range s.counted(raceID, pilot) {
			if !found || l.Length() < best {
				best, found = l.Length(), true
			}
		}
	}
	return best, found
}

func (s *Standings) OverallBest() (model.PilotID, time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pilots := lo.Uniq(lo.FlatMap(lo.Values(s.laps),
		func(byPilot map[model.PilotID][]model.Lap, _ int) []model.PilotID {
			return lo.Keys(byPilot)
		}))
	slices.Sort(pilots)
	var (
		bestPilot model.PilotID
		best      time.Duration
		found     bool
	)
	for _, p := range pilots {
		if d, ok := s.personalBest(p); ok && (!found || d < best) {
			bestPilot, best, found = p, d, true
		}
	}
	return bestPilot, best, found
}

func (s *Standings) LapSummary(race *model.Race, pilot model.PilotID) (model.LapSummary, bool) {
	if race == nil {
		return model.LapSummary{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	laps := s.counted(race.ID, pilot)
	if len(laps) == 0 {
		return model.LapSummary{}, false
	}
	best := lo.MinBy(laps, func(a, b model.Lap) bool { return a.Length() < b.Length() })
	return model.LapSummary{
		Completed: len(laps),
		Last:      laps[len(laps)-1].Length(),
		Best:      best.Length(),
	}, true
}
