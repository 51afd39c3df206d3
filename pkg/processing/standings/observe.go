package standings

import (
	"slices"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
)

// Observe updates the standings with a timing event. It has to see an event
// before the coordinator does, the coordinator reads the results afterwards.
//
//nolint:cyclop // by design
func (s *Standings) Observe(ev grid.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case grid.RaceStarted:
		s.setRace(e.Race)
	case grid.RaceChanged:
		s.setRace(e.Race)
	case grid.RaceResumed:
		s.setRace(e.Race)
	case grid.RaceEnded:
		if race := s.setRace(e.Race); race != nil {
			s.finish(race)
		}
	case grid.RaceReset:
		if race := s.setRace(e.Race); race != nil {
			s.l.Info("race reset, dropping laps", log.String("race", string(race.ID)))
			delete(s.laps, race.ID)
			delete(s.results, race.ID)
			delete(s.crashed, race.ID)
		}
	case grid.LapDetected:
		s.addLap(e.Lap)
	case grid.LapDisqualified:
		s.disqualify(e.Lap)
	}
}

// setRace stores the race. Events without race refer to the latest one.
func (s *Standings) setRace(r *model.Race) *model.Race {
	if r == nil {
		return s.latestRace()
	}
	s.races[r.ID] = r.Clone()
	return s.races[r.ID]
}

func (s *Standings) latestRace() *model.Race {
	var ret *model.Race
	for _, r := range s.races {
		if ret == nil || r.Start.After(ret.Start) {
			ret = r
		}
	}
	return ret
}

func (s *Standings) addLap(lap model.Lap) {
	byPilot, ok := s.laps[lap.Race]
	if !ok {
		byPilot = make(map[model.PilotID][]model.Lap)
		s.laps[lap.Race] = byPilot
	}
	if slices.ContainsFunc(byPilot[lap.Pilot], func(l model.Lap) bool { return l.ID == lap.ID }) {
		s.l.Debug("duplicate lap ignored", log.String("lap", string(lap.ID)))
		return
	}
	byPilot[lap.Pilot] = append(byPilot[lap.Pilot], lap)
}

func (s *Standings) disqualify(lap model.Lap) {
	laps := s.laps[lap.Race][lap.Pilot]
	idx := slices.IndexFunc(laps, func(l model.Lap) bool { return l.ID == lap.ID })
	if idx == -1 {
		s.l.Warn("disqualified lap not found", log.String("lap", string(lap.ID)))
		return
	}
	laps[idx].Valid = false
	// a finished race has to be recomputed
	if race, ok := s.races[lap.Race]; ok && s.results[lap.Race] != nil {
		s.finish(race)
	}
}

// finish locks the results of all pilots of the race
func (s *Standings) finish(race *model.Race) {
	entries := s.ranking(race)
	results := make(map[model.PilotID]model.Result)
	pos := 0
	for _, e := range entries {
		pos++
		results[e.pilot] = model.Result{
			Pilot:    e.pilot,
			Position: pos,
			DNF:      s.crashed[race.ID][e.pilot] || (s.targetLaps > 0 && e.completed() < s.targetLaps),
		}
	}
	for _, b := range race.Bindings {
		if _, ok := results[b.Pilot]; ok {
			continue
		}
		pos++
		results[b.Pilot] = model.Result{Pilot: b.Pilot, Position: pos, DNF: true}
	}
	s.results[race.ID] = results
	s.l.Debug("race finished",
		log.String("race", string(race.ID)), log.Int("results", len(results)))
}

// RecordCrash marks the pilot as crashed. Permanent crashes are DNF in the
// final result.
func (s *Standings) RecordCrash(race *model.Race, pilot model.PilotID, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPilot, ok := s.crashed[race.ID]
	if !ok {
		byPilot = make(map[model.PilotID]bool)
		s.crashed[race.ID] = byPilot
	}
	byPilot[pilot] = permanent
	s.l.Info("crash recorded",
		log.String("race", string(race.ID)),
		log.String("pilot", string(pilot)),
		log.Bool("permanent", permanent))
	return nil
}

func (s *Standings) ClearCrash(race *model.Race, pilot model.PilotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.crashed[race.ID], pilot)
	return nil
}
