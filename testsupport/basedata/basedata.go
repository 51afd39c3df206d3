package basedata

import (
	"sync"
	"time"

	"github.com/mpapenbr/racegrid/pkg/model"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2024-04-28T11:10:12Z")
	return t
}

const (
	PilotA model.PilotID = "alice"
	PilotB model.PilotID = "bob"
	PilotC model.PilotID = "carol"
	PilotD model.PilotID = "dave"
)

// SampleChannels returns three raceband channels.
// The frequency order (R1 < R2 < R3) is used by ordering tests.
func SampleChannels() []model.Channel {
	return []model.Channel{
		{ID: 1, Band: "R", Number: 1, Frequency: 5658, Color: "#ff0000"},
		{ID: 2, Band: "R", Number: 2, Frequency: 5695, Color: "#00ff00"},
		{ID: 3, Band: "R", Number: 3, Frequency: 5732, Color: "#0000ff"},
	}
}

// SampleRace binds C->R1, B->R2, A->R3 so that frequency order
// differs from the expected standings order.
func SampleRace(raceType model.RaceType) *model.Race {
	return &model.Race{
		ID:     "race-1",
		Type:   raceType,
		State:  model.RaceStateRunning,
		Round:  1,
		Number: 1,
		Start:  TestTime(),
		Bindings: []model.PilotChannel{
			{Pilot: PilotC, Channel: 1},
			{Pilot: PilotB, Channel: 2},
			{Pilot: PilotA, Channel: 3},
		},
	}
}

func SampleLap(pilot model.PilotID, number int, start time.Time, length time.Duration) model.Lap {
	end := start.Add(length)
	return model.Lap{
		ID:     model.LapID(string(pilot) + "-" + end.Format(time.RFC3339Nano)),
		Pilot:  pilot,
		Race:   "race-1",
		Number: number,
		Start:  start,
		End:    end,
		Valid:  true,
		Detection: model.Detection{
			Pilot:    pilot,
			Time:     end,
			IsLapEnd: true,
			Valid:    true,
		},
	}
}

// FakeResults is a ResultsService with explicitly set values
type FakeResults struct {
	mu           sync.Mutex
	Standings    map[model.PilotID]model.Standing
	EventRanks   map[model.PilotID]model.Standing
	Results      map[model.PilotID]model.Result
	PBs          map[model.PilotID]time.Duration
	Laps         map[model.PilotID]model.LapSummary
	ResultCalls  int
	StandingCall int
}

var _ model.ResultsService = (*FakeResults)(nil)

func NewFakeResults() *FakeResults {
	return &FakeResults{
		Standings:  make(map[model.PilotID]model.Standing),
		EventRanks: make(map[model.PilotID]model.Standing),
		Results:    make(map[model.PilotID]model.Result),
		PBs:        make(map[model.PilotID]time.Duration),
		Laps:       make(map[model.PilotID]model.LapSummary),
	}
}

func (f *FakeResults) SetPosition(pilot model.PilotID, pos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Standings[pilot] = model.Standing{Pilot: pilot, Position: pos}
}

func (f *FakeResults) SetEventPosition(pilot model.PilotID, pos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EventRanks[pilot] = model.Standing{Pilot: pilot, Position: pos}
}

func (f *FakeResults) SetResult(pilot model.PilotID, pos int, dnf bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[pilot] = model.Result{Pilot: pilot, Position: pos, DNF: dnf}
}

func (f *FakeResults) ClearResult(pilot model.PilotID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Results, pilot)
}

func (f *FakeResults) SetPB(pilot model.PilotID, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PBs[pilot] = d
}

func (f *FakeResults) RaceStanding(race *model.Race, pilot model.PilotID) (model.Standing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StandingCall++
	s, ok := f.Standings[pilot]
	return s, ok
}

//nolint:lll // readability
func (f *FakeResults) EventStanding(raceType model.RaceType, pilot model.PilotID) (model.Standing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.EventRanks[pilot]
	return s, ok
}

func (f *FakeResults) Result(race *model.Race, pilot model.PilotID) (model.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResultCalls++
	r, ok := f.Results[pilot]
	return r, ok
}

func (f *FakeResults) PersonalBest(pilot model.PilotID) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.PBs[pilot]
	return d, ok
}

func (f *FakeResults) OverallBest() (model.PilotID, time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best  model.PilotID
		bestD time.Duration
		found bool
	)
	for p, d := range f.PBs {
		if !found || d < bestD || (d == bestD && p < best) {
			best, bestD, found = p, d, true
		}
	}
	return best, bestD, found
}

func (f *FakeResults) LapSummary(race *model.Race, pilot model.PilotID) (model.LapSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Laps[pilot]
	return s, ok
}

// RecorderCall is one call to FakeRecorder
type RecorderCall struct {
	Pilot     model.PilotID
	Permanent bool
	Cleared   bool
}

type FakeRecorder struct {
	mu    sync.Mutex
	Calls []RecorderCall
	Err   error
}

var _ model.RaceStateRecorder = (*FakeRecorder)(nil)

func (f *FakeRecorder) RecordCrash(race *model.Race, pilot model.PilotID, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, RecorderCall{Pilot: pilot, Permanent: permanent})
	return f.Err
}

func (f *FakeRecorder) ClearCrash(race *model.Race, pilot model.PilotID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, RecorderCall{Pilot: pilot, Cleared: true})
	return f.Err
}
