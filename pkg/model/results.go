package model

import (
	"time"

	"github.com/aarondl/opt/omit"
)

// Standing is the ranking of one pilot as computed by the results service
type Standing struct {
	Pilot         PilotID           `json:"pilot"`
	Position      int               `json:"position"`
	LapsCompleted int               `json:"lapsCompleted"`
	Elapsed       time.Duration     `json:"elapsed"`
	Behind        time.Duration     `json:"behind"`
	BehindWho     omit.Val[PilotID] `json:"behindWho,omitzero"`
}

// Result is the final outcome of a pilot in a race
type Result struct {
	Pilot    PilotID `json:"pilot"`
	Position int     `json:"position"`
	DNF      bool    `json:"dnf"`
}

type LapSummary struct {
	Completed int           `json:"completed"`
	Last      time.Duration `json:"last"`
	Best      time.Duration `json:"best"`
}

// ResultsService is the authoritative (read-only) result computation.
// Implementations must be safe to call from the display tick.
type ResultsService interface {
	// RaceStanding returns the running standing of the pilot within the race
	RaceStanding(race *Race, pilot PilotID) (Standing, bool)
	// EventStanding returns the best-consecutive-laps ranking across the whole event
	EventStanding(raceType RaceType, pilot PilotID) (Standing, bool)
	// Result returns the finished result, if the pilot is locked in
	Result(race *Race, pilot PilotID) (Result, bool)
	// PersonalBest returns the pilots fastest qualifying time
	PersonalBest(pilot PilotID) (time.Duration, bool)
	// OverallBest returns the fastest time of all pilots
	OverallBest() (PilotID, time.Duration, bool)
	LapSummary(race *Race, pilot PilotID) (LapSummary, bool)
}

// RaceStateRecorder records user decisions about a pilots race state
type RaceStateRecorder interface {
	RecordCrash(race *Race, pilot PilotID, permanent bool) error
	ClearCrash(race *Race, pilot PilotID) error
}
