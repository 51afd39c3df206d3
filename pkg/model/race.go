package model

import (
	"slices"
	"time"

	"github.com/aarondl/opt/omit"
)

type RaceID string

type RaceState int

const (
	RaceStateCleared RaceState = iota
	RaceStatePreStart
	RaceStateRunning
	RaceStateEnded
	RaceStateReset
	RaceStateResumed
)

var raceStateNames = map[RaceState]string{
	RaceStateCleared:  "cleared",
	RaceStatePreStart: "pre-start",
	RaceStateRunning:  "running",
	RaceStateEnded:    "ended",
	RaceStateReset:    "reset",
	RaceStateResumed:  "resumed",
}

func (s RaceState) String() string {
	if n, ok := raceStateNames[s]; ok {
		return n
	}
	return "unknown"
}

type RaceType int

const (
	RaceTypeOpenPractice RaceType = iota
	RaceTypeRace
	RaceTypeTimeTrial
	RaceTypeFreestyle
)

var raceTypeNames = map[RaceType]string{
	RaceTypeOpenPractice: "open-practice",
	RaceTypeRace:         "race",
	RaceTypeTimeTrial:    "time-trial",
	RaceTypeFreestyle:    "freestyle",
}

func (t RaceType) String() string {
	if n, ok := raceTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseRaceType returns the race type for the given name
func ParseRaceType(name string) (RaceType, bool) {
	for k, v := range raceTypeNames {
		if v == name {
			return k, true
		}
	}
	return RaceTypeOpenPractice, false
}

// Ranked reports whether the race type produces any ranked result
func (t RaceType) Ranked() bool {
	return t == RaceTypeRace || t == RaceTypeTimeTrial
}

type Race struct {
	ID       RaceID         `json:"id"`
	Type     RaceType       `json:"type"`
	State    RaceState      `json:"state"`
	Round    int            `json:"round"`
	Number   int            `json:"number"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Bindings []PilotChannel `json:"bindings"`
}

func (r *Race) Running() bool {
	return r.State == RaceStateRunning || r.State == RaceStateResumed
}

func (r *Race) Ended() bool {
	return r.State == RaceStateEnded
}

// PilotOn returns the pilot bound to the channel in this race
func (r *Race) PilotOn(ch ChannelID) omit.Val[PilotID] {
	idx := slices.IndexFunc(r.Bindings, func(pc PilotChannel) bool {
		return pc.Channel == ch
	})
	if idx == -1 {
		return omit.Val[PilotID]{}
	}
	return omit.From(r.Bindings[idx].Pilot)
}

// ChannelOf returns the channel the pilot flies on in this race
func (r *Race) ChannelOf(pilot PilotID) (ChannelID, bool) {
	idx := slices.IndexFunc(r.Bindings, func(pc PilotChannel) bool {
		return pc.Pilot == pilot
	})
	if idx == -1 {
		return 0, false
	}
	return r.Bindings[idx].Channel, true
}

// Bind replaces any existing binding of the pilot or the channel
func (r *Race) Bind(pc PilotChannel) {
	r.Bindings = slices.DeleteFunc(r.Bindings, func(item PilotChannel) bool {
		return item.Pilot == pc.Pilot || item.Channel == pc.Channel
	})
	r.Bindings = append(r.Bindings, pc)
}

func (r *Race) Unbind(pc PilotChannel) {
	r.Bindings = slices.DeleteFunc(r.Bindings, func(item PilotChannel) bool {
		return item.Pilot == pc.Pilot && item.Channel == pc.Channel
	})
}

// Clone returns a copy which does not share the bindings slice
func (r *Race) Clone() *Race {
	ret := *r
	ret.Bindings = slices.Clone(r.Bindings)
	return &ret
}
