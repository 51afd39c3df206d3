package grid

import (
	"sync/atomic"
	"time"

	"github.com/aarondl/opt/omit"

	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
	"github.com/mpapenbr/racegrid/pkg/processing/reorder"
	"github.com/mpapenbr/racegrid/pkg/processing/visibility"
)

// Slot is the display state of one channel. Except for the live feed flag
// all fields are owned by the tick of the coordinator.
type Slot struct {
	Channel model.Channel

	pilot        omit.Val[model.PilotID]
	position     int
	behind       time.Duration
	behindWho    omit.Val[model.PilotID]
	showPosition bool
	classifier   *crashout.Classifier
	finished     omit.Val[model.Result]
	latest       omit.Val[model.Detection]
	pb           omit.Val[time.Duration]
	overallBest  bool
	laps         model.LapSummary

	hasLiveFeed atomic.Bool

	dirtyPosition bool
	dirtyLaps     bool
	// what caused dirtyPosition since the last resolve
	holeshotTrigger bool
	otherTrigger    bool
}

func newSlot(ch model.Channel, sentinel int) *Slot {
	return &Slot{
		Channel:    ch,
		position:   sentinel,
		classifier: crashout.New(),
	}
}

func (s *Slot) Pilot() omit.Val[model.PilotID] {
	return s.pilot
}

func (s *Slot) Position() int {
	return s.position
}

func (s *Slot) Classification() crashout.Classification {
	return s.classifier.State()
}

func (s *Slot) HasLiveFeed() bool {
	return s.hasLiveFeed.Load()
}

// markPosition flags a change which may move the pilot
func (s *Slot) markPosition(holeshot bool) {
	if holeshot {
		s.holeshotTrigger = true
	} else {
		s.otherTrigger = true
	}
	s.dirtyPosition = true
}

// markDisplay flags a change which does not move the pilot itself,
// e.g. a new overall best changes the highlight of other pilots
func (s *Slot) markDisplay() {
	s.dirtyPosition = true
}

// holeshotOnly reports whether the pending position change is caused by
// holeshot detections alone
func (s *Slot) holeshotOnly() bool {
	return s.holeshotTrigger && !s.otherTrigger
}

func (s *Slot) markAll() {
	s.markPosition(false)
	s.dirtyLaps = true
}

func (s *Slot) dirty() bool {
	return s.dirtyPosition || s.dirtyLaps
}

func (s *Slot) clearFlags() {
	s.dirtyPosition = false
	s.dirtyLaps = false
	s.holeshotTrigger = false
	s.otherTrigger = false
}

// bind replaces the pilot and resets all state derived from it
func (s *Slot) bind(pilot omit.Val[model.PilotID], sentinel int) crashout.Transition {
	s.pilot = pilot
	s.position = sentinel
	s.behind = 0
	s.behindWho = omit.Val[model.PilotID]{}
	s.showPosition = false
	s.finished = omit.Val[model.Result]{}
	s.latest = omit.Val[model.Detection]{}
	s.pb = omit.Val[time.Duration]{}
	s.overallBest = false
	s.laps = model.LapSummary{}
	s.markAll()
	return s.classifier.Reset()
}

func (s *Slot) orderKey() reorder.Key {
	return reorder.Key{
		Position:  s.position,
		PB:        s.pb,
		Frequency: s.Channel.Frequency,
		Channel:   s.Channel.ID,
	}
}

func (s *Slot) visibilityView() visibility.Slot {
	return visibility.Slot{
		Bound:          s.pilot.IsValue(),
		Classification: s.classifier.State(),
	}
}

// SlotSnapshot is the immutable view of a slot handed to the renderer
type SlotSnapshot struct {
	Channel        model.Channel           `json:"channel"`
	Pilot          omit.Val[model.PilotID] `json:"pilot,omitzero"`
	Position       int                     `json:"position"`
	ShowPosition   bool                    `json:"showPosition"`
	Behind         time.Duration           `json:"behind"`
	BehindWho      omit.Val[model.PilotID] `json:"behindWho,omitzero"`
	Classification crashout.Classification `json:"classification"`
	Finished       omit.Val[model.Result]  `json:"finished,omitzero"`
	PersonalBest   omit.Val[time.Duration] `json:"personalBest,omitzero"`
	OverallBest    bool                    `json:"overallBest"`
	Laps           model.LapSummary        `json:"laps"`
	HasLiveFeed    bool                    `json:"hasLiveFeed"`
	Visible        bool                    `json:"visible"`
}

func (s *Slot) snapshot(visible bool) SlotSnapshot {
	return SlotSnapshot{
		Channel:        s.Channel,
		Pilot:          s.pilot,
		Position:       s.position,
		ShowPosition:   s.showPosition,
		Behind:         s.behind,
		BehindWho:      s.behindWho,
		Classification: s.classifier.State(),
		Finished:       s.finished,
		PersonalBest:   s.pb,
		OverallBest:    s.overallBest,
		Laps:           s.laps,
		HasLiveFeed:    s.HasLiveFeed(),
		Visible:        visible,
	}
}
