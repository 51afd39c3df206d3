package grid

import (
	"time"

	"github.com/aarondl/opt/omit"

	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/model"
)

// Event is anything that may change the display state.
// Timing events come from the timing subsystem, commands from the user.
type Event interface {
	isEvent()
	Kind() string
}

type (
	LapDetected struct {
		Lap model.Lap `json:"lap"`
	}
	LapDisqualified struct {
		Lap model.Lap `json:"lap"`
	}
	SplitDetected struct {
		Detection model.Detection `json:"detection"`
	}
	PilotAdded struct {
		Binding model.PilotChannel `json:"binding"`
	}
	PilotRemoved struct {
		Binding model.PilotChannel `json:"binding"`
	}
	RaceStarted struct {
		Race *model.Race `json:"race"`
	}
	RaceEnded struct {
		Race *model.Race `json:"race"`
	}
	RaceChanged struct {
		Race *model.Race `json:"race"`
	}
	RaceCleared struct{}
	RaceReset   struct {
		Race *model.Race `json:"race"`
	}
	RaceResumed struct {
		Race *model.Race `json:"race"`
	}
	// LapsRecalculated is sent after disqualifications or manual lap edits.
	// Without a pilot the whole race is affected.
	LapsRecalculated struct {
		Race  model.RaceID            `json:"race"`
		Pilot omit.Val[model.PilotID] `json:"pilot,omitzero"`
	}
	NewPersonalBest struct {
		Pilot model.PilotID `json:"pilot"`
		Time  time.Duration `json:"time"`
	}
	// CrashSignal is reported by the automatic crash detector
	CrashSignal struct {
		Channel model.ChannelID `json:"channel"`
		Crashed bool            `json:"crashed"`
	}
)

// user commands
type (
	ManualCrashOut struct {
		Channel   model.ChannelID `json:"channel"`
		Permanent bool            `json:"permanent"`
	}
	RestoreSlot struct {
		Channel model.ChannelID `json:"channel"`
	}
	HideSlot struct {
		Channel model.ChannelID `json:"channel"`
	}
	FocusFullScreen struct {
		Channel model.ChannelID `json:"channel"`
	}
	ClearFocus       struct{}
	ForceReorder     struct{}
	SetExtrasVisible struct {
		Visible bool `json:"visible"`
	}
	SettingsChanged struct {
		Display config.Display `json:"display"`
	}
)

func (LapDetected) isEvent()      {}
func (LapDisqualified) isEvent()  {}
func (SplitDetected) isEvent()    {}
func (PilotAdded) isEvent()       {}
func (PilotRemoved) isEvent()     {}
func (RaceStarted) isEvent()      {}
func (RaceEnded) isEvent()        {}
func (RaceChanged) isEvent()      {}
func (RaceCleared) isEvent()      {}
func (RaceReset) isEvent()        {}
func (RaceResumed) isEvent()      {}
func (LapsRecalculated) isEvent() {}
func (NewPersonalBest) isEvent()  {}
func (CrashSignal) isEvent()      {}
func (ManualCrashOut) isEvent()   {}
func (RestoreSlot) isEvent()      {}
func (HideSlot) isEvent()         {}
func (FocusFullScreen) isEvent()  {}
func (ClearFocus) isEvent()       {}
func (ForceReorder) isEvent()     {}
func (SetExtrasVisible) isEvent() {}
func (SettingsChanged) isEvent()  {}

func (LapDetected) Kind() string      { return "lap-detected" }
func (LapDisqualified) Kind() string  { return "lap-disqualified" }
func (SplitDetected) Kind() string    { return "split-detected" }
func (PilotAdded) Kind() string       { return "pilot-added" }
func (PilotRemoved) Kind() string     { return "pilot-removed" }
func (RaceStarted) Kind() string      { return "race-started" }
func (RaceEnded) Kind() string        { return "race-ended" }
func (RaceChanged) Kind() string      { return "race-changed" }
func (RaceCleared) Kind() string      { return "race-cleared" }
func (RaceReset) Kind() string        { return "race-reset" }
func (RaceResumed) Kind() string      { return "race-resumed" }
func (LapsRecalculated) Kind() string { return "laps-recalculated" }
func (NewPersonalBest) Kind() string  { return "new-personal-best" }
func (CrashSignal) Kind() string      { return "crash-signal" }
func (ManualCrashOut) Kind() string   { return "manual-crash-out" }
func (RestoreSlot) Kind() string      { return "restore-slot" }
func (HideSlot) Kind() string         { return "hide-slot" }
func (FocusFullScreen) Kind() string  { return "focus-full-screen" }
func (ClearFocus) Kind() string       { return "clear-focus" }
func (ForceReorder) Kind() string     { return "force-reorder" }
func (SetExtrasVisible) Kind() string { return "set-extras-visible" }
func (SettingsChanged) Kind() string  { return "settings-changed" }
