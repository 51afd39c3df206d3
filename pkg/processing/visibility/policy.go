package visibility

import (
	"github.com/samber/lo"

	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
)

// Slot is the part of a display slot the policy looks at
type Slot struct {
	Bound          bool // a pilot is bound to the slot
	Classification crashout.Classification
}

// IsVisible decides whether slot is shown on the grid.
// During replay crash-out is not depicted at all. If every pilot-bound slot is
// hidden, all of them are shown, the grid is never rendered empty.
func IsVisible(slot Slot, all []Slot, raceFinished, replayMode bool) bool {
	return visible(slot, AllHidden(all), raceFinished, replayMode)
}

// AllHidden reports whether there is at least one pilot-bound slot and all
// pilot-bound slots are classified as hidden
func AllHidden(all []Slot) bool {
	bound := lo.Filter(all, func(s Slot, _ int) bool { return s.Bound })
	if len(bound) == 0 {
		return false
	}
	return lo.EveryBy(bound, func(s Slot) bool { return s.Classification.Hides() })
}

// Apply evaluates IsVisible for every slot
func Apply(all []Slot, raceFinished, replayMode bool) []bool {
	allHidden := AllHidden(all)
	return lo.Map(all, func(s Slot, _ int) bool {
		return visible(s, allHidden, raceFinished, replayMode)
	})
}

func visible(slot Slot, allHidden, raceFinished, replayMode bool) bool {
	if replayMode || raceFinished || !slot.Classification.Hides() {
		return true
	}
	return slot.Bound && allHidden
}
