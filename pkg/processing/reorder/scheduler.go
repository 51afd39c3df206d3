package reorder

import (
	"time"

	"github.com/aarondl/opt/omit"
)

// Scheduler coalesces reorder requests into at most one reordering per
// debounce window. It is driven by the display tick and not safe for
// concurrent use.
type Scheduler struct {
	window   time.Duration
	deadline omit.Val[time.Time]
	force    bool
}

func NewScheduler(window time.Duration) *Scheduler {
	return &Scheduler{window: window}
}

func (s *Scheduler) Window() time.Duration {
	return s.window
}

// SetWindow changes the debounce window. A pending deadline is kept.
func (s *Scheduler) SetWindow(window time.Duration) {
	s.window = window
}

// Request asks for a reordering. Non-forced requests set a deadline of
// now+window unless one is already pending. It reports whether the request
// started a new pending reorder.
func (s *Scheduler) Request(now time.Time, force bool) bool {
	wasPending := s.Pending()
	if force {
		s.force = true
		s.deadline.Unset()
		return !wasPending
	}
	if wasPending {
		return false
	}
	s.deadline = omit.From(now.Add(s.window))
	return true
}

func (s *Scheduler) Pending() bool {
	return s.force || s.deadline.IsValue()
}

// Deadline returns the time at which a pending non-forced request fires
func (s *Scheduler) Deadline() (time.Time, bool) {
	return s.deadline.Get()
}

func (s *Scheduler) ShouldResolveNow(now time.Time) bool {
	if s.force {
		return true
	}
	deadline, ok := s.deadline.Get()
	return ok && !now.Before(deadline)
}

// Consume clears the pending request after the reordering was applied
func (s *Scheduler) Consume() {
	s.force = false
	s.deadline.Unset()
}
