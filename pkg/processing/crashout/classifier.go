package crashout

type Classification int

const (
	None Classification = iota
	Auto
	Hidden
	Manual
	FullScreen
)

var classificationNames = map[Classification]string{
	None:       "none",
	Auto:       "auto",
	Hidden:     "hidden",
	Manual:     "manual",
	FullScreen: "fullscreen",
}

func (c Classification) String() string {
	if n, ok := classificationNames[c]; ok {
		return n
	}
	return "unknown"
}

// Hides reports whether the classification removes the slot from the grid.
// A focused slot is reset to None, so FullScreen always refers to "others".
func (c Classification) Hides() bool {
	return c != None
}

// pinned classifications are user decisions which the detector must not undo
func (c Classification) pinned() bool {
	return c == Manual || c == FullScreen || c == Hidden
}

// Transition describes the outcome of a trigger
type Transition struct {
	From    Classification
	To      Classification
	Changed bool
}

// Classifier is the crash-out state machine of a single slot.
// It is not safe for concurrent use.
type Classifier struct {
	state  Classification
	frozen bool
}

func New() *Classifier {
	return &Classifier{state: None}
}

func (c *Classifier) State() Classification {
	return c.state
}

// Frozen reports whether a finished result locked the classification
func (c *Classifier) Frozen() bool {
	return c.frozen
}

func (c *Classifier) set(to Classification) Transition {
	t := Transition{From: c.state, To: to, Changed: c.state != to}
	c.state = to
	return t
}

func (c *Classifier) noop() Transition {
	return Transition{From: c.state, To: c.state}
}

// Reset handles race lifecycle transitions and pilot rebinding
func (c *Classifier) Reset() Transition {
	c.frozen = false
	return c.set(None)
}

// Detect applies a signal of the automatic crash detector
func (c *Classifier) Detect(crashed bool) Transition {
	if c.frozen || c.state.pinned() {
		return c.noop()
	}
	switch {
	case crashed && (c.state == None || c.state == Auto):
		return c.set(Auto)
	case !crashed && c.state == Auto:
		return c.set(None)
	}
	return c.noop()
}

// CrashOut is the explicit user action. It is refused for finished slots,
// ok reports whether the transition was accepted.
func (c *Classifier) CrashOut() (Transition, bool) {
	if c.frozen {
		return c.noop(), false
	}
	return c.set(Manual), true
}

// Hide is the user action to remove a slot without recording a crash
func (c *Classifier) Hide() Transition {
	return c.set(Hidden)
}

// Restore undoes a user decision (Manual, Hidden) or an automatic crash
func (c *Classifier) Restore() Transition {
	return c.set(None)
}

// Focus marks the slot as the one shown full-screen
func (c *Classifier) Focus() Transition {
	return c.set(None)
}

// Isolate hides the slot because another slot is shown full-screen
func (c *Classifier) Isolate() Transition {
	return c.set(FullScreen)
}

// Unfocus ends a full-screen isolation, other states are kept
func (c *Classifier) Unfocus() Transition {
	if c.state == FullScreen {
		return c.set(None)
	}
	return c.noop()
}

// Freeze locks the classification at its current value (finished result)
func (c *Classifier) Freeze() {
	c.frozen = true
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(text []byte) error {
	for k, v := range classificationNames {
		if v == string(text) {
			*c = k
			return nil
		}
	}
	*c = None
	return nil
}
