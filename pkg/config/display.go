package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid display config")

const (
	DefaultDebounceWindow = 5 * time.Second
	DefaultMaxPilots      = 8
	DefaultTickInterval   = 50 * time.Millisecond
)

// Display holds the settings consumed by the reconciliation engine.
// It is passed explicitly to the components, there is no global instance.
type Display struct {
	// delay between a position change and the reordering it causes
	DebounceWindow time.Duration `yaml:"debounceWindow" json:"debounceWindow"`
	// if false, position changes caused by a holeshot are discarded
	HoleshotReorder    bool `yaml:"holeshotReorder" json:"holeshotReorder"`
	AlwaysShowPosition bool `yaml:"alwaysShowPosition" json:"alwaysShowPosition"`
	// max pilots per race, also used as the "unranked" position
	MaxPilots     int           `yaml:"maxPilots" json:"maxPilots"`
	ExtrasVisible bool          `yaml:"extrasVisible" json:"extrasVisible"`
	TickInterval  time.Duration `yaml:"tickInterval" json:"tickInterval"`
}

func DefaultDisplay() Display {
	return Display{
		DebounceWindow:     DefaultDebounceWindow,
		HoleshotReorder:    false,
		AlwaysShowPosition: false,
		MaxPilots:          DefaultMaxPilots,
		ExtrasVisible:      true,
		TickInterval:       DefaultTickInterval,
	}
}

// Sentinel is the position value used for unranked/inactive slots
func (d Display) Sentinel() int {
	return d.MaxPilots
}

func (d Display) Validate() error {
	if d.DebounceWindow < 0 {
		return fmt.Errorf("%w: debounceWindow must not be negative", ErrInvalidConfig)
	}
	if d.MaxPilots < 1 {
		return fmt.Errorf("%w: maxPilots must be at least 1", ErrInvalidConfig)
	}
	if d.TickInterval <= 0 {
		return fmt.Errorf("%w: tickInterval must be positive", ErrInvalidConfig)
	}
	return nil
}

// ParseDisplay reads display settings from yaml data.
// Missing keys keep their default values.
func ParseDisplay(data []byte) (Display, error) {
	d := DefaultDisplay()
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Display{}, fmt.Errorf("could not parse display config: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Display{}, err
	}
	return d, nil
}

func LoadDisplayFile(path string) (Display, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Display{}, fmt.Errorf("could not read display config %s: %w", path, err)
	}
	return ParseDisplay(data)
}
