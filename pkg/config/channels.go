package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mpapenbr/racegrid/pkg/model"
)

// frequencies of the common raceband channels (MHz)
var raceBand = map[int]int{
	1: 5658, 2: 5695, 3: 5732, 4: 5769, 5: 5806, 6: 5843, 7: 5880, 8: 5917,
}

var defaultColors = []string{
	"#ff0000", "#00ff00", "#0000ff", "#ffff00",
	"#ff00ff", "#00ffff", "#ff8000", "#8000ff",
}

const DefaultChannels = "R1,R2,R3,R4,R5,R6,R7,R8"

// ParseChannels parses a comma separated roster like "R1,R2:5695,F4:5800:#ffffff".
// Each entry is <band><number>[:<frequency>[:<color>]]. The frequency may only
// be omitted for raceband (R) channels.
func ParseChannels(spec string) ([]model.Channel, error) {
	ret := make([]model.Channel, 0)
	for i, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		name := parts[0]
		if len(name) < 2 {
			return nil, fmt.Errorf("%w: channel %q", ErrInvalidConfig, entry)
		}
		num, err := strconv.Atoi(name[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: channel %q: %w", ErrInvalidConfig, entry, err)
		}
		ch := model.Channel{
			ID:     model.ChannelID(i + 1),
			Band:   strings.ToUpper(name[:1]),
			Number: num,
			Color:  defaultColors[i%len(defaultColors)],
		}
		switch {
		case len(parts) > 1:
			if ch.Frequency, err = strconv.Atoi(parts[1]); err != nil {
				return nil, fmt.Errorf("%w: frequency of %q: %w", ErrInvalidConfig, entry, err)
			}
		case ch.Band == "R":
			freq, ok := raceBand[num]
			if !ok {
				return nil, fmt.Errorf("%w: unknown raceband channel %q", ErrInvalidConfig, entry)
			}
			ch.Frequency = freq
		default:
			return nil, fmt.Errorf("%w: frequency required for %q", ErrInvalidConfig, entry)
		}
		if len(parts) > 2 {
			ch.Color = parts[2]
		}
		ret = append(ret, ch)
	}
	return ret, nil
}
