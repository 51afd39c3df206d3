//nolint:funlen // ok for tests
package visibility

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
)

func TestIsVisible(t *testing.T) {
	bound := func(c crashout.Classification) Slot { return Slot{Bound: true, Classification: c} }
	tests := []struct {
		name         string
		all          []Slot
		raceFinished bool
		replay       bool
		want         []bool
	}{
		{
			name: "manual crash hides one",
			all:  []Slot{bound(crashout.None), bound(crashout.Manual), bound(crashout.None)},
			want: []bool{true, false, true},
		},
		{
			name: "auto and hidden",
			all:  []Slot{bound(crashout.Auto), bound(crashout.Hidden), bound(crashout.None)},
			want: []bool{false, false, true},
		},
		{
			name: "fullscreen isolates the focused slot",
			all: []Slot{
				bound(crashout.FullScreen), bound(crashout.None), bound(crashout.FullScreen),
			},
			want: []bool{false, true, false},
		},
		{
			name: "all hidden shows everyone",
			all:  []Slot{bound(crashout.Auto), bound(crashout.Manual), bound(crashout.Hidden)},
			want: []bool{true, true, true},
		},
		{
			name: "all hidden ignores unbound slots",
			all:  []Slot{bound(crashout.Manual), {Bound: false}, bound(crashout.Auto)},
			want: []bool{true, true, true},
		},
		{
			name:         "race finished",
			all:          []Slot{bound(crashout.Manual), bound(crashout.None)},
			raceFinished: true,
			want:         []bool{true, true},
		},
		{
			name:   "replay",
			all:    []Slot{bound(crashout.Manual), bound(crashout.None)},
			replay: true,
			want:   []bool{true, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]bool, len(tt.all))
			for i := range tt.all {
				got[i] = IsVisible(tt.all[i], tt.all, tt.raceFinished, tt.replay)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsVisible() mismatch: %s", diff)
			}
			if diff := cmp.Diff(tt.want, Apply(tt.all, tt.raceFinished, tt.replay)); diff != "" {
				t.Errorf("Apply() mismatch: %s", diff)
			}
		})
	}
}

func TestAllHidden(t *testing.T) {
	assert.False(t, AllHidden(nil))
	assert.False(t, AllHidden([]Slot{{Bound: false, Classification: crashout.None}}))
	assert.True(t, AllHidden([]Slot{{Bound: true, Classification: crashout.Auto}}))
}
