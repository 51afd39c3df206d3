//nolint:funlen // ok for tests
package position

import (
	"context"
	"testing"

	"github.com/aarondl/opt/omit"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/testsupport/basedata"
)

func newTestResolver(fr *basedata.FakeResults, mod ...func(*config.Display)) *Resolver {
	d := config.DefaultDisplay()
	for _, m := range mod {
		m(&d)
	}
	return NewResolver(fr, WithDisplay(d), WithLogger(log.Nop()))
}

func TestResolver_Sentinel(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.SetPosition(basedata.PilotA, 1)
	fr.SetEventPosition(basedata.PilotA, 1)
	r := newTestResolver(fr)
	race := basedata.SampleRace(model.RaceTypeRace)

	tests := []struct {
		name string
		req  Request
	}{
		{"no race", Request{Pilot: omit.From(basedata.PilotA), RaceType: model.RaceTypeRace}},
		{"no pilot", Request{Race: race, RaceType: model.RaceTypeRace}},
		{"open practice", Request{
			Race: race, Pilot: omit.From(basedata.PilotA),
			RaceType: model.RaceTypeOpenPractice,
		}},
		{"freestyle", Request{
			Race: race, Pilot: omit.From(basedata.PilotA),
			RaceType: model.RaceTypeFreestyle,
		}},
		{"no standing", Request{
			Race: race, Pilot: omit.From(basedata.PilotD),
			RaceType: model.RaceTypeRace,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(context.Background(), tt.req)
			assert.Equal(t, config.DefaultMaxPilots, got.Position)
			assert.False(t, got.ShowPosition)
		})
	}
}

func TestResolver_RaceStanding(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.Standings[basedata.PilotB] = model.Standing{
		Pilot: basedata.PilotB, Position: 2, Behind: 1500_000_000,
		BehindWho: omit.From(basedata.PilotA),
	}
	r := newTestResolver(fr)
	got := r.Resolve(context.Background(), Request{
		Race:     basedata.SampleRace(model.RaceTypeRace),
		Pilot:    omit.From(basedata.PilotB),
		RaceType: model.RaceTypeRace,
		Latest:   omit.From(model.Detection{IsLapEnd: false}),
	})
	assert.Equal(t, 2, got.Position)
	assert.True(t, got.ShowPosition)
	assert.Equal(t, basedata.PilotA, got.BehindWho.MustGet())
	assert.True(t, got.Finished.IsUnset())
}

func TestResolver_OutOfRange(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.SetPosition(basedata.PilotA, 12)
	r := newTestResolver(fr)
	got := r.Resolve(context.Background(), Request{
		Race:     basedata.SampleRace(model.RaceTypeRace),
		Pilot:    omit.From(basedata.PilotA),
		RaceType: model.RaceTypeRace,
	})
	assert.Equal(t, r.Sentinel(), got.Position)
	assert.False(t, got.ShowPosition)
}

func TestResolver_TimeTrialMidLap(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.SetEventPosition(basedata.PilotA, 3)
	fr.SetPosition(basedata.PilotA, 1) // must not be used
	race := basedata.SampleRace(model.RaceTypeTimeTrial)

	tests := []struct {
		name       string
		always     bool
		latest     omit.Val[model.Detection]
		wantShow   bool
		wantPosEvt int
	}{
		{"no detection", false, omit.Val[model.Detection]{}, true, 3},
		{"lap end", false, omit.From(model.Detection{IsLapEnd: true}), true, 3},
		{"mid lap", false, omit.From(model.Detection{Sector: 1}), false, 3},
		{"mid lap always show", true, omit.From(model.Detection{Sector: 1}), true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(fr, func(d *config.Display) { d.AlwaysShowPosition = tt.always })
			got := r.Resolve(context.Background(), Request{
				Race: race, Pilot: omit.From(basedata.PilotA),
				RaceType: model.RaceTypeTimeTrial, Latest: tt.latest,
			})
			assert.Equal(t, tt.wantPosEvt, got.Position)
			assert.Equal(t, tt.wantShow, got.ShowPosition)
		})
	}
}

func TestResolver_FinishedIsTerminal(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.SetPosition(basedata.PilotA, 2)
	fr.SetResult(basedata.PilotA, 2, false)
	r := newTestResolver(fr)
	race := basedata.SampleRace(model.RaceTypeRace)
	req := Request{Race: race, Pilot: omit.From(basedata.PilotA), RaceType: model.RaceTypeRace}

	got := r.Resolve(context.Background(), req)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, model.Result{Pilot: basedata.PilotA, Position: 2}, got.Finished.MustGet())

	// the authoritative result changes, but the locked position is kept
	fr.SetResult(basedata.PilotA, 1, false)
	calls := fr.ResultCalls
	got = r.Resolve(context.Background(), req)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, calls, fr.ResultCalls, "no recomputation expected")

	// laps recalculated
	r.Invalidate(context.Background(), race.ID, basedata.PilotA)
	got = r.Resolve(context.Background(), req)
	assert.Equal(t, 1, got.Position)

	fr.SetResult(basedata.PilotA, 3, true)
	r.InvalidateRace(context.Background(), race.ID)
	got = r.Resolve(context.Background(), req)
	assert.Equal(t, 3, got.Position)
	assert.True(t, got.Finished.MustGet().DNF)
}

func TestResolver_ApplySentinelChange(t *testing.T) {
	fr := basedata.NewFakeResults()
	fr.SetResult(basedata.PilotA, 6, false)
	r := newTestResolver(fr)
	race := basedata.SampleRace(model.RaceTypeRace)
	req := Request{Race: race, Pilot: omit.From(basedata.PilotA), RaceType: model.RaceTypeRace}
	assert.Equal(t, 6, r.Resolve(context.Background(), req).Position)

	d := config.DefaultDisplay()
	d.MaxPilots = 4
	r.Apply(context.Background(), d)
	got := r.Resolve(context.Background(), req)
	assert.Equal(t, 4, got.Position)
	assert.False(t, got.ShowPosition)
}
