package codec

import (
	"testing"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/crashout"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
	"github.com/mpapenbr/racegrid/testsupport/basedata"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want grid.Event
	}{
		{
			name: "crash signal",
			data: `{"type":"crash-signal","time":"2024-04-28T11:10:12Z","payload":{"channel":2,"crashed":true}}`,
			want: grid.CrashSignal{Channel: 2, Crashed: true},
		},
		{
			name: "without payload",
			data: `{"type":"race-cleared","time":"2024-04-28T11:10:12Z"}`,
			want: grid.RaceCleared{},
		},
		{
			name: "laps recalculated for the whole race",
			data: `{"type":"laps-recalculated","time":"2024-04-28T11:10:12Z","payload":{"race":"race-1"}}`,
			want: grid.LapsRecalculated{Race: "race-1"},
		},
		{
			name: "laps recalculated for a pilot",
			data: `{"type":"laps-recalculated","time":"2024-04-28T11:10:12Z","payload":{"race":"race-1","pilot":"bob"}}`,
			want: grid.LapsRecalculated{Race: "race-1", Pilot: omit.From(basedata.PilotB)},
		},
		{
			name: "settings",
			data: `{"type":"settings-changed","time":"2024-04-28T11:10:12Z","payload":{"display":{"maxPilots":4,"debounceWindow":1000000000}}}`,
			want: grid.SettingsChanged{Display: config.Display{MaxPilots: 4, DebounceWindow: time.Second}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ts, err := DecodeEvent([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, basedata.TestTime(), ts.UTC())
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(omit.Val[model.PilotID]{})); diff != "" {
				t.Errorf("DecodeEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "unknown", data: `{"type":"bogus"}`, wantErr: ErrUnknownEventType},
		{name: "race changed without race", data: `{"type":"race-changed","payload":{}}`, wantErr: ErrMissingRace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeEvent([]byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	_, _, err := DecodeEvent([]byte(`{"type":`))
	assert.Error(t, err)
	_, _, err = DecodeEvent([]byte(`{"type":"crash-signal","payload":{"channel":"x"}}`))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	lap := basedata.SampleLap(basedata.PilotA, 2, basedata.TestTime(), 20*time.Second)
	data, err := EncodeEvent(grid.LapDetected{Lap: lap}, lap.End)
	require.NoError(t, err)
	got, ts, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, ts.Equal(lap.End))
	require.IsType(t, grid.LapDetected{}, got)
	gotLap := got.(grid.LapDetected).Lap
	assert.Equal(t, lap.ID, gotLap.ID)
	assert.True(t, gotLap.End.Equal(lap.End))
	assert.Equal(t, lap.Length(), gotLap.Length())
}

func TestFrame(t *testing.T) {
	frame := grid.Frame{
		Time:      basedata.TestTime(),
		Race:      omit.From(model.RaceID("race-1")),
		RaceType:  model.RaceTypeRace,
		RaceState: model.RaceStateRunning,
		Slots: []grid.SlotSnapshot{
			{
				Channel:        basedata.SampleChannels()[0],
				Pilot:          omit.From(basedata.PilotA),
				Position:       1,
				ShowPosition:   true,
				Classification: crashout.Manual,
				Visible:        true,
			},
			{
				Channel:  basedata.SampleChannels()[1],
				Position: 8,
			},
		},
	}
	data, err := EncodeFrame(frame)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"classification":"manual"`)
	assert.NotContains(t, string(data), `"finished"`)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Len(t, got.Slots, 2)
	assert.Equal(t, crashout.Manual, got.Slots[0].Classification)
	assert.Equal(t, omit.From(basedata.PilotA), got.Slots[0].Pilot)
	assert.True(t, got.Slots[1].Pilot.IsUnset())
	assert.Equal(t, omit.From(model.RaceID("race-1")), got.Race)

	_, err = DecodeFrame([]byte(`{"type":"notification"}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestNotification(t *testing.T) {
	data, err := EncodeNotification(grid.Notification{
		Kind:    grid.CrashOutChanged,
		Time:    basedata.TestTime(),
		Channel: 2,
		From:    crashout.None,
		To:      crashout.Auto,
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"notification"`)
	assert.Contains(t, string(data), `"kind":"crash-out-changed"`)
	assert.Contains(t, string(data), `"to":"auto"`)
}
