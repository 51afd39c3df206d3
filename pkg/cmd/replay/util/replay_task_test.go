package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/codec"
	"github.com/mpapenbr/racegrid/pkg/model"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
	"github.com/mpapenbr/racegrid/pkg/processing/standings"
	"github.com/mpapenbr/racegrid/testsupport/basedata"
)

type recorded struct {
	ev     grid.Event
	offset time.Duration
}

func recording(t *testing.T, items ...recorded) string {
	t.Helper()
	lines := make([]string, 0, len(items))
	for _, item := range items {
		data, err := codec.EncodeEvent(item.ev, basedata.TestTime().Add(item.offset))
		require.NoError(t, err)
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n") + "\n"
}

func lap(pilot model.PilotID, number int, offset time.Duration) recorded {
	start := basedata.TestTime().Add(offset - 10*time.Second)
	return recorded{
		ev:     grid.LapDetected{Lap: basedata.SampleLap(pilot, number, start, 10*time.Second)},
		offset: offset,
	}
}

func newTask(opts ...Option) (*ReplayTask, *grid.Coordinator) {
	results := standings.New(standings.WithLogger(log.Nop()))
	coord := grid.New(results,
		grid.WithLogger(log.Nop()),
		grid.WithChannels(basedata.SampleChannels()...),
		grid.WithReplayMode(true))
	all := append([]Option{
		WithLogger(log.Nop()),
		WithSpeed(0),
		WithObserver(results.Observe),
	}, opts...)
	return NewReplayTask(coord, all...), coord
}

func raceEvents() []recorded {
	return []recorded{
		{ev: grid.RaceStarted{Race: basedata.SampleRace(model.RaceTypeRace)}},
		lap(basedata.PilotA, 1, 10*time.Second),
		lap(basedata.PilotB, 1, 11*time.Second),
		lap(basedata.PilotA, 2, 20*time.Second),
	}
}

func TestReplay(t *testing.T) {
	task, coord := newTask()
	frame, err := task.Replay(context.Background(),
		Recording{Name: "timing", Reader: strings.NewReader(recording(t, raceEvents()...))})
	require.NoError(t, err)

	assert.Equal(t, []model.ChannelID{3, 2}, coord.Order()[:2])
	require.Len(t, frame.Slots, 3)
	assert.Equal(t, model.ChannelID(3), frame.Slots[0].Channel.ID)
	assert.Equal(t, 1, frame.Slots[0].Position)
	assert.Equal(t, 2, frame.Slots[0].Laps.Completed)
	assert.True(t, frame.ReplayMode)
	// the clock ran past the debounce window after the last event
	assert.False(t, frame.Time.Before(
		basedata.TestTime().Add(20*time.Second+coord.Display().DebounceWindow)))
}

func TestReplay_MergesRecordings(t *testing.T) {
	events := raceEvents()
	task, coord := newTask()
	_, err := task.Replay(context.Background(),
		Recording{Name: "laps", Reader: strings.NewReader(recording(t, events[1:]...))},
		Recording{Name: "race", Reader: strings.NewReader(recording(t, events[0]))},
		Recording{Name: "empty", Reader: strings.NewReader("")},
	)
	require.NoError(t, err)
	assert.Equal(t, []model.ChannelID{3, 2}, coord.Order()[:2])
}

func TestReplay_SkipsInvalidLines(t *testing.T) {
	data := `{"type":"bogus","time":"2024-04-28T11:10:12Z"}` + "\n" +
		"not json\n" + recording(t, raceEvents()...)
	task, coord := newTask()
	_, err := task.Replay(context.Background(),
		Recording{Name: "timing", Reader: strings.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, []model.ChannelID{3, 2}, coord.Order()[:2])
}

func TestReplay_NoData(t *testing.T) {
	task, _ := newTask()
	_, err := task.Replay(context.Background(),
		Recording{Name: "empty", Reader: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReplay_Pacing(t *testing.T) {
	tests := []struct {
		name        string
		speed       int
		fastForward time.Duration
		wantSleeps  bool
	}{
		{name: "max speed", speed: 0, wantSleeps: false},
		{name: "double speed", speed: 2, wantSleeps: true},
		{name: "fast forward all", speed: 2, fastForward: time.Hour, wantSleeps: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeps := make([]time.Duration, 0)
			task, coord := newTask(
				WithSpeed(tt.speed),
				WithFastForward(tt.fastForward),
				withSleep(func(d time.Duration) { sleeps = append(sleeps, d) }))
			_, err := task.Replay(context.Background(),
				Recording{Name: "timing", Reader: strings.NewReader(recording(t, raceEvents()...))})
			require.NoError(t, err)
			if !tt.wantSleeps {
				assert.Empty(t, sleeps)
				return
			}
			require.NotEmpty(t, sleeps)
			assert.Equal(t, coord.Display().TickInterval/2, sleeps[0])
		})
	}
}

func TestReplay_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	task, _ := newTask(WithFrameHandler(func(grid.Frame) {
		frames++
		if frames == 3 {
			cancel()
		}
	}))
	_, err := task.Replay(ctx,
		Recording{Name: "timing", Reader: strings.NewReader(recording(t, raceEvents()...))})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, frames)
}
