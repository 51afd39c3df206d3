package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racegrid/log"
)

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Display
		wantErr error
	}{
		{
			name: "empty keeps defaults",
			data: "",
			want: DefaultDisplay(),
		},
		{
			name: "override some values",
			data: "debounceWindow: 2s\nholeshotReorder: true\nmaxPilots: 4\n",
			want: Display{
				DebounceWindow:  2 * time.Second,
				HoleshotReorder: true,
				MaxPilots:       4,
				ExtrasVisible:   true,
				TickInterval:    DefaultTickInterval,
			},
		},
		{
			name:    "invalid max pilots",
			data:    "maxPilots: 0\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative window",
			data:    "debounceWindow: -1s\n",
			wantErr: ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDisplay([]byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDisplay_Malformed(t *testing.T) {
	_, err := ParseDisplay([]byte("maxPilots: [1,2"))
	assert.Error(t, err)
}

func TestLoadDisplayFile_Missing(t *testing.T) {
	_, err := LoadDisplayFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestWatchDisplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "display.yml")
	require.NoError(t, os.WriteFile(path, []byte("maxPilots: 6\n"), 0o600))

	ctx, cancel := context.WithCancel(log.AddToContext(context.Background(), log.Nop()))
	defer cancel()
	got := make(chan Display, 4)
	require.NoError(t, WatchDisplayFile(ctx, path, func(d Display) { got <- d }))

	require.NoError(t, os.WriteFile(path, []byte("maxPilots: 3\n"), 0o600))
	// a write may be reported more than once (truncate + write)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case d := <-got:
			if d.MaxPilots == 3 {
				return
			}
		case <-timeout:
			t.Fatal("no reload received")
		}
	}
}
