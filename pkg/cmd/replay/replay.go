package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/cmd/replay/util"
	cmdutil "github.com/mpapenbr/racegrid/pkg/cmd/util"
	"github.com/mpapenbr/racegrid/pkg/codec"
	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
	"github.com/mpapenbr/racegrid/pkg/processing/standings"
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays recorded timing events and prints the resulting grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return replay(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&util.Files, "file", "f", []string{"-"},
		"recording with one event envelope per line (- for stdin)")
	cmd.Flags().IntVar(&util.Speed, "speed", 0,
		"Replay speed (0 means: go as fast as possible)")
	cmd.Flags().StringVar(&util.FastForward,
		"fast-forward",
		"",
		"replay this duration with max speed")
	cmd.Flags().BoolVar(&util.PrintFrames,
		"print-frames",
		false,
		"print every reordered frame as json")
	cmdutil.AddLogFlags(cmd)
	cmdutil.AddDisplayFlags(cmd, true)
	return cmd
}

//nolint:funlen // by design
func replay(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := cmdutil.SetupLogger()
	if err != nil {
		return err
	}
	ctx = log.AddToContext(ctx, logger)
	appConfig, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	var fastForward time.Duration
	if util.FastForward != "" {
		if fastForward, err = time.ParseDuration(util.FastForward); err != nil {
			return fmt.Errorf("invalid fast-forward duration: %w", err)
		}
	}

	recordings := make([]util.Recording, 0, len(util.Files))
	for _, name := range util.Files {
		if name == "-" {
			recordings = append(recordings, util.Recording{Name: "stdin", Reader: os.Stdin})
			continue
		}
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		recordings = append(recordings, util.Recording{Name: name, Reader: f})
	}

	results := standings.New(
		standings.WithTargetLaps(config.TargetLaps),
		standings.WithConsecutiveLaps(config.ConsecutiveLaps),
		standings.WithLogger(logger.Named("standings")))
	coord := grid.New(results,
		grid.WithContext(ctx),
		grid.WithLogger(logger.Named("grid")),
		grid.WithDisplay(appConfig.Display),
		grid.WithReplayMode(appConfig.ReplayMode),
		grid.WithChannels(appConfig.Channels...),
		grid.WithRecorder(results))
	defer coord.Close()

	opts := []util.Option{
		util.WithSpeed(util.Speed),
		util.WithFastForward(fastForward),
		util.WithObserver(results.Observe),
		util.WithLogger(logger.Named("replay")),
	}
	if util.PrintFrames {
		opts = append(opts, util.WithFrameHandler(func(f grid.Frame) {
			if !f.Reordered {
				return
			}
			data, err := codec.EncodeFrame(f)
			if err != nil {
				log.Warn("could not encode frame", log.ErrorField(err))
				return
			}
			fmt.Fprintln(out, string(data))
		}))
	}
	frame, err := util.NewReplayTask(coord, opts...).Replay(ctx, recordings...)
	if err != nil {
		return err
	}
	return printGrid(out, frame)
}

// printGrid writes the visible slots of the frame as table
func printGrid(out io.Writer, f grid.Frame) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("race: %s  type: %s  state: %s",
		f.Race.GetOr("-"), f.RaceType, f.RaceState))
	tw.AppendHeader(table.Row{"pos", "channel", "mhz", "pilot", "laps", "best", "pb", "state"})
	for _, s := range f.Visible() {
		pos := "-"
		if s.ShowPosition {
			pos = fmt.Sprint(s.Position)
		}
		pb := "-"
		if v, ok := s.PersonalBest.Get(); ok {
			pb = v.String()
			if s.OverallBest {
				pb += " *"
			}
		}
		state := s.Classification.String()
		if r, ok := s.Finished.Get(); ok {
			state = "finished"
			if r.DNF {
				state = "dnf"
			}
		}
		tw.AppendRow(table.Row{
			pos,
			fmt.Sprintf("%s%d", s.Channel.Band, s.Channel.Number),
			s.Channel.Frequency,
			string(s.Pilot.GetOr("-")),
			s.Laps.Completed,
			s.Laps.Best.String(),
			pb,
			state,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	_, err := fmt.Fprintln(out, tw.Render())
	return err
}
