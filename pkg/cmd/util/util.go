package util

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/racegrid/log"
	"github.com/mpapenbr/racegrid/pkg/config"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger configured by the log flags and installs
// it as default
func SetupLogger() (*log.Logger, error) {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		var err error
		if logger, err = logger.Filtered(config.LogFilter); err != nil {
			return nil, err
		}
	}
	log.ResetDefault(logger)
	return logger, nil
}

// SetupTelemetry starts telemetry and runtime metrics if enabled.
// The returned function shuts everything down again.
func SetupTelemetry(ctx context.Context) func() {
	if !config.EnableTelemetry {
		return func() {}
	}
	log.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return func() {}
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", log.ErrorField(err))
		}
	}
}

// LoadConfig resolves the display settings and the channel roster
func LoadConfig() (config.Config, error) {
	ret := config.Config{Display: config.DefaultDisplay(), ReplayMode: config.ReplayMode}
	if config.DisplayFile != "" {
		d, err := config.LoadDisplayFile(config.DisplayFile)
		if err != nil {
			return ret, err
		}
		ret.Display = d
	}
	channels, err := config.ParseChannels(config.Channels)
	if err != nil {
		return ret, err
	}
	ret.Channels = channels
	return ret, nil
}

// AddLogFlags adds the flags used by SetupLogger
func AddLogFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format (json, text)")
	cmd.Flags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"only log entries matching these zapfilter rules (e.g. \"grid* warn+:*\")")
}

// AddDisplayFlags adds the flags used by LoadConfig
func AddDisplayFlags(cmd *cobra.Command, replayDefault bool) {
	cmd.Flags().StringVar(&config.DisplayFile,
		"display-file",
		"",
		"yaml file with display settings")
	cmd.Flags().StringVar(&config.Channels,
		"channels",
		config.DefaultChannels,
		"channel roster, e.g. \"R1,R2,F4:5800:#ff00ff\"")
	cmd.Flags().BoolVar(&config.ReplayMode,
		"replay-mode",
		replayDefault,
		"historical playback, crash-out is not depicted")
	cmd.Flags().IntVar(&config.TargetLaps,
		"target-laps",
		3,
		"laps after which a pilot has finished (0: only when the race ends)")
	cmd.Flags().IntVar(&config.ConsecutiveLaps,
		"consecutive-laps",
		3,
		"number of consecutive laps used for the event ranking")
}

func StartProfiling(port int) {
	if port <= 0 {
		return
	}
	log.Info("Starting profiling server on port", log.Int("port", port))
	go func() {
		//nolint:gosec // by design
		err := http.ListenAndServe(fmt.Sprintf("localhost:%d", port), nil)
		if err != nil {
			log.Error("Profiling server stopped", log.ErrorField(err))
		}
	}()
}

func SetupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}
