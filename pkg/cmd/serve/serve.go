package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/racegrid/log"
	cmdutil "github.com/mpapenbr/racegrid/pkg/cmd/util"
	"github.com/mpapenbr/racegrid/pkg/config"
	"github.com/mpapenbr/racegrid/pkg/processing/grid"
	"github.com/mpapenbr/racegrid/pkg/processing/standings"
	transport "github.com/mpapenbr/racegrid/pkg/transport/nats"
	"github.com/mpapenbr/racegrid/pkg/transport/tlsconfig"
	"github.com/mpapenbr/racegrid/pkg/utils"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "reconciles the display grid with the timing events received via NATS",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			appConfig, err = cmdutil.LoadConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		nats.DefaultURL,
		"URL of the NATS server")
	cmd.Flags().StringVar(&config.SubjectPrefix,
		"subject-prefix",
		"racegrid",
		"prefix for all NATS subjects")
	cmd.Flags().StringVar(&config.SettingsBucket,
		"settings-bucket",
		"",
		"JetStream key/value bucket to share display settings (empty: disabled)")
	cmd.Flags().BoolVar(&config.ReloadDisplayFile,
		"watch-display-file",
		false,
		"reload the display settings when the display file changes")
	cmd.Flags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for the NATS server to be ready")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().BoolVar(&config.TelemetryStdout,
		"telemetry-stdout",
		false,
		"write telemetry data to stdout instead of the endpoint")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"client certificate for the NATS connection")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"client key for the NATS connection")
	cmd.Flags().StringVar(&config.TLSCAFile,
		"tls-ca",
		"",
		"CA to verify the NATS server")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"traefik acme.json to read the client certificate from")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to lookup within the traefik certs")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmdutil.AddLogFlags(cmd)
	cmdutil.AddDisplayFlags(cmd, false)
	return cmd
}

//nolint:funlen,cyclop // by design
func startServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := cmdutil.SetupLogger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.AddToContext(ctx, logger)

	log.Debug("Config:",
		log.String("nats", config.NatsURL),
		log.String("prefix", config.SubjectPrefix),
		log.Int("channels", len(appConfig.Channels)),
		log.Duration("debounce", appConfig.Display.DebounceWindow),
		log.Bool("replayMode", appConfig.ReplayMode))

	cmdutil.StartProfiling(config.ProfilingPort)
	shutdownTelemetry := cmdutil.SetupTelemetry(ctx)
	defer shutdownTelemetry()

	if err := waitForRequiredServices(ctx); err != nil {
		return err
	}
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Drain(); err != nil {
			log.Warn("could not drain NATS connection", log.ErrorField(err))
		}
	}()

	results := standings.New(
		standings.WithTargetLaps(config.TargetLaps),
		standings.WithConsecutiveLaps(config.ConsecutiveLaps),
		standings.WithLogger(logger.Named("standings")))
	sub, err := transport.NewSubscriber(conn,
		transport.WithContext(ctx),
		transport.WithPrefix(config.SubjectPrefix),
		transport.WithObserver(results.Observe),
		transport.WithLogger(logger.Named("nats")))
	if err != nil {
		return err
	}
	defer sub.Close()
	pub := transport.NewPublisher(conn,
		transport.WithPublishPrefix(config.SubjectPrefix),
		transport.WithPublishLogger(logger.Named("nats.publisher")))

	coord := grid.New(results,
		grid.WithContext(ctx),
		grid.WithLogger(logger.Named("grid")),
		grid.WithDisplay(appConfig.Display),
		grid.WithReplayMode(appConfig.ReplayMode),
		grid.WithChannels(appConfig.Channels...),
		grid.WithSource(sub.Source()),
		grid.WithNotifier(pub),
		grid.WithRecorder(results))
	defer coord.Close()

	if err := watchSettings(ctx, conn, coord); err != nil {
		return err
	}

	cmdutil.SetupGoRoutinesDump()
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run(ctx, func(f grid.Frame) {
			if _, err := pub.PublishFrame(f); err != nil {
				log.Warn("could not publish frame", log.ErrorField(err))
			}
		})
	}()
	log.Info("Server started", log.String("instance", pub.Instance()))

	<-ctx.Done()
	log.Debug("Got signal")
	wg.Wait()
	log.Info("Server terminated")
	return nil
}

func connect(ctx context.Context) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("racegrid"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", log.ErrorField(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", log.String("url", c.ConnectedUrl()))
		}),
	}
	tlsConfig, err := tlsconfig.NewClientConfig(ctx, tlsconfig.Files{
		CertFile:      config.TLSCertFile,
		KeyFile:       config.TLSKeyFile,
		CAFile:        config.TLSCAFile,
		TraefikCerts:  config.TraefikCerts,
		TraefikDomain: config.TraefikCertDomain,
	})
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}
	conn, err := nats.Connect(config.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS: %w", err)
	}
	log.Info("Connected to NATS", log.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// watchSettings feeds display setting changes from the display file and the
// settings bucket into the coordinator
func watchSettings(ctx context.Context, conn *nats.Conn, coord *grid.Coordinator) error {
	onChange := func(d config.Display) {
		coord.Enqueue(grid.SettingsChanged{Display: d})
	}
	if config.ReloadDisplayFile && config.DisplayFile != "" {
		if err := config.WatchDisplayFile(ctx, config.DisplayFile, onChange); err != nil {
			return err
		}
	}
	if config.SettingsBucket == "" {
		return nil
	}
	store, err := transport.NewSettingsStore(ctx, conn, config.SettingsBucket)
	if err != nil {
		return err
	}
	d, ok, err := store.Load(ctx)
	switch {
	case err != nil:
		log.Warn("could not load shared settings", log.ErrorField(err))
	case ok:
		log.Info("using shared display settings", log.String("bucket", config.SettingsBucket))
		onChange(d)
	default:
		if err := store.Save(ctx, appConfig.Display); err != nil {
			log.Warn("could not store display settings", log.ErrorField(err))
		}
	}
	return store.Watch(ctx, onChange)
}

func waitForRequiredServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	for _, addr := range utils.ExtractFromNatsURL(config.NatsURL) {
		if err := utils.WaitForTCP(ctx, addr, timeout); err != nil {
			return fmt.Errorf("required services not ready: %w", err)
		}
	}
	log.Debug("Required services are available")
	return nil
}
