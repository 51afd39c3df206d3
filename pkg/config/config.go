package config

import "github.com/mpapenbr/racegrid/pkg/model"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "grid* warn+:*"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	TelemetryStdout   bool   // write telemetry data to stdout instead of the otlp endpoint
	NatsURL           string // URL of the NATS server
	SubjectPrefix     string // prefix for all NATS subjects
	DisplayFile       string // path to display settings file (yaml)
	ReloadDisplayFile bool   // reload display settings when the file changes
	ReplayMode        bool   // historical playback, crash-out is not depicted
	Channels          string // channel roster, e.g. "R1:5658,R2:5695"
	SettingsBucket    string // JetStream key/value bucket for shared display settings
	TargetLaps        int    // laps after which a pilot has finished (0: race end only)
	ConsecutiveLaps   int    // number of consecutive laps for the event ranking
	WaitForServices   string // duration to wait for NATS to become reachable
	ProfilingPort     int    // port for pprof data (0: disabled)
	TLSCertFile       string // path to TLS client certificate for NATS
	TLSKeyFile        string // path to TLS client key for NATS
	TLSCAFile         string // path to TLS CA to verify the NATS server
	TraefikCerts      string // path to traefik certs file
	TraefikCertDomain string // the domain to lookup within the traefik certs
)

// Config holds the configuration values which are used by the application
type Config struct {
	Display    Display
	ReplayMode bool
	Channels   []model.Channel
}
