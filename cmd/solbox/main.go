// solbox relay - durable Sorel Connect to time-series bridge
//
// The relay polls a Sorel solar-heating controller for temperatures and the
// pump state and delivers every reading to one sink (energiemon, MQTT or
// InfluxDB). Readings that cannot be delivered are kept in an on-disk queue
// and retried on later cycles.
//
// Usage:
//
//	solbox [--config path] [--log path]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/solbox-relay/internal/api"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/logging"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/solbox-relay/internal/metrics"
	"github.com/nerrad567/solbox-relay/internal/queue"
	"github.com/nerrad567/solbox-relay/internal/relay"
	"github.com/nerrad567/solbox-relay/internal/sink"
	"github.com/nerrad567/solbox-relay/internal/sink/energiemon"
	"github.com/nerrad567/solbox-relay/internal/sink/influxsink"
	"github.com/nerrad567/solbox-relay/internal/sink/mqttsink"
	"github.com/nerrad567/solbox-relay/internal/source/sorel"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// startupCheckTimeout bounds the health check before the first cycle.
const startupCheckTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	logPath     string
	showVersion bool
}

// parseFlags parses args. The config path falls back to SOLBOX_CONFIG.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("solbox", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", os.Getenv("SOLBOX_CONFIG"), "path to the YAML config file (env SOLBOX_CONFIG); empty runs from defaults and environment")
	fs.StringVar(&opts.logPath, "log", "", "also write logs to this file, rotated")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Where --version and --help output goes
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "solbox %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting solbox relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logPath != "" {
		cfg.Logging = logging.WithFile(cfg.Logging, opts.logPath)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing useful to do on shutdown
	log.Info("configuration loaded",
		"path", opts.configPath,
		"sink", cfg.Relay.Sink,
		"poll_interval", cfg.GetPollInterval(),
		"cycle_timeout", cfg.GetCycleTimeout(),
	)

	q, err := queue.Open(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer func() {
		log.Info("closing queue")
		if closeErr := q.Close(); closeErr != nil {
			log.Error("error closing queue", "error", closeErr)
		}
	}()
	if backlog, lenErr := q.Len(ctx); lenErr == nil {
		log.Info("queue opened", "path", q.Path(), "backlog", backlog)
	}

	recorder := metrics.New()

	s, components, closeSink, err := openSink(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening %s sink: %w", cfg.Relay.Sink, err)
	}
	defer closeSink()

	source := sorel.New(cfg.Sorel)
	source.SetLogger(log.With("component", "sorel"))

	coordinator := relay.NewCoordinator(s, q, cfg.Relay.DrainLimit)
	coordinator.SetLogger(log.With("component", "coordinator"))
	coordinator.SetMetrics(recorder)

	scheduler := relay.NewScheduler(source, coordinator, cfg.GetPollInterval(), cfg.GetCycleTimeout())
	scheduler.SetLogger(log.With("component", "scheduler"))
	scheduler.SetMetrics(recorder)

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.With("component", "api"),
			Queue:      q,
			Metrics:    recorder,
			Components: components,
			DrainLimit: coordinator.DrainLimit(),
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()
	if err := healthCheck(checkCtx, q, components); err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}

	log.Info("solbox relay running", "sink", s.Name())
	if err := scheduler.Run(ctx); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// openSink connects the configured sink.
//
// Returns:
//   - sink.Sink: Ready to send
//   - []api.Component: Health checks for the sink's connection, if any
//   - func(): Releases the sink's connection; always non-nil
//   - error: If the sink cannot be reached or set up
func openSink(ctx context.Context, cfg *config.Config, log *logging.Logger) (sink.Sink, []api.Component, func(), error) {
	switch cfg.Relay.Sink {
	case config.SinkMQTT:
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return nil, nil, nil, err
		}
		client.SetOnConnect(func() {
			log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost", "error", err)
		})

		s, err := mqttsink.New(client, client.Topics(), cfg.MQTT.QoS)
		if err != nil {
			client.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, nil, err
		}
		closeFn := func() {
			log.Info("disconnecting from MQTT")
			client.Close() //nolint:errcheck // Close always returns nil
		}
		return s, []api.Component{{Name: "mqtt", Checker: client}}, closeFn, nil

	case config.SinkInfluxDB:
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			log.Info("closing InfluxDB client")
			client.Close() //nolint:errcheck // Close always returns nil
		}
		return influxsink.New(client, cfg.InfluxDB.Measurement),
			[]api.Component{{Name: "influxdb", Checker: client}}, closeFn, nil

	default:
		s := energiemon.New(cfg.EnergieMon)
		s.SetLogger(log.With("component", "energiemon"))
		if err := s.Resolve(ctx, cfg.SeriesKeys()); err != nil {
			return nil, nil, nil, err
		}
		return s, nil, func() {}, nil
	}
}

// healthCheck verifies the queue and the sink connection are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - q: Durable queue to check
//   - components: Sink connections to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, q *queue.Queue, components []api.Component) error {
	if err := q.HealthCheck(ctx); err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	for _, c := range components {
		if err := c.Checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}

	return nil
}
