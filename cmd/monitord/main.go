package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pingsantohq/monitord/internal/config"
	"github.com/pingsantohq/monitord/internal/events"
	"github.com/pingsantohq/monitord/internal/loader"
	"github.com/pingsantohq/monitord/internal/logging"
	"github.com/pingsantohq/monitord/internal/metrics"
	"github.com/pingsantohq/monitord/internal/monitorset"
	"github.com/pingsantohq/monitord/internal/persist"
	"github.com/pingsantohq/monitord/internal/refresh"
	"github.com/pingsantohq/monitord/internal/supervisor"
	"github.com/pingsantohq/monitord/pkg/types"
)

func main() {
	ctx := context.Background()

	// A missing .env is fine; it only supplies MONITORD_CONFIG.
	_ = godotenv.Load()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "monitord failed: %v\n", err)
		}
		os.Exit(1)
	}
}

// errReported marks failures that run has already printed.
var errReported = errors.New("error already reported")

type cliArgs struct {
	monitorFile string
	configPath  string
}

// options are the only accepted flags, each spelled exactly this way and
// followed by a separate value argument.
var options = map[string]bool{"-monitorFile": true, "-config": true}

// parseArgs returns ok=false when the arguments are unusable; the caller then
// takes the usage path with an empty configuration.
func parseArgs(args []string, stderr io.Writer) (cliArgs, bool) {
	for i := 0; i < len(args); i += 2 {
		if !options[args[i]] {
			fmt.Fprintf(stderr, "Error: Unknown option '%s'\n", args[i])
			return cliArgs{}, false
		}
		if i+1 >= len(args) {
			fmt.Fprintf(stderr, "Error: %s option requires a value.\n", args[i])
			return cliArgs{}, false
		}
	}

	fs := flag.NewFlagSet("monitord", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	monitorFile := fs.String("monitorFile", "", "Path to the monitors JSON file")
	configPath := fs.String("config", "", "Path to monitord configuration file")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cliArgs{}, false
	}
	return cliArgs{monitorFile: *monitorFile, configPath: *configPath}, true
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, ok := parseArgs(args, stderr)
	if !ok {
		printUsage(stdout)
		return nil
	}

	cfg, err := loadConfig(ctx, cli.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	monitorFile := cli.monitorFile
	if monitorFile == "" {
		monitorFile = cfg.Monitors.File
	}
	if monitorFile == "" {
		printUsage(stdout)
		return nil
	}

	data, err := loader.Load(ctx, monitorFile, loader.Options{
		PublicKey:        cfg.Monitors.PublicKey,
		RequireSignature: cfg.Monitors.RequireSignature,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error reading monitor file: %v\n", err)
		printUsage(stdout)
		return fmt.Errorf("%w: load monitors: %w", errReported, err)
	}

	data = data.WithRandomResults(refresh.RandomValue, time.Now())
	if err := printRoundTrip(stdout, data); err != nil {
		return err
	}

	logger := logging.New(stdout)
	errLogger := logging.New(stderr)
	logger.Printf("monitord starting (monitor_file=%s, monitors=%d, output_dir=%s)", monitorFile, len(data.Monitors), cfg.Persist.OutputDir)

	set := monitorset.New(data)
	persister, err := persist.New(set, cfg.Persist.OutputDir)
	if err != nil {
		return fmt.Errorf("init persister: %w", err)
	}

	recorder, closeEvents, err := newRecorder(cfg.Persist, logger, errLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEvents(); err != nil {
			errLogger.Printf("failed to close events file: %v", err)
		}
	}()

	metricsStore := metrics.NewStore()
	sup := supervisor.New(set, persister,
		supervisor.WithRefreshInterval(cfg.Run.RefreshInterval),
		supervisor.WithPersistInterval(cfg.Run.PersistInterval),
		supervisor.WithLifetime(cfg.Run.Lifetime),
		supervisor.WithPollInterval(cfg.Run.PollInterval),
		supervisor.WithTickResolution(cfg.Run.TickResolution),
		supervisor.WithWorkers(cfg.Run.Workers),
		supervisor.WithFinalSnapshot(cfg.Persist.FinalSnapshot),
		supervisor.WithMetricsStore(metricsStore),
		supervisor.WithLogger(logger),
		supervisor.WithRecorder(recorder),
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	drained := make(chan int, 1)
	go func() {
		n := 0
		for range sup.Errors() {
			n++
		}
		drained <- n
	}()

	if err := sup.Run(runCtx); err != nil {
		return fmt.Errorf("run monitors: %w", err)
	}
	cycleErrors := <-drained

	report := sup.Report()
	if err := config.UpdateState(ctx, persister.Dir(), stateFromReport(monitorFile, report)); err != nil {
		errLogger.Printf("failed to record run state: %v", err)
	}

	logger.Printf("monitord stopped (refresh_cycles=%d, persist_cycles=%d, cycle_errors=%d)",
		report.Metrics.RefreshCycles, report.Metrics.PersistCycles, cycleErrors)
	return nil
}

// newRecorder returns the console recorder, fanned out to a JSON events file
// when one is configured.
func newRecorder(cfg config.PersistConfig, logger, errLogger *log.Logger) (events.Recorder, func() error, error) {
	console := events.NewLogRecorder(logger, errLogger)
	path := cfg.EventsPath()
	if path == "" {
		return console, func() error { return nil }, nil
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open events file %q: %w", path, err)
	}
	return events.NewMulti(console, events.NewJSONRecorder(f)), f.Close, nil
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path != "" {
		return config.Load(ctx, path)
	}
	return config.LoadFromEnv(ctx)
}

// printRoundTrip writes the initial set as snapshot JSON and checks that it
// decodes back to the same value.
func printRoundTrip(w io.Writer, data types.MonitorData) error {
	payload, err := persist.Encode(data)
	if err != nil {
		return fmt.Errorf("encode monitors: %w", err)
	}
	fmt.Fprintln(w, string(payload))

	decoded, err := loader.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode monitors: %w", err)
	}
	if !reflect.DeepEqual(normalize(data), normalize(decoded)) {
		return errors.New("monitors changed across JSON round trip")
	}
	fmt.Fprintf(w, "decoded %d monitors from JSON\n", len(decoded.Monitors))
	return nil
}

// normalize maps a nil monitor slice to an empty one; both encode the same way.
func normalize(data types.MonitorData) types.MonitorData {
	if data.Monitors == nil {
		data.Monitors = []types.Monitor{}
	}
	return data
}

func stateFromReport(monitorFile string, report supervisor.Report) config.State {
	return config.State{
		RunID:           report.RunID,
		MonitorFile:     monitorFile,
		Monitors:        report.Monitors,
		StartedAt:       report.StartedAt.UTC(),
		StoppedAt:       report.StoppedAt.UTC(),
		RefreshCycles:   report.Metrics.RefreshCycles,
		PersistCycles:   report.Metrics.PersistCycles,
		PersistFailures: report.Metrics.PersistFailures,
		Skipped:         report.Metrics.Skipped,
		LastSnapshot: config.SnapshotState{
			Path:     report.Metrics.LastSnapshot,
			StoredAt: report.Metrics.LastSnapshotAt.UTC(),
		},
		LastError: report.Metrics.LastError,
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: monitord -monitorFile /path/to/given/monitors.json/file [-config /etc/monitord/monitord.yaml]")
}
