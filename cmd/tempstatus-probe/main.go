// Command tempstatus-probe discovers the local temperature sensors, samples
// them once (or a few times) and prints what the dashboard would chart.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skobkin/tempstatus-web/internal/api"
	"github.com/skobkin/tempstatus-web/internal/app"
	"github.com/skobkin/tempstatus-web/internal/config"
)

type options struct {
	sysfsRoot  string
	oneWire    bool
	samples    int
	interval   time.Duration
	jsonOutput bool
	verbose    bool
}

func parseFlags(cfg config.Config) options {
	var opts options
	flag.StringVar(&opts.sysfsRoot, "sysfs", cfg.SysfsRoot, "Path to sysfs root")
	flag.BoolVar(&opts.oneWire, "onewire", cfg.OneWire, "Also read DS18B20 probes on the 1-wire bus")
	flag.IntVar(&opts.samples, "samples", 2, "Number of readings to take per sensor; averages need at least two")
	flag.DurationVar(&opts.interval, "interval", time.Second, "Delay between readings")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the sensor list as JSON")
	flag.BoolVar(&opts.verbose, "v", false, "Log source diagnostics")
	flag.Parse()
	return opts
}

func main() {
	if _, err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := parseFlags(cfg)
	if opts.samples < 1 {
		opts.samples = 1
	}
	cfg.SysfsRoot = opts.sysfsRoot
	cfg.OneWire = opts.oneWire
	cfg.PollInterval = opts.interval

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	pipeline, err := app.NewPipeline(cfg, logger, nil)
	if err != nil {
		return err
	}
	controller := pipeline.Controller

	if err := controller.Load(ctx); err != nil {
		return err
	}
	controller.AttachAll(nil)

	for i := 1; i < opts.samples; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.interval):
		}
		controller.Tick(ctx)
	}

	sensors := controller.Sensors()
	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(api.NewSensorList(sensors)); err != nil {
			return fmt.Errorf("encode sensors: %w", err)
		}
		return nil
	}

	if view := controller.View(); view.Placeholder != "" {
		fmt.Println(view.Placeholder)
		return nil
	}

	rows := make([]row, 0, len(sensors))
	for _, s := range sensors {
		r := row{sensor: s}
		if snap, ok := controller.Chart(s.Path); ok && snap.Ready {
			r.info = &snap.Info
		}
		rows = append(rows, r)
	}
	fmt.Println(renderTable(rows, pipeline.Sources.Names()))
	return nil
}
