package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/tempstatus-web/internal/config"
	"github.com/skobkin/tempstatus-web/internal/poll"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

const testPath = "hwmon/hwmon0/temp1_input"

// manualScheduler records scheduled functions so tests can drive them.
type manualScheduler struct {
	mu        sync.Mutex
	fns       []func(context.Context)
	cancelled int
}

func (s *manualScheduler) Schedule(fn func(context.Context), _ time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancelled++
	}
}

func (s *manualScheduler) runAll(ctx context.Context) {
	s.mu.Lock()
	fns := append([]func(context.Context){}, s.fns...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// hotplugFetcher reports no sensors until plugged is set.
type hotplugFetcher struct {
	mu      sync.Mutex
	plugged bool
	milli   int64
}

func (f *hotplugFetcher) Fetch(context.Context) (sensor.Readings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.plugged {
		return sensor.Readings{}, nil
	}
	f.milli += 500
	temp := f.milli
	return sensor.Readings{
		"hwmon": {
			{Number: 0, Title: "nvme", Sources: []sensor.Source{
				{Number: 1, Temp: &temp, Label: "Composite", Path: testPath},
			}},
		},
	}, nil
}

func (f *hotplugFetcher) plug() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plugged = true
	f.milli = 40000
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ListenAddr:   ":0",
		PollInterval: time.Second,
		BufferSize:   4,
		SysfsRoot:    t.TempDir(),
		Thresholds:   config.ThresholdConfig{Hot: 70, Critical: 85},
		Chart:        config.ChartConfig{Width: 102, Height: 52, Step: 5},
	}
}

func TestPipelineAttachesLateSensors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := &hotplugFetcher{}

	pipeline, err := NewPipeline(testConfig(t), logger, fetcher)
	if err != nil {
		t.Fatalf("NewPipeline returned error: %v", err)
	}
	if geom := pipeline.Controller.Geometry(); geom.Width != 100 || geom.Height != 50 || geom.Step != 5 {
		t.Fatalf("unexpected geometry %+v", geom)
	}

	sched := &manualScheduler{}
	stop := pipeline.Start(context.Background(), sched, logger)

	if pipeline.Controller.View().Placeholder == "" {
		t.Fatal("expected placeholder before sensors appear")
	}
	if len(sched.fns) != 2 {
		t.Fatalf("expected poll and attach schedules, got %d", len(sched.fns))
	}

	updates, unsubscribe := pipeline.Hub.Subscribe()
	defer unsubscribe()

	fetcher.plug()
	sched.runAll(context.Background())
	if st := pipeline.Controller.Stats(); st.Charts != 1 {
		t.Fatalf("expected late sensor to get a chart, stats %+v", st)
	}

	sensors := pipeline.Controller.Sensors()
	if len(sensors) != 1 || sensors[0].Hot != 70 || sensors[0].Critical != 85 {
		t.Fatalf("configured thresholds not applied: %+v", sensors)
	}

	sched.runAll(context.Background())
	select {
	case u := <-updates:
		if u.Path != testPath {
			t.Fatalf("unexpected update path %q", u.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a chart update after attaching")
	}

	stop()
	stop()
	if sched.cancelled != 2 {
		t.Fatalf("expected both schedules cancelled once, got %d", sched.cancelled)
	}
	if _, ok := <-updates; ok {
		t.Fatal("expected hub subscription to be closed on stop")
	}
}

func TestNewPipelineRejectsBadTemplate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Chart.Template = filepath.Join(t.TempDir(), "missing.json")

	if _, err := NewPipeline(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &hotplugFetcher{}); err == nil {
		t.Fatal("expected error for missing chart template")
	}
}

func TestNewSources(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)

	if got := NewSources(cfg, logger).Names(); !reflect.DeepEqual(got, []string{"hwmon", "thermal"}) {
		t.Fatalf("unexpected sources %v", got)
	}

	cfg.OneWire = true
	if got := NewSources(cfg, logger).Names(); !reflect.DeepEqual(got, []string{"hwmon", "thermal", "onewire"}) {
		t.Fatalf("unexpected sources with 1-wire %v", got)
	}

	readings, err := NewSources(testConfig(t), logger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch on empty sysfs returned error: %v", err)
	}
	for group, entries := range readings {
		if len(entries) != 0 {
			t.Fatalf("expected no %s entries from empty sysfs, got %+v", group, entries)
		}
	}

	var _ poll.Fetcher = NewSources(cfg, logger)
}
