package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

const testPath = "hwmon0/temp1_input"

type fetchStep struct {
	readings sensor.Readings
	err      error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

func (f *scriptedFetcher) Fetch(context.Context) (sensor.Readings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[min(f.calls, len(f.steps)-1)]
	f.calls++
	return step.readings, step.err
}

type presentRecorder struct {
	mu    sync.Mutex
	infos []chart.Info
	paths []string
}

func (r *presentRecorder) present(surface *chart.Surface, info chart.Info) {
	frame, _ := surface.Frame()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
	r.paths = append(r.paths, frame.Path)
}

func (r *presentRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.infos)
}

func readingsWith(path string, milli int64) sensor.Readings {
	return sensor.Readings{
		"hwmon": {
			{Number: 0, Title: "coretemp", Sources: []sensor.Source{
				{Number: 1, Temp: &milli, Label: "Package id 0", Item: "temp1_input", Path: path},
			}},
		},
	}
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func newTestController(t *testing.T, fetcher Fetcher, interval time.Duration) *Controller {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sensor.NewStore(sensor.DefaultBufferSize, sensor.WithClock(steppingClock(time.Unix(1000, 0), 3*time.Second)))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	c, err := NewController(fetcher, store, Options{
		Interval: interval,
		Geometry: chart.Geometry{Width: 20, Height: 100, Step: 5},
		Template: chart.DefaultTemplate(),
	}, logger)
	if err != nil {
		t.Fatalf("NewController returned error: %v", err)
	}
	return c
}

func TestControllerEndToEnd(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{readings: readingsWith(testPath, 40000)},
		{readings: readingsWith(testPath, 42000)},
	}}
	c := newTestController(t, fetcher, time.Second)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	view := c.View()
	if view.Placeholder != "" || len(view.Charts) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Charts[0].Name != "coretemp / Package id 0" {
		t.Fatalf("unexpected chart name %q", view.Charts[0].Name)
	}

	rec := &presentRecorder{}
	if n := c.AttachAll(rec.present); n != 1 {
		t.Fatalf("AttachAll created %d charts, want 1", n)
	}
	if n := c.AttachAll(rec.present); n != 0 {
		t.Fatalf("second AttachAll created %d charts, want 0", n)
	}

	c.Tick(context.Background())

	if rec.count() != 1 {
		t.Fatalf("presenter called %d times, want 1", rec.count())
	}
	info := rec.infos[0]
	if info.LineCurrent[0] != 42 {
		t.Fatalf("LineCurrent = %v, want 42", info.LineCurrent[0])
	}
	if info.LinePeak[0] != 42 || info.Peak != 50 {
		t.Fatalf("peak = %v/%v, want 42/50", info.LinePeak[0], info.Peak)
	}
	if rec.paths[0] != testPath {
		t.Fatalf("presented path %q", rec.paths[0])
	}

	sensors := c.Sensors()
	if len(sensors) != 1 {
		t.Fatalf("expected 1 sensor, got %d", len(sensors))
	}
	history := sensors[0].History
	if len(history) != 2 || history[0].Value != 40 || history[1].Value != 42 {
		t.Fatalf("unexpected history %+v", history)
	}

	snap, ok := c.Chart(testPath)
	if !ok || !snap.Ready {
		t.Fatalf("chart snapshot not ready: %+v", snap)
	}
	if snap.Sensor.Path != testPath || snap.Frame.Width != 20 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	st := c.Stats()
	if st.Ticks != 1 || st.Failures != 0 || !st.Loaded || st.Charts != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestControllerEmptyFetchShowsPlaceholder(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{{readings: sensor.Readings{}}}}
	c := newTestController(t, fetcher, time.Second)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	view := c.View()
	if view.Placeholder != chart.NoSensorsMessage || len(view.Charts) != 0 {
		t.Fatalf("unexpected view %+v", view)
	}
	if n := c.AttachAll(nil); n != 0 {
		t.Fatalf("AttachAll created %d charts for no sensors", n)
	}
	if st := c.Stats(); st.Charts != 0 {
		t.Fatalf("expected no chart contexts, got %d", st.Charts)
	}
}

func TestControllerFetchFailureSkipsTick(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{readings: readingsWith(testPath, 40000)},
		{err: errors.New("backend unavailable")},
		{readings: readingsWith(testPath, 41000)},
	}}
	c := newTestController(t, fetcher, time.Second)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	rec := &presentRecorder{}
	c.AttachAll(rec.present)

	c.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatalf("presenter called after failed fetch")
	}
	st := c.Stats()
	if st.Failures != 1 || st.LastError == "" || st.Ticks != 0 {
		t.Fatalf("unexpected stats after failure %+v", st)
	}

	c.Tick(context.Background())
	if rec.count() != 1 {
		t.Fatalf("presenter called %d times, want 1", rec.count())
	}
	if got := rec.infos[0].LineCurrent[0]; got != 41 {
		t.Fatalf("LineCurrent = %v, want 41", got)
	}
	if st := c.Stats(); st.LastError != "" || st.Ticks != 1 {
		t.Fatalf("unexpected stats after recovery %+v", st)
	}
}

func TestControllerLoadFailure(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{{err: errors.New("boom")}}}
	c := newTestController(t, fetcher, time.Second)

	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected Load to fail")
	}
	if st := c.Stats(); st.Loaded || st.Failures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if view := c.View(); view.Placeholder == "" {
		t.Fatalf("expected placeholder after failed load, got %+v", view)
	}
}

func TestControllerSkipsAbsentPaths(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{{readings: readingsWith(testPath, 40000)}}}
	c := newTestController(t, fetcher, time.Second)

	rec := &presentRecorder{}
	c.Attach("thermal/thermal_zone9", []*chart.Line{{ID: chart.DefaultLineID}}, rec.present)

	c.Tick(context.Background())

	if rec.count() != 0 {
		t.Fatalf("presenter called for a path absent from the fetch")
	}
	snap, ok := c.Chart("thermal/thermal_zone9")
	if !ok || snap.Ready {
		t.Fatalf("absent chart should exist without a frame: %+v", snap)
	}
}

func TestControllerStartStop(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{{readings: readingsWith(testPath, 40000)}}}
	c := newTestController(t, fetcher, 5*time.Millisecond)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	c.AttachAll(nil)

	c.Start(TickerScheduler{})
	c.Start(TickerScheduler{})
	waitFor(t, 500*time.Millisecond, func() bool { return c.Stats().Ticks >= 2 })

	c.Stop()
	stopped := c.Stats()
	if stopped.Charts != 0 {
		t.Fatalf("expected chart contexts to be dropped, got %d", stopped.Charts)
	}

	time.Sleep(30 * time.Millisecond)
	if after := c.Stats().Ticks; after != stopped.Ticks {
		t.Fatalf("ticks continued after Stop: %d -> %d", stopped.Ticks, after)
	}

	c.Stop()
}

// gatedScheduler holds Schedule open until release is closed.
type gatedScheduler struct {
	entered   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
}

func (g *gatedScheduler) Schedule(func(context.Context), time.Duration) func() {
	close(g.entered)
	<-g.release
	return func() { g.cancelled.Store(true) }
}

func TestControllerStopWaitsForStart(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{{readings: readingsWith(testPath, 40000)}}}
	c := newTestController(t, fetcher, time.Hour)
	gate := &gatedScheduler{entered: make(chan struct{}), release: make(chan struct{})}

	started := make(chan struct{})
	go func() {
		c.Start(gate)
		close(started)
	}()
	<-gate.entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while Start was still scheduling")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate.release)
	for _, ch := range []chan struct{}{started, stopped} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("Start/Stop did not finish")
		}
	}
	if !gate.cancelled.Load() {
		t.Fatal("schedule installed by Start was never cancelled")
	}
}

func TestNewControllerValidates(t *testing.T) {
	t.Parallel()

	store, err := sensor.NewStore(1)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	fetcher := &scriptedFetcher{steps: []fetchStep{{}}}

	if _, err := NewController(nil, store, Options{Geometry: chart.Geometry{Width: 10}}, nil); err == nil {
		t.Fatal("expected error for nil fetcher")
	}
	if _, err := NewController(fetcher, nil, Options{Geometry: chart.Geometry{Width: 10}}, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewController(fetcher, store, Options{Geometry: chart.Geometry{Width: 2}}, nil); err == nil {
		t.Fatal("expected error for geometry without capacity")
	}

	c, err := NewController(fetcher, store, Options{Geometry: chart.Geometry{Width: 10}}, nil)
	if err != nil {
		t.Fatalf("NewController returned error: %v", err)
	}
	if c.Interval() != DefaultInterval {
		t.Fatalf("Interval = %v, want %v", c.Interval(), DefaultInterval)
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
