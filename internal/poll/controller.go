// Package poll runs the fetch → ingest → chart update loop.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 3 * time.Second

// Fetcher returns the latest raw readings.
type Fetcher interface {
	Fetch(ctx context.Context) (sensor.Readings, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (sensor.Readings, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context) (sensor.Readings, error) {
	return f(ctx)
}

// Presenter receives the refreshed surface and summary of one chart. It is
// called once per chart per tick and must not block.
type Presenter func(surface *chart.Surface, info chart.Info)

// Options configures a Controller.
type Options struct {
	Interval time.Duration
	Geometry chart.Geometry
	Template chart.Template
}

// ChartView is one entry of the rendered view.
type ChartView struct {
	Path    string
	Name    string
	Surface *chart.Surface
}

// View is the result of rendering the known sensors. Placeholder is set
// instead of Charts when no sensor has been discovered.
type View struct {
	Placeholder string
	Charts      []ChartView
}

// ChartSnapshot is a consistent copy of one chart's state.
type ChartSnapshot struct {
	Sensor sensor.Sensor
	Info   chart.Info
	Frame  chart.Frame
	Ready  bool
}

// Stats summarises the poll loop health.
type Stats struct {
	Ticks       uint64
	Failures    uint64
	Charts      int
	Loaded      bool
	LastSuccess time.Time
	LastError   string
}

type binding struct {
	ctx       *chart.Context
	surface   *chart.Surface
	presenter Presenter
}

// Controller owns the sample store and every chart context. Ticks are
// serialised; readers may call Sensors, Chart and Stats concurrently.
type Controller struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	tickMu sync.Mutex
	// lifeMu serializes Start and Stop so a schedule is never orphaned.
	lifeMu sync.Mutex

	mu      sync.RWMutex
	store   *sensor.Store
	sensors map[string]*sensor.Sensor
	charts  map[string]*binding
	order   []string
	stats   Stats
	cancel  func()
}

// NewController builds a Controller around store.
func NewController(fetcher Fetcher, store *sensor.Store, opts Options, logger *slog.Logger) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Geometry.Capacity() <= 0 {
		return nil, fmt.Errorf("chart geometry %dx%d leaves no room for samples", opts.Geometry.Width, opts.Geometry.Height)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "poll"),
		store:   store,
		charts:  make(map[string]*binding),
	}, nil
}

// Interval returns the poll period.
func (c *Controller) Interval() time.Duration {
	return c.opts.Interval
}

// Geometry returns the drawable area shared by all charts.
func (c *Controller) Geometry() chart.Geometry {
	return c.opts.Geometry
}

// Template returns the drawing-surface template charts are cloned from.
func (c *Controller) Template() chart.Template {
	return c.opts.Template.Clone()
}

// Load performs the initial fetch. A failure leaves the store empty and is
// returned to the caller; the scheduled ticks retry on their own.
func (c *Controller) Load(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	readings, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.recordFailure(err)
		return fmt.Errorf("initial fetch: %w", err)
	}

	c.mu.Lock()
	c.sensors = c.store.Ingest(readings)
	c.stats.Loaded = true
	c.stats.LastSuccess = time.Now()
	c.stats.LastError = ""
	count := len(c.sensors)
	c.mu.Unlock()

	c.logger.Info("initial readings loaded", "sensors", count)
	return nil
}

// View lists one chart per known sensor, or the placeholder message when
// there is nothing to show. It never creates chart contexts.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := c.store.Paths()
	if len(paths) == 0 {
		return View{Placeholder: chart.NoSensorsMessage}
	}

	view := View{Charts: make([]ChartView, 0, len(paths))}
	for _, path := range paths {
		cv := ChartView{Path: path}
		if s, ok := c.store.Get(path); ok {
			cv.Name = s.Name
		}
		if b, ok := c.charts[path]; ok {
			cv.Surface = b.surface
		}
		view.Charts = append(view.Charts, cv)
	}
	return view
}

// Attach creates the chart context for path. Attaching a path twice replaces
// the previous context.
func (c *Controller) Attach(path string, lines []*chart.Line, presenter Presenter) *chart.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachLocked(path, lines, presenter)
}

// AttachAll attaches a default single-line chart to every known sensor that
// has none yet and returns the number of charts created.
func (c *Controller) AttachAll(presenter Presenter) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	created := 0
	for _, path := range c.store.Paths() {
		if _, ok := c.charts[path]; ok {
			continue
		}
		c.attachLocked(path, []*chart.Line{{ID: chart.DefaultLineID}}, presenter)
		created++
	}
	return created
}

func (c *Controller) attachLocked(path string, lines []*chart.Line, presenter Presenter) *chart.Surface {
	if _, ok := c.charts[path]; !ok {
		c.order = append(c.order, path)
	}
	b := &binding{
		ctx:       chart.NewContext(path, lines, c.opts.Geometry, c.opts.Interval),
		surface:   chart.NewSurface(c.opts.Template),
		presenter: presenter,
	}
	c.charts[path] = b
	return b.surface
}

type presentation struct {
	presenter Presenter
	surface   *chart.Surface
	info      chart.Info
}

// Tick runs one poll cycle. A failed fetch is logged and skips the chart
// updates of this tick.
func (c *Controller) Tick(ctx context.Context) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	readings, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.recordFailure(err)
		c.logger.Warn("fetch failed, skipping tick", "err", err)
		return
	}

	c.mu.Lock()
	c.sensors = c.store.Ingest(readings)
	c.stats.Ticks++
	c.stats.Loaded = true
	c.stats.LastSuccess = time.Now()
	c.stats.LastError = ""

	pending := make([]presentation, 0, len(c.order))
	for _, path := range c.order {
		b := c.charts[path]
		s, ok := c.sensors[path]
		if !ok {
			continue
		}
		b.ctx.Advance(s.History)
		frame := chart.Render(b.ctx, s.Hot, s.Critical)
		b.surface.Apply(frame)
		if b.presenter != nil {
			pending = append(pending, presentation{
				presenter: b.presenter,
				surface:   b.surface,
				info:      b.ctx.Info.Clone(),
			})
		}
	}
	c.mu.Unlock()

	for _, p := range pending {
		p.presenter(p.surface, p.info)
	}
}

// Start schedules Tick on s at the configured interval. Calling Start on a
// running controller is a no-op.
func (c *Controller) Start(s Scheduler) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.RLock()
	running := c.cancel != nil
	c.mu.RUnlock()
	if running {
		return
	}

	// Schedule may run a first tick synchronously, which takes mu.
	cancel := s.Schedule(c.Tick, c.opts.Interval)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.logger.Info("poll loop started", "interval", c.opts.Interval)
}

// Stop cancels the schedule and drops every chart context. Sensor history is
// kept so a later Start resumes from it. A concurrent Start finishes first.
func (c *Controller) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	c.mu.Lock()
	c.charts = make(map[string]*binding)
	c.order = nil
	c.mu.Unlock()
	c.logger.Info("poll loop stopped")
}

// Sensors returns copies of the known sensors in discovery order.
func (c *Controller) Sensors() []sensor.Sensor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := c.store.Paths()
	out := make([]sensor.Sensor, 0, len(paths))
	for _, path := range paths {
		if s, ok := c.store.Get(path); ok {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Chart returns the state of the chart attached to path.
func (c *Controller) Chart(path string) (ChartSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.charts[path]
	if !ok {
		return ChartSnapshot{}, false
	}
	snap := ChartSnapshot{Info: b.ctx.Info.Clone()}
	if s, ok := c.store.Get(path); ok {
		snap.Sensor = s.Clone()
	}
	snap.Frame, snap.Ready = b.surface.Frame()
	return snap, true
}

// Surface returns the drawing surface attached to path.
func (c *Controller) Surface(path string) (*chart.Surface, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.charts[path]
	if !ok {
		return nil, false
	}
	return b.surface, true
}

// Stats returns a copy of the loop counters.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.stats
	st.Charts = len(c.charts)
	return st
}

func (c *Controller) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Failures++
	c.stats.LastError = err.Error()
}
