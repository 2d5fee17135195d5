// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/config"
	"github.com/skobkin/tempstatus-web/internal/httpserver"
	"github.com/skobkin/tempstatus-web/internal/poll"
	"github.com/skobkin/tempstatus-web/internal/sensor"
	"github.com/skobkin/tempstatus-web/internal/source"
)

const shutdownTimeout = 10 * time.Second

// Pipeline is the polling half of the service: the controller that owns the
// sensor store and charts, and the hub that fans chart updates out.
type Pipeline struct {
	Controller *poll.Controller
	Hub        *poll.Hub
	Sources    *source.Multi
}

// NewSources builds the fetcher for cfg: hwmon and thermal zones under the
// sysfs root, plus 1-wire probes when enabled.
func NewSources(cfg config.Config, logger *slog.Logger) *source.Multi {
	sources := []source.Source{
		source.NewHwmon(cfg.SysfsRoot, source.LookupPCIName, logger),
		source.NewThermal(cfg.SysfsRoot, logger),
	}
	if cfg.OneWire {
		sources = append(sources, source.NewOneWire(logger))
	}
	return source.NewMulti(logger, sources...)
}

// NewPipeline builds the store, controller and hub described by cfg around
// fetcher. A nil fetcher selects the sysfs sources.
func NewPipeline(cfg config.Config, logger *slog.Logger, fetcher poll.Fetcher) (*Pipeline, error) {
	tmpl, err := chart.LoadTemplate(cfg.Chart.Template)
	if err != nil {
		return nil, fmt.Errorf("load chart template: %w", err)
	}
	geom := tmpl.Geometry(cfg.Chart.Width, cfg.Chart.Height, cfg.Chart.Step)

	store, err := sensor.NewStore(cfg.BufferSize, sensor.WithDefaults(sensor.Thresholds{
		Hot:      cfg.Thresholds.Hot,
		Critical: cfg.Thresholds.Critical,
	}))
	if err != nil {
		return nil, fmt.Errorf("init sample store: %w", err)
	}

	p := &Pipeline{Hub: poll.NewHub(poll.DefaultHubBuffer)}
	if fetcher == nil {
		p.Sources = NewSources(cfg, logger)
		fetcher = p.Sources
	}

	p.Controller, err = poll.NewController(fetcher, store, poll.Options{
		Interval: cfg.PollInterval,
		Geometry: geom,
		Template: tmpl,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init poll controller: %w", err)
	}
	return p, nil
}

// Start performs the initial load, attaches charts and schedules the poll
// loop on s. A failed initial load is logged; ticks keep retrying.
func (p *Pipeline) Start(ctx context.Context, s poll.Scheduler, logger *slog.Logger) (stop func()) {
	if err := p.Controller.Load(ctx); err != nil {
		logger.Warn("initial sensor load failed", "err", err)
	}
	if n := p.Controller.AttachAll(p.Hub.Present); n > 0 {
		logger.Info("charts attached", "count", n)
	}
	if view := p.Controller.View(); view.Placeholder != "" {
		logger.Warn(view.Placeholder)
	}

	p.Controller.Start(s)

	// Sensors can show up after startup; give them charts on the next cycle.
	cancelAttach := s.Schedule(func(context.Context) {
		if n := p.Controller.AttachAll(p.Hub.Present); n > 0 {
			logger.Info("charts attached", "count", n)
		}
	}, p.Controller.Interval())

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelAttach()
			p.Controller.Stop()
			p.Hub.Close()
		})
	}
}

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	pipeline, err := NewPipeline(cfg, baseLogger, nil)
	if err != nil {
		return err
	}
	appLogger.Info("sensor sources configured", "sources", pipeline.Sources.Names())

	stopPipeline := pipeline.Start(ctx, poll.TickerScheduler{}, appLogger)
	defer stopPipeline()

	srv := httpserver.New(cfg, baseLogger, pipeline.Controller, pipeline.Hub)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		appLogger.Info("shutdown initiated", "reason", ctx.Err())

		// Hijacked WebSocket connections are not tracked by Shutdown; closing
		// the hub ends their sessions.
		stopPipeline()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			shutdownErr = fmt.Errorf("http shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr = errors.Join(shutdownErr, err)
		}
		if shutdownErr != nil {
			return shutdownErr
		}

		appLogger.Info("shutdown complete")
		return nil
	}
}
