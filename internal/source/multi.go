package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skobkin/tempstatus-web/internal/sensor"
)

// Source is a named reading provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (sensor.Readings, error)
}

// Multi merges the readings of several sources. It fails only when every
// source fails; partial failures are logged and the remaining groups are
// returned.
type Multi struct {
	sources []Source
	logger  *slog.Logger
}

// NewMulti combines sources in order. Later sources win on group clashes.
func NewMulti(logger *slog.Logger, sources ...Source) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{
		sources: sources,
		logger:  logger.With("component", "source"),
	}
}

// Names lists the combined sources.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		names = append(names, src.Name())
	}
	return names
}

// Fetch implements poll.Fetcher.
func (m *Multi) Fetch(ctx context.Context) (sensor.Readings, error) {
	if len(m.sources) == 0 {
		return sensor.Readings{}, nil
	}

	out := make(sensor.Readings)
	var errs []error
	for _, src := range m.sources {
		readings, err := src.Fetch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		for group, entries := range readings {
			out[group] = entries
		}
	}

	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		m.logger.Warn("source fetch failed", "err", err)
	}
	return out, nil
}
