package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/yryz/ds18b20"

	"github.com/skobkin/tempstatus-web/internal/sensor"
)

// GroupOneWire is the readings group filled by OneWire.
const GroupOneWire = "onewire"

// OneWire reads DS18B20 probes attached to the w1 bus.
type OneWire struct {
	list   func() ([]string, error)
	read   func(id string) (float64, error)
	logger *slog.Logger
}

// NewOneWire creates a reader backed by the kernel w1 driver.
func NewOneWire(logger *slog.Logger) *OneWire {
	if logger == nil {
		logger = slog.Default()
	}
	return &OneWire{
		list:   ds18b20.Sensors,
		read:   ds18b20.Temperature,
		logger: logger.With("component", "source", "source", GroupOneWire),
	}
}

// Name identifies the source in logs.
func (o *OneWire) Name() string { return GroupOneWire }

// Fetch implements poll.Fetcher. A probe that fails to read is listed
// without a value.
func (o *OneWire) Fetch(ctx context.Context) (sensor.Readings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := o.list()
	if err != nil {
		return nil, fmt.Errorf("list w1 sensors: %w", err)
	}
	if len(ids) == 0 {
		return sensor.Readings{}, nil
	}

	entry := sensor.Entry{Title: "DS18B20", Item: "w1"}
	for i, id := range ids {
		src := sensor.Source{
			Number: i,
			Label:  id,
			Item:   id,
			Path:   GroupOneWire + "/" + id,
		}
		celsius, err := o.read(id)
		if err != nil {
			o.logger.Warn("failed to read probe", "id", id, "err", err)
		} else {
			milli := int64(math.Round(celsius * 1000))
			src.Temp = &milli
		}
		entry.Sources = append(entry.Sources, src)
	}

	return sensor.Readings{GroupOneWire: {entry}}, nil
}
