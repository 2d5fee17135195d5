package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/skobkin/tempstatus-web/internal/sensor"
)

const (
	thermalClassPath = "class/thermal"

	// GroupThermal is the readings group filled by Thermal.
	GroupThermal = "thermal"
)

// Thermal reads ACPI/platform thermal zones.
type Thermal struct {
	root   string
	logger *slog.Logger
}

// NewThermal creates a thermal zone reader rooted at the given sysfs mount.
func NewThermal(sysfsRoot string, logger *slog.Logger) *Thermal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thermal{
		root:   sysfsRoot,
		logger: logger.With("component", "source", "source", GroupThermal),
	}
}

// Name identifies the source in logs.
func (t *Thermal) Name() string { return GroupThermal }

// Fetch implements poll.Fetcher.
func (t *Thermal) Fetch(ctx context.Context) (sensor.Readings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(t.root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer root.Close()

	zones, err := listIndexed(root, thermalClassPath, "thermal_zone")
	if err != nil {
		return nil, err
	}

	entries := make([]sensor.Entry, 0, len(zones))
	for _, zone := range zones {
		entry, err := readZone(root, zone)
		if err != nil {
			t.logger.Debug("skipping thermal zone", "zone", zone.name, "err", err)
			continue
		}
		entries = append(entries, entry)
	}

	return sensor.Readings{GroupThermal: entries}, nil
}

func readZone(root *os.Root, zone indexedDir) (sensor.Entry, error) {
	dir := filepath.Join(thermalClassPath, zone.name)

	files, err := fs.ReadDir(root.FS(), dir)
	if err != nil {
		return sensor.Entry{}, fmt.Errorf("read zone dir: %w", err)
	}

	title, _ := readTrim(root, filepath.Join(dir, "type"))
	if title == "" {
		title = zone.name
	}

	var trips []int
	for _, f := range files {
		if n, ok := splitIndexed(f.Name(), "trip_point_", "_type"); ok {
			trips = append(trips, n)
		}
	}
	sort.Ints(trips)

	var points []sensor.ThresholdPoint
	for _, n := range trips {
		prefix := filepath.Join(dir, "trip_point_"+strconv.Itoa(n))
		kind, err := readTrim(root, prefix+"_type")
		if err != nil || kind == "" {
			continue
		}
		temp, err := readInt(root, prefix+"_temp")
		if err != nil {
			continue
		}
		points = append(points, sensor.ThresholdPoint{Type: kind, Temp: temp})
	}

	return sensor.Entry{
		Number: zone.index,
		Title:  title,
		Item:   zone.name,
		Sources: []sensor.Source{{
			Temp:    readIntPtr(root, filepath.Join(dir, "temp")),
			Label:   zone.name,
			Path:    GroupThermal + "/" + zone.name,
			TPoints: points,
		}},
	}, nil
}
