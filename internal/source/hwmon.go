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
	hwmonClassPath = "class/hwmon"

	// GroupHwmon is the readings group filled by Hwmon.
	GroupHwmon = "hwmon"
)

// hwmon threshold files and the point types they map to.
var hwmonThresholds = []struct {
	suffix string
	kind   string
}{
	{"_max", "max"},
	{"_crit", "critical"},
	{"_emergency", "emergency"},
}

// Hwmon reads tempN_* attributes of every chip under class/hwmon.
type Hwmon struct {
	root   string
	namer  PCINamer
	logger *slog.Logger
}

// NewHwmon creates a hwmon reader rooted at the given sysfs mount. namer
// resolves PCI names of chips bound to PCI devices; nil disables it.
func NewHwmon(sysfsRoot string, namer PCINamer, logger *slog.Logger) *Hwmon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hwmon{
		root:   sysfsRoot,
		namer:  namer,
		logger: logger.With("component", "source", "source", GroupHwmon),
	}
}

// Name identifies the source in logs.
func (h *Hwmon) Name() string { return GroupHwmon }

// Fetch implements poll.Fetcher.
func (h *Hwmon) Fetch(ctx context.Context) (sensor.Readings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(h.root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer root.Close()

	chips, err := listIndexed(root, hwmonClassPath, "hwmon")
	if err != nil {
		return nil, err
	}

	entries := make([]sensor.Entry, 0, len(chips))
	for _, chip := range chips {
		entry, err := h.readChip(root, chip)
		if err != nil {
			h.logger.Debug("skipping hwmon chip", "chip", chip.name, "err", err)
			continue
		}
		if len(entry.Sources) == 0 {
			continue
		}
		entries = append(entries, entry)
	}

	return sensor.Readings{GroupHwmon: entries}, nil
}

func (h *Hwmon) readChip(root *os.Root, chip indexedDir) (sensor.Entry, error) {
	dir := filepath.Join(hwmonClassPath, chip.name)

	files, err := fs.ReadDir(root.FS(), dir)
	if err != nil {
		return sensor.Entry{}, fmt.Errorf("read chip dir: %w", err)
	}

	title, _ := readTrim(root, filepath.Join(dir, "name"))
	if name := deviceName(root, filepath.Join(dir, "device"), h.namer); name != "" {
		title = name
	}

	entry := sensor.Entry{
		Number: chip.index,
		Title:  title,
		Item:   chip.name,
	}

	var inputs []int
	for _, f := range files {
		if n, ok := splitIndexed(f.Name(), "temp", "_input"); ok {
			inputs = append(inputs, n)
		}
	}
	sort.Ints(inputs)

	for _, n := range inputs {
		prefix := "temp" + strconv.Itoa(n)
		item := prefix + "_input"

		src := sensor.Source{
			Number: n,
			Temp:   readIntPtr(root, filepath.Join(dir, item)),
			Item:   item,
			Path:   GroupHwmon + "/" + chip.name + "/" + item,
		}
		src.Label, _ = readTrim(root, filepath.Join(dir, prefix+"_label"))

		for _, th := range hwmonThresholds {
			if v := readIntPtr(root, filepath.Join(dir, prefix+th.suffix)); v != nil {
				src.TPoints = append(src.TPoints, sensor.ThresholdPoint{Type: th.kind, Temp: *v})
			}
		}

		entry.Sources = append(entry.Sources, src)
	}

	return entry, nil
}
