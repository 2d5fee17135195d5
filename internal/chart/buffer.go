package chart

import (
	"math"
	"time"

	"github.com/skobkin/tempstatus-web/internal/sensor"
)

// DefaultStep is the horizontal distance in pixels between two samples.
const DefaultStep = 5

// Geometry describes the drawable area of a chart.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Step   int `json:"step"`
}

// Capacity is the number of samples that fit into the chart window.
func (g Geometry) Capacity() int {
	step := g.Step
	if step <= 0 {
		step = DefaultStep
	}
	if g.Width <= 0 {
		return 0
	}
	return g.Width / step
}

func (g Geometry) step() int {
	if g.Step <= 0 {
		return DefaultStep
	}
	return g.Step
}

// Line describes one plotted series. Multiply defaults to 1 and Offset to 0.
type Line struct {
	ID       string   `json:"id"`
	Multiply *float64 `json:"multiply,omitempty"`
	Offset   *float64 `json:"offset,omitempty"`
}

func (l *Line) transform(value float64) float64 {
	multiply, offset := 1.0, 0.0
	if l.Multiply != nil {
		multiply = *l.Multiply
	}
	if l.Offset != nil {
		offset = *l.Offset
	}
	v := value * multiply
	return v - math.Min(v, offset)
}

// Info is the per-tick summary handed to presenters.
type Info struct {
	LineCurrent []float64 `json:"line_current"`
	LineAverage []float64 `json:"line_average"`
	LinePeak    []float64 `json:"line_peak"`
	// RawPeak is the largest buffered value, Peak the axis ceiling derived from it.
	RawPeak   float64 `json:"-"`
	Peak      float64 `json:"peak"`
	Label25   float64 `json:"label_25"`
	Label50   float64 `json:"label_50"`
	Label75   float64 `json:"label_75"`
	Interval  int     `json:"interval"`
	Timeframe float64 `json:"timeframe"`
}

// Clone returns a copy that does not share slices with the receiver.
func (i Info) Clone() Info {
	i.LineCurrent = append([]float64(nil), i.LineCurrent...)
	i.LineAverage = append([]float64(nil), i.LineAverage...)
	i.LinePeak = append([]float64(nil), i.LinePeak...)
	return i
}

// Context is the rolling state of one rendered chart.
type Context struct {
	Path      string
	Lines     []*Line
	Geometry  Geometry
	Values    [][]float64
	Fill      int
	Timestamp time.Time
	Info      Info
}

// NewContext creates the chart state for a sensor path. Nil entries in lines
// are disabled slots. Buffers start zero-filled so that data scrolls in from
// the right edge.
func NewContext(path string, lines []*Line, geom Geometry, interval time.Duration) *Context {
	capacity := geom.Capacity()

	active := 0
	for _, l := range lines {
		if l != nil {
			active++
		}
	}

	values := make([][]float64, active)
	for i := range values {
		values[i] = make([]float64, capacity)
	}

	return &Context{
		Path:     path,
		Lines:    lines,
		Geometry: geom,
		Values:   values,
		Info: Info{
			LineCurrent: make([]float64, active),
			LineAverage: make([]float64, active),
			LinePeak:    make([]float64, active),
			Interval:    int(interval / time.Second),
			Timeframe:   float64(capacity) / 60,
		},
	}
}

// Advance consumes samples newer than the context watermark and refreshes
// the per-line current, peak and average values. Samples at or before the
// watermark are ignored, so replaying a tick changes nothing.
func (c *Context) Advance(samples []sensor.Sample) {
	capacity := c.Geometry.Capacity()
	var newest time.Time

	i := 0
	for _, line := range c.Lines {
		if line == nil {
			continue
		}
		for _, sample := range samples {
			if !sample.Time.After(c.Timestamp) {
				continue
			}
			if i == 0 {
				c.Fill++
				if sample.Time.After(newest) {
					newest = sample.Time
				}
			}
			v := line.transform(sample.Value)
			c.Info.LineCurrent[i] = v
			c.Values[i] = append(c.Values[i], v)
		}
		i++
	}

	if c.Fill > capacity {
		c.Fill = capacity
	}

	c.Info.RawPeak = math.NaN()
	for i := range c.Values {
		if n := len(c.Values[i]); n > capacity {
			c.Values[i] = append(c.Values[i][:0], c.Values[i][n-capacity:]...)
		}

		peak := math.NaN()
		sum := 0.0
		for _, v := range c.Values[i] {
			if math.IsNaN(peak) || v > peak {
				peak = v
			}
			sum += v
		}
		c.Info.LinePeak[i] = peak
		if c.Fill > 0 {
			c.Info.LineAverage[i] = sum / float64(c.Fill)
		} else {
			c.Info.LineAverage[i] = 0
		}

		if math.IsNaN(c.Info.RawPeak) || peak > c.Info.RawPeak {
			c.Info.RawPeak = peak
		}
	}

	if !newest.IsZero() {
		c.Timestamp = newest
	}
}
