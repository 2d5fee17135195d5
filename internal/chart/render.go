package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Threshold marker kinds.
const (
	MarkerHot      = "hot"
	MarkerCritical = "critical"
)

// Point is a pixel coordinate on the drawing surface.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Polyline is the closed fill area of one line.
type Polyline struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
}

// String formats the points as an SVG "points" attribute.
func (p Polyline) String() string {
	var sb strings.Builder
	for i, pt := range p.Points {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(pt.X))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(pt.Y))
	}
	return sb.String()
}

// Marker is a horizontal threshold line.
type Marker struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Y     int     `json:"y"`
}

// Gridline is a labelled guide line. Horizontal gridlines carry Y, vertical
// ones carry X.
type Gridline struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Label string `json:"label"`
}

// Frame is everything needed to draw one chart tick.
type Frame struct {
	Path       string     `json:"path"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Scale      float64    `json:"scale"`
	Lines      []Polyline `json:"lines"`
	Markers    []Marker   `json:"markers"`
	Percentile []Gridline `json:"percentile"`
	Time       []Gridline `json:"time"`
}

// Render maps the buffered values of c onto the drawing surface and fills
// the scale-dependent fields of c.Info.
func Render(c *Context, hot, critical float64) Frame {
	w, h, step := c.Geometry.Width, c.Geometry.Height, c.Geometry.step()

	niceMax := NiceMax(c.Info.RawPeak)
	scale := float64(h) / niceMax

	c.Info.Peak = niceMax
	c.Info.Label25 = 0.25 * niceMax
	c.Info.Label50 = 0.50 * niceMax
	c.Info.Label75 = 0.75 * niceMax

	frame := Frame{
		Path:   c.Path,
		Width:  w,
		Height: h,
		Scale:  scale,
		Time:   TimeGridlines(w, step),
	}

	i := 0
	for _, line := range c.Lines {
		if line == nil {
			continue
		}
		values := c.Values[i]
		i++

		points := make([]Point, 0, len(values)+3)
		points = append(points, Point{X: 0, Y: h})
		y := 0
		for j, v := range values {
			y = project(v, h, scale)
			points = append(points, Point{X: j * step, Y: y})
		}
		points = append(points, Point{X: w, Y: y}, Point{X: w, Y: h})

		frame.Lines = append(frame.Lines, Polyline{ID: line.ID, Points: points})
	}

	frame.Markers = []Marker{
		{Kind: MarkerHot, Value: hot, Y: project(hot, h, scale)},
		{Kind: MarkerCritical, Value: critical, Y: project(critical, h, scale)},
	}

	for _, pct := range []float64{0.25, 0.50, 0.75} {
		frame.Percentile = append(frame.Percentile, Gridline{
			Y:     h - int(math.Floor(pct*float64(h))),
			Label: fmt.Sprintf("%d °C", int(pct*niceMax)),
		})
	}

	return frame
}

// TimeGridlines places a vertical guide every minute's worth of samples,
// counted from the right edge and labelled with the elapsed minutes.
func TimeGridlines(width, step int) []Gridline {
	if step <= 0 {
		step = DefaultStep
	}
	span := step * 60
	if width <= 0 {
		return nil
	}

	var lines []Gridline
	for x := width % span; x < width; x += span {
		minutes := math.Round(float64(width-x) / float64(step) / 60)
		lines = append(lines, Gridline{X: x, Label: fmt.Sprintf("%dm", int(minutes))})
	}
	return lines
}

func project(v float64, h int, scale float64) int {
	y := float64(h) - math.Floor(v*scale)
	if math.IsNaN(y) {
		return h
	}
	return int(y)
}
