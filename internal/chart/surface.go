package chart

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// NoSensorsMessage is shown instead of charts when nothing was discovered.
const NoSensorsMessage = "No temperature sensors available"

// Surface is a drawing surface bound to one chart. It keeps the last applied
// frame and renders it as SVG on demand.
type Surface struct {
	tmpl Template

	mu    sync.RWMutex
	frame Frame
	ready bool
}

// NewSurface clones tmpl into a fresh surface.
func NewSurface(tmpl Template) *Surface {
	return &Surface{tmpl: tmpl.Clone()}
}

// Apply stores the frame to be drawn.
func (s *Surface) Apply(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.ready = true
}

// Frame returns the last applied frame.
func (s *Surface) Frame() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.ready
}

// WriteSVG renders the last applied frame. It fails until a frame with a
// drawable area has been applied.
func (s *Surface) WriteSVG(w io.Writer) error {
	frame, _ := s.Frame()
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("surface has no drawable area")
	}

	r, err := gochart.SVG(frame.Width, frame.Height)
	if err != nil {
		return fmt.Errorf("create svg renderer: %w", err)
	}

	s.drawBackground(r, frame.Width, frame.Height)
	s.drawTimeGrid(r, frame)
	s.drawPercentileGrid(r, frame)

	for _, line := range frame.Lines {
		if len(line.Points) == 0 {
			continue
		}
		style := s.tmpl.lineStyle(line.ID)
		r.ResetStyle()
		r.SetStrokeColor(color(style.Stroke, 1))
		r.SetFillColor(color(style.Fill, style.FillOpacity))
		r.SetStrokeWidth(1)
		r.MoveTo(line.Points[0].X, line.Points[0].Y)
		for _, pt := range line.Points[1:] {
			r.LineTo(pt.X, pt.Y)
		}
		r.Close()
		r.FillStroke()
	}

	for _, marker := range frame.Markers {
		r.ResetStyle()
		r.SetStrokeColor(color(s.tmpl.Markers[marker.Kind], 1))
		r.SetStrokeWidth(1)
		r.MoveTo(0, marker.Y)
		r.LineTo(frame.Width, marker.Y)
		r.Stroke()
	}

	return r.Save(w)
}

func (s *Surface) drawBackground(r gochart.Renderer, width, height int) {
	r.ResetStyle()
	r.SetFillColor(color(s.tmpl.Background, 1))
	r.SetStrokeColor(color(s.tmpl.Grid, 1))
	r.SetStrokeWidth(float64(s.tmpl.Border))
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.FillStroke()
}

func (s *Surface) drawTimeGrid(r gochart.Renderer, frame Frame) {
	for _, g := range frame.Time {
		r.ResetStyle()
		r.SetStrokeColor(color(s.tmpl.Grid, s.tmpl.GridOpacity))
		r.SetStrokeWidth(1)
		r.MoveTo(g.X, 0)
		r.LineTo(g.X, frame.Height)
		r.Stroke()
		s.text(r, g.Label, g.X+5, 15)
	}
}

func (s *Surface) drawPercentileGrid(r gochart.Renderer, frame Frame) {
	for _, g := range frame.Percentile {
		r.ResetStyle()
		r.SetStrokeColor(color(s.tmpl.Grid, s.tmpl.GridOpacity))
		r.SetStrokeWidth(1)
		r.SetStrokeDashArray([]float64{5, 5})
		r.MoveTo(0, g.Y)
		r.LineTo(frame.Width, g.Y)
		r.Stroke()
		s.text(r, g.Label, 5, g.Y-2)
	}
}

func (s *Surface) text(r gochart.Renderer, body string, x, y int) {
	body = html.EscapeString(body)
	r.ResetStyle()
	r.SetFontSize(s.tmpl.FontSize)
	if s.tmpl.TextShadow != "" {
		r.SetFontColor(color(s.tmpl.TextShadow, 1))
		r.Text(body, x+1, y+1)
	}
	r.SetFontColor(color(s.tmpl.Text, 1))
	r.Text(body, x, y)
}

// Placeholder renders the empty state used when no sensors are known.
func Placeholder(w io.Writer, tmpl Template, width, height int, message string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("placeholder has no drawable area")
	}
	r, err := gochart.SVG(width, height)
	if err != nil {
		return fmt.Errorf("create svg renderer: %w", err)
	}
	s := &Surface{tmpl: tmpl}
	s.drawBackground(r, width, height)

	r.ResetStyle()
	r.SetFontSize(s.tmpl.FontSize)
	r.SetFontColor(color(s.tmpl.Grid, 1))
	r.Text(html.EscapeString(message), 10, height/2)
	return r.Save(w)
}

func color(hex string, opacity float64) drawing.Color {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return drawing.Color{}
	}
	c := drawing.ColorFromHex(hex)
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return c.WithAlpha(uint8(opacity * 255))
}
