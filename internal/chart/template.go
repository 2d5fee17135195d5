package chart

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed assets/template.json
var defaultTemplate []byte

// DefaultLineID is the element id of the temperature area.
const DefaultLineID = "temp_line"

// LineStyle styles one fill area.
type LineStyle struct {
	Stroke      string  `json:"stroke"`
	Fill        string  `json:"fill"`
	FillOpacity float64 `json:"fill_opacity"`
}

// Template is the drawing-surface description shared by every chart. It is
// loaded once and cloned per sensor.
type Template struct {
	Border     int                  `json:"border"`
	Background string               `json:"background"`
	Grid       string               `json:"grid"`
	Text       string               `json:"text"`
	TextShadow string               `json:"text_shadow"`
	FontSize   float64              `json:"font_size"`
	Lines      map[string]LineStyle `json:"lines"`
	Markers    map[string]string    `json:"markers"`

	// GridOpacity fades the guide lines; the border keeps full opacity.
	GridOpacity float64 `json:"grid_opacity"`
}

// DefaultTemplate returns the built-in template.
func DefaultTemplate() Template {
	t, err := decodeTemplate(defaultTemplate, Template{})
	if err != nil {
		panic(fmt.Sprintf("chart: embedded template is invalid: %v", err))
	}
	return t
}

// LoadTemplate reads a JSON template from path on top of the built-in one.
// An empty path selects the built-in template.
func LoadTemplate(path string) (Template, error) {
	base := DefaultTemplate()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read chart template: %w", err)
	}
	t, err := decodeTemplate(data, base)
	if err != nil {
		return Template{}, fmt.Errorf("decode chart template %s: %w", path, err)
	}
	return t, nil
}

func decodeTemplate(data []byte, base Template) (Template, error) {
	t := base.Clone()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Template{}, err
	}
	if t.Border < 0 {
		return Template{}, fmt.Errorf("border must be >= 0")
	}
	if t.GridOpacity <= 0 || t.GridOpacity > 1 {
		return Template{}, fmt.Errorf("grid_opacity must be in (0, 1]")
	}
	return t, nil
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	out := t
	out.Lines = make(map[string]LineStyle, len(t.Lines))
	for k, v := range t.Lines {
		out.Lines[k] = v
	}
	out.Markers = make(map[string]string, len(t.Markers))
	for k, v := range t.Markers {
		out.Markers[k] = v
	}
	return out
}

// Geometry derives the drawable area from the container size, leaving room
// for the border on both sides.
func (t Template) Geometry(containerWidth, containerHeight, step int) Geometry {
	return Geometry{
		Width:  max(containerWidth-2*t.Border, 0),
		Height: max(containerHeight-2*t.Border, 0),
		Step:   step,
	}
}

func (t Template) lineStyle(id string) LineStyle {
	if style, ok := t.Lines[id]; ok {
		return style
	}
	return t.Lines[DefaultLineID]
}
