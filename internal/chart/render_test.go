package chart

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRenderPolylineAndMarkers(t *testing.T) {
	t.Parallel()

	geom := Geometry{Width: 20, Height: 100, Step: 5}
	ctx := NewContext("temp1", []*Line{{ID: DefaultLineID}}, geom, 3*time.Second)
	ctx.Advance(samplesAt(time.Unix(1000, 0), 40, 42))

	frame := Render(ctx, 90, 100)

	// peak 42 -> ceiling 50 -> 2px per degree
	if ctx.Info.Peak != 50 {
		t.Fatalf("Peak = %v, want 50", ctx.Info.Peak)
	}
	if frame.Scale != 2 {
		t.Fatalf("Scale = %v, want 2", frame.Scale)
	}
	if ctx.Info.Label25 != 12.5 || ctx.Info.Label50 != 25 || ctx.Info.Label75 != 37.5 {
		t.Fatalf("unexpected labels %v/%v/%v", ctx.Info.Label25, ctx.Info.Label50, ctx.Info.Label75)
	}

	if len(frame.Lines) != 1 {
		t.Fatalf("expected 1 polyline, got %d", len(frame.Lines))
	}
	want := "0,100 0,100 5,100 10,20 15,16 20,16 20,100"
	if got := frame.Lines[0].String(); got != want {
		t.Fatalf("points = %q, want %q", got, want)
	}

	if len(frame.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(frame.Markers))
	}
	if frame.Markers[0].Kind != MarkerHot || frame.Markers[0].Y != -80 {
		t.Fatalf("unexpected hot marker %+v", frame.Markers[0])
	}
	if frame.Markers[1].Kind != MarkerCritical || frame.Markers[1].Y != -100 {
		t.Fatalf("unexpected critical marker %+v", frame.Markers[1])
	}

	if len(frame.Percentile) != 3 || frame.Percentile[1].Y != 50 || frame.Percentile[1].Label != "25 °C" {
		t.Fatalf("unexpected percentile gridlines %+v", frame.Percentile)
	}
}

func TestRenderNaNClampsToBaseline(t *testing.T) {
	t.Parallel()

	geom := Geometry{Width: 10, Height: 50, Step: 5}
	ctx := NewContext("temp1", []*Line{{ID: DefaultLineID}}, geom, time.Second)
	ctx.Values[0] = []float64{math.NaN(), math.NaN()}
	ctx.Info.RawPeak = math.NaN()

	frame := Render(ctx, 90, 100)

	for _, pt := range frame.Lines[0].Points {
		if pt.Y != 50 {
			t.Fatalf("expected baseline y for NaN values, got %+v", frame.Lines[0].Points)
		}
	}
	if ctx.Info.Peak <= 0 {
		t.Fatalf("expected positive ceiling, got %v", ctx.Info.Peak)
	}
}

func TestTimeGridlines(t *testing.T) {
	t.Parallel()

	lines := TimeGridlines(700, 5)
	if len(lines) != 2 {
		t.Fatalf("expected 2 gridlines, got %+v", lines)
	}
	if lines[0].X != 100 || lines[0].Label != "2m" {
		t.Fatalf("unexpected first gridline %+v", lines[0])
	}
	if lines[1].X != 400 || lines[1].Label != "1m" {
		t.Fatalf("unexpected second gridline %+v", lines[1])
	}

	if got := TimeGridlines(0, 5); got != nil {
		t.Fatalf("expected no gridlines for zero width, got %+v", got)
	}
}

func TestSurfaceWriteSVG(t *testing.T) {
	t.Parallel()

	tmpl := DefaultTemplate()
	geom := tmpl.Geometry(302, 300, 5)
	if geom.Width != 300 || geom.Height != 298 {
		t.Fatalf("unexpected geometry %+v", geom)
	}

	ctx := NewContext("temp1", []*Line{{ID: DefaultLineID}}, geom, 3*time.Second)
	ctx.Advance(samplesAt(time.Unix(1000, 0), 40, 42))

	surface := NewSurface(tmpl)
	if _, ok := surface.Frame(); ok {
		t.Fatal("fresh surface should have no frame")
	}
	var empty bytes.Buffer
	if err := surface.WriteSVG(&empty); err == nil {
		t.Fatal("expected error before a frame is applied")
	}

	surface.Apply(Render(ctx, 90, 100))

	var buf bytes.Buffer
	if err := surface.WriteSVG(&buf); err != nil {
		t.Fatalf("WriteSVG returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") || !strings.Contains(out, "</svg>") {
		t.Fatalf("output is not an svg document: %q", out)
	}

	frame, _ := surface.Frame()
	w, h := frame.Width, frame.Height

	pts := frame.Lines[0].Points
	n := len(pts)
	if pts[0] != (Point{X: 0, Y: h}) || pts[n-2].X != w || pts[n-1] != (Point{X: w, Y: h}) {
		t.Fatalf("unexpected polygon corners %+v", pts)
	}
	if pts[n-2].Y != pts[n-3].Y {
		t.Fatalf("closing edge should hold the last value, got %+v", pts[n-3:])
	}
	segs := []string{fmt.Sprintf("M %d %d", pts[0].X, pts[0].Y)}
	for _, pt := range pts[1:] {
		segs = append(segs, fmt.Sprintf("L %d %d", pt.X, pt.Y))
	}
	segs = append(segs, "Z")
	area := pathsWithD(out, strings.Join(segs, "\n"))
	if len(area) != 1 || !strings.Contains(area[0], "stroke:rgba(20,122,255,1.0)") {
		t.Fatalf("temperature area missing or misstyled: %v", area)
	}

	for i, limit := range []float64{90, 100} {
		marker := frame.Markers[i]
		wantY := h - int(math.Floor(limit*frame.Scale))
		if marker.Y != wantY {
			t.Fatalf("%s marker at y=%d, want %d", marker.Kind, marker.Y, wantY)
		}
		if got := pathsWithD(out, fmt.Sprintf("M 0 %d\nL %d %d", wantY, w, wantY)); len(got) == 0 {
			t.Fatalf("%s marker line missing", marker.Kind)
		}
	}

	if len(frame.Percentile) != 3 || len(frame.Time) == 0 {
		t.Fatalf("expected percentile and time gridlines, got %+v / %+v", frame.Percentile, frame.Time)
	}
	for _, g := range frame.Percentile {
		dashed := false
		for _, el := range pathsWithD(out, fmt.Sprintf("M 0 %d\nL %d %d", g.Y, w, g.Y)) {
			if strings.Contains(el, `stroke-dasharray="5.0, 5.0"`) && strings.Contains(el, "stroke-width:1;") {
				dashed = true
			}
		}
		if !dashed {
			t.Fatalf("percentile gridline at y=%d not drawn with a visible stroke", g.Y)
		}
		if !strings.Contains(out, ">"+g.Label+"</text>") {
			t.Fatalf("percentile label %q missing", g.Label)
		}
	}
	if !strings.HasSuffix(frame.Percentile[0].Label, " °C") {
		t.Fatalf("unexpected percentile label %q", frame.Percentile[0].Label)
	}
	for _, g := range frame.Time {
		got := pathsWithD(out, fmt.Sprintf("M %d 0\nL %d %d", g.X, g.X, h))
		if len(got) == 0 || !strings.Contains(got[0], "stroke-width:1;") {
			t.Fatalf("time gridline at x=%d not drawn with a visible stroke: %v", g.X, got)
		}
	}

	for _, el := range pathsWithD(out, "") {
		if strings.Contains(el, "stroke-width:0") {
			t.Fatalf("path drawn with zero stroke width: %s", el)
		}
	}
}

// pathsWithD returns the <path> elements whose d attribute equals d. An
// empty d matches every path.
func pathsWithD(svg, d string) []string {
	var out []string
	for _, chunk := range strings.Split(svg, "<path")[1:] {
		el, _, _ := strings.Cut(chunk, "/>")
		if d == "" || strings.Contains(el, `d="`+d+`"`) {
			out = append(out, el)
		}
	}
	return out
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Placeholder(&buf, DefaultTemplate(), 300, 100, NoSensorsMessage); err != nil {
		t.Fatalf("Placeholder returned error: %v", err)
	}
	if !strings.Contains(buf.String(), NoSensorsMessage) {
		t.Fatalf("placeholder text missing: %q", buf.String())
	}

	if err := Placeholder(&buf, DefaultTemplate(), 0, 100, NoSensorsMessage); err == nil {
		t.Fatal("expected error for empty area")
	}
}

func TestLoadTemplate(t *testing.T) {
	t.Parallel()

	def, err := LoadTemplate("")
	if err != nil {
		t.Fatalf("LoadTemplate default: %v", err)
	}
	if _, ok := def.Lines[DefaultLineID]; !ok {
		t.Fatalf("default template lacks %s", DefaultLineID)
	}

	dir := t.TempDir()
	path := dir + "/tmpl.json"
	writeTestFile(t, path, `{"background":"#111111","markers":{"hot":"#00ff00"}}`)

	custom, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate custom: %v", err)
	}
	if custom.Background != "#111111" || custom.Markers["hot"] != "#00ff00" {
		t.Fatalf("overrides not applied: %+v", custom)
	}
	if custom.Markers["critical"] != def.Markers["critical"] {
		t.Fatalf("unrelated defaults lost: %+v", custom.Markers)
	}

	if def.GridOpacity <= 0 || def.GridOpacity >= 1 {
		t.Fatalf("default grid opacity should fade the guides, got %v", def.GridOpacity)
	}
	writeTestFile(t, path, `{"grid_opacity": 0}`)
	if _, err := LoadTemplate(path); err == nil {
		t.Fatal("expected error for invisible gridlines")
	}

	writeTestFile(t, path, `{"unknown": 1}`)
	if _, err := LoadTemplate(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
	if _, err := LoadTemplate(dir + "/missing.json"); err == nil {
		t.Fatal("expected error for missing file")
	}

	clone := def.Clone()
	clone.Markers["hot"] = "#123456"
	if def.Markers["hot"] == "#123456" {
		t.Fatal("Clone shares marker map with original")
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
