package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

var (
	colorHeader = lipgloss.Color("51")
	colorBorder = lipgloss.Color("62")
	colorDim    = lipgloss.Color("240")
	colorOk     = lipgloss.Color("78")
	colorWarn   = lipgloss.Color("220")
	colorHigh   = lipgloss.Color("208")
	colorCrit   = lipgloss.Color("196")
)

const (
	colCurrent = 2
	noValue    = "–"
)

type row struct {
	sensor sensor.Sensor
	info   *chart.Info
}

// tempColor grades v against the sensor thresholds. Values within 15% of
// hot are flagged early.
func tempColor(v, hot, critical float64) lipgloss.Color {
	switch {
	case v >= critical:
		return colorCrit
	case v >= hot:
		return colorHigh
	case v >= hot*0.85:
		return colorWarn
	default:
		return colorOk
	}
}

func formatTemp(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return noValue
	}
	return fmt.Sprintf("%.1f°C", v)
}

func renderTable(rows []row, sources []string) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorHeader).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	dimStyle := cellStyle.Foreground(colorDim)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("PATH", "NAME", "CURRENT", "HOT", "CRITICAL", "AVERAGE", "PEAK")

	for _, r := range rows {
		s := r.sensor
		current, average, peak := noValue, noValue, noValue
		if s.Current != nil {
			current = formatTemp(*s.Current)
		}
		if r.info != nil && len(r.info.LineAverage) > 0 {
			average = formatTemp(r.info.LineAverage[0])
			peak = formatTemp(r.info.LinePeak[0])
		}
		t.Row(s.Path, s.Name, current, formatTemp(s.Hot), formatTemp(s.Critical), average, peak)
	}

	t.StyleFunc(func(rowIdx, col int) lipgloss.Style {
		if rowIdx == table.HeaderRow {
			return headerStyle
		}
		if rowIdx < 0 || rowIdx >= len(rows) {
			return cellStyle
		}
		s := rows[rowIdx].sensor
		switch {
		case col == 0:
			return dimStyle
		case col == colCurrent && s.Current != nil:
			return cellStyle.Foreground(tempColor(*s.Current, s.Hot, s.Critical)).Bold(true)
		default:
			return cellStyle
		}
	})

	footer := lipgloss.NewStyle().Foreground(colorDim).
		Render(fmt.Sprintf("%d sensors from %s", len(rows), strings.Join(sources, ", ")))
	return lipgloss.JoinVertical(lipgloss.Left, t.Render(), footer)
}
