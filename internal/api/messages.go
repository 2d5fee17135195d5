// Package api defines the JSON payloads exchanged with browsers.
package api

import (
	"math"
	"time"

	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

// SensorInfo describes one sensor for listings.
type SensorInfo struct {
	Path     string                  `json:"path"`
	Name     string                  `json:"name"`
	Current  *float64                `json:"current"`
	Hot      float64                 `json:"temp_hot"`
	Critical float64                 `json:"temp_critical"`
	TPoints  []sensor.ThresholdPoint `json:"tpoints,omitempty"`
	Updated  *time.Time              `json:"updated,omitempty"`
}

// NewSensorInfo converts a store sensor to its listing form.
func NewSensorInfo(s sensor.Sensor) SensorInfo {
	info := SensorInfo{
		Path:     s.Path,
		Name:     s.Name,
		Current:  s.Current,
		Hot:      s.Hot,
		Critical: s.Critical,
		TPoints:  s.TPoints,
	}
	if n := len(s.History); n > 0 {
		ts := s.History[n-1].Time
		info.Updated = &ts
	}
	return info
}

// NewSensorList converts sensors preserving order.
func NewSensorList(sensors []sensor.Sensor) []SensorInfo {
	out := make([]SensorInfo, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, NewSensorInfo(s))
	}
	return out
}

// ChartInfo is chart.Info with non-finite values sent as null.
type ChartInfo struct {
	LineCurrent []*float64 `json:"line_current"`
	LineAverage []*float64 `json:"line_average"`
	LinePeak    []*float64 `json:"line_peak"`
	Peak        *float64   `json:"peak"`
	Label25     *float64   `json:"label_25"`
	Label50     *float64   `json:"label_50"`
	Label75     *float64   `json:"label_75"`
	Interval    int        `json:"interval"`
	Timeframe   float64    `json:"timeframe"`
}

// NewChartInfo converts info for transport.
func NewChartInfo(info chart.Info) ChartInfo {
	return ChartInfo{
		LineCurrent: finiteSlice(info.LineCurrent),
		LineAverage: finiteSlice(info.LineAverage),
		LinePeak:    finiteSlice(info.LinePeak),
		Peak:        finite(info.Peak),
		Label25:     finite(info.Label25),
		Label50:     finite(info.Label50),
		Label75:     finite(info.Label75),
		Interval:    info.Interval,
		Timeframe:   info.Timeframe,
	}
}

// ChartMessage carries one chart refresh.
type ChartMessage struct {
	Type  string      `json:"type"`
	Path  string      `json:"path"`
	Info  ChartInfo   `json:"info"`
	Frame chart.Frame `json:"frame"`
}

// NewChartMessage constructs a chart payload.
func NewChartMessage(path string, info chart.Info, frame chart.Frame) ChartMessage {
	return ChartMessage{
		Type:  "chart",
		Path:  path,
		Info:  NewChartInfo(info),
		Frame: frame,
	}
}

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	IntervalMS int            `json:"interval_ms"`
	Window     chart.Geometry `json:"window"`
	Sensors    []SensorInfo   `json:"sensors"`
	Message    string         `json:"message,omitempty"`
}

// NewHelloMessage constructs a hello payload. message carries the empty-state
// text when no sensors are known.
func NewHelloMessage(sessionID string, interval time.Duration, window chart.Geometry, sensors []SensorInfo, message string) HelloMessage {
	return HelloMessage{
		Type:       "hello",
		SessionID:  sessionID,
		IntervalMS: int(interval / time.Millisecond),
		Window:     window,
		Sensors:    sensors,
		Message:    message,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// SubscribeMessage narrows the stream to one sensor. An empty path restores
// the full stream.
type SubscribeMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finiteSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = finite(v)
	}
	return out
}
