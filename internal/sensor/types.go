// Package sensor models temperature sources and keeps a bounded,
// timestamp-ordered history of readings per sensor.
package sensor

import "time"

// Readings is a raw fetch result: sensor group name to ordered entries.
type Readings map[string][]Entry

// Entry groups the readings of one device (a hwmon chip, a thermal zone, ...).
type Entry struct {
	Number  int      `json:"number"`
	Title   string   `json:"title,omitempty"`
	Item    string   `json:"item,omitempty"`
	Sources []Source `json:"sources,omitempty"`
}

// Source is a single temperature input of an entry. Temp is in millidegrees
// Celsius and nil when the input could not be read.
type Source struct {
	Number  int              `json:"number"`
	Temp    *int64           `json:"temp,omitempty"`
	Label   string           `json:"label,omitempty"`
	Item    string           `json:"item,omitempty"`
	Path    string           `json:"path"`
	TPoints []ThresholdPoint `json:"tpoints,omitempty"`
}

// ThresholdPoint is a named temperature boundary reported by the hardware.
type ThresholdPoint struct {
	Type string `json:"type"`
	Temp int64  `json:"temp"`
}

// Sample is a single timestamped temperature in degrees Celsius.
type Sample struct {
	Time  time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Sensor is a temperature source keyed by its stable path.
type Sensor struct {
	Path     string           `json:"path"`
	Name     string           `json:"name"`
	Current  *float64         `json:"current"`
	Hot      float64          `json:"temp_hot"`
	Critical float64          `json:"temp_critical"`
	TPoints  []ThresholdPoint `json:"tpoints,omitempty"`
	History  []Sample         `json:"history"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Sensor) Clone() Sensor {
	out := *s
	if s.Current != nil {
		v := *s.Current
		out.Current = &v
	}
	out.TPoints = append([]ThresholdPoint(nil), s.TPoints...)
	out.History = append([]Sample(nil), s.History...)
	return out
}
