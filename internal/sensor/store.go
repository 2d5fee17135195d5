package sensor

import (
	"fmt"
	"sort"
	"time"
)

// DefaultBufferSize is the number of samples kept per sensor.
const DefaultBufferSize = 4

// Store accumulates sensor histories across fetches. It is not safe for
// concurrent use; callers serialise access.
type Store struct {
	bufferSize int
	defaults   Thresholds
	now        func() time.Time

	sensors map[string]*Sensor
	order   []string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp samples.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaults overrides the fallback hot/critical thresholds.
func WithDefaults(t Thresholds) Option {
	return func(s *Store) {
		s.defaults = t
	}
}

// NewStore creates a Store keeping at most bufferSize samples per sensor.
func NewStore(bufferSize int, opts ...Option) (*Store, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	s := &Store{
		bufferSize: bufferSize,
		defaults:   DefaultThresholds,
		now:        time.Now,
		sensors:    make(map[string]*Sensor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest folds a fetch result into the store and returns the sensor map.
// The same map is returned on every call.
func (s *Store) Ingest(readings Readings) map[string]*Sensor {
	now := s.now()

	groups := make([]string, 0, len(readings))
	for name := range readings {
		groups = append(groups, name)
	}
	sort.Strings(groups)

	for _, group := range groups {
		entries := append([]Entry(nil), readings[group]...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Number < entries[j].Number
		})

		for _, entry := range entries {
			if entry.Sources == nil {
				continue
			}
			sources := append([]Source(nil), entry.Sources...)
			sort.SliceStable(sources, func(i, j int) bool {
				return sources[i].Number < sources[j].Number
			})
			for _, src := range sources {
				s.ingestSource(entry, src, now)
			}
		}
	}

	return s.sensors
}

func (s *Store) ingestSource(entry Entry, src Source, now time.Time) {
	if src.Path == "" {
		return
	}

	var current *float64
	value := 0.0
	if src.Temp != nil {
		value = FormatTemp(*src.Temp)
		v := value
		current = &v
	}

	thresholds := ResolveThresholds(src.TPoints, s.defaults)

	sn, ok := s.sensors[src.Path]
	if !ok {
		sn = &Sensor{
			Path:    src.Path,
			History: make([]Sample, 0, s.bufferSize),
		}
		s.sensors[src.Path] = sn
		s.order = append(s.order, src.Path)
	}
	sn.Name = ResolveName(entry, src)
	sn.Current = current
	sn.Hot = thresholds.Hot
	sn.Critical = thresholds.Critical
	sn.TPoints = src.TPoints

	s.push(sn, Sample{Time: now, Value: value})
}

func (s *Store) push(sn *Sensor, sample Sample) {
	if n := len(sn.History); n > 0 && !sample.Time.After(sn.History[n-1].Time) {
		return
	}
	if len(sn.History) >= s.bufferSize {
		copy(sn.History, sn.History[1:])
		sn.History[len(sn.History)-1] = sample
		return
	}
	sn.History = append(sn.History, sample)
}

// Get returns the sensor registered under path.
func (s *Store) Get(path string) (*Sensor, bool) {
	sn, ok := s.sensors[path]
	return sn, ok
}

// Paths lists sensor paths in first-seen order.
func (s *Store) Paths() []string {
	return append([]string(nil), s.order...)
}

// Len reports the number of known sensors.
func (s *Store) Len() int {
	return len(s.sensors)
}

// BufferSize reports the per-sensor history capacity.
func (s *Store) BufferSize() int {
	return s.bufferSize
}
