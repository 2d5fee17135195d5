package httpserver

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/tempstatus-web/internal/poll"
	"github.com/skobkin/tempstatus-web/internal/sensor"
)

const metricsNamespace = "tempstatus"

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsSlots.active.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsSlots.rejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled since start.",
		}, func() float64 {
			return float64(s.requestIDs.Load())
		}),
	}

	if s.poll != nil {
		collectors = append(collectors, newPollCollector(s.poll))
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

type pollCollector struct {
	poll *poll.Controller

	ticks       *prometheus.Desc
	failures    *prometheus.Desc
	charts      *prometheus.Desc
	lastSuccess *prometheus.Desc
	sensors     []sensorMetric
}

type sensorMetric struct {
	desc    *prometheus.Desc
	extract func(s sensor.Sensor) (float64, bool)
}

func newPollCollector(controller *poll.Controller) prometheus.Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, subsystem, name),
			help,
			labels,
			nil,
		)
	}

	return &pollCollector{
		poll:        controller,
		ticks:       desc("poll", "ticks_total", "Poll cycles completed with a successful fetch."),
		failures:    desc("poll", "fetch_failures_total", "Fetches that failed and skipped their cycle."),
		charts:      desc("poll", "charts", "Chart contexts currently attached."),
		lastSuccess: desc("poll", "last_success_timestamp_seconds", "Unix timestamp of the latest successful fetch."),
		sensors: []sensorMetric{
			{
				desc: desc("sensor", "temperature_celsius", "Latest temperature reading.", "path", "name"),
				extract: func(s sensor.Sensor) (float64, bool) {
					if s.Current == nil {
						return 0, false
					}
					return *s.Current, true
				},
			},
			{
				desc: desc("sensor", "hot_celsius", "Hot threshold in effect for the sensor.", "path", "name"),
				extract: func(s sensor.Sensor) (float64, bool) {
					return s.Hot, true
				},
			},
			{
				desc: desc("sensor", "critical_celsius", "Critical threshold in effect for the sensor.", "path", "name"),
				extract: func(s sensor.Sensor) (float64, bool) {
					return s.Critical, true
				},
			},
			{
				desc: desc("sensor", "sample_age_seconds", "Seconds elapsed since the latest sample was recorded.", "path", "name"),
				extract: func(s sensor.Sensor) (float64, bool) {
					if len(s.History) == 0 {
						return 0, false
					}
					return max(time.Since(s.History[len(s.History)-1].Time).Seconds(), 0), true
				},
			},
		},
	}
}

func (c *pollCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticks
	ch <- c.failures
	ch <- c.charts
	ch <- c.lastSuccess
	for _, metric := range c.sensors {
		ch <- metric.desc
	}
}

func (c *pollCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.poll.Stats()
	ch <- prometheus.MustNewConstMetric(c.ticks, prometheus.CounterValue, float64(st.Ticks))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.Failures))
	ch <- prometheus.MustNewConstMetric(c.charts, prometheus.GaugeValue, float64(st.Charts))
	if !st.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, float64(st.LastSuccess.Unix()))
	}

	for _, s := range c.poll.Sensors() {
		for _, metric := range c.sensors {
			value, ok := metric.extract(s)
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value, s.Path, s.Name)
		}
	}
}
