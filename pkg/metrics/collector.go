// Package metrics exports the supervisor's progress as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the mission metrics. It implements supervisor.Observer,
// supervisor.CaptureObserver and supervisor.TelemetryObserver.
type Collector struct {
	gatherer prometheus.Gatherer

	Transitions       *prometheus.CounterVec
	CurrentWaypoint   prometheus.Gauge
	Captures          *prometheus.CounterVec
	Aborts            *prometheus.CounterVec
	TelemetryFailures prometheus.Counter
	LegDurations      prometheus.Histogram

	mu       sync.Mutex
	legStart time.Time
}

// NewCollector registers the mission metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_state_transitions_total",
		Help: "Supervisor state transitions, labeled by source and target state.",
	}, []string{"from", "to"}), "scan_state_transitions_total")
	if err != nil {
		return nil, err
	}

	waypoint, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_current_waypoint",
		Help: "Index of the waypoint being flown or measured, -1 outside a traversal.",
	}), "scan_current_waypoint")
	if err != nil {
		return nil, err
	}
	waypoint.Set(-1)

	captures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_captures_total",
		Help: "Measurement captures, labeled by result.",
	}, []string{"result"}), "scan_captures_total")
	if err != nil {
		return nil, err
	}

	aborts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_aborts_total",
		Help: "Aborted missions, labeled by the state the abort happened in.",
	}, []string{"state"}), "scan_aborts_total")
	if err != nil {
		return nil, err
	}

	telemetry, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_telemetry_failures_total",
		Help: "Failed telemetry reads.",
	}), "scan_telemetry_failures_total")
	if err != nil {
		return nil, err
	}

	legs, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scan_leg_duration_seconds",
		Help:    "Time from leaving one waypoint to measuring the next.",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}), "scan_leg_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Transitions:       transitions,
		CurrentWaypoint:   waypoint,
		Captures:          captures,
		Aborts:            aborts,
		TelemetryFailures: telemetry,
		LegDurations:      legs,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// OnTransition implements supervisor.Observer.
func (c *Collector) OnTransition(ctx context.Context, t supervisor.Transition) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(t.From.Kind.String(), t.To.Kind.String()).Inc()

	switch t.To.Kind {
	case supervisor.StateTravelling:
		c.CurrentWaypoint.Set(float64(t.To.WaypointIndex))
		c.mu.Lock()
		c.legStart = t.At
		c.mu.Unlock()
	case supervisor.StateMeasuring:
		c.CurrentWaypoint.Set(float64(t.To.WaypointIndex))
		c.mu.Lock()
		if !c.legStart.IsZero() {
			c.LegDurations.Observe(t.At.Sub(c.legStart).Seconds())
			c.legStart = time.Time{}
		}
		c.mu.Unlock()
	case supervisor.StateAborted:
		c.Aborts.WithLabelValues(t.From.Kind.String()).Inc()
	case supervisor.StateManual, supervisor.StateCompleted:
		c.CurrentWaypoint.Set(-1)
	}
}

// OnCapture implements supervisor.CaptureObserver.
func (c *Collector) OnCapture(ctx context.Context, waypointIndex int, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.Captures.WithLabelValues(result).Inc()
}

// OnTelemetryFailure implements supervisor.TelemetryObserver.
func (c *Collector) OnTelemetryFailure(ctx context.Context, err error) {
	if c == nil {
		return
	}
	c.TelemetryFailures.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
