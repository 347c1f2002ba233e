package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the netviz collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	rejections    *prometheus.CounterVec
	dangling      prometheus.Counter
	layouts       prometheus.Counter
	layoutTicks   prometheus.Histogram
	size          *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]time.Time // cycle id -> structural change time
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netviz_cycles_total",
				Help: "Completed mutation cycles by operation",
			},
			[]string{"op"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netviz_cycle_duration_seconds",
				Help:    "Time from structural change to reprojection",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"op"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netviz_rejections_total",
				Help: "Rejected operations by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		dangling: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netviz_dangling_facts_total",
			Help: "Stored facts skipped during projection because an endpoint was unregistered",
		}),
		layouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netviz_layouts_settled_total",
			Help: "Layout runs that converged or hit the tick limit",
		}),
		layoutTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netviz_layout_ticks",
			Help:    "Solver ticks per settled layout run",
			Buckets: prometheus.LinearBuckets(25, 25, 12),
		}),
		size: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netviz_graph_size",
				Help: "Current number of nodes, links and groups",
			},
			[]string{"collection"},
		),
		started: make(map[string]time.Time),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.rejections, m.dangling, m.layouts, m.layoutTicks, m.size)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStructuralChange: func(_ context.Context, e *domain.CycleEvent) {
			m.mu.Lock()
			m.started[e.CycleID] = e.Timestamp
			m.mu.Unlock()
		},
		OnReprojected: func(_ context.Context, e *domain.CycleEvent) {
			m.mu.Lock()
			start, ok := m.started[e.CycleID]
			delete(m.started, e.CycleID)
			m.mu.Unlock()

			m.cycles.WithLabelValues(e.Op).Inc()
			if ok {
				m.cycleDuration.WithLabelValues(e.Op).Observe(e.Timestamp.Sub(start).Seconds())
			}
			m.size.WithLabelValues("nodes").Set(float64(e.Nodes))
			m.size.WithLabelValues("links").Set(float64(e.Links))
			m.size.WithLabelValues("groups").Set(float64(e.Groups))
		},
		OnRejected: func(_ context.Context, e *domain.RejectEvent) {
			m.rejections.WithLabelValues(e.Op, KindOf(e.Err)).Inc()
		},
		OnDanglingFact: func(context.Context, *domain.DanglingEvent) {
			m.dangling.Inc()
		},
		OnLayoutSettled: func(_ context.Context, e *domain.LayoutEvent) {
			m.layouts.Inc()
			m.layoutTicks.Observe(float64(e.Ticks))
		},
	}
}

// KindOf names the error class of a rejection for metric labels and API replies.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrDuplicateFact):
		return "duplicate"
	case errors.Is(err, domain.ErrNoSuchNode):
		return "no_such_node"
	case errors.Is(err, domain.ErrReference):
		return "reference"
	case errors.Is(err, domain.ErrClosed):
		return "closed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStore):
		return "store"
	default:
		return "internal"
	}
}
