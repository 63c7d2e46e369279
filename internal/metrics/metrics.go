// Package metrics exposes the sentinel's Prometheus metrics. A nil *Registry
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the sentinel.
type Registry struct {
	reg *prometheus.Registry

	// Task metrics
	TaskRuns     *prometheus.CounterVec
	TaskPanics   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Scanner metrics
	Candidates    prometheus.Gauge
	Opportunities *prometheus.CounterVec
	SourceErrors  *prometheus.CounterVec
	HaltCacheHits *prometheus.CounterVec

	// Portfolio metrics
	ExitSignals     *prometheus.CounterVec
	PositionsAtRisk prometheus.Gauge
	MarketOpen      prometheus.Gauge

	// Persistence metrics
	StoreErrors *prometheus.CounterVec
}

// New creates a registry with every sentinel metric registered on a
// dedicated prometheus.Registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		TaskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_task_runs_total",
				Help: "Scheduler task iterations by task and result",
			},
			[]string{"task", "result"},
		),
		TaskPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_task_panics_total",
				Help: "Panics recovered inside scheduler tasks",
			},
			[]string{"task"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_task_duration_seconds",
				Help:    "Duration of one scheduler task iteration",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"task"},
		),
		Candidates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_scan_candidates",
				Help: "Candidate symbols in the most recent scan",
			},
		),
		Opportunities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_opportunities_total",
				Help: "Squeeze opportunities surfaced by urgency",
			},
			[]string{"urgency"},
		),
		SourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_source_errors_total",
				Help: "Failed requests to market-data sources",
			},
			[]string{"source"},
		),
		HaltCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_halt_cache_total",
				Help: "Halt list lookups by outcome (hit, miss)",
			},
			[]string{"outcome"},
		),
		ExitSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_exit_signals_total",
				Help: "Exit signals produced by recommendation level",
			},
			[]string{"level"},
		),
		PositionsAtRisk: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_positions_at_risk",
				Help: "Positions with an exit signal in the most recent pass",
			},
		),
		MarketOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_market_open",
				Help: "1 while the regular session is open",
			},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_store_errors_total",
				Help: "Persistence failures by operation",
			},
			[]string{"op"},
		),
	}
	r.reg.MustRegister(
		r.TaskRuns, r.TaskPanics, r.TaskDuration,
		r.Candidates, r.Opportunities, r.SourceErrors, r.HaltCacheHits,
		r.ExitSignals, r.PositionsAtRisk, r.MarketOpen,
		r.StoreErrors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveTask(task string, start time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.TaskRuns.WithLabelValues(task, result).Inc()
	r.TaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

func (r *Registry) TaskPanic(task string) {
	if r == nil {
		return
	}
	r.TaskPanics.WithLabelValues(task).Inc()
}

func (r *Registry) SetCandidates(n int) {
	if r == nil {
		return
	}
	r.Candidates.Set(float64(n))
}

func (r *Registry) Opportunity(urgency string) {
	if r == nil {
		return
	}
	r.Opportunities.WithLabelValues(urgency).Inc()
}

func (r *Registry) SourceError(source string) {
	if r == nil {
		return
	}
	r.SourceErrors.WithLabelValues(source).Inc()
}

func (r *Registry) HaltCache(hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.HaltCacheHits.WithLabelValues(outcome).Inc()
}

func (r *Registry) ExitSignal(level string) {
	if r == nil {
		return
	}
	r.ExitSignals.WithLabelValues(level).Inc()
}

func (r *Registry) SetPositionsAtRisk(n int) {
	if r == nil {
		return
	}
	r.PositionsAtRisk.Set(float64(n))
}

func (r *Registry) SetMarketOpen(open bool) {
	if r == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	r.MarketOpen.Set(v)
}

func (r *Registry) StoreError(op string) {
	if r == nil {
		return
	}
	r.StoreErrors.WithLabelValues(op).Inc()
}
