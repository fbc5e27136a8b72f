package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for assistant activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	rounds       prometheus.Histogram
	decisions    *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global Prometheus
// registry, creating it once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Any other registration error
// panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarvis", Subsystem: "agent", Name: "turns_total",
			Help: "User turns handled, by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jarvis", Subsystem: "agent", Name: "turn_duration_seconds",
			Help:    "Wall time from user utterance to final reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jarvis", Subsystem: "agent", Name: "tool_rounds",
			Help:    "Tool-execution rounds per user turn.",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarvis", Subsystem: "gateway", Name: "decisions_total",
			Help: "Model gateway decisions, by kind.",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jarvis", Subsystem: "executor", Name: "tool_calls_total",
			Help: "Skill invocations, by skill and status.",
		}, []string{"skill", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jarvis", Subsystem: "executor", Name: "tool_duration_seconds",
			Help:    "Skill execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"skill"}),
	}

	m.turns = register(reg, m.turns)
	m.turnDuration = register(reg, m.turnDuration)
	m.rounds = register(reg, m.rounds)
	m.decisions = register(reg, m.decisions)
	m.toolCalls = register(reg, m.toolCalls)
	m.toolDuration = register(reg, m.toolDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTurn records a finished user turn.
func (m *Metrics) ObserveTurn(outcome string, rounds int, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.rounds.Observe(float64(rounds))
	m.turnDuration.Observe(d.Seconds())
}

// IncDecision counts one gateway decision of the given kind.
func (m *Metrics) IncDecision(kind string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind).Inc()
}

// ObserveToolCall records one skill invocation.
func (m *Metrics) ObserveToolCall(skill, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(skill, status).Inc()
	m.toolDuration.WithLabelValues(skill).Observe(d.Seconds())
}
