package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ScenarioMetrics struct {
	added       prometheus.Counter
	removed     prometheus.Counter
	executed    prometheus.Counter
	execFailed  *prometheus.CounterVec
	escrowTotal prometheus.Gauge
}

var (
	scenarioOnce     sync.Once
	scenarioRegistry *ScenarioMetrics
)

func Scenario() *ScenarioMetrics {
	scenarioOnce.Do(func() {
		scenarioRegistry = &ScenarioMetrics{
			added: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "scenario_added_total",
				Help: "Count of scenarios accepted into custody.",
			}),
			removed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "scenario_removed_total",
				Help: "Count of scenarios withdrawn and refunded by their owners.",
			}),
			executed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "scenario_executed_total",
				Help: "Count of scenarios fully executed and closed out.",
			}),
			execFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "scenario_execution_failures_total",
				Help: "Count of failed execution attempts by failure reason.",
			}, []string{"reason"}),
			escrowTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "scenario_escrowed_scenarios",
				Help: "Number of scenarios currently held in custody.",
			}),
		}
		prometheus.MustRegister(
			scenarioRegistry.added,
			scenarioRegistry.removed,
			scenarioRegistry.executed,
			scenarioRegistry.execFailed,
			scenarioRegistry.escrowTotal,
		)
	})
	return scenarioRegistry
}

// SetEscrowed seeds the custody gauge, typically from persisted state when
// the daemon starts.
func (m *ScenarioMetrics) SetEscrowed(count float64) {
	if m == nil {
		return
	}
	m.escrowTotal.Set(count)
}

func (m *ScenarioMetrics) RecordAdded() {
	if m == nil {
		return
	}
	m.added.Inc()
	m.escrowTotal.Inc()
}

func (m *ScenarioMetrics) RecordRemoved() {
	if m == nil {
		return
	}
	m.removed.Inc()
	m.escrowTotal.Dec()
}

func (m *ScenarioMetrics) RecordExecuted() {
	if m == nil {
		return
	}
	m.executed.Inc()
	m.escrowTotal.Dec()
}

func (m *ScenarioMetrics) RecordExecutionFailure(reason string) {
	if m == nil {
		return
	}
	m.execFailed.WithLabelValues(reason).Inc()
}
