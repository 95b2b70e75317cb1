package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels guardrail actions the actuator accepted.
	OutcomeSuccess = "success"
	// OutcomeError labels guardrail actions whose actuator call failed or timed out.
	OutcomeError = "error"
	// OutcomeSuppressed labels guardrail actions skipped by the cooldown.
	OutcomeSuppressed = "suppressed"
)

var (
	signalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_ews",
			Name:      "signals_total",
			Help:      "Total number of resilience signals computed.",
		},
	)

	computeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_ews",
			Name:      "compute_seconds",
			Help:      "Signal computation and guardrail evaluation latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	resilienceIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_ews",
			Name:      "resilience_index",
			Help:      "Latest resilience index per monitored service.",
		},
		[]string{"service"},
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_ews",
			Name:      "active_alerts",
			Help:      "Number of open resilience alerts.",
		},
	)

	guardrailActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_ews",
			Name:      "guardrail_actions_total",
			Help:      "Guardrail actions requested, partitioned by action type and outcome.",
		},
		[]string{"action", "outcome"},
	)

	busEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_ews",
			Name:      "bus_events_total",
			Help:      "Notification bus events, partitioned by result (published, dropped, delivered, transport_error).",
		},
		[]string{"result"},
	)
)

// Register attaches mirador-ews collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		signalsTotal,
		computeDurationSeconds,
		resilienceIndex,
		activeAlerts,
		guardrailActionsTotal,
		busEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSignal records a computed signal and the time spent producing it.
func ObserveSignal(service string, index float64, duration time.Duration) {
	signalsTotal.Inc()
	resilienceIndex.WithLabelValues(service).Set(index)
	if duration < 0 {
		duration = 0
	}
	computeDurationSeconds.Observe(duration.Seconds())
}

// ForgetService drops the per-service index series once the service leaves
// retained history.
func ForgetService(service string) {
	resilienceIndex.DeleteLabelValues(service)
}

// SetActiveAlerts updates the open-alert gauge.
func SetActiveAlerts(count int) {
	activeAlerts.Set(float64(count))
}

// ObserveGuardrail counts a guardrail action by type and outcome.
func ObserveGuardrail(action, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeSuppressed:
	default:
		outcome = OutcomeError
	}
	guardrailActionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveBusEvent counts a notification bus outcome.
func ObserveBusEvent(result string) {
	busEventsTotal.WithLabelValues(result).Inc()
}
