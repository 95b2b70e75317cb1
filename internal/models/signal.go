package models

import "time"

// DefaultMetric is the metric name attached to every computed signal.
// TODO: key signals by (service, metric) once callers send more than p95 latency.
const DefaultMetric = "p95_latency"

// ResilienceSignal is the outcome of one early-warning computation for a service.
type ResilienceSignal struct {
	ServiceID       string
	Metric          string
	Variance        float64
	AC1             float64
	ResilienceIndex float64
	Timestamp       time.Time
}

// Baseline is the exponentially-smoothed history a new signal is scored against.
type Baseline struct {
	Variance float64
	AC1      float64
}

// ResilienceAlert tracks consecutive low-resilience windows for a single service.
type ResilienceAlert struct {
	ID                 string
	ServiceID          string
	ResilienceIndex    float64
	Severity           Severity
	State              AlertState
	Message            string
	Timestamp          time.Time
	ConsecutiveWindows int
}

// Status is a derived snapshot of the store.
type Status struct {
	MonitoredServices int
	ActiveAlerts      int
	LastComputedAt    *time.Time
	ResilienceIndices map[string]float64
}

// Severity captures alert impact levels.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertState reports where an alert sits in the hysteresis state machine.
type AlertState string

const (
	AlertAccumulating AlertState = "accumulating"
	AlertFiring       AlertState = "firing"
)

// AlertID returns the key under which a service's alert is stored.
func AlertID(serviceID string) string {
	return "alert-" + serviceID
}
