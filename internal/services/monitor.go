package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-ews/internal/engine"
	"github.com/miradorstack/mirador-ews/internal/metrics"
	"github.com/miradorstack/mirador-ews/internal/models"
	"github.com/miradorstack/mirador-ews/internal/utils"
)

var tracer = otel.Tracer("github.com/miradorstack/mirador-ews/internal/services")

var (
	// ErrInvalidServiceID is returned when an observation names no service.
	ErrInvalidServiceID = errors.New("service id is required")
	// ErrInvalidSamples is returned when a sample is NaN or infinite.
	ErrInvalidSamples = errors.New("samples must be finite numbers")
)

// Guardrails reacts to a freshly computed index.
type Guardrails interface {
	TriggerGuardrails(ctx context.Context, resilienceIndex float64, serviceID string) []engine.ActionResult
}

// Observation is the outcome of one Observe call.
type Observation struct {
	Signal  models.ResilienceSignal
	Actions []engine.ActionResult
}

// Monitor computes signals and then drives guardrails. It is the single entry
// point shared by the gRPC and REST surfaces.
type Monitor struct {
	logger     *slog.Logger
	engine     *engine.EarlyWarning
	guardrails Guardrails
	timeout    time.Duration
	latencies  *utils.LatencyTracker
}

// NewMonitor wires the facade to a guardrail trigger. A nil trigger disables
// guardrails; timeout bounds a whole guardrail evaluation (0 means unbounded).
func NewMonitor(logger *slog.Logger, ew *engine.EarlyWarning, guardrails Guardrails, timeout time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger:     logger,
		engine:     ew,
		guardrails: guardrails,
		timeout:    timeout,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// Observe scores samples for serviceID and requests every guardrail the new
// index calls for. Guardrails run after the signal is stored and are not
// cancelled when the caller goes away.
func (m *Monitor) Observe(ctx context.Context, serviceID string, samples []float64) (Observation, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return Observation{}, ErrInvalidServiceID
	}
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Observation{}, fmt.Errorf("%w: sample %d is %v", ErrInvalidSamples, i, v)
		}
	}

	ctx, span := tracer.Start(ctx, "monitor.Observe", trace.WithAttributes(
		attribute.String("ews.service", serviceID),
		attribute.Int("ews.samples", len(samples)),
	))
	defer span.End()

	start := time.Now()
	signal := m.engine.ComputeSignals(serviceID, samples)
	duration := time.Since(start)
	span.SetAttributes(attribute.Float64("ews.resilience_index", signal.ResilienceIndex))

	metrics.ObserveSignal(serviceID, signal.ResilienceIndex, duration)
	metrics.SetActiveAlerts(len(m.engine.ActiveAlerts()))
	m.latencies.Observe(duration)
	if count := m.latencies.Observed(); count%20 == 0 {
		p95 := m.latencies.Percentile(95)
		m.logger.Info("signal computation latency", slog.Duration("p95", p95), slog.Int("observed", count))
	}

	m.logger.Debug("signal computed",
		slog.String("service", serviceID),
		slog.Float64("resilience_index", signal.ResilienceIndex),
		slog.Float64("variance", signal.Variance),
		slog.Float64("ac1", signal.AC1),
	)

	obs := Observation{Signal: signal}
	if m.guardrails == nil {
		return obs, nil
	}

	gctx := context.WithoutCancel(ctx)
	if m.timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(gctx, m.timeout)
		defer cancel()
	}
	obs.Actions = m.guardrails.TriggerGuardrails(gctx, signal.ResilienceIndex, serviceID)
	return obs, nil
}

// ResilienceIndex returns the latest index for serviceID.
func (m *Monitor) ResilienceIndex(serviceID string) (float64, bool) {
	return m.engine.ResilienceIndex(serviceID)
}

// Signals returns up to limit retained signals, newest first.
func (m *Monitor) Signals(serviceID string, limit int) []models.ResilienceSignal {
	return m.engine.Signals(serviceID, limit)
}

// ActiveAlerts lists accumulating and firing alerts.
func (m *Monitor) ActiveAlerts() []models.ResilienceAlert {
	return m.engine.ActiveAlerts()
}

// ResolveAlert drops an alert and reports whether it existed.
func (m *Monitor) ResolveAlert(alertID string) bool {
	ok := m.engine.ResolveAlert(alertID)
	if ok {
		metrics.SetActiveAlerts(len(m.engine.ActiveAlerts()))
		m.logger.Info("alert resolved", slog.String("alert_id", alertID))
	}
	return ok
}

// Status returns a snapshot of the store.
func (m *Monitor) Status() models.Status {
	return m.engine.Status()
}
