package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-ews/internal/metrics"
	"github.com/miradorstack/mirador-ews/internal/models"
)

const (
	// DefaultMaxSignals bounds the retained signal history.
	DefaultMaxSignals = 10000

	// BaselineAlpha is the smoothing factor applied to each new observation.
	BaselineAlpha = 0.1

	// AlertThreshold is the index below which a window counts as degraded.
	AlertThreshold = 30.0
	// CriticalThreshold is the index below which a firing alert is critical.
	CriticalThreshold = 20.0
	// ConsecutiveWindows is the number of degraded windows required to fire.
	ConsecutiveWindows = 3
)

// SignalStore owns signal history, per-service baselines and alert state.
// It is safe for concurrent use.
type SignalStore struct {
	mu sync.RWMutex

	maxSignals int
	history    []models.ResilienceSignal
	head       int // index of the oldest entry once the ring is full

	retained  map[string]int
	latest    map[string]models.ResilienceSignal
	baselines map[string]models.Baseline
	alerts    map[string]*models.ResilienceAlert
}

// NewSignalStore creates a store retaining up to maxSignals signals. Zero selects
// DefaultMaxSignals; negative values are a configuration error.
func NewSignalStore(maxSignals int) (*SignalStore, error) {
	if maxSignals < 0 {
		return nil, fmt.Errorf("max signals must not be negative, got %d", maxSignals)
	}
	if maxSignals == 0 {
		maxSignals = DefaultMaxSignals
	}
	s := &SignalStore{maxSignals: maxSignals}
	s.reset()
	return s, nil
}

func (s *SignalStore) reset() {
	s.history = make([]models.ResilienceSignal, 0, min(s.maxSignals, 1024))
	s.head = 0
	s.retained = make(map[string]int)
	s.latest = make(map[string]models.ResilienceSignal)
	s.baselines = make(map[string]models.Baseline)
	s.alerts = make(map[string]*models.ResilienceAlert)
}

// MaxSignals returns the history cap.
func (s *SignalStore) MaxSignals() int {
	return s.maxSignals
}

// AddSignal records a signal, folds it into the service baseline and evaluates alerts.
func (s *SignalStore) AddSignal(signal models.ResilienceSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendHistory(signal)
	s.updateBaseline(signal)
	s.checkAlerts(signal)
}

func (s *SignalStore) appendHistory(signal models.ResilienceSignal) {
	if len(s.history) < s.maxSignals {
		s.history = append(s.history, signal)
	} else {
		evicted := s.history[s.head]
		s.history[s.head] = signal
		s.head = (s.head + 1) % s.maxSignals
		s.forget(evicted.ServiceID)
	}
	s.retained[signal.ServiceID]++
	s.latest[signal.ServiceID] = signal
}

// forget drops the latest-signal entry once no history remains for a service.
func (s *SignalStore) forget(serviceID string) {
	s.retained[serviceID]--
	if s.retained[serviceID] <= 0 {
		delete(s.retained, serviceID)
		delete(s.latest, serviceID)
		metrics.ForgetService(serviceID)
	}
}

// updateBaseline folds a signal into the EMA. Non-finite statistics are skipped
// so one bad window cannot poison the baseline for good.
func (s *SignalStore) updateBaseline(signal models.ResilienceSignal) {
	if !isFinite(signal.Variance) || !isFinite(signal.AC1) {
		return
	}
	current, ok := s.baselines[signal.ServiceID]
	if !ok {
		s.baselines[signal.ServiceID] = models.Baseline{Variance: signal.Variance, AC1: signal.AC1}
		return
	}
	s.baselines[signal.ServiceID] = models.Baseline{
		Variance: current.Variance*(1-BaselineAlpha) + signal.Variance*BaselineAlpha,
		AC1:      current.AC1*(1-BaselineAlpha) + signal.AC1*BaselineAlpha,
	}
}

// checkAlerts runs the hysteresis state machine for the signal's service. Once an
// alert fires, ConsecutiveWindows stays at the count that first crossed the threshold.
func (s *SignalStore) checkAlerts(signal models.ResilienceSignal) {
	if math.IsNaN(signal.ResilienceIndex) {
		return
	}
	id := models.AlertID(signal.ServiceID)
	if signal.ResilienceIndex >= AlertThreshold {
		delete(s.alerts, id)
		return
	}

	existing, ok := s.alerts[id]
	if !ok {
		existing = &models.ResilienceAlert{
			ID:        id,
			ServiceID: signal.ServiceID,
			Severity:  models.SeverityWarning,
			State:     models.AlertAccumulating,
		}
		s.alerts[id] = existing
	}

	windows := existing.ConsecutiveWindows
	if windows < ConsecutiveWindows {
		windows++
	}

	if windows < ConsecutiveWindows {
		existing.ConsecutiveWindows = windows
		existing.ResilienceIndex = signal.ResilienceIndex
		existing.Timestamp = signal.Timestamp
		existing.Message = fmt.Sprintf("resilience index %.1f below %.0f (%d/%d windows)",
			signal.ResilienceIndex, AlertThreshold, windows, ConsecutiveWindows)
		return
	}

	severity := models.SeverityWarning
	if signal.ResilienceIndex < CriticalThreshold {
		severity = models.SeverityCritical
	}
	s.alerts[id] = &models.ResilienceAlert{
		ID:                 id,
		ServiceID:          signal.ServiceID,
		ResilienceIndex:    signal.ResilienceIndex,
		Severity:           severity,
		State:              models.AlertFiring,
		Message:            fmt.Sprintf("critical slowing down: resilience index %.1f below %.0f for %d consecutive windows", signal.ResilienceIndex, AlertThreshold, windows),
		Timestamp:          signal.Timestamp,
		ConsecutiveWindows: windows,
	}
}

// Baseline returns the current baseline for a service, or the zero baseline.
func (s *SignalStore) Baseline(serviceID string) models.Baseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselines[serviceID]
}

// LatestIndex returns the most recent resilience index for a service.
func (s *SignalStore) LatestIndex(serviceID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	signal, ok := s.latest[serviceID]
	if !ok {
		return 0, false
	}
	return signal.ResilienceIndex, true
}

// Signals returns retained history for a service, newest first. limit <= 0 returns everything.
func (s *SignalStore) Signals(serviceID string, limit int) []models.ResilienceSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ResilienceSignal, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		signal := s.history[(s.head+i)%len(s.history)]
		if signal.ServiceID != serviceID {
			continue
		}
		out = append(out, signal)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained signals across all services.
func (s *SignalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// ActiveAlerts returns a copy of every open alert ordered by alert ID.
func (s *SignalStore) ActiveAlerts() []models.ResilienceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ResilienceAlert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, *alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveAlert deletes an alert and reports whether it existed.
func (s *SignalStore) ResolveAlert(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alertID]; !ok {
		return false
	}
	delete(s.alerts, alertID)
	return true
}

// Status derives a snapshot from retained history and alert state.
func (s *SignalStore) Status() models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.Status{
		MonitoredServices: len(s.latest),
		ActiveAlerts:      len(s.alerts),
		ResilienceIndices: make(map[string]float64, len(s.latest)),
	}
	for serviceID, signal := range s.latest {
		status.ResilienceIndices[serviceID] = signal.ResilienceIndex
	}
	if n := len(s.history); n > 0 {
		last := s.history[(s.head+n-1)%n].Timestamp
		status.LastComputedAt = &last
	}
	return status
}

// Clear wipes history, baselines and alerts.
func (s *SignalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for serviceID := range s.latest {
		metrics.ForgetService(serviceID)
	}
	s.reset()
}
