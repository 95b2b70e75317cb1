package engine

import (
	"sync"
	"time"

	"github.com/miradorstack/mirador-ews/internal/models"
)

// WindowSize is the number of trailing samples scored per computation.
const WindowSize = 60

// EarlyWarning computes resilience signals and exposes the store's query surface.
type EarlyWarning struct {
	store *SignalStore
	locks keyedMutex
	now   func() time.Time
}

// NewEarlyWarning wires a facade around the supplied store.
func NewEarlyWarning(store *SignalStore) *EarlyWarning {
	return &EarlyWarning{store: store, now: time.Now}
}

// ComputeSignals scores samples against the service baseline as it stood before
// this call and persists the result. Calls for one service are serialized.
func (e *EarlyWarning) ComputeSignals(serviceID string, samples []float64) models.ResilienceSignal {
	unlock := e.locks.lock(serviceID)
	defer unlock()

	stats := ComputeVarianceAndAC1(samples, WindowSize)
	baseline := e.store.Baseline(serviceID)
	index := ComputeResilienceIndex(stats.Variance, stats.AC1, baseline)

	signal := models.ResilienceSignal{
		ServiceID:       serviceID,
		Metric:          models.DefaultMetric,
		Variance:        stats.Variance,
		AC1:             stats.AC1,
		ResilienceIndex: index,
		Timestamp:       e.now().UTC(),
	}
	e.store.AddSignal(signal)
	return signal
}

// ResilienceIndex returns the latest index for a service.
func (e *EarlyWarning) ResilienceIndex(serviceID string) (float64, bool) {
	return e.store.LatestIndex(serviceID)
}

// Signals returns recent signals for a service, newest first.
func (e *EarlyWarning) Signals(serviceID string, limit int) []models.ResilienceSignal {
	return e.store.Signals(serviceID, limit)
}

// ActiveAlerts returns all open alerts.
func (e *EarlyWarning) ActiveAlerts() []models.ResilienceAlert {
	return e.store.ActiveAlerts()
}

// ResolveAlert clears an alert on operator request.
func (e *EarlyWarning) ResolveAlert(alertID string) bool {
	return e.store.ResolveAlert(alertID)
}

// Status returns the store snapshot.
func (e *EarlyWarning) Status() models.Status {
	return e.store.Status()
}

// keyedMutex hands out one mutex per key. Entries are never reclaimed; the key
// space is the set of monitored services.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
