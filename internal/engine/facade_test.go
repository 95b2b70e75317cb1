package engine

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/miradorstack/mirador-ews/internal/models"
)

func newTestFacade(t *testing.T) *EarlyWarning {
	t.Helper()
	return NewEarlyWarning(newTestStore(t, 1000))
}

// wave returns n samples of a sine wave; a lower step yields a smoother, more
// autocorrelated series.
func wave(n int, amplitude, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + amplitude*math.Sin(float64(i)*step)
	}
	return out
}

func TestComputeSignalsFirstObservationIsNeutral(t *testing.T) {
	ew := newTestFacade(t)
	signal := ew.ComputeSignals("checkout", wave(60, 1, 0.3))

	if signal.ResilienceIndex != 50 {
		t.Fatalf("expected neutral index without baseline, got %v", signal.ResilienceIndex)
	}
	if signal.Metric != models.DefaultMetric || signal.ServiceID != "checkout" {
		t.Fatalf("unexpected signal identity %+v", signal)
	}
	if signal.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
	if idx, ok := ew.ResilienceIndex("checkout"); !ok || idx != 50 {
		t.Fatalf("expected stored index 50, got %v (%v)", idx, ok)
	}
}

func TestComputeSignalsScoresAgainstPriorBaseline(t *testing.T) {
	ew := newTestFacade(t)
	samples := wave(60, 1, 0.3)

	first := ew.ComputeSignals("svc", samples)
	second := ew.ComputeSignals("svc", samples)

	if second.ResilienceIndex != 50 {
		t.Fatalf("expected index 50 for a repeat of the baseline window, got %v", second.ResilienceIndex)
	}
	if first.Variance != second.Variance || first.AC1 != second.AC1 {
		t.Fatalf("expected identical statistics, got %+v vs %+v", first, second)
	}
}

func TestComputeSignalsUsesSixtySampleWindow(t *testing.T) {
	ew := newTestFacade(t)
	samples := append([]float64{1e6, -1e6}, wave(60, 1, 0.3)...)
	got := ew.ComputeSignals("svc", samples)
	want := ComputeVarianceAndAC1(wave(60, 1, 0.3), 60)
	if got.Variance != want.Variance || got.AC1 != want.AC1 {
		t.Fatalf("expected only the trailing 60 samples to count, got %+v want %+v", got, want)
	}
}

func TestEndToEndCriticalSlowingDown(t *testing.T) {
	ew := newTestFacade(t)
	healthy := wave(60, 1, 0.3)
	degraded := wave(60, 3, 0.15)

	h := ComputeVarianceAndAC1(healthy, WindowSize)
	d := ComputeVarianceAndAC1(degraded, WindowSize)
	if d.Variance < 3*h.Variance || d.AC1 <= h.AC1 {
		t.Fatalf("fixture does not widen variance and autocorrelation: healthy %+v degraded %+v", h, d)
	}

	for i, samples := range [][]float64{healthy, healthy} {
		signal := ew.ComputeSignals("checkout", samples)
		if signal.ResilienceIndex != 50 {
			t.Fatalf("signal %d: expected index 50, got %v", i+1, signal.ResilienceIndex)
		}
	}
	if alerts := ew.ActiveAlerts(); len(alerts) != 0 {
		t.Fatalf("expected no alerts while healthy, got %+v", alerts)
	}

	for i := 3; i <= 5; i++ {
		signal := ew.ComputeSignals("checkout", degraded)
		if signal.ResilienceIndex >= AlertThreshold || signal.ResilienceIndex < 20 {
			t.Fatalf("signal %d: expected index in [20,30), got %v", i, signal.ResilienceIndex)
		}

		alerts := ew.ActiveAlerts()
		if len(alerts) != 1 {
			t.Fatalf("signal %d: expected one alert entry, got %d", i, len(alerts))
		}
		if i < 5 && alerts[0].State != models.AlertAccumulating {
			t.Fatalf("signal %d: alert fired before three consecutive windows: %+v", i, alerts[0])
		}
		if i == 5 {
			if alerts[0].State != models.AlertFiring {
				t.Fatalf("expected alert to fire on third degraded window, got %+v", alerts[0])
			}
			want := models.SeverityWarning
			if signal.ResilienceIndex < CriticalThreshold {
				want = models.SeverityCritical
			}
			if alerts[0].Severity != want {
				t.Fatalf("expected severity %s, got %s", want, alerts[0].Severity)
			}
		}
	}

	status := ew.Status()
	if status.MonitoredServices != 1 || status.ActiveAlerts != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestComputeSignalsConcurrentSameService(t *testing.T) {
	ew := newTestFacade(t)
	samples := wave(60, 1, 0.3)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				ew.ComputeSignals("shared", samples)
			}
		}()
	}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				ew.ComputeSignals(service, samples)
				_ = ew.Status()
			}
		}(fmt.Sprintf("svc-%d", g))
	}
	wg.Wait()

	if got := len(ew.Signals("shared", 0)); got != 100 {
		t.Fatalf("expected 100 signals for shared service, got %d", got)
	}
	for _, s := range ew.Signals("shared", 0) {
		if math.Abs(s.ResilienceIndex-50) > 1e-9 {
			t.Fatalf("expected stable index 50 under concurrent updates, got %v", s.ResilienceIndex)
		}
	}
}

func TestOverflowWindowKeepsIndexInRange(t *testing.T) {
	ew := newTestFacade(t)
	ew.ComputeSignals("other", wave(60, 1, 0.3))

	if got := ew.ComputeSignals("svc", []float64{1e200, -1e200, 1e200, -1e200}); math.IsNaN(got.ResilienceIndex) {
		t.Fatalf("expected a finite index for an overflowing window, got %v", got.ResilienceIndex)
	}
	for i := 0; i < 4; i++ {
		signal := ew.ComputeSignals("svc", wave(60, 1, 0.3))
		if math.IsNaN(signal.ResilienceIndex) || signal.ResilienceIndex < 0 || signal.ResilienceIndex > 100 {
			t.Fatalf("signal %d: index %v out of range", i, signal.ResilienceIndex)
		}
	}

	if b := ew.store.Baseline("svc"); math.IsNaN(b.Variance) || math.IsInf(b.Variance, 0) || math.IsNaN(b.AC1) {
		t.Fatalf("expected finite baseline, got %+v", b)
	}
	for _, alert := range ew.ActiveAlerts() {
		if math.IsNaN(alert.ResilienceIndex) {
			t.Fatalf("alert carries NaN index: %+v", alert)
		}
	}
	for service, idx := range ew.Status().ResilienceIndices {
		if math.IsNaN(idx) || math.IsInf(idx, 0) {
			t.Fatalf("status index for %s is %v", service, idx)
		}
	}
}
