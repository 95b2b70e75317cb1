package api

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-ews/internal/engine"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
	"github.com/miradorstack/mirador-ews/internal/models"
)

func TestFromWireComputeSignalsRequest(t *testing.T) {
	if _, err := FromWireComputeSignalsRequest(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
	if _, err := FromWireComputeSignalsRequest(&ewsv1.ComputeSignalsRequest{ServiceID: "  "}); err == nil {
		t.Fatalf("expected error for blank service id")
	}

	metrics := []float64{1, 2, 3}
	req, err := FromWireComputeSignalsRequest(&ewsv1.ComputeSignalsRequest{ServiceID: " checkout ", Metrics: metrics})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.ServiceID != "checkout" || len(req.Samples) != 3 {
		t.Fatalf("unexpected request %+v", req)
	}
	metrics[0] = 99
	if req.Samples[0] != 1 {
		t.Fatalf("expected samples to be copied")
	}

	empty, err := FromWireComputeSignalsRequest(&ewsv1.ComputeSignalsRequest{ServiceID: "svc"})
	if err != nil || len(empty.Samples) != 0 {
		t.Fatalf("expected empty metrics to be accepted, got %+v %v", empty, err)
	}
}

func TestToWireSignalUsesMillis(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	wire := ToWireSignal(models.ResilienceSignal{ServiceID: "svc", Metric: models.DefaultMetric, Variance: 2, AC1: 0.5, ResilienceIndex: 42, Timestamp: ts})
	if wire.Timestamp != 1_700_000_000_123 || wire.AC1 != 0.5 || wire.ResilienceIndex != 42 {
		t.Fatalf("unexpected wire signal %+v", wire)
	}
}

func TestToWireGuardrailResults(t *testing.T) {
	results := ToWireGuardrailResults([]engine.ActionResult{
		{Type: models.ActionAutoscale, Err: errors.New("boom")},
		{Type: models.ActionRateLimit, Suppressed: true},
	})
	if len(results) != 2 || results[0].Error != "boom" || !results[1].Suppressed {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestToWireStatus(t *testing.T) {
	last := time.UnixMilli(1_700_000_000_000)
	wire := ToWireStatus(models.Status{
		MonitoredServices: 2,
		ActiveAlerts:      1,
		LastComputedAt:    &last,
		ResilienceIndices: map[string]float64{"a": 70, "b": 25},
	})
	if wire.MonitoredServices != 2 || wire.ActiveAlerts != 1 || *wire.LastComputedAt != 1_700_000_000_000 {
		t.Fatalf("unexpected status %+v", wire)
	}
	if empty := ToWireStatus(models.Status{}); empty.LastComputedAt != nil || empty.ResilienceIndices == nil {
		t.Fatalf("expected nil lastComputedAt and empty indices, got %+v", empty)
	}
}

func TestNotificationFlattensAction(t *testing.T) {
	event := models.Event{
		ID:        "evt-1",
		Timestamp: time.UnixMilli(1_700_000_000_000).UTC(),
		Topic:     models.TopicAlert,
		Priority:  models.PriorityHigh,
		Payload: models.GuardrailPayload{
			ServiceID:       "checkout",
			ResilienceIndex: 15,
			Action:          models.Brownout{Reason: "resilience index for checkout dropped to 15.0"},
		},
	}

	data, err := json.Marshal(ToNotification(event))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload := raw["payload"].(map[string]any)
	if payload["type"] != "brownout" || payload["reason"] == nil {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["factor"]; ok {
		t.Fatalf("brownout payload should not carry a factor: %v", payload)
	}

	var wire ewsv1.Notification
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("decode wire: %v", err)
	}
	back, err := FromNotification(&wire)
	if err != nil {
		t.Fatalf("from notification: %v", err)
	}
	if back.ID != event.ID || !back.Timestamp.Equal(event.Timestamp) || back.Payload.Action != event.Payload.Action {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, event)
	}
}

func TestFromNotificationRejectsIncompleteVariants(t *testing.T) {
	cases := []ewsv1.NotificationPayload{
		{Type: "autoscale"},
		{Type: "rate_limit"},
		{Type: "reboot"},
	}
	for _, payload := range cases {
		if _, err := FromNotification(&ewsv1.Notification{ID: "x", Payload: payload}); err == nil {
			t.Fatalf("expected error for payload %+v", payload)
		}
	}
}

func TestStatusEncodesAfterOverflowWindow(t *testing.T) {
	store, err := engine.NewSignalStore(100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ew := engine.NewEarlyWarning(store)
	ew.ComputeSignals("healthy", []float64{1, 2, 3, 2, 1})
	for i := 0; i < 4; i++ {
		ew.ComputeSignals("bad", []float64{1e200, -1e200, 1e200, -1e200})
		ew.ComputeSignals("bad", []float64{1, 2, 3, 2, 1})
	}

	data, err := ewsv1.Codec{}.Marshal(ToWireStatus(ew.Status()))
	if err != nil {
		t.Fatalf("expected status to encode, got %v", err)
	}
	var decoded ewsv1.StatusResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if decoded.MonitoredServices != 2 {
		t.Fatalf("expected both services in status, got %+v", decoded)
	}
	if _, err := (ewsv1.Codec{}).Marshal(ToWireAlerts(ew.ActiveAlerts())); err != nil {
		t.Fatalf("expected alerts to encode, got %v", err)
	}
}
