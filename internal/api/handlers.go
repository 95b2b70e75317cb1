package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-ews/internal/engine"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
	"github.com/miradorstack/mirador-ews/internal/models"
)

// ObserveRequest is the validated form of a ComputeSignals call.
type ObserveRequest struct {
	ServiceID string
	Samples   []float64
}

// FromWireComputeSignalsRequest maps the gRPC request into an ObserveRequest.
func FromWireComputeSignalsRequest(req *ewsv1.ComputeSignalsRequest) (ObserveRequest, error) {
	if req == nil {
		return ObserveRequest{}, fmt.Errorf("request is nil")
	}
	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID == "" {
		return ObserveRequest{}, fmt.Errorf("serviceId is required")
	}
	return ObserveRequest{
		ServiceID: serviceID,
		Samples:   append([]float64(nil), req.Metrics...),
	}, nil
}

// ToWireSignal converts a domain signal into the wire representation.
func ToWireSignal(signal models.ResilienceSignal) *ewsv1.ResilienceSignal {
	return &ewsv1.ResilienceSignal{
		ServiceID:       signal.ServiceID,
		Metric:          signal.Metric,
		Variance:        signal.Variance,
		AC1:             signal.AC1,
		ResilienceIndex: signal.ResilienceIndex,
		Timestamp:       toMillis(signal.Timestamp),
	}
}

// ToWireSignals converts a slice of signals preserving order.
func ToWireSignals(signals []models.ResilienceSignal) []*ewsv1.ResilienceSignal {
	out := make([]*ewsv1.ResilienceSignal, 0, len(signals))
	for _, s := range signals {
		out = append(out, ToWireSignal(s))
	}
	return out
}

// ToWireGuardrailResults converts trigger outcomes; errors are flattened to text.
func ToWireGuardrailResults(results []engine.ActionResult) []*ewsv1.GuardrailResult {
	out := make([]*ewsv1.GuardrailResult, 0, len(results))
	for _, r := range results {
		res := &ewsv1.GuardrailResult{Type: string(r.Type), Suppressed: r.Suppressed}
		if r.Err != nil {
			res.Error = r.Err.Error()
		}
		out = append(out, res)
	}
	return out
}

// ToWireAlerts converts alerts preserving order.
func ToWireAlerts(alerts []models.ResilienceAlert) []*ewsv1.ResilienceAlert {
	out := make([]*ewsv1.ResilienceAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, &ewsv1.ResilienceAlert{
			ID:                 a.ID,
			ServiceID:          a.ServiceID,
			ResilienceIndex:    a.ResilienceIndex,
			Severity:           string(a.Severity),
			State:              string(a.State),
			Message:            a.Message,
			Timestamp:          toMillis(a.Timestamp),
			ConsecutiveWindows: int32(a.ConsecutiveWindows),
		})
	}
	return out
}

// ToWireStatus converts a store snapshot.
func ToWireStatus(status models.Status) *ewsv1.StatusResponse {
	resp := &ewsv1.StatusResponse{
		MonitoredServices: int32(status.MonitoredServices),
		ActiveAlerts:      int32(status.ActiveAlerts),
		ResilienceIndices: make(map[string]float64, len(status.ResilienceIndices)),
	}
	for id, idx := range status.ResilienceIndices {
		resp.ResilienceIndices[id] = idx
	}
	if status.LastComputedAt != nil {
		ms := toMillis(*status.LastComputedAt)
		resp.LastComputedAt = &ms
	}
	return resp
}

// ToNotification converts a bus event into its wire form, flattening the
// guardrail action variant into the payload.
func ToNotification(event models.Event) *ewsv1.Notification {
	payload := ewsv1.NotificationPayload{
		Type:            string(event.Payload.Type()),
		ServiceID:       event.Payload.ServiceID,
		ResilienceIndex: event.Payload.ResilienceIndex,
	}
	switch action := event.Payload.Action.(type) {
	case models.Autoscale:
		factor := action.Factor
		payload.Factor = &factor
	case models.RateLimit:
		limit := int32(action.MaxPerMinute)
		payload.MaxPerMinute = &limit
	case models.Brownout:
		payload.Reason = action.Reason
	}
	return &ewsv1.Notification{
		ID:        event.ID,
		Timestamp: toMillis(event.Timestamp),
		Topic:     event.Topic,
		Priority:  string(event.Priority),
		Payload:   payload,
	}
}

// FromNotification reverses ToNotification.
func FromNotification(n *ewsv1.Notification) (models.Event, error) {
	if n == nil {
		return models.Event{}, fmt.Errorf("notification is nil")
	}
	var action models.GuardrailAction
	switch models.ActionType(n.Payload.Type) {
	case models.ActionAutoscale:
		if n.Payload.Factor == nil {
			return models.Event{}, fmt.Errorf("autoscale notification %s has no factor", n.ID)
		}
		action = models.Autoscale{Factor: *n.Payload.Factor}
	case models.ActionRateLimit:
		if n.Payload.MaxPerMinute == nil {
			return models.Event{}, fmt.Errorf("rate limit notification %s has no maxPerMinute", n.ID)
		}
		action = models.RateLimit{MaxPerMinute: int(*n.Payload.MaxPerMinute)}
	case models.ActionBrownout:
		action = models.Brownout{Reason: n.Payload.Reason}
	default:
		return models.Event{}, fmt.Errorf("unknown guardrail action %q", n.Payload.Type)
	}
	return models.Event{
		ID:        n.ID,
		Timestamp: time.UnixMilli(n.Timestamp).UTC(),
		Topic:     n.Topic,
		Priority:  models.Priority(n.Priority),
		Payload: models.GuardrailPayload{
			ServiceID:       n.Payload.ServiceID,
			ResilienceIndex: n.Payload.ResilienceIndex,
			Action:          action,
		},
	}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
