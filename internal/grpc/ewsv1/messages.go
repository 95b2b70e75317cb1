// Package ewsv1 holds the wire contract of the mirador.ews.v1.EarlyWarning
// gRPC service. Messages are plain structs carried by the JSON codec; all
// timestamps are Unix milliseconds.
package ewsv1

type ComputeSignalsRequest struct {
	ServiceID string    `json:"serviceId"`
	Metrics   []float64 `json:"metrics"`
}

type ComputeSignalsResponse struct {
	Signal     *ResilienceSignal  `json:"signal"`
	Guardrails []*GuardrailResult `json:"guardrails,omitempty"`
}

type ResilienceSignal struct {
	ServiceID       string  `json:"serviceId"`
	Metric          string  `json:"metric"`
	Variance        float64 `json:"variance"`
	AC1             float64 `json:"ac1"`
	ResilienceIndex float64 `json:"resilienceIndex"`
	Timestamp       int64   `json:"timestamp"`
}

type GuardrailResult struct {
	Type       string `json:"type"`
	Error      string `json:"error,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

type GetResilienceIndexRequest struct {
	ServiceID string `json:"serviceId"`
}

type GetResilienceIndexResponse struct {
	ServiceID       string  `json:"serviceId"`
	ResilienceIndex float64 `json:"resilienceIndex"`
}

type GetSignalsRequest struct {
	ServiceID string `json:"serviceId"`
	Limit     int32  `json:"limit,omitempty"`
}

type GetSignalsResponse struct {
	Signals []*ResilienceSignal `json:"signals"`
}

type GetActiveAlertsRequest struct{}

type GetActiveAlertsResponse struct {
	Alerts []*ResilienceAlert `json:"alerts"`
}

type ResilienceAlert struct {
	ID                 string  `json:"id"`
	ServiceID          string  `json:"serviceId"`
	ResilienceIndex    float64 `json:"resilienceIndex"`
	Severity           string  `json:"severity"`
	State              string  `json:"state"`
	Message            string  `json:"message"`
	Timestamp          int64   `json:"timestamp"`
	ConsecutiveWindows int32   `json:"consecutiveWindows"`
}

type ResolveAlertRequest struct {
	AlertID string `json:"alertId"`
}

type ResolveAlertResponse struct {
	Resolved bool `json:"resolved"`
}

type StatusRequest struct{}

type StatusResponse struct {
	MonitoredServices int32              `json:"monitoredServices"`
	ActiveAlerts      int32              `json:"activeAlerts"`
	LastComputedAt    *int64             `json:"lastComputedAt"`
	ResilienceIndices map[string]float64 `json:"resilienceIndices"`
}

// StreamNotificationsRequest optionally narrows the stream to one service.
type StreamNotificationsRequest struct {
	ServiceID string `json:"serviceId,omitempty"`
}

type Notification struct {
	ID        string              `json:"id"`
	Timestamp int64               `json:"timestamp"`
	Topic     string              `json:"topic"`
	Priority  string              `json:"priority"`
	Payload   NotificationPayload `json:"payload"`
}

// NotificationPayload flattens the guardrail action variant; only the fields
// of the variant named by Type are set.
type NotificationPayload struct {
	Type            string   `json:"type"`
	ServiceID       string   `json:"serviceId"`
	ResilienceIndex float64  `json:"resilienceIndex"`
	Factor          *float64 `json:"factor,omitempty"`
	MaxPerMinute    *int32   `json:"maxPerMinute,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}
