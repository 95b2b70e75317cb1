package rest

import ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"

// ComputeSignalsRequest is the body of POST /v1/signals.
type ComputeSignalsRequest struct {
	ServiceID string    `json:"serviceId" binding:"required"`
	Metrics   []float64 `json:"metrics"`
}

// AlertsResponse wraps GET /v1/alerts.
type AlertsResponse struct {
	Alerts []*ewsv1.ResilienceAlert `json:"alerts"`
}

// SignalsResponse wraps GET /v1/services/:id/signals.
type SignalsResponse struct {
	ServiceID string                    `json:"serviceId"`
	Signals   []*ewsv1.ResilienceSignal `json:"signals"`
}

// NotificationsResponse wraps GET /v1/notifications.
type NotificationsResponse struct {
	Notifications []*ewsv1.Notification `json:"notifications"`
}

// NotificationStatsResponse is the JSON form of bus counters.
type NotificationStatsResponse struct {
	Published   int64            `json:"published"`
	Dropped     int64            `json:"dropped"`
	Delivered   int64            `json:"delivered"`
	FailedSends int64            `json:"failedSends"`
	Subscribers int              `json:"subscribers"`
	QueueDepth  int              `json:"queueDepth"`
	ByType      map[string]int64 `json:"byType"`
	ByPriority  map[string]int64 `json:"byPriority"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
