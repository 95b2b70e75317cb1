package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-ews/internal/api"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
	"github.com/miradorstack/mirador-ews/internal/models"
)

const streamBuffer = 64

// NotificationSource hands out filtered subscriptions to guardrail events.
type NotificationSource interface {
	SubscribeFiltered(buffer int, filter func(models.Event) bool) (<-chan models.Event, func())
}

// EarlyWarningService implements the gRPC EarlyWarning service.
type EarlyWarningService struct {
	ewsv1.UnimplementedEarlyWarningServer

	logger        *slog.Logger
	monitor       *Monitor
	notifications NotificationSource
}

// NewEarlyWarningService constructs the gRPC facade. notifications may be nil,
// in which case StreamNotifications fails with FailedPrecondition.
func NewEarlyWarningService(logger *slog.Logger, monitor *Monitor, notifications NotificationSource) *EarlyWarningService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EarlyWarningService{logger: logger, monitor: monitor, notifications: notifications}
}

// ComputeSignals scores a window of samples and runs guardrails.
func (s *EarlyWarningService) ComputeSignals(ctx context.Context, req *ewsv1.ComputeSignalsRequest) (*ewsv1.ComputeSignalsResponse, error) {
	if s.monitor == nil {
		return nil, status.Error(codes.FailedPrecondition, "monitor not configured")
	}
	domainReq, err := api.FromWireComputeSignalsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	obs, err := s.monitor.Observe(ctx, domainReq.ServiceID, domainReq.Samples)
	if err != nil {
		if errors.Is(err, ErrInvalidServiceID) || errors.Is(err, ErrInvalidSamples) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("observe failed", slog.String("service", domainReq.ServiceID), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to compute signals")
	}
	return &ewsv1.ComputeSignalsResponse{
		Signal:     api.ToWireSignal(obs.Signal),
		Guardrails: api.ToWireGuardrailResults(obs.Actions),
	}, nil
}

// GetResilienceIndex returns the latest index for a service.
func (s *EarlyWarningService) GetResilienceIndex(ctx context.Context, req *ewsv1.GetResilienceIndexRequest) (*ewsv1.GetResilienceIndexResponse, error) {
	if req == nil || strings.TrimSpace(req.ServiceID) == "" {
		return nil, status.Error(codes.InvalidArgument, "serviceId is required")
	}
	idx, ok := s.monitor.ResilienceIndex(req.ServiceID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no resilience index for service %q", req.ServiceID)
	}
	return &ewsv1.GetResilienceIndexResponse{ServiceID: req.ServiceID, ResilienceIndex: idx}, nil
}

// GetSignals returns retained signals for a service, newest first.
func (s *EarlyWarningService) GetSignals(ctx context.Context, req *ewsv1.GetSignalsRequest) (*ewsv1.GetSignalsResponse, error) {
	if req == nil || strings.TrimSpace(req.ServiceID) == "" {
		return nil, status.Error(codes.InvalidArgument, "serviceId is required")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	return &ewsv1.GetSignalsResponse{Signals: api.ToWireSignals(s.monitor.Signals(req.ServiceID, int(req.Limit)))}, nil
}

// GetActiveAlerts lists open alerts.
func (s *EarlyWarningService) GetActiveAlerts(ctx context.Context, _ *ewsv1.GetActiveAlertsRequest) (*ewsv1.GetActiveAlertsResponse, error) {
	return &ewsv1.GetActiveAlertsResponse{Alerts: api.ToWireAlerts(s.monitor.ActiveAlerts())}, nil
}

// ResolveAlert removes an alert by id.
func (s *EarlyWarningService) ResolveAlert(ctx context.Context, req *ewsv1.ResolveAlertRequest) (*ewsv1.ResolveAlertResponse, error) {
	if req == nil || strings.TrimSpace(req.AlertID) == "" {
		return nil, status.Error(codes.InvalidArgument, "alertId is required")
	}
	if !s.monitor.ResolveAlert(req.AlertID) {
		return nil, status.Errorf(codes.NotFound, "alert %q not found", req.AlertID)
	}
	return &ewsv1.ResolveAlertResponse{Resolved: true}, nil
}

// Status returns a snapshot of monitored services.
func (s *EarlyWarningService) Status(ctx context.Context, _ *ewsv1.StatusRequest) (*ewsv1.StatusResponse, error) {
	return api.ToWireStatus(s.monitor.Status()), nil
}

// StreamNotifications relays guardrail notifications until the client leaves.
func (s *EarlyWarningService) StreamNotifications(req *ewsv1.StreamNotificationsRequest, stream grpc.ServerStreamingServer[ewsv1.Notification]) error {
	if s.notifications == nil {
		return status.Error(codes.FailedPrecondition, "notification bus not configured")
	}
	var filter func(models.Event) bool
	if req != nil && req.ServiceID != "" {
		serviceID := req.ServiceID
		filter = func(e models.Event) bool { return e.Payload.ServiceID == serviceID }
	}

	events, cancel := s.notifications.SubscribeFiltered(streamBuffer, filter)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return status.Error(codes.Unavailable, "notification stream closed")
			}
			if err := stream.Send(api.ToNotification(event)); err != nil {
				s.logger.Debug("notification stream send failed", slog.Any("error", err))
				return err
			}
		}
	}
}
