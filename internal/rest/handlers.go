package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/miradorstack/mirador-ews/internal/api"
	"github.com/miradorstack/mirador-ews/internal/bus"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
	"github.com/miradorstack/mirador-ews/internal/models"
	"github.com/miradorstack/mirador-ews/internal/services"
)

const (
	streamBuffer = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Notifications is the read side of the notification bus.
type Notifications interface {
	Recent(limit int) []models.Event
	SubscribeFiltered(buffer int, filter func(models.Event) bool) (<-chan models.Event, func())
	Stats() bus.Stats
}

// Handlers serves the REST surface of the engine.
type Handlers struct {
	logger        *slog.Logger
	monitor       *services.Monitor
	notifications Notifications
	upgrader      websocket.Upgrader
}

// NewHandlers builds the REST handlers. notifications may be nil.
func NewHandlers(logger *slog.Logger, monitor *services.Monitor, notifications Notifications) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		logger:        logger,
		monitor:       monitor,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleComputeSignals scores a window of samples and runs guardrails.
//
//	200 OK: ewsv1.ComputeSignalsResponse
//	400 Bad Request: missing serviceId or malformed body
func (h *Handlers) HandleComputeSignals(c *gin.Context) {
	var req ComputeSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	obs, err := h.monitor.Observe(c.Request.Context(), req.ServiceID, req.Metrics)
	if err != nil {
		if errors.Is(err, services.ErrInvalidServiceID) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SERVICE_ID"})
			return
		}
		if errors.Is(err, services.ErrInvalidSamples) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SAMPLES"})
			return
		}
		h.logger.Error("observe failed", slog.String("service", req.ServiceID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to compute signals", Code: "COMPUTE_FAILED"})
		return
	}

	c.JSON(http.StatusOK, ewsv1.ComputeSignalsResponse{
		Signal:     api.ToWireSignal(obs.Signal),
		Guardrails: api.ToWireGuardrailResults(obs.Actions),
	})
}

// HandleGetIndex returns the latest resilience index for a service.
func (h *Handlers) HandleGetIndex(c *gin.Context) {
	id := c.Param("id")
	idx, ok := h.monitor.ResilienceIndex(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no resilience index for service " + id, Code: "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, ewsv1.GetResilienceIndexResponse{ServiceID: id, ResilienceIndex: idx})
}

// HandleGetSignals returns retained signals, newest first. ?limit=0 means all.
func (h *Handlers) HandleGetSignals(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	id := c.Param("id")
	c.JSON(http.StatusOK, SignalsResponse{ServiceID: id, Signals: api.ToWireSignals(h.monitor.Signals(id, limit))})
}

// HandleListAlerts returns accumulating and firing alerts.
func (h *Handlers) HandleListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, AlertsResponse{Alerts: api.ToWireAlerts(h.monitor.ActiveAlerts())})
}

// HandleResolveAlert deletes an alert.
//
//	204 No Content: resolved
//	404 Not Found: no such alert
func (h *Handlers) HandleResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if !h.monitor.ResolveAlert(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert " + id + " not found", Code: "NOT_FOUND"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleStatus returns a snapshot of monitored services.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, api.ToWireStatus(h.monitor.Status()))
}

// HandleRecentNotifications returns the most recent guardrail notifications.
func (h *Handlers) HandleRecentNotifications(c *gin.Context) {
	if !h.requireNotifications(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events := h.notifications.Recent(limit)
	out := make([]*ewsv1.Notification, 0, len(events))
	for _, e := range events {
		out = append(out, api.ToNotification(e))
	}
	c.JSON(http.StatusOK, NotificationsResponse{Notifications: out})
}

// HandleNotificationStats returns bus counters.
func (h *Handlers) HandleNotificationStats(c *gin.Context) {
	if !h.requireNotifications(c) {
		return
	}
	stats := h.notifications.Stats()
	resp := NotificationStatsResponse{
		Published:   stats.Published,
		Dropped:     stats.Dropped,
		Delivered:   stats.Delivered,
		FailedSends: stats.FailedSends,
		Subscribers: stats.Subscribers,
		QueueDepth:  stats.QueueDepth,
		ByType:      make(map[string]int64, len(stats.ByType)),
		ByPriority:  make(map[string]int64, len(stats.ByPriority)),
	}
	for k, v := range stats.ByType {
		resp.ByType[string(k)] = v
	}
	for k, v := range stats.ByPriority {
		resp.ByPriority[string(k)] = v
	}
	c.JSON(http.StatusOK, resp)
}

// HandleNotificationStream upgrades to a websocket and pushes notifications
// as JSON text frames. ?serviceId= narrows the stream to one service.
func (h *Handlers) HandleNotificationStream(c *gin.Context) {
	if !h.requireNotifications(c) {
		return
	}
	var filter func(models.Event) bool
	if serviceID := c.Query("serviceId"); serviceID != "" {
		filter = func(e models.Event) bool { return e.Payload.ServiceID == serviceID }
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	events, cancel := h.notifications.SubscribeFiltered(streamBuffer, filter)
	defer cancel()

	// The read pump only exists to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "notification bus closed"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(api.ToNotification(event)); err != nil {
				h.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) requireNotifications(c *gin.Context) bool {
	if h.notifications == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "notification bus not configured", Code: "UNAVAILABLE"})
		return false
	}
	return true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer", Code: "INVALID_LIMIT"})
		return 0, false
	}
	return limit, true
}
