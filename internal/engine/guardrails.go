package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-ews/internal/metrics"
	"github.com/miradorstack/mirador-ews/internal/models"
)

var tracer = otel.Tracer("github.com/miradorstack/mirador-ews/internal/engine")

// Autoscaler requests additional capacity for a service.
type Autoscaler interface {
	Scale(ctx context.Context, serviceID string, factor float64) error
}

// RateLimiter caps request throughput for a service.
type RateLimiter interface {
	SetLimit(ctx context.Context, serviceID string, requestsPerMinute int) error
}

// KillSwitch halts processing globally.
type KillSwitch interface {
	EnableGlobalKillSwitch(ctx context.Context, reason string) error
}

// Publisher announces guardrail actions.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Actuators groups the external collaborators a Trigger drives. Nil members
// are replaced by implementations that accept and discard every request.
type Actuators struct {
	Autoscaler  Autoscaler
	RateLimiter RateLimiter
	KillSwitch  KillSwitch
	Publisher   Publisher
}

// GuardrailPolicy holds the band thresholds and action parameters.
type GuardrailPolicy struct {
	AutoscaleBelow float64
	RateLimitBelow float64
	BrownoutBelow  float64
	ScaleFactor    float64
	MaxPerMinute   int
	// Timeout bounds each actuator call.
	Timeout time.Duration
	// Cooldown suppresses repeats of the same band for a service. Zero disables it.
	Cooldown time.Duration
}

// DefaultGuardrailPolicy returns the reference thresholds.
func DefaultGuardrailPolicy() GuardrailPolicy {
	return GuardrailPolicy{
		AutoscaleBelow: 50,
		RateLimitBelow: 30,
		BrownoutBelow:  20,
		ScaleFactor:    1.5,
		MaxPerMinute:   100,
		Timeout:        5 * time.Second,
	}
}

// ActionResult reports the outcome of one guardrail band.
type ActionResult struct {
	Type       models.ActionType
	Err        error
	Suppressed bool
}

// Trigger evaluates guardrail bands for a freshly computed index. It is not
// idempotent: every call with a low index requests the actions again.
type Trigger struct {
	logger    *slog.Logger
	policy    GuardrailPolicy
	actuators Actuators
	now       func() time.Time

	mu       sync.Mutex
	cooldown map[string]*rate.Limiter
}

// NewTrigger constructs a guardrail trigger.
func NewTrigger(logger *slog.Logger, policy GuardrailPolicy, actuators Actuators) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	if actuators.Autoscaler == nil {
		actuators.Autoscaler = discard{}
	}
	if actuators.RateLimiter == nil {
		actuators.RateLimiter = discard{}
	}
	if actuators.KillSwitch == nil {
		actuators.KillSwitch = discard{}
	}
	if actuators.Publisher == nil {
		actuators.Publisher = discard{}
	}
	return &Trigger{
		logger:    logger,
		policy:    policy,
		actuators: actuators,
		now:       time.Now,
		cooldown:  make(map[string]*rate.Limiter),
	}
}

// TriggerGuardrails fires every band the index falls under. A failing band is
// logged and reported in the results; the remaining bands are still evaluated.
func (t *Trigger) TriggerGuardrails(ctx context.Context, resilienceIndex float64, serviceID string) []ActionResult {
	var results []ActionResult

	if resilienceIndex < t.policy.AutoscaleBelow {
		action := models.Autoscale{Factor: t.policy.ScaleFactor}
		results = append(results, t.fire(ctx, serviceID, resilienceIndex, action, models.PriorityNormal, func(ctx context.Context) error {
			return t.actuators.Autoscaler.Scale(ctx, serviceID, action.Factor)
		}))
	}

	if resilienceIndex < t.policy.RateLimitBelow {
		action := models.RateLimit{MaxPerMinute: t.policy.MaxPerMinute}
		results = append(results, t.fire(ctx, serviceID, resilienceIndex, action, models.PriorityNormal, func(ctx context.Context) error {
			return t.actuators.RateLimiter.SetLimit(ctx, serviceID, action.MaxPerMinute)
		}))
	}

	if resilienceIndex < t.policy.BrownoutBelow {
		action := models.Brownout{Reason: fmt.Sprintf("resilience index for %s dropped to %.1f", serviceID, resilienceIndex)}
		results = append(results, t.fire(ctx, serviceID, resilienceIndex, action, models.PriorityHigh, func(ctx context.Context) error {
			return t.actuators.KillSwitch.EnableGlobalKillSwitch(ctx, action.Reason)
		}))
	}

	return results
}

func (t *Trigger) fire(ctx context.Context, serviceID string, index float64, action models.GuardrailAction, priority models.Priority, call func(context.Context) error) ActionResult {
	kind := action.Type()
	result := ActionResult{Type: kind}

	if !t.allow(serviceID, kind) {
		result.Suppressed = true
		metrics.ObserveGuardrail(string(kind), metrics.OutcomeSuppressed)
		t.logger.Debug("guardrail suppressed by cooldown", slog.String("service", serviceID), slog.String("action", string(kind)))
		return result
	}

	ctx, span := tracer.Start(ctx, "guardrail."+string(kind),
		trace.WithAttributes(
			attribute.String("ews.service", serviceID),
			attribute.Float64("ews.resilience_index", index),
		),
	)
	defer span.End()

	if err := t.invoke(ctx, call); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "actuator failed")
		metrics.ObserveGuardrail(string(kind), metrics.OutcomeError)
		t.logger.Error("guardrail action failed",
			slog.String("service", serviceID),
			slog.String("action", string(kind)),
			slog.Float64("resilience_index", index),
			slog.Any("error", err),
		)
		result.Err = err
		return result
	}
	metrics.ObserveGuardrail(string(kind), metrics.OutcomeSuccess)

	event := models.Event{
		ID:        uuid.NewString(),
		Timestamp: t.now().UTC(),
		Topic:     models.TopicAlert,
		Priority:  priority,
		Payload: models.GuardrailPayload{
			ServiceID:       serviceID,
			ResilienceIndex: index,
			Action:          action,
		},
	}
	if err := t.actuators.Publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		t.logger.Warn("guardrail notification not published",
			slog.String("service", serviceID),
			slog.String("action", string(kind)),
			slog.Any("error", err),
		)
	}

	t.logger.Info("guardrail action requested",
		slog.String("service", serviceID),
		slog.String("action", string(kind)),
		slog.Float64("resilience_index", index),
	)
	return result
}

// invoke runs an actuator call under the policy timeout and converts panics into errors.
func (t *Trigger) invoke(ctx context.Context, call func(context.Context) error) (err error) {
	if t.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.policy.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actuator panic: %v", r)
		}
	}()
	return call(ctx)
}

func (t *Trigger) allow(serviceID string, kind models.ActionType) bool {
	if t.policy.Cooldown <= 0 {
		return true
	}
	key := serviceID + "|" + string(kind)

	t.mu.Lock()
	limiter, ok := t.cooldown[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.policy.Cooldown), 1)
		t.cooldown[key] = limiter
	}
	t.mu.Unlock()

	return limiter.AllowN(t.now(), 1)
}

type discard struct{}

func (discard) Scale(context.Context, string, float64) error { return nil }
func (discard) SetLimit(context.Context, string, int) error { return nil }
func (discard) EnableGlobalKillSwitch(context.Context, string) error { return nil }
func (discard) Publish(context.Context, models.Event) error { return nil }
