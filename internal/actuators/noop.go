package actuators

import (
	"context"
	"log/slog"
)

// NoopAutoscaler accepts scale requests without acting on them.
type NoopAutoscaler struct{ Logger *slog.Logger }

// Scale logs the request at debug level.
func (n NoopAutoscaler) Scale(_ context.Context, serviceID string, factor float64) error {
	logger(n.Logger).Debug("autoscaler not configured; scale request dropped",
		slog.String("service", serviceID), slog.Float64("factor", factor))
	return nil
}

// NoopRateLimiter accepts limit requests without acting on them.
type NoopRateLimiter struct{ Logger *slog.Logger }

// SetLimit logs the request at debug level.
func (n NoopRateLimiter) SetLimit(_ context.Context, serviceID string, requestsPerMinute int) error {
	logger(n.Logger).Debug("rate limiter not configured; limit request dropped",
		slog.String("service", serviceID), slog.Int("requests_per_minute", requestsPerMinute))
	return nil
}

// NoopKillSwitch accepts kill switch requests without acting on them.
type NoopKillSwitch struct{ Logger *slog.Logger }

// EnableGlobalKillSwitch logs the request at warn level; a brownout that goes
// nowhere should still be visible.
func (n NoopKillSwitch) EnableGlobalKillSwitch(_ context.Context, reason string) error {
	logger(n.Logger).Warn("kill switch not configured; brownout request dropped", slog.String("reason", reason))
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
