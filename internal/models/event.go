package models

import "time"

// TopicAlert is the bus topic guardrail notifications are published on.
const TopicAlert = "alert"

// ActionType names a guardrail band.
type ActionType string

const (
	ActionAutoscale ActionType = "autoscale"
	ActionRateLimit ActionType = "rate_limit"
	ActionBrownout  ActionType = "brownout"
)

// Priority orders notifications for consumers that care.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Event is a notification emitted when a guardrail action is requested.
type Event struct {
	ID        string
	Timestamp time.Time
	Topic     string
	Priority  Priority
	Payload   GuardrailPayload
}

// GuardrailPayload describes the action taken against a service.
type GuardrailPayload struct {
	ServiceID       string
	ResilienceIndex float64
	Action          GuardrailAction
}

// Type returns the action type carried by the payload.
func (p GuardrailPayload) Type() ActionType {
	if p.Action == nil {
		return ""
	}
	return p.Action.Type()
}

// GuardrailAction is implemented by Autoscale, RateLimit and Brownout only.
type GuardrailAction interface {
	Type() ActionType
	guardrailAction()
}

// Autoscale requests a capacity increase by Factor.
type Autoscale struct {
	Factor float64
}

// RateLimit caps a service at MaxPerMinute requests.
type RateLimit struct {
	MaxPerMinute int
}

// Brownout enables the global kill switch.
type Brownout struct {
	Reason string
}

func (Autoscale) Type() ActionType { return ActionAutoscale }
func (RateLimit) Type() ActionType { return ActionRateLimit }
func (Brownout) Type() ActionType  { return ActionBrownout }

func (Autoscale) guardrailAction() {}
func (RateLimit) guardrailAction() {}
func (Brownout) guardrailAction()  {}
