package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter        EventType = "step_enter"
	EventStepLeave        EventType = "step_leave"
	EventRoutingViolation EventType = "routing_violation"
	EventTurnComplete     EventType = "turn_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent represents entry into or exit from a step.
type StepEvent struct {
	EventBase
	Step    Step   `json:"step"`
	Token   Token  `json:"token,omitempty"`
	Context string `json:"context,omitempty"`
}

// TurnEvent is emitted once a turn has produced its response.
type TurnEvent struct {
	EventBase
	Intent   Intent        `json:"intent"`
	Hops     int           `json:"hops"`
	Failure  *Failure      `json:"failure,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for executor observability.
type LifecycleHooks struct {
	OnStepEnter        func(context.Context, *StepEvent)
	OnStepLeave        func(context.Context, *StepEvent)
	OnRoutingViolation func(context.Context, *StepEvent)
	OnTurnComplete     func(context.Context, *TurnEvent)
}
