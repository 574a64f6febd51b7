package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/carebot/pkg/domain"
)

// Hooks feeds the executor's lifecycle events into the instruments and the logger.
func Hooks(m *Metrics, logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			m.ObserveStep(string(e.Step), string(e.Token))
			logger.DebugContext(ctx, "step finished",
				"session_id", e.SessionID,
				"step", e.Step,
				"token", e.Token,
				"context", e.Context,
			)
		},
		OnRoutingViolation: func(ctx context.Context, e *domain.StepEvent) {
			m.ObserveViolation()
			logger.ErrorContext(ctx, "routing violation",
				"session_id", e.SessionID,
				"step", e.Step,
				"token", e.Token,
				"context", e.Context,
			)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			m.ObserveTurn(string(e.Intent), e.Duration)
			attrs := []any{
				"session_id", e.SessionID,
				"intent", e.Intent,
				"hops", e.Hops,
				"duration", e.Duration,
			}
			if e.Failure != nil {
				attrs = append(attrs, "failure", e.Failure.Kind)
			}
			logger.InfoContext(ctx, "turn complete", attrs...)
		},
	}
}
