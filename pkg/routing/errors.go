package routing

import (
	"fmt"

	"github.com/aretw0/carebot/pkg/domain"
)

// InvalidTransitionError reports a signal the table does not declare.
type InvalidTransitionError struct {
	Step    domain.Step
	Token   domain.Token
	Context string
}

func (e *InvalidTransitionError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("invalid transition: step %q emitted %q with context %q", e.Step, e.Token, e.Context)
	}
	return fmt.Sprintf("invalid transition: step %q emitted %q", e.Step, e.Token)
}

// Unwrap lets callers match with errors.Is(err, domain.ErrInvalidTransition).
func (e *InvalidTransitionError) Unwrap() error {
	return domain.ErrInvalidTransition
}
