package runtime

import "github.com/aretw0/carebot/pkg/domain"

// Reply is the template finalize will render.
type Reply struct {
	Template string
	Data     map[string]any
}

// Turn is the scratch space of one turn. It is discarded when the turn ends;
// anything that must survive goes into domain.State.
type Turn struct {
	Text string

	// Confirmed is set by handle_confirmation so the write step commits
	// instead of asking again.
	Confirmed bool

	Reply  Reply
	Output string

	intent    *domain.Intent
	extracted map[string]string
	// calls outlives the per-step working copies, failed ones included.
	calls domain.CallMetrics
}

func (t *Turn) reply(template string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	t.Reply = Reply{Template: template, Data: data}
}

// Outcome is what RunTurn hands back to the caller.
type Outcome struct {
	Text    string
	State   *domain.State
	Trace   []domain.Step
	Failure *domain.Failure
}
