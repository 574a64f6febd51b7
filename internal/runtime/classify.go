package runtime

import (
	"context"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
)

// workflowIntents start a fresh workflow and discard whatever was in progress.
var workflowIntents = map[domain.Intent]bool{
	domain.IntentCreatePatient: true,
	domain.IntentUpdatePatient: true,
	domain.IntentDeletePatient: true,
	domain.IntentListPatients:  true,
	domain.IntentGetPatient:    true,
	domain.IntentListScans:     true,
}

func (e *Executor) classify(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	intent, err := e.intent(ctx, turn)
	if err != nil {
		s.Fail(domain.ErrorInternal, err.Error())
		turn.reply("apology", nil)
		return routing.Emit(domain.TokenError)
	}

	if workflowIntents[intent] {
		s.ResetForCancellation()
	}
	s.Intent = intent
	return routing.EmitWith(domain.TokenClassified, string(intent))
}

// collectFields continues an open workflow with whatever the user just said.
func (e *Executor) collectFields(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	got := e.absorb(ctx, turn, s)

	if got == 0 {
		if intent, err := e.intent(ctx, turn); err == nil && intent != domain.IntentUnknown {
			return routing.Emit(domain.TokenNewRequest)
		}
		if len(s.PendingFields) > 0 {
			turn.reply("ask_fields", map[string]any{
				"action": actionPhrase(s.PendingAction),
				"fields": s.PendingFields.Sorted(),
			})
			return routing.Emit(domain.TokenFieldsMissing)
		}
		// Nothing new but nothing missing either: the last attempt failed
		// and the user is asking to try again.
	}

	for f := range s.PendingFields {
		if satisfied(f, s.ExtractedFields) {
			delete(s.PendingFields, f)
		}
	}
	return routing.EmitWith(domain.TokenFieldsComplete, string(s.PendingAction))
}

func satisfied(field string, have map[string]string) bool {
	switch field {
	case domain.FieldPatient:
		return have[domain.FieldPatient] != "" || have[domain.FieldDNI] != ""
	case domain.FieldChanges:
		return len(changes(have)) > 0
	default:
		return have[field] != ""
	}
}

func (e *Executor) unknown(_ context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.Intent = domain.IntentUnknown
	turn.reply("unknown", nil)
	return routing.Emit(domain.TokenDone)
}

func (e *Executor) cancel(_ context.Context, turn *Turn, s *domain.State) routing.Signal {
	idle := s.PendingAction == domain.ActionNone &&
		!s.ConfirmationRequired &&
		s.DownloadStage == domain.DownloadNone &&
		len(s.ResultsBuffer) == 0
	s.ResetForCancellation()
	s.Intent = domain.IntentCancel
	if idle {
		turn.reply("nothing_to_cancel", nil)
	} else {
		turn.reply("cancelled", nil)
	}
	return routing.Emit(domain.TokenDone)
}
