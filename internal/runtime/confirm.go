package runtime

import (
	"context"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
)

func (e *Executor) requestConfirmation(_ context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.ConfirmationRequired = true
	turn.Reply = confirmationPrompt(s)
	return routing.Emit(domain.TokenDone)
}

// confirmationPrompt builds the yes/no question for the pending confirmation.
func confirmationPrompt(s *domain.State) Reply {
	data := map[string]any{
		"name": s.ValidatedFields[domain.FieldPatient],
		"id":   s.SelectedRecordID,
	}
	if s.AwaitingConfirmation == domain.ConfirmUpdate {
		data["changed"] = describe(changes(s.ValidatedFields))
		return Reply{Template: "confirm_update", Data: data}
	}
	return Reply{Template: "confirm_delete", Data: data}
}

func (e *Executor) handleConfirmation(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	answer, err := e.deps.Classifier.Answer(ctx, turn.Text)
	if err != nil {
		e.logger.WarnContext(ctx, "answer classification failed", "error", err)
		answer = domain.AnswerUnclear
	}

	switch answer {
	case domain.AnswerYes:
		s.ConfirmationRequired = false
		turn.Confirmed = true
		return routing.EmitWith(domain.TokenConfirmed, string(s.AwaitingConfirmation))
	case domain.AnswerNo:
		return routing.Emit(domain.TokenRejected)
	default:
		turn.reply("confirmation_unclear", nil)
		return routing.Emit(domain.TokenUnclear)
	}
}

// finalize renders the reply, re-asks a pending confirmation and closes the
// turn. A failure from an earlier turn is dropped once no workflow is open.
func (e *Executor) finalize(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	text := e.render(ctx, turn.Reply)
	if s.ConfirmationRequired && turn.Reply.Template != "confirm_delete" && turn.Reply.Template != "confirm_update" {
		text += "\n\n" + e.render(ctx, confirmationPrompt(s))
	}
	turn.Output = text
	if !s.FailedThisTurn(s.Turns) && s.PendingAction == domain.ActionNone && !s.ConfirmationRequired {
		s.LastError = nil
	}
	s.Turns++
	s.UpdatedAt = e.now()
	return routing.Emit(domain.TokenDone)
}
