package runtime

import (
	"context"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
)

// ingest records the message and decides where the turn resumes.
func (e *Executor) ingest(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PushMessage(turn.Text)
	if s.AtCapacity() {
		return routing.Emit(domain.TokenNeedsSummary)
	}
	return e.resume(ctx, turn, s)
}

// resume picks up whatever the conversation was waiting for. Cancellation
// wins over everything, then a pending confirmation, an open workflow and
// finally a scan selection.
func (e *Executor) resume(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	if intent, err := e.intent(ctx, turn); err != nil {
		e.logger.WarnContext(ctx, "classification failed while resuming", "error", err)
	} else if intent == domain.IntentCancel {
		return routing.Emit(domain.TokenCancel)
	}

	switch {
	case s.ConfirmationRequired:
		return routing.Emit(domain.TokenAwaitingConfirmation)
	case s.PendingAction != domain.ActionNone:
		return routing.Emit(domain.TokenContinueWorkflow)
	case s.DownloadStage == domain.DownloadAwaitingSelection:
		if _, ok := e.fields(ctx, turn)[domain.FieldSelection]; ok {
			return routing.Emit(domain.TokenAwaitingSelection)
		}
	}
	return routing.Emit(domain.TokenOK)
}

// summarize folds the oldest half of the recent messages into the digest.
func (e *Executor) summarize(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	n := len(s.RecentMessages) / 2
	folded := s.RecentMessages[:n]

	digest, err := e.deps.Summarizer.Summarize(ctx, s.HistorySummary.Digest, folded)
	if err != nil {
		e.logger.WarnContext(ctx, "summarizer failed, keeping a plain digest", "error", err)
		digest = plainDigest(s.HistorySummary.Digest, folded)
	}

	s.HistorySummary = domain.HistorySummary{
		Turns:     s.HistorySummary.Turns + n,
		Digest:    digest,
		UpdatedAt: e.now(),
	}
	s.RecentMessages = append(make([]string, 0, domain.RecentMessagesCapacity), s.RecentMessages[n:]...)
	return e.resume(ctx, turn, s)
}

func plainDigest(previous string, messages []string) string {
	parts := make([]string, 0, len(messages)+1)
	if previous != "" {
		parts = append(parts, previous)
	}
	parts = append(parts, messages...)
	return strings.Join(parts, " | ")
}
