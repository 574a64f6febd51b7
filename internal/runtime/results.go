package runtime

import (
	"context"
	"errors"
	"strconv"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
)

// page renders the next page of the results buffer and advances the offset.
// Ordinals are global so a scan can be picked from any page.
func (e *Executor) page(s *domain.State, title string) Reply {
	size := s.PageSize
	if size <= 0 {
		size = domain.DefaultPageSize
	}
	from := s.PaginationOffset
	to := min(from+size, len(s.ResultsBuffer))

	items := make([]map[string]any, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, map[string]any{"n": i + 1, "label": label(s.ResultsBuffer[i])})
	}
	s.PaginationOffset = to

	return Reply{Template: "results_page", Data: map[string]any{
		"title":      title,
		"from":       from + 1,
		"to":         to,
		"total":      len(s.ResultsBuffer),
		"items":      items,
		"more":       to < len(s.ResultsBuffer),
		"selectable": s.DownloadStage == domain.DownloadAwaitingSelection,
	}}
}

func label(item domain.ResultItem) string {
	f := item.Fields
	if item.Kind == domain.RecordScan {
		return f["modality"] + " · " + f["created_at"] + " · " + f["status"]
	}
	l := f[domain.FieldFirstName] + " " + f[domain.FieldLastName]
	if f[domain.FieldBirthDate] != "" {
		l += " (born " + f[domain.FieldBirthDate] + ")"
	}
	return l
}

func (e *Executor) paginate(_ context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.Intent = domain.IntentNextPage
	switch {
	case len(s.ResultsBuffer) == 0:
		turn.reply("no_results", map[string]any{"message": "There is nothing to page through. Ask me to list patients or scan results first."})
		return routing.Emit(domain.TokenNoResults)
	case s.PaginationOffset >= len(s.ResultsBuffer):
		turn.reply("end_of_results", nil)
		return routing.Emit(domain.TokenNoResults)
	}

	title := "Patients"
	if s.ResultsBuffer[0].Kind == domain.RecordScan {
		title = "Scan results"
	}
	turn.Reply = e.page(s, title)
	return routing.Emit(domain.TokenDone)
}

func (e *Executor) listScans(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PendingAction = domain.ActionListScans
	s.Intent = domain.IntentListScans
	s.DownloadStage = domain.DownloadAwaitingPatient
	e.absorb(ctx, turn, s)

	t, sig, ok := e.resolveTarget(ctx, turn, s, actionPhrase(domain.ActionListScans))
	if !ok {
		return sig
	}

	scans, err := e.deps.Records.ListScans(ctx, t.patient.ID, scanListLimit)
	if err != nil {
		return e.serviceFailed(ctx, turn, s, "list scans", err)
	}

	s.ResetForCancellation()
	s.SelectedRecordID = t.patient.ID
	if len(scans) == 0 {
		turn.reply("no_results", map[string]any{"message": "There are no scan results for " + t.patient.FullName() + "."})
		return routing.Emit(domain.TokenNoResults)
	}

	s.ResultsBuffer = make([]domain.ResultItem, len(scans))
	for i, sc := range scans {
		s.ResultsBuffer[i] = domain.ScanItem(sc)
	}
	s.DownloadStage = domain.DownloadAwaitingSelection
	turn.Reply = e.page(s, "Scan results for "+t.patient.FullName())
	return routing.Emit(domain.TokenDone)
}

var errNotSelection = errors.New("not a selection")

func (e *Executor) selectScan(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	n, err := selection(e.fields(ctx, turn))
	if err != nil {
		return routing.Emit(domain.TokenNewRequest)
	}

	scans := 0
	for _, item := range s.ResultsBuffer {
		if item.Kind == domain.RecordScan {
			scans++
		}
	}
	if n < 1 || n > scans {
		s.Fail(domain.ErrorValidation, "selection "+strconv.Itoa(n)+" out of range")
		turn.reply("invalid_selection", map[string]any{"max": scans})
		return routing.Emit(domain.TokenInvalid)
	}

	item := s.ResultsBuffer[n-1]
	s.DownloadStage = domain.DownloadCompleted
	s.SelectedRecordID = item.ID
	turn.reply("scan_selected", map[string]any{
		"id":           item.ID,
		"modality":     item.Fields["modality"],
		"created_at":   item.Fields["created_at"],
		"download_url": item.Fields["download_url"],
	})
	return routing.Emit(domain.TokenDone)
}

func selection(fields map[string]string) (int, error) {
	raw, ok := fields[domain.FieldSelection]
	if !ok {
		return 0, errNotSelection
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errNotSelection
	}
	return n, nil
}
