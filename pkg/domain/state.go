package domain

import (
	"sort"
	"time"

	"github.com/aretw0/carebot/pkg/redact"
)

const (
	// RecentMessagesCapacity bounds State.RecentMessages.
	RecentMessagesCapacity = 8
	// DefaultPageSize is the number of results shown per page.
	DefaultPageSize = 5
)

// HistorySummary is the digest of messages folded out of RecentMessages.
type HistorySummary struct {
	Turns     int       `json:"turns"`
	Digest    string    `json:"digest"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsZero reports whether no summarization has happened yet.
func (h HistorySummary) IsZero() bool {
	return h.Turns == 0 && h.Digest == ""
}

// FieldSet is a set of field names.
type FieldSet map[string]struct{}

// NewFieldSet builds a set from names.
func NewFieldSet(names ...string) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// State is the authoritative per-conversation container.
// It is owned by the caller between turns and mutated only by step functions
// while a turn runs. Every field has a usable default after NewState.
type State struct {
	SessionID string `json:"session_id"`

	// RecentMessages holds raw turn text, oldest first, bounded by RecentMessagesCapacity.
	RecentMessages []string       `json:"recent_messages"`
	HistorySummary HistorySummary `json:"history_summary"`

	Intent               Intent           `json:"intent"`
	PendingAction        Action           `json:"pending_action"`
	AwaitingConfirmation ConfirmationType `json:"awaiting_confirmation"`
	DownloadStage        DownloadStage    `json:"download_stage"`

	ExtractedFields map[string]string `json:"extracted_fields"`
	ValidatedFields map[string]string `json:"validated_fields"`
	PendingFields   FieldSet          `json:"pending_fields"`

	SelectedRecordID string       `json:"selected_record_id"`
	ResultsBuffer    []ResultItem `json:"results_buffer"`
	PaginationOffset int          `json:"pagination_offset"`
	PageSize         int          `json:"page_size"`

	// ConfirmationRequired makes the next turn a yes/no answer.
	ConfirmationRequired bool `json:"confirmation_required"`

	LastError *Failure    `json:"last_error,omitempty"`
	Metrics   CallMetrics `json:"metrics"`

	Turns     int       `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates a state with every field at its default.
func NewState(sessionID string) *State {
	return &State{
		SessionID:            sessionID,
		RecentMessages:       make([]string, 0, RecentMessagesCapacity),
		Intent:               IntentUnknown,
		PendingAction:        ActionNone,
		AwaitingConfirmation: ConfirmNone,
		DownloadStage:        DownloadNone,
		ExtractedFields:      make(map[string]string),
		ValidatedFields:      make(map[string]string),
		PendingFields:        make(FieldSet),
		ResultsBuffer:        []ResultItem{},
		PageSize:             DefaultPageSize,
	}
}

// PushMessage appends raw turn text, evicting the oldest entries beyond capacity.
func (s *State) PushMessage(text string) {
	s.RecentMessages = append(s.RecentMessages, text)
	if over := len(s.RecentMessages) - RecentMessagesCapacity; over > 0 {
		s.RecentMessages = append([]string(nil), s.RecentMessages[over:]...)
	}
}

// AtCapacity reports whether RecentMessages is full.
func (s *State) AtCapacity() bool {
	return len(s.RecentMessages) >= RecentMessagesCapacity
}

// ResetForCancellation clears workflow-scoped fields.
// RecentMessages, HistorySummary, PageSize, Metrics and Turns are preserved.
func (s *State) ResetForCancellation() {
	s.PendingAction = ActionNone
	s.AwaitingConfirmation = ConfirmNone
	s.DownloadStage = DownloadNone
	s.ExtractedFields = make(map[string]string)
	s.ValidatedFields = make(map[string]string)
	s.PendingFields = make(FieldSet)
	s.SelectedRecordID = ""
	s.ResultsBuffer = []ResultItem{}
	s.PaginationOffset = 0
	s.ConfirmationRequired = false
	s.LastError = nil
}

// Fail records the last failure against the turn in progress.
func (s *State) Fail(kind ErrorKind, message string) {
	s.LastError = &Failure{Kind: kind, Message: message, Turn: s.Turns}
}

// FailedThisTurn reports whether LastError was recorded during turn number turn.
func (s *State) FailedThisTurn(turn int) bool {
	return s.LastError != nil && s.LastError.Turn == turn
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	next := *s
	next.RecentMessages = append(make([]string, 0, RecentMessagesCapacity), s.RecentMessages...)
	next.ExtractedFields = copyFields(s.ExtractedFields)
	next.ValidatedFields = copyFields(s.ValidatedFields)
	next.PendingFields = make(FieldSet, len(s.PendingFields))
	for k := range s.PendingFields {
		next.PendingFields[k] = struct{}{}
	}
	next.ResultsBuffer = make([]ResultItem, len(s.ResultsBuffer))
	for i, item := range s.ResultsBuffer {
		item.Fields = copyFields(item.Fields)
		next.ResultsBuffer[i] = item
	}
	if s.LastError != nil {
		f := *s.LastError
		next.LastError = &f
	}
	return &next
}

// Snapshot renders the state as a plain nested structure for external storage.
// Enumerations are rendered by name and sensitive identifiers are redacted.
func (s *State) Snapshot() map[string]any {
	messages := make([]any, len(s.RecentMessages))
	for i, m := range s.RecentMessages {
		messages[i] = redact.Text(m)
	}

	results := make([]any, len(s.ResultsBuffer))
	for i, item := range s.ResultsBuffer {
		results[i] = map[string]any{
			"kind":   string(item.Kind),
			"id":     item.ID,
			"fields": redact.Map(item.Fields),
		}
	}

	pending := make([]any, 0, len(s.PendingFields))
	for _, f := range s.PendingFields.Sorted() {
		pending = append(pending, f)
	}

	var lastError any
	if s.LastError != nil {
		lastError = map[string]any{
			"kind":    string(s.LastError.Kind),
			"message": redact.Text(s.LastError.Message),
			"turn":    s.LastError.Turn,
		}
	}

	return map[string]any{
		"session_id":      s.SessionID,
		"recent_messages": messages,
		"history_summary": map[string]any{
			"turns":      s.HistorySummary.Turns,
			"digest":     redact.Text(s.HistorySummary.Digest),
			"updated_at": s.HistorySummary.UpdatedAt.Format(time.RFC3339),
		},
		"intent":                     string(s.Intent),
		"pending_action":             string(s.PendingAction),
		"awaiting_confirmation_type": string(s.AwaitingConfirmation),
		"download_stage":             string(s.DownloadStage),
		"extracted_fields":           redact.Map(s.ExtractedFields),
		"validated_fields":           redact.Map(s.ValidatedFields),
		"pending_fields":             pending,
		"selected_record_id":         s.SelectedRecordID,
		"results_buffer":             results,
		"pagination_offset":          s.PaginationOffset,
		"page_size":                  s.PageSize,
		"confirmation_required":      s.ConfirmationRequired,
		"last_error":                 lastError,
		"metrics":                    s.Metrics.Snapshot(),
		"turns":                      s.Turns,
		"updated_at":                 s.UpdatedAt.Format(time.RFC3339),
	}
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
