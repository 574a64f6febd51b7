package domain

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentUnknown       Intent = "unknown"
	IntentCreatePatient Intent = "create_patient"
	IntentUpdatePatient Intent = "update_patient"
	IntentDeletePatient Intent = "delete_patient"
	IntentListPatients  Intent = "list_patients"
	IntentGetPatient    Intent = "get_patient"
	IntentListScans     Intent = "list_scans"
	IntentNextPage      Intent = "next_page"
	IntentCancel        Intent = "cancel"
)

// Intents returns every declared intent.
func Intents() []Intent {
	return []Intent{
		IntentUnknown,
		IntentCreatePatient,
		IntentUpdatePatient,
		IntentDeletePatient,
		IntentListPatients,
		IntentGetPatient,
		IntentListScans,
		IntentNextPage,
		IntentCancel,
	}
}

// ParseIntent maps a name to a declared intent, falling back to IntentUnknown.
func ParseIntent(name string) Intent {
	for _, i := range Intents() {
		if string(i) == name {
			return i
		}
	}
	return IntentUnknown
}

// Action is the multi-turn workflow currently in progress.
type Action string

const (
	ActionNone      Action = "none"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionGet       Action = "get"
	ActionListScans Action = "list_scans"
)

// Actions returns every declared action.
func Actions() []Action {
	return []Action{ActionNone, ActionCreate, ActionUpdate, ActionDelete, ActionGet, ActionListScans}
}

// ConfirmationType records which yes/no question is pending.
type ConfirmationType string

const (
	ConfirmNone   ConfirmationType = "none"
	ConfirmDelete ConfirmationType = "delete"
	ConfirmUpdate ConfirmationType = "update"
)

// ConfirmationTypes returns every declared confirmation type.
func ConfirmationTypes() []ConfirmationType {
	return []ConfirmationType{ConfirmNone, ConfirmDelete, ConfirmUpdate}
}

// DownloadStage tracks the scan-result selection workflow.
type DownloadStage string

const (
	DownloadNone              DownloadStage = "none"
	DownloadAwaitingPatient   DownloadStage = "awaiting_patient"
	DownloadAwaitingSelection DownloadStage = "awaiting_selection"
	DownloadCompleted         DownloadStage = "completed"
)

// RecordKind distinguishes entries held in the results buffer.
type RecordKind string

const (
	RecordPatient RecordKind = "patient"
	RecordScan    RecordKind = "scan_result"
)

// Answer is the reading of a reply to a yes/no question.
type Answer string

const (
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
	AnswerUnclear Answer = "unclear"
)
