package domain

// Step names a unit of work in the conversation graph.
// The set is closed: every value is declared below and the routing table is
// validated against it at startup.
type Step string

const (
	StepIngest              Step = "ingest"
	StepSummarize           Step = "summarize"
	StepClassify            Step = "classify"
	StepCollectFields       Step = "collect_fields"
	StepCreatePatient       Step = "create_patient"
	StepUpdatePatient       Step = "update_patient"
	StepDeletePatient       Step = "delete_patient"
	StepListPatients        Step = "list_patients"
	StepGetPatient          Step = "get_patient"
	StepListScans           Step = "list_scans"
	StepSelectScan          Step = "select_scan"
	StepPaginate            Step = "paginate"
	StepRequestConfirmation Step = "request_confirmation"
	StepHandleConfirmation  Step = "handle_confirmation"
	StepCancel              Step = "cancel"
	StepUnknown             Step = "unknown"
	StepFinalize            Step = "finalize"

	// StepTerminal is the sentinel next-step value that ends a turn.
	// It is never executed.
	StepTerminal Step = "__end__"
)

// EntryStep is where every turn starts.
const EntryStep = StepIngest

// Steps returns every executable step in declaration order.
func Steps() []Step {
	return []Step{
		StepIngest,
		StepSummarize,
		StepClassify,
		StepCollectFields,
		StepCreatePatient,
		StepUpdatePatient,
		StepDeletePatient,
		StepListPatients,
		StepGetPatient,
		StepListScans,
		StepSelectScan,
		StepPaginate,
		StepRequestConfirmation,
		StepHandleConfirmation,
		StepCancel,
		StepUnknown,
		StepFinalize,
	}
}

// Valid reports whether s is a declared step (the terminal marker included).
func (s Step) Valid() bool {
	if s == StepTerminal {
		return true
	}
	for _, known := range Steps() {
		if s == known {
			return true
		}
	}
	return false
}

// Token is the symbolic outcome reported by a step.
type Token string

const (
	TokenOK                   Token = "ok"
	TokenNeedsSummary         Token = "needs_summary"
	TokenCancel               Token = "cancel"
	TokenAwaitingConfirmation Token = "awaiting_confirmation"
	TokenContinueWorkflow     Token = "continue_workflow"
	TokenAwaitingSelection    Token = "awaiting_selection"
	TokenClassified           Token = "classified"
	TokenFieldsComplete       Token = "fields_complete"
	TokenFieldsMissing        Token = "fields_missing"
	TokenNewRequest           Token = "new_request"
	TokenNeedsFields          Token = "needs_fields"
	TokenInvalid              Token = "invalid"
	TokenNeedsConfirmation    Token = "needs_confirmation"
	TokenConfirmed            Token = "confirmed"
	TokenRejected             Token = "rejected"
	TokenUnclear              Token = "unclear"
	TokenNotFound             Token = "not_found"
	TokenAmbiguous            Token = "ambiguous"
	TokenNoResults            Token = "no_results"
	TokenError                Token = "error"
	TokenDone                 Token = "done"
)

// Tokens returns every declared token.
func Tokens() []Token {
	return []Token{
		TokenOK,
		TokenNeedsSummary,
		TokenCancel,
		TokenAwaitingConfirmation,
		TokenContinueWorkflow,
		TokenAwaitingSelection,
		TokenClassified,
		TokenFieldsComplete,
		TokenFieldsMissing,
		TokenNewRequest,
		TokenNeedsFields,
		TokenInvalid,
		TokenNeedsConfirmation,
		TokenConfirmed,
		TokenRejected,
		TokenUnclear,
		TokenNotFound,
		TokenAmbiguous,
		TokenNoResults,
		TokenError,
		TokenDone,
	}
}

// Valid reports whether t is a declared token.
func (t Token) Valid() bool {
	for _, known := range Tokens() {
		if t == known {
			return true
		}
	}
	return false
}
