package routing

import "github.com/aretw0/carebot/pkg/domain"

// Conversation builds the routing table of the patient-records assistant.
func Conversation() (*Table, error) {
	b := NewBuilder(domain.EntryStep)

	// Ingest and summarize share the resume routes: a pending confirmation,
	// workflow or selection takes priority over a fresh classification.
	b.From(domain.StepIngest).
		On(domain.TokenOK, domain.StepClassify).
		On(domain.TokenNeedsSummary, domain.StepSummarize).
		On(domain.TokenCancel, domain.StepCancel).
		On(domain.TokenAwaitingConfirmation, domain.StepHandleConfirmation).
		On(domain.TokenContinueWorkflow, domain.StepCollectFields).
		On(domain.TokenAwaitingSelection, domain.StepSelectScan)

	b.From(domain.StepSummarize).
		On(domain.TokenOK, domain.StepClassify).
		On(domain.TokenCancel, domain.StepCancel).
		On(domain.TokenAwaitingConfirmation, domain.StepHandleConfirmation).
		On(domain.TokenContinueWorkflow, domain.StepCollectFields).
		On(domain.TokenAwaitingSelection, domain.StepSelectScan)

	classify := b.From(domain.StepClassify).On(domain.TokenError, domain.StepFinalize)
	for intent, step := range IntentSteps() {
		classify.OnContext(domain.TokenClassified, string(intent), step)
	}

	collect := b.From(domain.StepCollectFields).
		On(domain.TokenFieldsMissing, domain.StepFinalize).
		On(domain.TokenNewRequest, domain.StepClassify)
	for action, step := range ActionSteps() {
		collect.OnContext(domain.TokenFieldsComplete, string(action), step)
	}

	b.From(domain.StepCreatePatient).
		On(domain.TokenNeedsFields, domain.StepFinalize).
		On(domain.TokenInvalid, domain.StepFinalize).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepUpdatePatient).
		On(domain.TokenNeedsFields, domain.StepFinalize).
		On(domain.TokenInvalid, domain.StepFinalize).
		On(domain.TokenNotFound, domain.StepFinalize).
		On(domain.TokenAmbiguous, domain.StepFinalize).
		On(domain.TokenNeedsConfirmation, domain.StepRequestConfirmation).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepDeletePatient).
		On(domain.TokenNeedsFields, domain.StepFinalize).
		On(domain.TokenNotFound, domain.StepFinalize).
		On(domain.TokenAmbiguous, domain.StepFinalize).
		On(domain.TokenNeedsConfirmation, domain.StepRequestConfirmation).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepListPatients).
		On(domain.TokenNoResults, domain.StepFinalize).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepGetPatient).
		On(domain.TokenNeedsFields, domain.StepFinalize).
		On(domain.TokenNotFound, domain.StepFinalize).
		On(domain.TokenAmbiguous, domain.StepFinalize).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepListScans).
		On(domain.TokenNeedsFields, domain.StepFinalize).
		On(domain.TokenNotFound, domain.StepFinalize).
		On(domain.TokenAmbiguous, domain.StepFinalize).
		On(domain.TokenNoResults, domain.StepFinalize).
		On(domain.TokenError, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepSelectScan).
		On(domain.TokenInvalid, domain.StepFinalize).
		On(domain.TokenNewRequest, domain.StepClassify).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepPaginate).
		On(domain.TokenNoResults, domain.StepFinalize).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepRequestConfirmation).
		On(domain.TokenDone, domain.StepFinalize)

	b.From(domain.StepHandleConfirmation).
		OnContext(domain.TokenConfirmed, string(domain.ConfirmDelete), domain.StepDeletePatient).
		OnContext(domain.TokenConfirmed, string(domain.ConfirmUpdate), domain.StepUpdatePatient).
		On(domain.TokenRejected, domain.StepCancel).
		On(domain.TokenUnclear, domain.StepFinalize)

	b.From(domain.StepCancel).On(domain.TokenDone, domain.StepFinalize)
	b.From(domain.StepUnknown).On(domain.TokenDone, domain.StepFinalize)
	b.From(domain.StepFinalize).On(domain.TokenDone, domain.StepTerminal)

	return b.Build()
}

// IntentSteps maps each classified intent to the step handling it.
func IntentSteps() map[domain.Intent]domain.Step {
	return map[domain.Intent]domain.Step{
		domain.IntentUnknown:       domain.StepUnknown,
		domain.IntentCreatePatient: domain.StepCreatePatient,
		domain.IntentUpdatePatient: domain.StepUpdatePatient,
		domain.IntentDeletePatient: domain.StepDeletePatient,
		domain.IntentListPatients:  domain.StepListPatients,
		domain.IntentGetPatient:    domain.StepGetPatient,
		domain.IntentListScans:     domain.StepListScans,
		domain.IntentNextPage:      domain.StepPaginate,
		domain.IntentCancel:        domain.StepCancel,
	}
}

// ActionSteps maps each resumable workflow to the step that executes it.
func ActionSteps() map[domain.Action]domain.Step {
	return map[domain.Action]domain.Step{
		domain.ActionCreate:    domain.StepCreatePatient,
		domain.ActionUpdate:    domain.StepUpdatePatient,
		domain.ActionDelete:    domain.StepDeletePatient,
		domain.ActionGet:       domain.StepGetPatient,
		domain.ActionListScans: domain.StepListScans,
	}
}
