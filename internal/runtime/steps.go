package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/records"
	"github.com/aretw0/carebot/pkg/routing"
)

// scanListLimit caps how many scan results are fetched for one patient.
const scanListLimit = 50

func emits(tokens ...domain.Token) []routing.Emission {
	out := make([]routing.Emission, len(tokens))
	for i, t := range tokens {
		out[i] = routing.Emission{Token: t}
	}
	return out
}

func contexts[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func (e *Executor) register() map[domain.Step]stepDef {
	resume := emits(domain.TokenOK, domain.TokenCancel, domain.TokenAwaitingConfirmation,
		domain.TokenContinueWorkflow, domain.TokenAwaitingSelection)

	return map[domain.Step]stepDef{
		domain.StepIngest: {
			run:   e.ingest,
			emits: append(emits(domain.TokenNeedsSummary), resume...),
		},
		domain.StepSummarize: {run: e.summarize, emits: resume},
		domain.StepClassify: {
			run: e.classify,
			emits: append(emits(domain.TokenError),
				routing.Emission{Token: domain.TokenClassified, Contexts: contexts(routing.IntentSteps())}),
		},
		domain.StepCollectFields: {
			run: e.collectFields,
			emits: append(emits(domain.TokenFieldsMissing, domain.TokenNewRequest),
				routing.Emission{Token: domain.TokenFieldsComplete, Contexts: contexts(routing.ActionSteps())}),
		},
		domain.StepCreatePatient: {
			run:   e.createPatient,
			emits: emits(domain.TokenNeedsFields, domain.TokenInvalid, domain.TokenError, domain.TokenDone),
		},
		domain.StepUpdatePatient: {
			run: e.updatePatient,
			emits: emits(domain.TokenNeedsFields, domain.TokenInvalid, domain.TokenNotFound, domain.TokenAmbiguous,
				domain.TokenNeedsConfirmation, domain.TokenError, domain.TokenDone),
		},
		domain.StepDeletePatient: {
			run: e.deletePatient,
			emits: emits(domain.TokenNeedsFields, domain.TokenNotFound, domain.TokenAmbiguous,
				domain.TokenNeedsConfirmation, domain.TokenError, domain.TokenDone),
		},
		domain.StepListPatients: {
			run:   e.listPatients,
			emits: emits(domain.TokenNoResults, domain.TokenError, domain.TokenDone),
		},
		domain.StepGetPatient: {
			run: e.getPatient,
			emits: emits(domain.TokenNeedsFields, domain.TokenNotFound, domain.TokenAmbiguous,
				domain.TokenError, domain.TokenDone),
		},
		domain.StepListScans: {
			run: e.listScans,
			emits: emits(domain.TokenNeedsFields, domain.TokenNotFound, domain.TokenAmbiguous,
				domain.TokenNoResults, domain.TokenError, domain.TokenDone),
		},
		domain.StepSelectScan: {
			run:   e.selectScan,
			emits: emits(domain.TokenInvalid, domain.TokenNewRequest, domain.TokenDone),
		},
		domain.StepPaginate: {
			run:   e.paginate,
			emits: emits(domain.TokenNoResults, domain.TokenDone),
		},
		domain.StepRequestConfirmation: {
			run:   e.requestConfirmation,
			emits: emits(domain.TokenDone),
		},
		domain.StepHandleConfirmation: {
			run: e.handleConfirmation,
			emits: append(emits(domain.TokenRejected, domain.TokenUnclear),
				routing.Emission{
					Token:    domain.TokenConfirmed,
					Contexts: []string{string(domain.ConfirmDelete), string(domain.ConfirmUpdate)},
				}),
		},
		domain.StepCancel:   {run: e.cancel, emits: emits(domain.TokenDone)},
		domain.StepUnknown:  {run: e.unknown, emits: emits(domain.TokenDone)},
		domain.StepFinalize: {run: e.finalize, emits: emits(domain.TokenDone)},
	}
}

// intent classifies the turn text once per turn.
func (e *Executor) intent(ctx context.Context, turn *Turn) (domain.Intent, error) {
	if turn.intent != nil {
		return *turn.intent, nil
	}
	intent, err := e.deps.Classifier.Classify(ctx, turn.Text)
	if err != nil {
		return domain.IntentUnknown, fmt.Errorf("classify: %w", err)
	}
	turn.intent = &intent
	return intent, nil
}

// fields extracts the turn text once per turn. Extraction failures degrade to
// an empty result so a flaky extractor only costs a re-prompt.
func (e *Executor) fields(ctx context.Context, turn *Turn) map[string]string {
	if turn.extracted != nil {
		return turn.extracted
	}
	got, err := e.deps.Extractor.Extract(ctx, turn.Text)
	if err != nil {
		e.logger.WarnContext(ctx, "field extraction failed", "error", err)
	}
	turn.extracted = make(map[string]string, len(got))
	for k, v := range got {
		if v = strings.TrimSpace(v); v != "" {
			turn.extracted[k] = v
		}
	}
	return turn.extracted
}

// absorb merges this turn's extracted fields into the workflow and returns
// how many were new or changed.
func (e *Executor) absorb(ctx context.Context, turn *Turn, s *domain.State) int {
	changed := 0
	for k, v := range e.fields(ctx, turn) {
		if k == domain.FieldSelection {
			continue
		}
		if k == domain.FieldDNI {
			v = records.NormalizeDNI(v)
		}
		if s.ExtractedFields[k] != v {
			s.ExtractedFields[k] = v
			changed++
		}
	}
	return changed
}

// target is the patient a workflow refers to.
type target struct {
	patient domain.Patient
	query   string
}

// resolveTarget finds the patient referenced by the extracted fields.
// It returns a zero signal when exactly one patient matched; otherwise the
// signal to emit and the reply are already set.
func (e *Executor) resolveTarget(ctx context.Context, turn *Turn, s *domain.State, action string) (target, routing.Signal, bool) {
	dni, name := s.ExtractedFields[domain.FieldDNI], s.ExtractedFields[domain.FieldPatient]
	if name == "" {
		first, last := s.ExtractedFields[domain.FieldFirstName], s.ExtractedFields[domain.FieldLastName]
		if first != "" && last != "" && s.PendingAction != domain.ActionUpdate {
			name = first + " " + last
		}
	}

	var query string
	switch {
	case dni != "":
		query = dni
		r, err := e.deps.Directory.ResolveDNI(ctx, dni)
		if sig, stop := e.lookupFailed(ctx, turn, s, err, len(r.Candidates)); stop {
			return target{}, sig, false
		}
		if r.ID == "" {
			return target{}, e.notFound(turn, s, query), false
		}
		return target{patient: r.Candidates[0], query: query}, routing.Signal{}, true
	case name != "":
		query = name
		r, err := e.deps.Directory.Resolve(ctx, name)
		if sig, stop := e.lookupFailed(ctx, turn, s, err, len(r.Candidates)); stop {
			return target{}, sig, false
		}
		switch {
		case r.Ambiguous():
			delete(s.ExtractedFields, domain.FieldPatient)
			s.PendingFields = domain.NewFieldSet(domain.FieldPatient)
			candidates := make([]map[string]any, len(r.Candidates))
			for i, p := range r.Candidates {
				candidates[i] = map[string]any{"name": p.FullName(), "dni": p.DNI}
			}
			turn.reply("ambiguous", map[string]any{"query": query, "candidates": candidates})
			return target{}, routing.Emit(domain.TokenAmbiguous), false
		case r.ID == "":
			return target{}, e.notFound(turn, s, query), false
		}
		return target{patient: r.Candidates[0], query: query}, routing.Signal{}, true
	}

	s.PendingFields = domain.NewFieldSet(domain.FieldPatient)
	turn.reply("ask_fields", map[string]any{
		"action": action,
		"fields": []string{"the patient's full name or DNI"},
	})
	return target{}, routing.Emit(domain.TokenNeedsFields), false
}

// lookupFailed handles a directory error. A stale index that still produced
// candidates is good enough to carry on.
func (e *Executor) lookupFailed(ctx context.Context, turn *Turn, s *domain.State, err error, candidates int) (routing.Signal, bool) {
	if err == nil {
		return routing.Signal{}, false
	}
	if candidates > 0 {
		e.logger.WarnContext(ctx, "resolving against stale directory", "error", err)
		return routing.Signal{}, false
	}
	kind := domain.ErrorCacheUnavailable
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		kind = domain.ErrorInternal
	}
	s.Fail(kind, err.Error())
	turn.reply("directory_unavailable", nil)
	return routing.Emit(domain.TokenError), true
}

func (e *Executor) notFound(turn *Turn, s *domain.State, query string) routing.Signal {
	delete(s.ExtractedFields, domain.FieldPatient)
	delete(s.ExtractedFields, domain.FieldDNI)
	s.PendingFields = domain.NewFieldSet(domain.FieldPatient)
	s.Fail(domain.ErrorNotFound, "no patient matches "+query)
	turn.reply("not_found", map[string]any{"query": query})
	return routing.Emit(domain.TokenNotFound)
}

// serviceFailed maps a record-service error on a read or a create.
func (e *Executor) serviceFailed(ctx context.Context, turn *Turn, s *domain.State, op string, err error) routing.Signal {
	kind := domain.ErrorInternal
	if records.IsTransport(err) {
		kind = domain.ErrorTransport
	}
	e.logger.WarnContext(ctx, "record service call failed", "op", op, "error", err)
	s.Fail(kind, fmt.Sprintf("%s: %v", op, err))
	turn.reply("service_unavailable", nil)
	return routing.Emit(domain.TokenError)
}

// invalid records a validation failure and asks for the offending fields again.
func (e *Executor) invalid(turn *Turn, s *domain.State, verr *records.ValidationError) routing.Signal {
	for _, f := range verr.Names() {
		delete(s.ExtractedFields, f)
	}
	s.PendingFields = domain.NewFieldSet(verr.Names()...)
	s.Fail(domain.ErrorValidation, verr.Error())
	turn.reply("invalid_fields", map[string]any{"problems": verr.Fields})
	return routing.Emit(domain.TokenInvalid)
}

// changes returns the mutable fields present in m.
func changes(m map[string]string) map[string]string {
	out := make(map[string]string)
	for _, f := range domain.MutableFields {
		if v, ok := m[f]; ok && v != "" {
			out[f] = v
		}
	}
	return out
}

// describe renders changes as "field: value" in a stable order.
func describe(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, f := range domain.MutableFields {
		if v, ok := m[f]; ok {
			out = append(out, f+": "+v)
		}
	}
	return out
}

func actionPhrase(a domain.Action) string {
	switch a {
	case domain.ActionCreate:
		return "create the patient"
	case domain.ActionUpdate:
		return "update the patient"
	case domain.ActionDelete:
		return "delete the patient"
	case domain.ActionGet:
		return "look the patient up"
	case domain.ActionListScans:
		return "list scan results"
	default:
		return "continue"
	}
}
