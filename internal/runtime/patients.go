package runtime

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/records"
	"github.com/aretw0/carebot/pkg/routing"
)

// createRequired are the fields a new patient cannot be stored without.
var createRequired = []string{domain.FieldDNI, domain.FieldFirstName, domain.FieldLastName}

func (e *Executor) createPatient(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PendingAction = domain.ActionCreate
	s.Intent = domain.IntentCreatePatient
	e.absorb(ctx, turn, s)
	splitFullName(s.ExtractedFields)

	var missing []string
	for _, f := range createRequired {
		if s.ExtractedFields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		s.PendingFields = domain.NewFieldSet(missing...)
		turn.reply("ask_fields", map[string]any{"action": actionPhrase(domain.ActionCreate), "fields": missing})
		return routing.Emit(domain.TokenNeedsFields)
	}
	s.PendingFields = domain.NewFieldSet()

	p, err := records.DecodePatient(s.ExtractedFields)
	if err == nil {
		err = records.ValidatePatient(p)
	}
	var verr *records.ValidationError
	if errors.As(err, &verr) {
		return e.invalid(turn, s, verr)
	}
	if err != nil {
		return e.serviceFailed(ctx, turn, s, "decode patient", err)
	}

	created, err := e.deps.Records.CreatePatient(ctx, p)
	switch {
	case errors.Is(err, domain.ErrConflict):
		delete(s.ExtractedFields, domain.FieldDNI)
		s.PendingFields = domain.NewFieldSet(domain.FieldDNI)
		s.Fail(domain.ErrorValidation, "a patient with this DNI already exists")
		turn.reply("conflict", map[string]any{"dni": p.DNI})
		return routing.Emit(domain.TokenInvalid)
	case errors.As(err, &verr):
		return e.invalid(turn, s, verr)
	case err != nil:
		return e.serviceFailed(ctx, turn, s, "create patient", err)
	}

	e.deps.Directory.Invalidate("patient created")
	s.ResetForCancellation()
	s.SelectedRecordID = created.ID
	turn.reply("patient_created", map[string]any{"name": created.FullName(), "id": created.ID})
	return routing.Emit(domain.TokenDone)
}

// splitFullName derives first and last name from a "patient" full name when
// they were not given separately.
func splitFullName(fields map[string]string) {
	full := strings.Fields(fields[domain.FieldPatient])
	if len(full) < 2 {
		return
	}
	if fields[domain.FieldFirstName] == "" {
		fields[domain.FieldFirstName] = full[0]
	}
	if fields[domain.FieldLastName] == "" {
		fields[domain.FieldLastName] = strings.Join(full[1:], " ")
	}
}

func (e *Executor) updatePatient(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PendingAction = domain.ActionUpdate
	s.Intent = domain.IntentUpdatePatient
	if turn.Confirmed {
		return e.commitUpdate(ctx, turn, s)
	}
	e.absorb(ctx, turn, s)

	t, sig, ok := e.resolveTarget(ctx, turn, s, actionPhrase(domain.ActionUpdate))
	if !ok {
		return sig
	}

	delta := changes(s.ExtractedFields)
	if len(delta) == 0 {
		s.SelectedRecordID = t.patient.ID
		s.PendingFields = domain.NewFieldSet(domain.FieldChanges)
		turn.reply("ask_fields", map[string]any{
			"action": "update " + t.patient.FullName(),
			"fields": []string{"what to change (" + strings.Join(domain.MutableFields, ", ") + ")"},
		})
		return routing.Emit(domain.TokenNeedsFields)
	}

	var verr *records.ValidationError
	if err := records.ValidatePatient(records.Merge(t.patient, delta)); errors.As(err, &verr) {
		sig := e.invalid(turn, s, verr)
		if len(changes(s.ExtractedFields)) == 0 {
			s.PendingFields = domain.NewFieldSet(domain.FieldChanges)
		}
		return sig
	}

	s.PendingFields = domain.NewFieldSet()
	s.SelectedRecordID = t.patient.ID
	s.ValidatedFields = delta
	s.ValidatedFields[domain.FieldPatient] = t.patient.FullName()
	s.AwaitingConfirmation = domain.ConfirmUpdate
	return routing.Emit(domain.TokenNeedsConfirmation)
}

func (e *Executor) commitUpdate(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	id, name := s.SelectedRecordID, s.ValidatedFields[domain.FieldPatient]
	delta := changes(s.ValidatedFields)

	updated, err := e.deps.Records.UpdatePatient(ctx, id, delta)
	var verr *records.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.ResetForCancellation()
		s.Fail(domain.ErrorNotFound, "patient "+id+" no longer exists")
		turn.reply("not_found", map[string]any{"query": name})
		return routing.Emit(domain.TokenNotFound)
	case errors.As(err, &verr):
		s.AwaitingConfirmation = domain.ConfirmNone
		s.ValidatedFields = make(map[string]string)
		return e.invalid(turn, s, verr)
	case err != nil:
		return e.writeFailed(ctx, turn, s, domain.ConfirmUpdate, err)
	}

	e.deps.Directory.Invalidate("patient updated")
	s.ResetForCancellation()
	s.SelectedRecordID = updated.ID
	turn.reply("patient_updated", map[string]any{"name": updated.FullName(), "id": updated.ID, "changed": describe(delta)})
	return routing.Emit(domain.TokenDone)
}

func (e *Executor) deletePatient(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PendingAction = domain.ActionDelete
	s.Intent = domain.IntentDeletePatient
	if turn.Confirmed {
		return e.commitDelete(ctx, turn, s)
	}
	e.absorb(ctx, turn, s)

	t, sig, ok := e.resolveTarget(ctx, turn, s, actionPhrase(domain.ActionDelete))
	if !ok {
		return sig
	}

	s.PendingFields = domain.NewFieldSet()
	s.SelectedRecordID = t.patient.ID
	s.ValidatedFields = map[string]string{
		domain.FieldPatient: t.patient.FullName(),
		domain.FieldDNI:     t.patient.DNI,
	}
	s.AwaitingConfirmation = domain.ConfirmDelete
	return routing.Emit(domain.TokenNeedsConfirmation)
}

func (e *Executor) commitDelete(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	id, name := s.SelectedRecordID, s.ValidatedFields[domain.FieldPatient]

	err := e.deps.Records.DeletePatient(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.deps.Directory.Invalidate("patient missing on delete")
		s.ResetForCancellation()
		s.Fail(domain.ErrorNotFound, "patient "+id+" no longer exists")
		turn.reply("not_found", map[string]any{"query": name})
		return routing.Emit(domain.TokenNotFound)
	case err != nil:
		return e.writeFailed(ctx, turn, s, domain.ConfirmDelete, err)
	}

	e.deps.Directory.Invalidate("patient deleted")
	s.ResetForCancellation()
	turn.reply("patient_deleted", map[string]any{"name": name, "id": id})
	return routing.Emit(domain.TokenDone)
}

// writeFailed handles a failed confirmed write. A transport failure re-arms
// the confirmation so the user can simply answer yes again.
func (e *Executor) writeFailed(ctx context.Context, turn *Turn, s *domain.State, kind domain.ConfirmationType, err error) routing.Signal {
	if records.IsTransport(err) {
		e.logger.WarnContext(ctx, "confirmed write failed, asking again", "confirmation", kind, "error", err)
		s.ConfirmationRequired = true
		s.AwaitingConfirmation = kind
		s.Fail(domain.ErrorTransport, err.Error())
		turn.reply("service_unavailable", nil)
		return routing.Emit(domain.TokenError)
	}
	sig := e.serviceFailed(ctx, turn, s, "confirmed "+string(kind), err)
	failure := s.LastError
	s.ResetForCancellation()
	s.LastError = failure
	return sig
}

func (e *Executor) getPatient(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.PendingAction = domain.ActionGet
	s.Intent = domain.IntentGetPatient
	e.absorb(ctx, turn, s)

	t, sig, ok := e.resolveTarget(ctx, turn, s, actionPhrase(domain.ActionGet))
	if !ok {
		return sig
	}

	p, err := e.deps.Records.GetPatient(ctx, t.patient.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.deps.Directory.Invalidate("patient missing on read")
		return e.notFound(turn, s, t.query)
	case err != nil:
		return e.serviceFailed(ctx, turn, s, "get patient", err)
	}

	s.ResetForCancellation()
	s.SelectedRecordID = p.ID
	turn.reply("patient_details", map[string]any{
		"name":       p.FullName(),
		"id":         p.ID,
		"dni":        p.DNI,
		"birth_date": p.BirthDate,
		"email":      p.Email,
		"phone":      p.Phone,
	})
	return routing.Emit(domain.TokenDone)
}

func (e *Executor) listPatients(ctx context.Context, turn *Turn, s *domain.State) routing.Signal {
	s.Intent = domain.IntentListPatients
	patients, err := e.deps.Records.ListPatients(ctx)
	if err != nil {
		return e.serviceFailed(ctx, turn, s, "list patients", err)
	}
	if len(patients) == 0 {
		turn.reply("no_results", map[string]any{"message": "There are no patients yet."})
		return routing.Emit(domain.TokenNoResults)
	}

	sort.SliceStable(patients, func(i, j int) bool {
		return strings.ToLower(patients[i].FullName()) < strings.ToLower(patients[j].FullName())
	})
	s.ResultsBuffer = make([]domain.ResultItem, len(patients))
	for i, p := range patients {
		s.ResultsBuffer[i] = domain.PatientItem(p)
	}
	s.PaginationOffset = 0
	turn.Reply = e.page(s, "Patients")
	return routing.Emit(domain.TokenDone)
}
