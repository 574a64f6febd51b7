package runtime

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aretw0/carebot/internal/presentation/reply"
	"github.com/aretw0/carebot/internal/testutils"
	"github.com/aretw0/carebot/pkg/adapters/patterns"
	"github.com/aretw0/carebot/pkg/directory"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/records"
	"github.com/aretw0/carebot/pkg/routing"
	"github.com/aretw0/carebot/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server *testutils.RecordServer
	exec   *Executor
	state  *domain.State
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	server := testutils.NewRecordServer(t)
	client := records.NewClient(transport.New(server.URL, transport.WithBackoff(time.Millisecond)))
	formatter, err := reply.New()
	require.NoError(t, err)
	nlu := patterns.Default()

	exec, err := NewExecutor(Deps{
		Records:    client,
		Directory:  directory.New(client),
		Classifier: nlu,
		Extractor:  nlu,
		Summarizer: nlu,
		Formatter:  formatter,
	}, opts...)
	require.NoError(t, err)

	return &harness{server: server, exec: exec, state: domain.NewState("s-1")}
}

func (h *harness) say(text string) Outcome {
	out := h.exec.RunTurn(context.Background(), text, h.state)
	h.state = out.State
	return out
}

func (h *harness) seedJohn() domain.Patient {
	return h.server.AddPatient(domain.Patient{DNI: "87654321X", FirstName: "John", LastName: "Doe"})
}

func TestNewExecutor(t *testing.T) {
	t.Run("Table Matches Steps", func(t *testing.T) {
		h := newHarness(t)
		assert.Empty(t, routing.Validate(h.exec.Table(), h.exec.Catalog()))
		assert.Len(t, h.exec.Catalog(), len(domain.Steps()))
	})

	t.Run("Missing Collaborators", func(t *testing.T) {
		_, err := NewExecutor(Deps{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "records service is required")
		assert.Contains(t, err.Error(), "formatter is required")
	})
}

func TestCreatePatient_AsksForMissingDNI(t *testing.T) {
	h := newHarness(t)

	out := h.say("create patient John Doe")
	assert.Contains(t, out.Text, "dni")
	assert.Equal(t, domain.ActionCreate, h.state.PendingAction)
	assert.Equal(t, []string{domain.FieldDNI}, h.state.PendingFields.Sorted())
	assert.Equal(t, 0, h.server.Calls("POST /patients"))

	out = h.say("12345678Z")
	assert.Contains(t, out.Text, "created with ID `p-1`")
	assert.Equal(t, domain.ActionNone, h.state.PendingAction)
	assert.Empty(t, h.state.PendingFields)
	assert.Nil(t, h.state.LastError)
	assert.Equal(t, 1, h.server.Calls("POST /patients"))

	stored, ok := h.server.Patient("p-1")
	require.True(t, ok)
	assert.Equal(t, "John", stored.FirstName)
	assert.Equal(t, "Doe", stored.LastName)
	assert.Equal(t, "12345678Z", stored.DNI)
}

func TestCreatePatient_InvalidDNI(t *testing.T) {
	h := newHarness(t)

	h.say("create patient John Doe")
	out := h.say("12345678A")

	assert.Contains(t, out.Text, "not valid")
	require.NotNil(t, h.state.LastError)
	assert.Equal(t, domain.ErrorValidation, h.state.LastError.Kind)
	assert.True(t, h.state.PendingFields.Has(domain.FieldDNI))
	assert.Equal(t, 0, h.server.Calls("POST /patients"))
}

func TestCreatePatient_Conflict(t *testing.T) {
	h := newHarness(t)
	h.seedJohn()

	h.say("create patient Jane Doe")
	out := h.say("87654321X")

	assert.Contains(t, out.Text, "already exists")
	assert.Equal(t, domain.ActionCreate, h.state.PendingAction)
	assert.True(t, h.state.PendingFields.Has(domain.FieldDNI))
}

func TestDeletePatient_Confirmation(t *testing.T) {
	t.Run("Yes Deletes Once", func(t *testing.T) {
		h := newHarness(t)
		john := h.seedJohn()

		out := h.say("delete patient John Doe")
		assert.Contains(t, out.Text, "Are you sure")
		assert.True(t, h.state.ConfirmationRequired)
		assert.Equal(t, domain.ConfirmDelete, h.state.AwaitingConfirmation)
		assert.Equal(t, 0, h.server.Calls("DELETE /patients/"+john.ID))

		out = h.say("yes")
		assert.Contains(t, out.Text, "deleted")
		assert.Equal(t, 1, h.server.Calls("DELETE /patients/"+john.ID))
		assert.False(t, h.state.ConfirmationRequired)
		assert.Equal(t, domain.ActionNone, h.state.PendingAction)
		_, ok := h.server.Patient(john.ID)
		assert.False(t, ok)
	})

	t.Run("No Deletes Nothing", func(t *testing.T) {
		h := newHarness(t)
		john := h.seedJohn()

		h.say("delete patient John Doe")
		out := h.say("no")

		assert.Contains(t, out.Text, "cancelled")
		assert.Equal(t, 0, h.server.Calls("DELETE /patients/"+john.ID))
		assert.False(t, h.state.ConfirmationRequired)
		assert.Equal(t, domain.ConfirmNone, h.state.AwaitingConfirmation)
		assert.Equal(t, domain.ActionNone, h.state.PendingAction)
	})

	t.Run("Unclear Asks Again", func(t *testing.T) {
		h := newHarness(t)
		h.seedJohn()

		h.say("delete patient John Doe")
		out := h.say("hmm, maybe")

		assert.Contains(t, out.Text, "yes")
		assert.Contains(t, out.Text, "Are you sure")
		assert.True(t, h.state.ConfirmationRequired)
	})

	t.Run("Transport Failure Re-arms", func(t *testing.T) {
		h := newHarness(t)
		john := h.seedJohn()

		h.say("delete patient John Doe")
		h.server.FailNext(http.StatusServiceUnavailable)
		out := h.say("yes")

		assert.Contains(t, out.Text, "not responding")
		assert.Contains(t, out.Text, "Are you sure")
		assert.True(t, h.state.ConfirmationRequired)
		require.NotNil(t, h.state.LastError)
		assert.Equal(t, domain.ErrorTransport, h.state.LastError.Kind)

		out = h.say("yes")
		assert.Contains(t, out.Text, "deleted")
		_, ok := h.server.Patient(john.ID)
		assert.False(t, ok)
	})
}

func TestUpdatePatient(t *testing.T) {
	h := newHarness(t)
	john := h.seedJohn()

	out := h.say("update patient John Doe email john@example.com")
	assert.Contains(t, out.Text, "email: john@example.com")
	assert.Equal(t, domain.ConfirmUpdate, h.state.AwaitingConfirmation)

	out = h.say("yes")
	assert.Contains(t, out.Text, "updated")
	assert.Equal(t, 1, h.server.Calls("PUT /patients/"+john.ID))

	stored, _ := h.server.Patient(john.ID)
	assert.Equal(t, "john@example.com", stored.Email)
	assert.Equal(t, "87654321X", stored.DNI)
}

func TestUpdatePatient_AsksForChanges(t *testing.T) {
	h := newHarness(t)
	h.seedJohn()

	out := h.say("update patient John Doe")
	assert.Contains(t, out.Text, "what to change")
	assert.True(t, h.state.PendingFields.Has(domain.FieldChanges))

	out = h.say("phone is 600123456")
	assert.Contains(t, out.Text, "phone: 600123456")
	assert.True(t, h.state.ConfirmationRequired)
}

func TestResolve_Ambiguous(t *testing.T) {
	h := newHarness(t)
	h.seedJohn()
	h.server.AddPatient(domain.Patient{DNI: "11111111H", FirstName: "John", LastName: "Doe"})

	out := h.say("delete patient John Doe")
	assert.Contains(t, out.Text, "Several patients")
	assert.NotContains(t, out.Text, "11111111H")
	assert.False(t, h.state.ConfirmationRequired)

	out = h.say("11111111H")
	assert.Contains(t, out.Text, "Are you sure")
	assert.Equal(t, "p-2", h.state.SelectedRecordID)
}

func TestResolve_NotFound(t *testing.T) {
	h := newHarness(t)

	out := h.say("show patient Nobody Here")
	assert.Contains(t, out.Text, "couldn't find")
	require.NotNil(t, h.state.LastError)
	assert.Equal(t, domain.ErrorNotFound, h.state.LastError.Kind)
}

func TestGetPatient(t *testing.T) {
	h := newHarness(t)
	john := h.seedJohn()

	out := h.say("show patient John Doe")
	assert.Contains(t, out.Text, "John Doe")
	assert.Contains(t, out.Text, "******21X")
	assert.NotContains(t, out.Text, "87654321X")
	assert.Equal(t, john.ID, h.state.SelectedRecordID)
}

func TestCancel(t *testing.T) {
	t.Run("Resets Workflow", func(t *testing.T) {
		h := newHarness(t)
		h.say("create patient John Doe")
		out := h.say("cancel")

		assert.Contains(t, out.Text, "cancelled")
		assert.Equal(t, domain.ActionNone, h.state.PendingAction)
		assert.Empty(t, h.state.ExtractedFields)
		assert.Empty(t, h.state.PendingFields)
		assert.Len(t, h.state.RecentMessages, 2)
	})

	t.Run("Nothing In Progress", func(t *testing.T) {
		h := newHarness(t)
		out := h.say("cancel")
		assert.Contains(t, out.Text, "nothing in progress")
	})
}

func TestPagination(t *testing.T) {
	h := newHarness(t)
	for i := range 7 {
		h.server.AddPatient(domain.Patient{
			DNI:       fmt.Sprintf("%08d%c", i, records.DNILetter(i)),
			FirstName: fmt.Sprintf("Name%d", i),
			LastName:  "Test",
		})
	}

	out := h.say("list patients")
	assert.Contains(t, out.Text, "(1-5 of 7)")
	assert.Contains(t, out.Text, "next")
	assert.Equal(t, 5, h.state.PaginationOffset)

	out = h.say("next")
	assert.Contains(t, out.Text, "(6-7 of 7)")
	assert.Equal(t, 7, h.state.PaginationOffset)

	out = h.say("next")
	assert.Contains(t, out.Text, "no more results")
}

func TestScans(t *testing.T) {
	h := newHarness(t)
	john := h.seedJohn()
	h.server.AddScan(domain.ScanResult{ID: "s-1", PatientID: john.ID, Modality: "MRI", Status: "ready", CreatedAt: "2026-01-02", DownloadURL: "https://files.test/s-1"})
	h.server.AddScan(domain.ScanResult{ID: "s-2", PatientID: john.ID, Modality: "CT", Status: "ready", CreatedAt: "2026-02-03", DownloadURL: "https://files.test/s-2"})

	out := h.say("show scans for John Doe")
	assert.Contains(t, out.Text, "MRI")
	assert.Contains(t, out.Text, "Reply with a number")
	assert.Equal(t, domain.DownloadAwaitingSelection, h.state.DownloadStage)

	out = h.say("9")
	assert.Contains(t, out.Text, "between 1 and 2")
	assert.Equal(t, domain.DownloadAwaitingSelection, h.state.DownloadStage)

	out = h.say("2")
	assert.Contains(t, out.Text, "https://files.test/s-2")
	assert.Equal(t, domain.DownloadCompleted, h.state.DownloadStage)
	assert.Equal(t, "s-2", h.state.SelectedRecordID)
}

func TestScans_NoResults(t *testing.T) {
	h := newHarness(t)
	h.seedJohn()

	out := h.say("show scans for John Doe")
	assert.Contains(t, out.Text, "no scan results")
	assert.Equal(t, domain.DownloadNone, h.state.DownloadStage)
}

func TestSummarizesAtCapacity(t *testing.T) {
	h := newHarness(t)
	for i := range domain.RecentMessagesCapacity {
		h.say(fmt.Sprintf("hello %d", i))
	}

	assert.Len(t, h.state.RecentMessages, domain.RecentMessagesCapacity/2)
	assert.Equal(t, domain.RecentMessagesCapacity/2, h.state.HistorySummary.Turns)
	assert.Contains(t, h.state.HistorySummary.Digest, "hello 0")
	assert.Equal(t, "hello 7", h.state.RecentMessages[len(h.state.RecentMessages)-1])
}

func TestRoutingViolation(t *testing.T) {
	var violations int
	hooks := domain.LifecycleHooks{
		OnRoutingViolation: func(context.Context, *domain.StepEvent) { violations++ },
	}
	h := newHarness(t,
		WithLifecycleHooks(hooks),
		withStep(domain.StepUnknown, func(_ context.Context, _ *Turn, s *domain.State) routing.Signal {
			s.SelectedRecordID = "leaked"
			return routing.Emit(domain.TokenInvalid)
		}),
	)

	out := h.say("hello")

	assert.Contains(t, out.Text, "something went wrong")
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.ErrorRoutingViolation, out.Failure.Kind)
	assert.Empty(t, h.state.SelectedRecordID)
	assert.Equal(t, 1, violations)
	assert.Equal(t, domain.StepFinalize, out.Trace[len(out.Trace)-1])
	assert.Equal(t, 1, h.state.Turns)
}

func TestStepPanicIsContained(t *testing.T) {
	h := newHarness(t, withStep(domain.StepCreatePatient, func(_ context.Context, _ *Turn, s *domain.State) routing.Signal {
		s.PendingAction = domain.ActionDelete
		panic("boom")
	}))
	before := h.state

	out := h.say("create patient John Doe")

	assert.Contains(t, out.Text, "something went wrong")
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.ErrorInternal, out.Failure.Kind)
	assert.Equal(t, domain.ActionNone, h.state.PendingAction)
	assert.Empty(t, before.RecentMessages)
	assert.Equal(t, []string{"create patient John Doe"}, h.state.RecentMessages)
}

func TestLoopGuard(t *testing.T) {
	h := newHarness(t, WithMaxHops(2))

	out := h.say("hello")

	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.ErrorRoutingViolation, out.Failure.Kind)
	assert.Equal(t, []domain.Step{domain.StepIngest, domain.StepClassify, domain.StepFinalize}, out.Trace)
	assert.Contains(t, out.Text, "something went wrong")
}

func TestRunTurn_InputUntouched(t *testing.T) {
	h := newHarness(t)
	in := domain.NewState("s-1")

	out := h.exec.RunTurn(context.Background(), "create patient John Doe", in)

	assert.Empty(t, in.RecentMessages)
	assert.Equal(t, domain.ActionNone, in.PendingAction)
	assert.Equal(t, domain.ActionCreate, out.State.PendingAction)
}

func TestRunTurn_TracksCallMetrics(t *testing.T) {
	h := newHarness(t)
	h.seedJohn()

	h.say("show patient John Doe")

	assert.EqualValues(t, 2, h.state.Metrics.Attempts)
	assert.EqualValues(t, 2, h.state.Metrics.Successes)
	assert.Zero(t, h.state.Metrics.Retries)
}

func TestRunTurn_Hooks(t *testing.T) {
	var entered, left int
	var done *domain.TurnEvent
	h := newHarness(t, WithLifecycleHooks(domain.LifecycleHooks{
		OnStepEnter:    func(context.Context, *domain.StepEvent) { entered++ },
		OnStepLeave:    func(context.Context, *domain.StepEvent) { left++ },
		OnTurnComplete: func(_ context.Context, ev *domain.TurnEvent) { done = ev },
	}))

	out := h.say("hello")

	assert.Equal(t, len(out.Trace), entered)
	assert.Equal(t, len(out.Trace), left)
	require.NotNil(t, done)
	assert.Equal(t, domain.IntentUnknown, done.Intent)
	assert.Equal(t, len(out.Trace), done.Hops)
}

func TestRunTurn_CallsOfFailedStepAreCounted(t *testing.T) {
	var h *harness
	h = newHarness(t, withStep(domain.StepCreatePatient, func(ctx context.Context, _ *Turn, _ *domain.State) routing.Signal {
		_, _ = h.exec.deps.Records.ListPatients(ctx)
		panic("boom")
	}))

	out := h.say("create patient John Doe")

	require.NotNil(t, out.Failure)
	assert.Equal(t, 1, h.server.Calls("GET /patients"))
	assert.EqualValues(t, 1, h.state.Metrics.Attempts)
	assert.EqualValues(t, 1, h.state.Metrics.Successes)
}

func TestRunTurn_EarlierFailureOutlivesReprompt(t *testing.T) {
	h := newHarness(t)
	h.say("create patient John Doe")

	out := h.say("12345678A")
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.ErrorValidation, out.Failure.Kind)

	out = h.say("hmm")
	assert.Nil(t, out.Failure)
	require.NotNil(t, h.state.LastError)
	assert.Equal(t, domain.ErrorValidation, h.state.LastError.Kind)
	assert.Equal(t, 1, h.state.LastError.Turn)

	out = h.say("12345678Z")
	assert.Contains(t, out.Text, "created")
	assert.Nil(t, out.Failure)
	assert.Nil(t, h.state.LastError)
}

func TestRunTurn_PanickingHookIsContained(t *testing.T) {
	h := newHarness(t, WithLifecycleHooks(domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			if ev.Step == domain.StepClassify {
				panic("hook")
			}
		},
	}))

	var out Outcome
	require.NotPanics(t, func() { out = h.say("hello") })
	require.NotNil(t, out.Failure)
	assert.Equal(t, domain.ErrorInternal, out.Failure.Kind)
	assert.Contains(t, out.Text, "something went wrong")
	assert.Equal(t, 1, h.state.Turns)
}
