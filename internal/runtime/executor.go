package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/redact"
	"github.com/aretw0/carebot/pkg/routing"
	"github.com/aretw0/carebot/pkg/transport"
)

// DefaultMaxHops bounds the number of steps a single turn may run.
const DefaultMaxHops = 32

// fallbackText is used when even the apology template cannot be rendered.
const fallbackText = "Sorry, something went wrong on my side. Please try again."

// StepFunc runs one step against the working copy of the state.
type StepFunc func(ctx context.Context, turn *Turn, s *domain.State) routing.Signal

type stepDef struct {
	run   StepFunc
	emits []routing.Emission
}

// Executor runs turns through the step graph. It holds no per-conversation
// data and is safe for concurrent use.
type Executor struct {
	deps    Deps
	table   *routing.Table
	steps   map[domain.Step]stepDef
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	maxHops int
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithMaxHops overrides the per-turn loop guard.
func WithMaxHops(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// withStep replaces a step implementation. Tests use it to inject misbehaving steps.
func withStep(step domain.Step, run StepFunc) Option {
	return func(e *Executor) {
		def := e.steps[step]
		def.run = run
		e.steps[step] = def
	}
}

// NewExecutor builds the routing table, registers every step and validates
// the table against what the steps declare they emit. Any inconsistency is
// returned as an error and the executor must not be used.
func NewExecutor(deps Deps, opts ...Option) (*Executor, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}
	table, err := routing.Conversation()
	if err != nil {
		return nil, fmt.Errorf("build routing table: %w", err)
	}

	e := &Executor{
		deps:    deps,
		table:   table,
		logger:  logging.NewNop(),
		maxHops: DefaultMaxHops,
		now:     time.Now,
	}
	e.steps = e.register()
	for _, opt := range opts {
		opt(e)
	}

	if err := routing.Check(table, e.Catalog()); err != nil {
		return nil, fmt.Errorf("routing table rejected: %w", err)
	}
	return e, nil
}

func (d Deps) check() error {
	var errs []error
	if d.Records == nil {
		errs = append(errs, errors.New("records service is required"))
	}
	if d.Directory == nil {
		errs = append(errs, errors.New("directory is required"))
	}
	if d.Classifier == nil {
		errs = append(errs, errors.New("classifier is required"))
	}
	if d.Extractor == nil {
		errs = append(errs, errors.New("field extractor is required"))
	}
	if d.Summarizer == nil {
		errs = append(errs, errors.New("summarizer is required"))
	}
	if d.Formatter == nil {
		errs = append(errs, errors.New("formatter is required"))
	}
	return errors.Join(errs...)
}

// Table returns the routing table the executor runs on.
func (e *Executor) Table() *routing.Table {
	return e.table
}

// Catalog lists what every registered step may emit.
func (e *Executor) Catalog() routing.Catalog {
	c := make(routing.Catalog, len(e.steps))
	for step, def := range e.steps {
		c[step] = def.emits
	}
	return c
}

// RunTurn processes one user message against a conversation state.
// The input state is never modified; the returned Outcome carries the new one.
// Failures never escape as errors: they are recorded in State.LastError and
// the user receives an apology. Outcome.Failure is set only for failures of
// this turn; an older LastError survives until the workflow completes or is
// cancelled.
func (e *Executor) RunTurn(ctx context.Context, text string, in *domain.State) Outcome {
	start := e.now()
	state := in.Clone()
	if state == nil {
		state = domain.NewState("")
	}
	turn := &Turn{Text: text}
	turnNo := state.Turns
	logger := e.logger.With("session_id", state.SessionID)

	var trace []domain.Step
	step := e.table.Entry()
	guarded := false

	for step != domain.StepTerminal {
		if len(trace) >= e.maxHops {
			if guarded {
				break
			}
			guarded = true
			err := fmt.Errorf("%w: turn exceeded %d steps", domain.ErrInvalidTransition, e.maxHops)
			state.Fail(domain.ErrorRoutingViolation, err.Error())
			logger.ErrorContext(ctx, "loop guard tripped", "step", step, "error", err)
			e.violation(ctx, state, &domain.StepEvent{Step: step})
			turn.reply("apology", nil)
			step = domain.StepFinalize
		}

		trace = append(trace, step)
		next, sig, work, err := e.runStep(ctx, step, turn, state)
		if err != nil {
			// The step's working copy is discarded.
			kind := domain.ErrorInternal
			if errors.Is(err, domain.ErrInvalidTransition) {
				kind = domain.ErrorRoutingViolation
				e.violation(ctx, state, &domain.StepEvent{Step: step, Token: sig.Token, Context: sig.Context})
			}
			state.Fail(kind, err.Error())
			logger.ErrorContext(ctx, "step aborted", "step", step, "token", sig.Token, "error", err)
			turn.reply("apology", nil)
			if step == domain.StepFinalize {
				break
			}
			step = domain.StepFinalize
			continue
		}
		state = work
		step = next
	}

	if turn.Output == "" {
		turn.Output = e.render(ctx, turn.Reply)
	}

	// Calls made by discarded steps still happened.
	state.Metrics.Add(turn.calls)

	var failure *domain.Failure
	if state.FailedThisTurn(turnNo) {
		failure = state.LastError
	}
	out := Outcome{
		Text:    turn.Output,
		State:   state,
		Trace:   trace,
		Failure: failure,
	}
	if e.hooks.OnTurnComplete != nil {
		e.hooks.OnTurnComplete(ctx, &domain.TurnEvent{
			EventBase: e.base(domain.EventTurnComplete, state),
			Intent:    state.Intent,
			Hops:      len(trace),
			Failure:   failure,
			Duration:  e.now().Sub(start),
		})
	}
	logger.DebugContext(ctx, "turn complete", "intent", state.Intent, "hops", len(trace))
	return out
}

// runStep executes one step on a clone of s and resolves its successor.
// On error the clone must be discarded.
func (e *Executor) runStep(ctx context.Context, step domain.Step, turn *Turn, s *domain.State) (next domain.Step, sig routing.Signal, work *domain.State, err error) {
	def, ok := e.steps[step]
	if !ok {
		return "", sig, nil, fmt.Errorf("%w: step %q is not registered", domain.ErrInvalidTransition, step)
	}

	work = s.Clone()
	stepCtx := transport.WithRecorder(ctx, &turn.calls)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step, r)
			work = nil
		}
	}()

	if e.hooks.OnStepEnter != nil {
		e.hooks.OnStepEnter(ctx, &domain.StepEvent{EventBase: e.base(domain.EventStepEnter, s), Step: step})
	}

	sig = def.run(stepCtx, turn, work)

	if e.hooks.OnStepLeave != nil {
		e.hooks.OnStepLeave(ctx, &domain.StepEvent{
			EventBase: e.base(domain.EventStepLeave, work),
			Step:      step,
			Token:     sig.Token,
			Context:   sig.Context,
		})
	}

	next, err = e.table.NextStep(step, sig)
	if err != nil {
		return "", sig, nil, err
	}
	return next, sig, work, nil
}

func (e *Executor) violation(ctx context.Context, s *domain.State, ev *domain.StepEvent) {
	if e.hooks.OnRoutingViolation == nil {
		return
	}
	ev.EventBase = e.base(domain.EventRoutingViolation, s)
	e.hooks.OnRoutingViolation(ctx, ev)
}

func (e *Executor) base(t domain.EventType, s *domain.State) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, SessionID: s.SessionID}
}

// render formats a reply and redacts identifiers. It never fails.
func (e *Executor) render(ctx context.Context, r Reply) string {
	if r.Template == "" {
		r.Template = "apology"
	}
	text, err := e.deps.Formatter.Format(r.Template, r.Data)
	if err != nil {
		e.logger.ErrorContext(ctx, "reply rendering failed", "template", r.Template, "error", err)
		if r.Template == "apology" {
			return fallbackText
		}
		return e.render(ctx, Reply{Template: "apology"})
	}
	return redact.Text(text)
}
