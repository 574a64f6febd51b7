package carebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/internal/presentation/graph"
	"github.com/aretw0/carebot/internal/presentation/reply"
	"github.com/aretw0/carebot/internal/runtime"
	"github.com/aretw0/carebot/pkg/adapters/memory"
	"github.com/aretw0/carebot/pkg/adapters/patterns"
	"github.com/aretw0/carebot/pkg/directory"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/observability"
	"github.com/aretw0/carebot/pkg/ports"
	"github.com/aretw0/carebot/pkg/records"
	"github.com/aretw0/carebot/pkg/routing"
	"github.com/aretw0/carebot/pkg/session"
	"github.com/aretw0/carebot/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the engine release, reported by the CLI and the HTTP API.
var Version = "0.4.0"

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Understanding is the language side of the engine.
type Understanding interface {
	ports.Classifier
	ports.FieldExtractor
	ports.Summarizer
}

// Reply is the result of one turn.
type Reply struct {
	Text    string          `json:"text"`
	Intent  domain.Intent   `json:"intent"`
	Failure *domain.Failure `json:"failure,omitempty"`
	Steps   []domain.Step   `json:"steps"`
	State   *domain.State   `json:"-"`
}

// Stats combines the process-wide transport and directory counters.
type Stats struct {
	Transport transport.Stats `json:"transport"`
	Directory directory.Stats `json:"directory"`
}

// Engine is the high-level entry point. It is safe for concurrent use.
type Engine struct {
	exec      *runtime.Executor
	sessions  *session.Manager
	directory *directory.Directory
	transport *transport.Client
	metrics   *observability.Metrics
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	pageSize  int
}

type settings struct {
	logger        *slog.Logger
	store         ports.StateStore
	locker        ports.DistributedLocker
	lockTTL       time.Duration
	understanding Understanding
	formatter     ports.Formatter
	registerer    prometheus.Registerer
	hooks         domain.LifecycleHooks
	transportOpts []transport.Option
	cacheTTL      time.Duration
	pageSize      int
	clock         func() time.Time
}

// Option configures an Engine.
type Option func(*settings)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithStore replaces the in-memory conversation store.
func WithStore(store ports.StateStore) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithLocker serializes turns of one conversation across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *settings) {
		s.locker = locker
	}
}

// WithLockTTL sets the lease of the distributed turn lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.lockTTL = ttl
	}
}

// WithUnderstanding replaces the pattern-rule classifier, extractor and summarizer.
func WithUnderstanding(u Understanding) Option {
	return func(s *settings) {
		s.understanding = u
	}
}

// WithFormatter replaces the built-in reply templates.
func WithFormatter(f ports.Formatter) Option {
	return func(s *settings) {
		s.formatter = f
	}
}

// WithMetrics registers Prometheus instruments on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}

// WithLifecycleHooks registers callbacks run alongside the built-in metrics hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = hooks
	}
}

// WithAuthToken sends a bearer token to the record service.
func WithAuthToken(token string) Option {
	return func(s *settings) {
		if token != "" {
			s.transportOpts = append(s.transportOpts, transport.WithHeader("Authorization", "Bearer "+token))
		}
	}
}

// WithTimeout bounds each record-service attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.transportOpts = append(s.transportOpts, transport.WithTimeout(d))
	}
}

// WithBackoff replaces the retry schedule of the record-service client.
func WithBackoff(schedule ...time.Duration) Option {
	return func(s *settings) {
		s.transportOpts = append(s.transportOpts, transport.WithBackoff(schedule...))
	}
}

// WithCacheTTL sets how long the patient directory is trusted.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.cacheTTL = ttl
	}
}

// WithPageSize sets how many results a page shows in new conversations.
func WithPageSize(n int) Option {
	return func(s *settings) {
		s.pageSize = n
	}
}

// WithClock overrides the time source of the executor and the directory.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.clock = now
	}
}

// New builds an engine talking to the record service at baseURL.
// It fails if the routing table does not match the implemented steps.
func New(baseURL string, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("record service base URL is required")
	}
	s := &settings{
		logger:   logging.NewNop(),
		cacheTTL: directory.DefaultTTL,
		pageSize: domain.DefaultPageSize,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	eng := &Engine{logger: s.logger, pageSize: s.pageSize}

	if s.registerer != nil {
		eng.metrics = observability.NewMetrics(s.registerer, "carebot")
		if g, ok := s.registerer.(prometheus.Gatherer); ok {
			eng.gatherer = g
		}
	}

	tOpts := append([]transport.Option{
		transport.WithLogger(s.logger),
		transport.WithMetrics(eng.metrics),
	}, s.transportOpts...)
	eng.transport = transport.New(baseURL, tOpts...)
	client := records.NewClient(eng.transport, records.WithLogger(s.logger))

	eng.directory = directory.New(client,
		directory.WithTTL(s.cacheTTL),
		directory.WithClock(s.clock),
		directory.WithLogger(s.logger),
		directory.WithMetrics(eng.metrics),
	)

	understanding := s.understanding
	if understanding == nil {
		understanding = patterns.Default()
	}
	formatter := s.formatter
	if formatter == nil {
		f, err := reply.New()
		if err != nil {
			return nil, err
		}
		formatter = f
	}

	exec, err := runtime.NewExecutor(runtime.Deps{
		Records:    client,
		Directory:  eng.directory,
		Classifier: understanding,
		Extractor:  understanding,
		Summarizer: understanding,
		Formatter:  formatter,
	},
		runtime.WithLogger(s.logger),
		runtime.WithClock(s.clock),
		runtime.WithLifecycleHooks(combineHooks(observability.Hooks(eng.metrics, s.logger), s.hooks)),
	)
	if err != nil {
		return nil, err
	}
	eng.exec = exec

	store := s.store
	if store == nil {
		store = memory.NewStore()
	}
	sessOpts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(s.locker))
	}
	if s.lockTTL > 0 {
		sessOpts = append(sessOpts, session.WithLockTTL(s.lockTTL))
	}
	eng.sessions = session.NewManager(store, sessOpts...)

	return eng, nil
}

// Send runs one turn of the conversation identified by sessionID, creating it
// on first contact. Turn-level failures are reported in Reply.Failure; the
// error is reserved for storage and locking problems.
func (e *Engine) Send(ctx context.Context, sessionID, text string) (*Reply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	var out runtime.Outcome
	_, err := e.sessions.Update(ctx, sessionID, func(ctx context.Context, s *domain.State) (*domain.State, error) {
		if s.Turns == 0 && len(s.RecentMessages) == 0 {
			s.PageSize = e.pageSize
		}
		out = e.exec.RunTurn(ctx, text, s)
		return out.State, nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", sessionID, err)
	}
	e.refreshActive(ctx)

	return &Reply{
		Text:    out.Text,
		Intent:  out.State.Intent,
		Failure: out.Failure,
		Steps:   out.Trace,
		State:   out.State,
	}, nil
}

// State returns the stored state of a conversation.
func (e *Engine) State(ctx context.Context, sessionID string) (*domain.State, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Reset forgets a conversation.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	err := e.sessions.Delete(ctx, sessionID)
	e.refreshActive(ctx)
	return err
}

// Conversations lists the stored conversation ids.
func (e *Engine) Conversations(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Table exposes the routing table.
func (e *Engine) Table() *routing.Table {
	return e.exec.Table()
}

// Validate re-runs the routing checks and returns every problem found.
func (e *Engine) Validate() []error {
	return routing.Validate(e.exec.Table(), e.exec.Catalog())
}

// Graph renders the routing table as a Mermaid flowchart.
func (e *Engine) Graph() string {
	return graph.GenerateMermaid(e.exec.Table(), nil)
}

// Stats returns the process-wide counters.
func (e *Engine) Stats() Stats {
	return Stats{Transport: e.transport.Stats(), Directory: e.directory.Stats()}
}

// MetricsHandler serves the registry given to WithMetrics, or nil when it
// cannot be gathered.
func (e *Engine) MetricsHandler() http.Handler {
	if e.gatherer == nil {
		return nil
	}
	return observability.Handler(e.gatherer)
}

func (e *Engine) refreshActive(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	ids, err := e.sessions.List(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "could not count conversations", "error", err)
		return
	}
	e.metrics.SetActiveSessions(len(ids))
}

// combineHooks runs every non-nil callback of each set in order.
func combineHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnStepEnter = chainStep(out.OnStepEnter, h.OnStepEnter)
		out.OnStepLeave = chainStep(out.OnStepLeave, h.OnStepLeave)
		out.OnRoutingViolation = chainStep(out.OnRoutingViolation, h.OnRoutingViolation)
		if prev, next := out.OnTurnComplete, h.OnTurnComplete; next != nil {
			out.OnTurnComplete = func(ctx context.Context, ev *domain.TurnEvent) {
				if prev != nil {
					prev(ctx, ev)
				}
				next(ctx, ev)
			}
		}
	}
	return out
}

func chainStep(prev, next func(context.Context, *domain.StepEvent)) func(context.Context, *domain.StepEvent) {
	switch {
	case next == nil:
		return prev
	case prev == nil:
		return next
	}
	return func(ctx context.Context, ev *domain.StepEvent) {
		prev(ctx, ev)
		next(ctx, ev)
	}
}
