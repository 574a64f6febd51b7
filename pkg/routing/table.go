package routing

import (
	"fmt"
	"sort"

	"github.com/aretw0/carebot/pkg/domain"
)

// Signal is what a step reports when it finishes.
// Context refines the token for contextual routes (e.g. which intent was classified).
type Signal struct {
	Token   domain.Token
	Context string
}

// Emit builds a plain signal.
func Emit(token domain.Token) Signal {
	return Signal{Token: token}
}

// EmitWith builds a signal carrying a context key.
func EmitWith(token domain.Token, context string) Signal {
	return Signal{Token: token, Context: context}
}

// Route is one declared transition.
type Route struct {
	From    domain.Step  `json:"from"`
	Token   domain.Token `json:"token"`
	Context string       `json:"context,omitempty"`
	To      domain.Step  `json:"to"`
}

type tokenKey struct {
	step  domain.Step
	token domain.Token
}

type routeKey struct {
	tokenKey
	context string
}

// Table is the immutable routing table.
type Table struct {
	entry      domain.Step
	routes     map[routeKey]domain.Step
	contextual map[tokenKey]bool
}

// Entry returns the step every turn starts at.
func (t *Table) Entry() domain.Step {
	return t.entry
}

// NextStep resolves the transition for a signal reported by step.
func (t *Table) NextStep(step domain.Step, sig Signal) (domain.Step, error) {
	tk := tokenKey{step: step, token: sig.Token}
	contextual, declared := t.contextual[tk]
	if !declared {
		return "", &InvalidTransitionError{Step: step, Token: sig.Token, Context: sig.Context}
	}

	key := routeKey{tokenKey: tk}
	if contextual {
		key.context = sig.Context
	}
	next, ok := t.routes[key]
	if !ok {
		return "", &InvalidTransitionError{Step: step, Token: sig.Token, Context: sig.Context}
	}
	return next, nil
}

// Routes returns every declared route in a stable order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for k, to := range t.routes {
		out = append(out, Route{From: k.step, Token: k.token, Context: k.context, To: to})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return stepOrder(a.From) < stepOrder(b.From)
		}
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		return a.Context < b.Context
	})
	return out
}

// Steps returns every step that has at least one outgoing route.
func (t *Table) Steps() []domain.Step {
	seen := make(map[domain.Step]bool)
	var out []domain.Step
	for k := range t.contextual {
		if !seen[k.step] {
			seen[k.step] = true
			out = append(out, k.step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return stepOrder(out[i]) < stepOrder(out[j]) })
	return out
}

func (t *Table) successors(step domain.Step) []domain.Step {
	var out []domain.Step
	for k, to := range t.routes {
		if k.step == step {
			out = append(out, to)
		}
	}
	return out
}

func stepOrder(s domain.Step) int {
	for i, known := range domain.Steps() {
		if known == s {
			return i
		}
	}
	return len(domain.Steps())
}

// Builder accumulates routes before producing an immutable Table.
type Builder struct {
	entry  domain.Step
	routes []Route
}

// NewBuilder starts a table whose turns begin at entry.
func NewBuilder(entry domain.Step) *Builder {
	return &Builder{entry: entry}
}

// StepBuilder declares the routes leaving one step.
type StepBuilder struct {
	b    *Builder
	from domain.Step
}

// From selects the step whose routes follow.
func (b *Builder) From(step domain.Step) *StepBuilder {
	return &StepBuilder{b: b, from: step}
}

// On declares a plain route.
func (sb *StepBuilder) On(token domain.Token, to domain.Step) *StepBuilder {
	sb.b.routes = append(sb.b.routes, Route{From: sb.from, Token: token, To: to})
	return sb
}

// OnContext declares a route that only applies when the signal carries context.
func (sb *StepBuilder) OnContext(token domain.Token, context string, to domain.Step) *StepBuilder {
	sb.b.routes = append(sb.b.routes, Route{From: sb.from, Token: token, Context: context, To: to})
	return sb
}

// Build checks the declarations for structural errors and freezes them.
func (b *Builder) Build() (*Table, error) {
	if !b.entry.Valid() || b.entry == domain.StepTerminal {
		return nil, fmt.Errorf("invalid entry step %q", b.entry)
	}

	t := &Table{
		entry:      b.entry,
		routes:     make(map[routeKey]domain.Step, len(b.routes)),
		contextual: make(map[tokenKey]bool),
	}

	for _, r := range b.routes {
		if !r.From.Valid() || r.From == domain.StepTerminal {
			return nil, fmt.Errorf("route %s: undefined source step %q", r, r.From)
		}
		if !r.To.Valid() {
			return nil, fmt.Errorf("route %s: undefined target step %q", r, r.To)
		}
		if !r.Token.Valid() {
			return nil, fmt.Errorf("route %s: undefined token %q", r, r.Token)
		}

		tk := tokenKey{step: r.From, token: r.Token}
		isContextual := r.Context != ""
		if prev, seen := t.contextual[tk]; seen && prev != isContextual {
			return nil, fmt.Errorf("route %s: token %q mixes contextual and plain routes", r, r.Token)
		}
		t.contextual[tk] = isContextual

		key := routeKey{tokenKey: tk, context: r.Context}
		if existing, dup := t.routes[key]; dup && existing != r.To {
			return nil, fmt.Errorf("route %s: conflicts with existing target %q", r, existing)
		}
		t.routes[key] = r.To
	}

	return t, nil
}

func (r Route) String() string {
	if r.Context != "" {
		return fmt.Sprintf("%s --%s[%s]--> %s", r.From, r.Token, r.Context, r.To)
	}
	return fmt.Sprintf("%s --%s--> %s", r.From, r.Token, r.To)
}
