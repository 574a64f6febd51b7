package routing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/carebot/pkg/domain"
)

// Emission declares one token a step may report.
// When Contexts is non-empty the token is only routed together with one of them.
type Emission struct {
	Token    domain.Token
	Contexts []string
}

// Catalog lists, per implemented step, everything it may emit.
type Catalog map[domain.Step][]Emission

// Validate checks the table against the catalog and returns every problem found.
// An empty result means the table is complete: each step is implemented, every
// emission is routed, every route is emitted, every step is reachable from the
// entry and can reach the terminal marker.
func Validate(t *Table, catalog Catalog) []error {
	var errs []error

	for _, step := range domain.Steps() {
		if _, ok := catalog[step]; !ok {
			errs = append(errs, fmt.Errorf("step %q has no implementation", step))
		}
	}
	if _, ok := catalog[t.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry step %q has no implementation", t.entry))
	}

	emitted := make(map[routeKey]bool)
	for _, step := range sortedSteps(catalog) {
		if !step.Valid() || step == domain.StepTerminal {
			errs = append(errs, fmt.Errorf("catalog declares undefined step %q", step))
			continue
		}
		for _, em := range catalog[step] {
			if !em.Token.Valid() {
				errs = append(errs, fmt.Errorf("step %q emits undefined token %q", step, em.Token))
				continue
			}
			tk := tokenKey{step: step, token: em.Token}
			contextual, declared := t.contextual[tk]
			if !declared {
				errs = append(errs, fmt.Errorf("step %q emits %q but no route handles it", step, em.Token))
				continue
			}
			if contextual != (len(em.Contexts) > 0) {
				errs = append(errs, fmt.Errorf("step %q token %q: catalog and table disagree on context", step, em.Token))
				continue
			}
			if !contextual {
				emitted[routeKey{tokenKey: tk}] = true
				continue
			}
			for _, c := range em.Contexts {
				key := routeKey{tokenKey: tk, context: c}
				emitted[key] = true
				if _, ok := t.routes[key]; !ok {
					errs = append(errs, fmt.Errorf("step %q emits %q with context %q but no route handles it", step, em.Token, c))
				}
			}
		}
	}

	for _, r := range t.Routes() {
		if _, ok := catalog[r.From]; !ok {
			errs = append(errs, fmt.Errorf("route %s leaves an unimplemented step", r))
			continue
		}
		if !emitted[routeKey{tokenKey: tokenKey{step: r.From, token: r.Token}, context: r.Context}] {
			errs = append(errs, fmt.Errorf("route %s is never emitted", r))
		}
		if r.To != domain.StepTerminal {
			if _, ok := catalog[r.To]; !ok {
				errs = append(errs, fmt.Errorf("route %s targets an unimplemented step", r))
			}
		}
	}

	reachable := t.reachableFrom(t.entry)
	for _, step := range sortedSteps(catalog) {
		if !reachable[step] {
			errs = append(errs, fmt.Errorf("step %q is unreachable from %q", step, t.entry))
		}
	}

	finishing := t.reachesTerminal()
	for _, step := range sortedSteps(catalog) {
		if reachable[step] && !finishing[step] {
			errs = append(errs, fmt.Errorf("step %q has no path to the terminal marker", step))
		}
	}

	return errs
}

// Check runs Validate and joins the result into a single error.
func Check(t *Table, catalog Catalog) error {
	errs := Validate(t, catalog)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("routing table has %d problem(s): %w", len(errs), errors.Join(errs...))
}

func (t *Table) reachableFrom(start domain.Step) map[domain.Step]bool {
	visited := make(map[domain.Step]bool)
	queue := []domain.Step{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, next := range t.successors(current) {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// reachesTerminal walks the table backwards from the terminal marker.
func (t *Table) reachesTerminal() map[domain.Step]bool {
	predecessors := make(map[domain.Step][]domain.Step)
	for k, to := range t.routes {
		predecessors[to] = append(predecessors[to], k.step)
	}

	visited := make(map[domain.Step]bool)
	queue := []domain.Step{domain.StepTerminal}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		queue = append(queue, predecessors[current]...)
	}
	return visited
}

func sortedSteps(c Catalog) []domain.Step {
	out := make([]domain.Step, 0, len(c))
	for s := range c {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if stepOrder(out[i]) != stepOrder(out[j]) {
			return stepOrder(out[i]) < stepOrder(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
