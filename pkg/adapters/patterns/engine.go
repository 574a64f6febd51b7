// Package patterns understands messages with ordered regular-expression rules
// loaded from YAML. It needs no network and is deterministic, which makes it
// the default collaborator and the first link of a fallback chain.
package patterns

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
)

// Engine implements ports.Classifier, ports.FieldExtractor and ports.Summarizer.
type Engine struct {
	c *compiled
}

// New compiles rules into an engine.
func New(rules *Rules) (*Engine, error) {
	c, err := rules.compile()
	if err != nil {
		return nil, err
	}
	return &Engine{c: c}, nil
}

// Default is New(DefaultRules()); the embedded rules always compile.
func Default() *Engine {
	e, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return e
}

// Classify returns the intent of the first matching rule.
func (e *Engine) Classify(_ context.Context, text string) (domain.Intent, error) {
	for _, ci := range e.c.intents {
		for _, re := range ci.patterns {
			if re.MatchString(text) {
				return ci.intent, nil
			}
		}
	}
	return domain.IntentUnknown, nil
}

// Answer reads a yes/no reply. Text matching both or neither is unclear.
func (e *Engine) Answer(_ context.Context, text string) (domain.Answer, error) {
	yes := matchAny(e.c.yes, text)
	no := matchAny(e.c.no, text)
	switch {
	case yes && !no:
		return domain.AnswerYes, nil
	case no && !yes:
		return domain.AnswerNo, nil
	default:
		return domain.AnswerUnclear, nil
	}
}

// Extract returns every field whose rule matched, first match per field.
func (e *Engine) Extract(_ context.Context, text string) (map[string]string, error) {
	out := make(map[string]string)
	for _, cf := range e.c.fields {
		if _, seen := out[cf.field]; seen {
			continue
		}
		m := cf.pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			out[cf.field] = v
		}
	}
	return out, nil
}

// Summarize appends the folded messages to the previous digest, keeping the
// most recent part when the digest outgrows its bound.
func (e *Engine) Summarize(_ context.Context, previous string, messages []string) (string, error) {
	parts := make([]string, 0, len(messages)+1)
	if previous != "" {
		parts = append(parts, previous)
	}
	for _, m := range messages {
		if m = strings.Join(strings.Fields(m), " "); m != "" {
			parts = append(parts, m)
		}
	}
	digest := strings.Join(parts, " | ")

	runes := []rune(digest)
	if len(runes) > e.c.maxRunes {
		digest = "…" + string(runes[len(runes)-e.c.maxRunes+1:])
	}
	return digest, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
