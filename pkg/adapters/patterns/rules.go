package patterns

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"

	"github.com/aretw0/carebot/pkg/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the YAML document driving the engine.
type Rules struct {
	Intents []IntentRule `yaml:"intents"`
	Answers struct {
		Yes []string `yaml:"yes"`
		No  []string `yaml:"no"`
	} `yaml:"answers"`
	Fields  []FieldRule `yaml:"fields"`
	Summary struct {
		MaxRunes int `yaml:"max_runes"`
	} `yaml:"summary"`
}

// IntentRule maps patterns to one intent.
type IntentRule struct {
	Intent   string   `yaml:"intent"`
	Patterns []string `yaml:"patterns"`
}

// FieldRule extracts one field through the first capture group.
type FieldRule struct {
	Field   string `yaml:"field"`
	Pattern string `yaml:"pattern"`
}

type compiledIntent struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}

type compiledField struct {
	field   string
	pattern *regexp.Regexp
}

type compiled struct {
	intents  []compiledIntent
	yes, no  []*regexp.Regexp
	fields   []compiledField
	maxRunes int
}

// LoadRules parses a rules document.
func LoadRules(r io.Reader) (*Rules, error) {
	var rules Rules
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &rules, nil
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	var rules Rules
	if err := yaml.Unmarshal(defaultRules, &rules); err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return &rules
}

func (r *Rules) compile() (*compiled, error) {
	c := &compiled{maxRunes: r.Summary.MaxRunes}
	if c.maxRunes <= 0 {
		c.maxRunes = 600
	}

	for _, ir := range r.Intents {
		intent := domain.ParseIntent(ir.Intent)
		if intent == domain.IntentUnknown && ir.Intent != string(domain.IntentUnknown) {
			return nil, fmt.Errorf("rule for undefined intent %q", ir.Intent)
		}
		ci := compiledIntent{intent: intent}
		for _, p := range ir.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("intent %s: %w", ir.Intent, err)
			}
			ci.patterns = append(ci.patterns, re)
		}
		c.intents = append(c.intents, ci)
	}

	var err error
	if c.yes, err = compileAll(r.Answers.Yes); err != nil {
		return nil, fmt.Errorf("answers.yes: %w", err)
	}
	if c.no, err = compileAll(r.Answers.No); err != nil {
		return nil, fmt.Errorf("answers.no: %w", err)
	}

	for _, fr := range r.Fields {
		re, err := regexp.Compile(fr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fr.Field, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("field %s: pattern needs a capture group", fr.Field)
		}
		c.fields = append(c.fields, compiledField{field: fr.Field, pattern: re})
	}
	return c, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
