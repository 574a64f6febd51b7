package ports

import (
	"context"

	"github.com/aretw0/carebot/pkg/domain"
)

// Classifier interprets free text.
type Classifier interface {
	// Classify returns the intent of text. Unrecognized text maps to
	// domain.IntentUnknown with a nil error; errors are reserved for
	// collaborator failures.
	Classify(ctx context.Context, text string) (domain.Intent, error)

	// Answer reads text as a reply to a yes/no question.
	Answer(ctx context.Context, text string) (domain.Answer, error)
}

// FieldExtractor pulls named field values out of text.
// Keys are the domain.Field* names; absent fields are simply missing.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}

// Summarizer folds messages into the existing digest.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, messages []string) (string, error)
}

// Formatter renders a named reply template.
type Formatter interface {
	Format(name string, data map[string]any) (string, error)
}
