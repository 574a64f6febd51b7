// Package chain combines two understanding collaborators: the primary answers
// first and the fallback is consulted only when the primary is not sure.
package chain

import (
	"context"
	"log/slog"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/ports"
)

// Understanding is the full collaborator surface.
type Understanding interface {
	ports.Classifier
	ports.FieldExtractor
	ports.Summarizer
}

// Chain implements Understanding.
type Chain struct {
	primary  Understanding
	fallback Understanding
	logger   *slog.Logger
}

// New chains primary and fallback. A nil fallback makes the chain transparent.
func New(primary, fallback Understanding, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chain{primary: primary, fallback: fallback, logger: logger}
}

// Classify uses the fallback when the primary returns unknown or fails.
func (c *Chain) Classify(ctx context.Context, text string) (domain.Intent, error) {
	intent, err := c.primary.Classify(ctx, text)
	if (err == nil && intent != domain.IntentUnknown) || c.fallback == nil {
		return intent, err
	}
	fb, fbErr := c.fallback.Classify(ctx, text)
	if fbErr != nil {
		c.logger.WarnContext(ctx, "fallback classifier failed", "error", fbErr)
		if err != nil {
			return domain.IntentUnknown, err
		}
		return intent, nil
	}
	return fb, nil
}

// Answer uses the fallback when the primary cannot tell.
func (c *Chain) Answer(ctx context.Context, text string) (domain.Answer, error) {
	a, err := c.primary.Answer(ctx, text)
	if (err == nil && a != domain.AnswerUnclear) || c.fallback == nil {
		return a, err
	}
	fb, fbErr := c.fallback.Answer(ctx, text)
	if fbErr != nil {
		c.logger.WarnContext(ctx, "fallback answer reader failed", "error", fbErr)
		return domain.AnswerUnclear, nil
	}
	return fb, nil
}

// Extract merges both results; primary values win.
func (c *Chain) Extract(ctx context.Context, text string) (map[string]string, error) {
	fields, err := c.primary.Extract(ctx, text)
	if err != nil {
		fields = map[string]string{}
	}
	if c.fallback == nil {
		return fields, err
	}
	more, fbErr := c.fallback.Extract(ctx, text)
	if fbErr != nil {
		c.logger.WarnContext(ctx, "fallback extractor failed", "error", fbErr)
		return fields, err
	}
	for k, v := range more {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return fields, nil
}

// Summarize prefers the fallback, which is usually the more capable model,
// and keeps the primary's digest if it fails.
func (c *Chain) Summarize(ctx context.Context, previous string, messages []string) (string, error) {
	if c.fallback != nil {
		digest, err := c.fallback.Summarize(ctx, previous, messages)
		if err == nil {
			return digest, nil
		}
		c.logger.WarnContext(ctx, "fallback summarizer failed", "error", err)
	}
	return c.primary.Summarize(ctx, previous, messages)
}
