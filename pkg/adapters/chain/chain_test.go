package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/carebot/pkg/adapters/chain"
	"github.com/aretw0/carebot/pkg/adapters/patterns"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	intent  domain.Intent
	answer  domain.Answer
	fields  map[string]string
	digest  string
	err     error
	classes int
}

func (s *stub) Classify(context.Context, string) (domain.Intent, error) {
	s.classes++
	return s.intent, s.err
}
func (s *stub) Answer(context.Context, string) (domain.Answer, error) { return s.answer, s.err }
func (s *stub) Extract(context.Context, string) (map[string]string, error) {
	return s.fields, s.err
}
func (s *stub) Summarize(context.Context, string, []string) (string, error) { return s.digest, s.err }

func TestClassify_FallbackOnlyWhenUnknown(t *testing.T) {
	fb := &stub{intent: domain.IntentListScans}
	c := chain.New(patterns.Default(), fb, nil)
	ctx := context.Background()

	got, err := c.Classify(ctx, "create patient John Doe")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentCreatePatient, got)
	assert.Equal(t, 0, fb.classes)

	got, err = c.Classify(ctx, "what about the pictures of my knee")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentListScans, got)
	assert.Equal(t, 1, fb.classes)
}

func TestClassify_FallbackFailureKeepsPrimary(t *testing.T) {
	c := chain.New(patterns.Default(), &stub{err: errors.New("offline")}, nil)

	got, err := c.Classify(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentUnknown, got)
}

func TestExtract_PrimaryWins(t *testing.T) {
	fb := &stub{fields: map[string]string{domain.FieldPatient: "Wrong Name", domain.FieldEmail: "j@example.com"}}
	c := chain.New(patterns.Default(), fb, nil)

	got, err := c.Extract(context.Background(), "create patient John Doe")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", got[domain.FieldPatient])
	assert.Equal(t, "j@example.com", got[domain.FieldEmail])
}

func TestSummarize_FallsBackToPrimary(t *testing.T) {
	c := chain.New(patterns.Default(), &stub{err: errors.New("offline")}, nil)

	got, err := c.Summarize(context.Background(), "", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a | b", got)
}

func TestAnswer_WithoutFallback(t *testing.T) {
	c := chain.New(patterns.Default(), nil, nil)

	got, err := c.Answer(context.Background(), "hmm")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerUnclear, got)
}
