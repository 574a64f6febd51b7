// Package openai understands messages through an OpenAI-compatible chat
// completion endpoint. Calls are rate limited and every answer is mapped back
// onto the closed set of intents and fields, so the model can never introduce
// a value the executor does not know.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/redact"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Client implements ports.Classifier, ports.FieldExtractor and ports.Summarizer.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel selects the chat model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit bounds requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client. An empty baseURL targets the public API.
func New(apiKey, baseURL string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	c := &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   DefaultModel,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const classifyPrompt = `You route messages for a patient-records assistant.
Reply with exactly one of these labels and nothing else: %s.
Use "unknown" when none applies.`

// Classify asks the model for one intent label.
func (c *Client) Classify(ctx context.Context, text string) (domain.Intent, error) {
	labels := make([]string, 0, len(domain.Intents()))
	for _, i := range domain.Intents() {
		labels = append(labels, string(i))
	}
	reply, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, strings.Join(labels, ", ")), text)
	if err != nil {
		return domain.IntentUnknown, err
	}
	return domain.ParseIntent(label(reply)), nil
}

const answerPrompt = `The user was asked a yes/no question. Reply with exactly "yes", "no" or "unclear".`

// Answer asks the model to read a yes/no reply.
func (c *Client) Answer(ctx context.Context, text string) (domain.Answer, error) {
	reply, err := c.complete(ctx, answerPrompt, text)
	if err != nil {
		return domain.AnswerUnclear, err
	}
	switch domain.Answer(label(reply)) {
	case domain.AnswerYes:
		return domain.AnswerYes, nil
	case domain.AnswerNo:
		return domain.AnswerNo, nil
	default:
		return domain.AnswerUnclear, nil
	}
}

const extractPrompt = `Extract patient record fields from the message.
Reply with a single JSON object whose keys are a subset of: %s.
"patient" is the full name of the patient the message refers to.
Omit fields that are not present. Do not invent values.`

var extractable = []string{
	domain.FieldDNI,
	domain.FieldFirstName,
	domain.FieldLastName,
	domain.FieldBirthDate,
	domain.FieldEmail,
	domain.FieldPhone,
	domain.FieldPatient,
	domain.FieldSelection,
}

// Extract asks the model for a JSON object of fields; unknown keys are dropped.
func (c *Client) Extract(ctx context.Context, text string) (map[string]string, error) {
	reply, err := c.complete(ctx, fmt.Sprintf(extractPrompt, strings.Join(extractable, ", ")), text)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFence(reply)), &raw); err != nil {
		return nil, fmt.Errorf("extract: model reply is not a JSON object: %w", err)
	}

	out := make(map[string]string)
	for _, f := range extractable {
		if v, ok := raw[f]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" && v != nil {
				out[f] = s
			}
		}
	}
	return out, nil
}

const summaryPrompt = `Summarize this conversation history for a records assistant in at most three sentences.
Keep pending requests and patient names. Never include identity document numbers.`

// Summarize asks the model to fold messages into the digest.
func (c *Client) Summarize(ctx context.Context, previous string, messages []string) (string, error) {
	var b strings.Builder
	if previous != "" {
		b.WriteString("Earlier summary: ")
		b.WriteString(previous)
		b.WriteString("\n")
	}
	for _, m := range messages {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	reply, err := c.complete(ctx, summaryPrompt, b.String())
	if err != nil {
		return "", err
	}
	return redact.Text(strings.TrimSpace(reply)), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	c.logger.DebugContext(ctx, "calling model", "model", c.model, "text", user)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "model call failed", "model", c.model, "error", err)
		return "", fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func label(reply string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(reply)), `"'.`)
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
