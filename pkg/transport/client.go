package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/observability"
	"github.com/aretw0/carebot/pkg/redact"
	"github.com/go-resty/resty/v2"
)

const (
	// MaxAttempts is the initial call plus two retries.
	MaxAttempts    = 3
	defaultTimeout = 10 * time.Second
)

// DefaultBackoff is the wait before the first and second retry.
var DefaultBackoff = []time.Duration{500 * time.Millisecond, time.Second}

// Stats is the process-wide call accounting.
type Stats struct {
	Attempts  int64 `json:"attempts"`
	Retries   int64 `json:"retries"`
	Successes int64 `json:"successes"`
	Aborts    int64 `json:"aborts"`
}

// Response is a received answer with a non-failing status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client sends requests to one base URL with bounded retries.
type Client struct {
	http    *resty.Client
	backoff []time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	stats Stats
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBackoff replaces the retry schedule. The last entry is reused if the
// schedule is shorter than the number of retries.
func WithBackoff(schedule ...time.Duration) Option {
	return func(c *Client) {
		c.backoff = schedule
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithMetrics exports call events to Prometheus.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.http.SetHeader(key, value)
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
		backoff: DefaultBackoff,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Retries are driven by Send, never by resty itself.
	c.http.SetRetryCount(0)
	c.http.SetLogger(restyLogger{c.logger})
	c.http.SetHeader("Accept", "application/json")
	return c
}

// Send performs method on path. body, when non-nil, is sent as JSON.
// Statuses below 500 are returned as a Response; everything else becomes *Error.
func (c *Client) Send(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	rec := recorderFrom(ctx)
	log := c.logger.With("method", method, "path", path)
	if body != nil && c.logger.Enabled(ctx, slog.LevelDebug) {
		if raw, err := json.Marshal(body); err == nil {
			log.DebugContext(ctx, "sending request", "body", redact.JSON(raw))
		}
	}

	for attempt := 1; ; attempt++ {
		c.count(rec, observability.CallAttempt)

		req := c.http.R().SetContext(ctx).SetHeaders(headers)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)

		received := err == nil
		if received && !IsRetryableStatus(resp.StatusCode()) {
			if resp.StatusCode() >= http.StatusInternalServerError {
				return nil, c.abort(ctx, rec, log, &Error{
					Method: method, Path: path, Status: resp.StatusCode(),
					Attempts: attempt, Body: redact.Text(resp.String()),
				})
			}
			c.count(rec, observability.CallSuccess)
			log.DebugContext(ctx, "request completed", "status", resp.StatusCode(), "attempts", attempt)
			return &Response{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
		}

		failure := &Error{Method: method, Path: path, Attempts: attempt, Err: err}
		if received {
			failure.Status = resp.StatusCode()
			failure.Body = redact.Text(resp.String())
		}

		if ctx.Err() != nil {
			failure.Err = ctx.Err()
			return nil, c.abort(ctx, rec, log, failure)
		}
		if attempt >= MaxAttempts || (received && IsWrite(method)) {
			return nil, c.abort(ctx, rec, log, failure)
		}

		wait := c.wait(attempt)
		log.WarnContext(ctx, "retrying request", "attempt", attempt, "status", failure.Status, "error", err, "backoff", wait)
		c.count(rec, observability.CallRetry)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				failure.Err = ctx.Err()
				return nil, c.abort(ctx, rec, log, failure)
			case <-timer.C:
			}
		}
	}
}

// Stats returns a copy of the process-wide counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) wait(attempt int) time.Duration {
	if len(c.backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i >= len(c.backoff) {
		i = len(c.backoff) - 1
	}
	return c.backoff[i]
}

func (c *Client) abort(ctx context.Context, rec Recorder, log *slog.Logger, e *Error) error {
	c.count(rec, observability.CallAbort)
	log.ErrorContext(ctx, "request failed", "status", e.Status, "attempts", e.Attempts, "error", e.Err)
	return e
}

func (c *Client) count(rec Recorder, event string) {
	c.mu.Lock()
	switch event {
	case observability.CallAttempt:
		c.stats.Attempts++
		rec.RecordAttempt()
	case observability.CallRetry:
		c.stats.Retries++
		rec.RecordRetry()
	case observability.CallSuccess:
		c.stats.Successes++
		rec.RecordSuccess()
	case observability.CallAbort:
		c.stats.Aborts++
		rec.RecordAbort()
	}
	c.mu.Unlock()
	c.metrics.ObserveCall(event)
}

// restyLogger routes resty's internal messages into slog.
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
