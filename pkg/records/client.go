package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/transport"
)

// Sender is the slice of the transport the client needs.
type Sender interface {
	Send(ctx context.Context, method, path string, body any, headers map[string]string) (*transport.Response, error)
}

// Client calls the record service endpoints.
type Client struct {
	sender Sender
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wraps a transport.
func NewClient(sender Sender, opts ...Option) *Client {
	c := &Client{sender: sender, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPatients returns every patient.
func (c *Client) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	var out []domain.Patient
	if err := c.call(ctx, http.MethodGet, "/patients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPatient fetches one patient by service identifier.
func (c *Client) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	var out domain.Patient
	err := c.call(ctx, http.MethodGet, patientPath(id), nil, &out)
	return out, err
}

// CreatePatient validates p and stores it, returning the stored record.
func (c *Client) CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	p.ID = ""
	if err := ValidatePatient(p); err != nil {
		return domain.Patient{}, err
	}
	var out domain.Patient
	if err := c.call(ctx, http.MethodPost, "/patients", p, &out); err != nil {
		return domain.Patient{}, err
	}
	c.logger.InfoContext(ctx, "patient created", "patient_id", out.ID)
	return out, nil
}

// UpdatePatient applies changes on top of the stored record and writes it back.
// Only MutableFields are taken from changes.
func (c *Client) UpdatePatient(ctx context.Context, id string, changes map[string]string) (domain.Patient, error) {
	current, err := c.GetPatient(ctx, id)
	if err != nil {
		return domain.Patient{}, err
	}
	merged := Merge(current, changes)
	if err := ValidatePatient(merged); err != nil {
		return domain.Patient{}, err
	}
	var out domain.Patient
	if err := c.call(ctx, http.MethodPut, patientPath(id), merged, &out); err != nil {
		return domain.Patient{}, err
	}
	c.logger.InfoContext(ctx, "patient updated", "patient_id", id)
	return out, nil
}

// DeletePatient removes a patient.
func (c *Client) DeletePatient(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, patientPath(id), nil, nil); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "patient deleted", "patient_id", id)
	return nil
}

// ListScans returns up to limit scan results for a patient, newest first as served.
func (c *Client) ListScans(ctx context.Context, patientID string, limit int) ([]domain.ScanResult, error) {
	q := url.Values{}
	q.Set("patient_id", patientID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.ScanResult
	if err := c.call(ctx, http.MethodGet, "/scan-results?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge overlays the mutable fields present in changes onto p.
func Merge(p domain.Patient, changes map[string]string) domain.Patient {
	for _, f := range domain.MutableFields {
		v, ok := changes[f]
		if !ok || v == "" {
			continue
		}
		switch f {
		case domain.FieldFirstName:
			p.FirstName = v
		case domain.FieldLastName:
			p.LastName = v
		case domain.FieldBirthDate:
			p.BirthDate = v
		case domain.FieldEmail:
			p.Email = v
		case domain.FieldPhone:
			p.Phone = v
		}
	}
	return p
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.sender.Send(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	case resp.Status == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrConflict)
	case resp.Status >= http.StatusBadRequest:
		return &StatusError{Method: method, Path: path, Status: resp.Status, Body: string(resp.Body)}
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func patientPath(id string) string {
	return "/patients/" + url.PathEscape(id)
}

// StatusError is a client-side rejection other than 404 and 409.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: rejected with status %d", e.Method, e.Path, e.Status)
}

// IsTransport reports whether err came from the transport layer.
func IsTransport(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr)
}
