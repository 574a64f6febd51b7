// Package directory keeps an in-memory name index of patients, refreshed from
// the record service on a time-to-live basis.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/observability"
)

// DefaultTTL is how long an index is trusted before the next read refreshes it.
const DefaultTTL = 5 * time.Minute

// Source lists every patient. records.Client satisfies it.
type Source interface {
	ListPatients(ctx context.Context) ([]domain.Patient, error)
}

// Resolution is the outcome of a name lookup.
// ID is set only when exactly one patient matched.
type Resolution struct {
	ID         string
	Candidates []domain.Patient
	Refreshed  bool
}

// Ambiguous reports whether more than one patient matched.
func (r Resolution) Ambiguous() bool {
	return len(r.Candidates) > 1
}

// Stats describes the index.
type Stats struct {
	Count         int           `json:"count"`
	Refreshes     int           `json:"refreshes"`
	Invalidations int           `json:"invalidations"`
	Age           time.Duration `json:"age"`
}

// Directory is safe for concurrent use. A refresh holds the lock, so
// concurrent readers wait for it instead of fetching twice.
type Directory struct {
	source  Source
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics

	mu            sync.Mutex
	byName        map[string][]domain.Patient
	byID          map[string]domain.Patient
	byDNI         map[string]domain.Patient
	lastRefresh   time.Time
	loaded        bool
	invalidated   bool
	refreshes     int
	invalidations int
}

// Option configures a Directory.
type Option func(*Directory)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		d.ttl = ttl
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// WithMetrics exports refresh outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Directory) {
		d.metrics = m
	}
}

// New creates an empty directory; the first read populates it.
func New(source Source, opts ...Option) *Directory {
	d := &Directory{
		source: source,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logging.NewNop(),
		byName: make(map[string][]domain.Patient),
		byID:   make(map[string]domain.Patient),
		byDNI:  make(map[string]domain.Patient),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Normalize is the key used for name matching: trimmed, lower-cased,
// inner whitespace collapsed.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Resolve finds patients whose full name matches exactly.
// When a needed refresh fails the previous index still answers and the error
// wraps domain.ErrCacheUnavailable.
func (d *Directory) Resolve(ctx context.Context, name string) (Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	refreshed, err := d.ensureFresh(ctx)
	matches := d.byName[Normalize(name)]
	res := Resolution{
		Candidates: append([]domain.Patient(nil), matches...),
		Refreshed:  refreshed,
	}
	if len(matches) == 1 {
		res.ID = matches[0].ID
	}
	return res, err
}

// ResolveDNI finds the patient holding a national identifier.
func (d *Directory) ResolveDNI(ctx context.Context, dni string) (Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	refreshed, err := d.ensureFresh(ctx)
	res := Resolution{Refreshed: refreshed}
	if p, ok := d.byDNI[strings.ToUpper(strings.TrimSpace(dni))]; ok {
		res.ID = p.ID
		res.Candidates = []domain.Patient{p}
	}
	return res, err
}

// GetByID returns the indexed patient with the given service identifier.
func (d *Directory) GetByID(ctx context.Context, id string) (domain.Patient, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.ensureFresh(ctx)
	p, ok := d.byID[id]
	return p, ok, err
}

// Invalidate forces the next read to refresh regardless of the TTL.
func (d *Directory) Invalidate(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated = true
	d.invalidations++
	d.logger.Debug("directory invalidated", "reason", reason)
}

// Stats returns the current counters.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Count:         len(d.byID),
		Refreshes:     d.refreshes,
		Invalidations: d.invalidations,
	}
	if d.loaded {
		s.Age = d.now().Sub(d.lastRefresh)
	}
	return s
}

func (d *Directory) ensureFresh(ctx context.Context) (bool, error) {
	if d.loaded && !d.invalidated && d.now().Sub(d.lastRefresh) <= d.ttl {
		return false, nil
	}

	patients, err := d.source.ListPatients(ctx)
	if err != nil {
		d.metrics.ObserveRefresh(false)
		d.logger.WarnContext(ctx, "directory refresh failed, serving previous index", "error", err, "count", len(d.byID))
		return false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	byName := make(map[string][]domain.Patient, len(patients))
	byID := make(map[string]domain.Patient, len(patients))
	byDNI := make(map[string]domain.Patient, len(patients))
	for _, p := range patients {
		key := Normalize(p.FullName())
		byName[key] = append(byName[key], p)
		byID[p.ID] = p
		if p.DNI != "" {
			byDNI[strings.ToUpper(p.DNI)] = p
		}
	}

	d.byName, d.byID, d.byDNI = byName, byID, byDNI
	d.lastRefresh = d.now()
	d.loaded = true
	d.invalidated = false
	d.refreshes++
	d.metrics.ObserveRefresh(true)
	d.logger.DebugContext(ctx, "directory refreshed", "count", len(patients))
	return true, nil
}
