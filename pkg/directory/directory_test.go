package directory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/carebot/pkg/directory"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	patients []domain.Patient
	err      error
	calls    int
}

func (f *fakeSource) ListPatients(context.Context) ([]domain.Patient, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.patients, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup() (*fakeSource, *fakeClock, *directory.Directory) {
	src := &fakeSource{patients: []domain.Patient{
		{ID: "p-1", DNI: "12345678Z", FirstName: "John", LastName: "Doe"},
		{ID: "p-2", DNI: "87654321X", FirstName: "Jane", LastName: "Roe"},
		{ID: "p-3", DNI: "11111111H", FirstName: "Jane", LastName: "Roe"},
	}}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	return src, clock, directory.New(src, directory.WithClock(clock.Now))
}

func TestResolve_UniqueMatch(t *testing.T) {
	_, _, dir := setup()

	res, err := dir.Resolve(context.Background(), "  john   DOE ")
	require.NoError(t, err)
	assert.Equal(t, "p-1", res.ID)
	assert.True(t, res.Refreshed)
	assert.Len(t, res.Candidates, 1)
}

func TestResolve_AmbiguousReturnsAllCandidates(t *testing.T) {
	_, _, dir := setup()

	res, err := dir.Resolve(context.Background(), "Jane Roe")
	require.NoError(t, err)
	assert.Empty(t, res.ID)
	assert.True(t, res.Ambiguous())
	assert.Len(t, res.Candidates, 2)
}

func TestResolve_NoFuzzyMatching(t *testing.T) {
	_, _, dir := setup()

	res, err := dir.Resolve(context.Background(), "John")
	require.NoError(t, err)
	assert.Empty(t, res.ID)
	assert.Empty(t, res.Candidates)
}

func TestResolve_TTL(t *testing.T) {
	src, clock, dir := setup()
	ctx := context.Background()

	_, err := dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	clock.Advance(4*time.Minute + 59*time.Second)
	res, err := dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)
	assert.False(t, res.Refreshed)
	assert.Equal(t, 1, src.calls)

	clock.Advance(2 * time.Second)
	res, err = dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)
	assert.True(t, res.Refreshed)
	assert.Equal(t, 2, src.calls)
}

func TestInvalidate_ForcesRefresh(t *testing.T) {
	src, clock, dir := setup()
	ctx := context.Background()

	_, err := dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)

	clock.Advance(time.Second)
	dir.Invalidate("patient created")

	res, err := dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)
	assert.True(t, res.Refreshed)
	assert.Equal(t, 2, src.calls)

	stats := dir.Stats()
	assert.Equal(t, 2, stats.Refreshes)
	assert.Equal(t, 1, stats.Invalidations)
	assert.Equal(t, 3, stats.Count)
}

func TestResolve_FailedRefreshKeepsStaleIndex(t *testing.T) {
	src, clock, dir := setup()
	ctx := context.Background()

	_, err := dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)

	src.err = errors.New("connection refused")
	clock.Advance(10 * time.Minute)

	res, err := dir.Resolve(ctx, "John Doe")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.Equal(t, "p-1", res.ID)
	assert.False(t, res.Refreshed)

	stats := dir.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.Refreshes)
	assert.Equal(t, 10*time.Minute, stats.Age)

	src.err = nil
	_, err = dir.Resolve(ctx, "John Doe")
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestResolveDNIAndGetByID(t *testing.T) {
	_, _, dir := setup()
	ctx := context.Background()

	res, err := dir.ResolveDNI(ctx, "87654321x")
	require.NoError(t, err)
	assert.Equal(t, "p-2", res.ID)

	p, ok, err := dir.GetByID(ctx, "p-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "11111111H", p.DNI)

	_, ok, err = dir.GetByID(ctx, "p-9")
	require.NoError(t, err)
	assert.False(t, ok)
}
