package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/observability"
	"github.com/aretw0/carebot/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence answers with the given statuses in order, repeating the last one.
// A zero status drops the connection without answering.
func sequence(t *testing.T, hits *int32, statuses ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(hits, 1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		_, _ = io.Copy(io.Discard, r.Body)
		if status == 0 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"p-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string, opts ...transport.Option) *transport.Client {
	return transport.New(url, append([]transport.Option{transport.WithBackoff(0)}, opts...)...)
}

func TestSend_RetriesUpToTwice(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusServiceUnavailable)
	c := newClient(srv.URL)

	var metrics domain.CallMetrics
	ctx := transport.WithRecorder(context.Background(), &metrics)

	_, err := c.Send(ctx, http.MethodGet, "/patients", nil, nil)
	require.Error(t, err)

	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusServiceUnavailable, terr.Status)
	assert.Equal(t, 3, terr.Attempts)
	assert.True(t, terr.Received())

	assert.EqualValues(t, 3, hits)
	assert.Equal(t, domain.CallMetrics{Attempts: 3, Retries: 2, Aborts: 1}, metrics)
	assert.Equal(t, transport.Stats{Attempts: 3, Retries: 2, Aborts: 1}, c.Stats())
}

func TestSend_RecoversAfterTransientStatus(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusOK)
	c := newClient(srv.URL)

	resp, err := c.Send(context.Background(), http.MethodGet, "/patients", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	var body struct{ ID string }
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "p-1", body.ID)
	assert.Equal(t, transport.Stats{Attempts: 3, Retries: 2, Successes: 1}, c.Stats())
}

func TestSend_WriteWithResponseIsNotRetried(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusServiceUnavailable, http.StatusCreated)
	c := newClient(srv.URL)

	_, err := c.Send(context.Background(), http.MethodPost, "/patients", map[string]string{"dni": "12345678Z"}, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, hits)
	assert.Equal(t, transport.Stats{Attempts: 1, Aborts: 1}, c.Stats())
}

func TestSend_WriteWithoutResponseIsRetried(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, 0, http.StatusCreated)
	c := newClient(srv.URL)

	resp, err := c.Send(context.Background(), http.MethodPost, "/patients", map[string]string{"first_name": "John"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.EqualValues(t, 2, hits)
	assert.Equal(t, transport.Stats{Attempts: 2, Retries: 1, Successes: 1}, c.Stats())
}

func TestSend_ConnectionFailureExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newClient(url)
	_, err := c.Send(context.Background(), http.MethodDelete, "/patients/p-1", nil, nil)

	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.False(t, terr.Received())
	assert.Equal(t, 3, terr.Attempts)
	assert.Equal(t, transport.Stats{Attempts: 3, Retries: 2, Aborts: 1}, c.Stats())
}

func TestSend_ClientErrorsAreResponses(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusNotFound)
	c := newClient(srv.URL)

	resp, err := c.Send(context.Background(), http.MethodGet, "/patients/missing", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.EqualValues(t, 1, hits)
}

func TestSend_InternalErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusInternalServerError)
	c := newClient(srv.URL)

	_, err := c.Send(context.Background(), http.MethodGet, "/patients", nil, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, hits)
}

func TestSend_CancelledDuringBackoff(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusServiceUnavailable)
	c := transport.New(srv.URL, transport.WithBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, http.MethodGet, "/patients", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, hits)
}

func TestSend_RedactsLoggedBody(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusCreated)

	var buf bytes.Buffer
	c := newClient(srv.URL, transport.WithLogger(logging.NewJSON(&buf, slog.LevelDebug)))

	_, err := c.Send(context.Background(), http.MethodPost, "/patients",
		map[string]string{"dni": "12345678Z", "first_name": "John"}, nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "sending request")
	assert.Contains(t, buf.String(), "John")
	assert.NotContains(t, buf.String(), "12345678Z")
}

func TestSend_ExportsMetrics(t *testing.T) {
	var hits int32
	srv := sequence(t, &hits, http.StatusServiceUnavailable, http.StatusOK)
	m := observability.NewMetrics(prometheus.NewRegistry(), "test")
	c := newClient(srv.URL, transport.WithMetrics(m))

	_, err := c.Send(context.Background(), http.MethodGet, "/patients", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransportCalls.WithLabelValues(observability.CallAttempt)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportCalls.WithLabelValues(observability.CallRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportCalls.WithLabelValues(observability.CallSuccess)))
}
