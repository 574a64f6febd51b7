package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/testutils"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*carebot.Engine, *testutils.RecordServer) {
	t.Helper()
	records := testutils.NewRecordServer(t)
	eng, err := carebot.New(records.URL,
		carebot.WithBackoff(time.Millisecond),
		carebot.WithMetrics(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return eng, records
}

func TestChat_Text(t *testing.T) {
	eng, records := newEngine(t)
	in := strings.NewReader("create patient John Doe\n\n12345678Z\nexit\nnever sent\n")
	var out bytes.Buffer

	err := Chat(context.Background(), eng, in, &out, ChatOptions{SessionID: "repl"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "> ")
	assert.Contains(t, out.String(), "created")
	assert.Equal(t, 1, records.Calls("POST /patients"))

	state, err := eng.State(context.Background(), "repl")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Turns)
}

func TestChat_Reset(t *testing.T) {
	eng, _ := newEngine(t)
	in := strings.NewReader("create patient John Doe\n/reset\n")
	var out bytes.Buffer

	require.NoError(t, Chat(context.Background(), eng, in, &out, ChatOptions{SessionID: "repl"}))
	assert.Contains(t, out.String(), "Conversation cleared.")

	_, err := eng.State(context.Background(), "repl")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChat_JSON(t *testing.T) {
	eng, _ := newEngine(t)
	in := strings.NewReader(`{"text": "hello"}` + "\n" + `not json` + "\n" + `{"text": "  "}` + "\n")
	var out bytes.Buffer

	require.NoError(t, Chat(context.Background(), eng, in, &out, ChatOptions{SessionID: "ndjson", JSON: true}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "unknown", first["intent"])
	assert.NotEmpty(t, first["text"])

	assert.Contains(t, lines[1], "invalid input")
	assert.Contains(t, lines[2], carebot.ErrEmptyMessage.Error())
}

func TestChat_Cancelled(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()
	err := Chat(ctx, eng, r, &bytes.Buffer{}, ChatOptions{SessionID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
