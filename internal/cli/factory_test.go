package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/carebot/internal/config"
	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	t.Setenv("CAREBOT_BACKEND_BASE_URL", baseURL)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	return cfg
}

func TestBuild_Memory(t *testing.T) {
	records := testutils.NewRecordServer(t)
	rt, err := Build(testConfig(t, records.URL), logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	reply, err := rt.Engine.Send(context.Background(), "c-1", "list patients")
	require.NoError(t, err)
	assert.Equal(t, "list_patients", string(reply.Intent))
}

func TestBuild_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	records := testutils.NewRecordServer(t)
	cfg := testConfig(t, records.URL)
	cfg.Redis.URL = "redis://" + mr.Addr()

	rt, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Engine.Send(context.Background(), "c-1", "hello")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys(), "the turn lock is released")
}

func TestBuild_Errors(t *testing.T) {
	records := testutils.NewRecordServer(t)

	t.Run("Missing Rules File", func(t *testing.T) {
		cfg := testConfig(t, records.URL)
		cfg.Rules.Path = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := Build(cfg, logging.NewNop())
		assert.Error(t, err)
	})

	t.Run("Bad Redis URL", func(t *testing.T) {
		cfg := testConfig(t, records.URL)
		cfg.Redis.URL = "mysql://nope"
		_, err := Build(cfg, logging.NewNop())
		assert.Error(t, err)
	})
}
