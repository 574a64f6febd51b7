package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Conversations.PageSize)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: http://file.test
  timeout: 3s
cache:
  ttl: 1m
http:
  addr: ":9000"
`), 0o600))

	t.Setenv("CAREBOT_CACHE_TTL", "2m")
	t.Setenv("CAREBOT_HTTP_ADDR", ":9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":9200"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://file.test", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL, "env beats file")
	assert.Equal(t, ":9200", cfg.HTTP.Addr, "flag beats env")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"Relative URL", map[string]string{"CAREBOT_BACKEND_BASE_URL": "records"}, "not an absolute URL"},
		{"Zero TTL", map[string]string{"CAREBOT_CACHE_TTL": "0s"}, "cache.ttl"},
		{"Zero Page", map[string]string{"CAREBOT_CONVERSATIONS_PAGE_SIZE": "0"}, "page_size"},
		{"Log Format", map[string]string{"CAREBOT_LOG_FORMAT": "xml"}, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestTurnLockTTL(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 63*time.Second, cfg.TurnLockTTL(), "two calls with every attempt and backoff")

	t.Setenv("CAREBOT_REDIS_LOCK_TTL", "2m")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.TurnLockTTL())

	t.Setenv("CAREBOT_REDIS_LOCK_TTL", "-1s")
	_, err = Load("", nil)
	assert.ErrorContains(t, err, "redis.lock_ttl")
}
