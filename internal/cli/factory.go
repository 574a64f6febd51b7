// Package cli wires configuration into a running engine for the carebot
// commands and hosts the interactive chat loop.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/config"
	"github.com/aretw0/carebot/pkg/adapters/chain"
	"github.com/aretw0/carebot/pkg/adapters/memory"
	"github.com/aretw0/carebot/pkg/adapters/openai"
	"github.com/aretw0/carebot/pkg/adapters/patterns"
	"github.com/aretw0/carebot/pkg/adapters/redis"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// redisPrefix namespaces every key carebot writes to Redis.
const redisPrefix = "carebot:"

// Runtime is a configured engine plus the resources it holds.
type Runtime struct {
	Engine *carebot.Engine
	Logger *slog.Logger

	closers []func() error
}

// Close releases external connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Build creates the engine described by cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Logger: logger}

	understanding, err := buildUnderstanding(cfg, logger)
	if err != nil {
		return nil, err
	}

	var client backend.UniversalClient
	if cfg.Redis.URL != "" {
		opts, err := backend.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		c := backend.NewClient(opts)
		client = c
		rt.closers = append(rt.closers, c.Close)
	}

	opts := []carebot.Option{
		carebot.WithLogger(logger),
		carebot.WithUnderstanding(understanding),
		carebot.WithStore(memory.NewStore(
			memory.WithTTL(cfg.Conversations.TTL),
			memory.WithMaxSessions(cfg.Conversations.MaxRetained),
		)),
		carebot.WithMetrics(prometheus.NewRegistry()),
		carebot.WithTimeout(cfg.Backend.Timeout),
		carebot.WithCacheTTL(cfg.Cache.TTL),
		carebot.WithPageSize(cfg.Conversations.PageSize),
	}
	if cfg.Backend.Token != "" {
		opts = append(opts, carebot.WithAuthToken(cfg.Backend.Token))
	}
	if client != nil {
		opts = append(opts,
			carebot.WithLocker(redis.NewLocker(client, redisPrefix)),
			carebot.WithLockTTL(cfg.TurnLockTTL()),
		)
	}

	eng, err := carebot.New(cfg.Backend.BaseURL, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = eng

	logger.Debug("engine ready",
		"base_url", cfg.Backend.BaseURL,
		"distributed_lock", client != nil,
		"lock_ttl", cfg.TurnLockTTL(),
		"remote_understanding", cfg.LLM.APIKey != "")
	return rt, nil
}

// buildUnderstanding loads the pattern rules and, when a model key is
// configured, puts the remote model behind them as fallback.
func buildUnderstanding(cfg *config.Config, logger *slog.Logger) (carebot.Understanding, error) {
	local := patterns.Default()
	if cfg.Rules.Path != "" {
		f, err := os.Open(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		defer f.Close()
		rules, err := patterns.LoadRules(f)
		if err != nil {
			return nil, fmt.Errorf("rules %s: %w", cfg.Rules.Path, err)
		}
		if local, err = patterns.New(rules); err != nil {
			return nil, fmt.Errorf("rules %s: %w", cfg.Rules.Path, err)
		}
	}

	if cfg.LLM.APIKey == "" {
		return local, nil
	}
	remote := openai.New(cfg.LLM.APIKey, cfg.LLM.BaseURL,
		openai.WithModel(cfg.LLM.Model),
		openai.WithRateLimit(cfg.LLM.RPS, 1),
		openai.WithLogger(logger),
	)
	return chain.New(local, remote, logger), nil
}
