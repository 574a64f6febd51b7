// Package config loads process configuration once at startup.
//
// Precedence, lowest first: built-in defaults, an optional YAML file,
// CAREBOT_* environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aretw0/carebot/internal/logging"
	"github.com/aretw0/carebot/pkg/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CAREBOT_BACKEND_BASE_URL.
const EnvPrefix = "CAREBOT"

type Config struct {
	Backend       BackendConfig       `mapstructure:"backend"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Conversations ConversationsConfig `mapstructure:"conversations"`
	Redis         RedisConfig         `mapstructure:"redis"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Rules         RulesConfig         `mapstructure:"rules"`
}

// BackendConfig points at the patient-records service.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ConversationsConfig struct {
	MaxRetained int           `mapstructure:"max_retained"`
	TTL         time.Duration `mapstructure:"ttl"`
	PageSize    int           `mapstructure:"page_size"`
}

// RedisConfig enables the distributed turn lock when URL is set.
// LockTTL zero derives the lease from the backend timeout, see TurnLockTTL.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// LLMConfig enables the remote understanding fallback when APIKey is set.
type LLMConfig struct {
	APIKey  string  `mapstructure:"api_key"`
	BaseURL string  `mapstructure:"base_url"`
	Model   string  `mapstructure:"model"`
	RPS     float64 `mapstructure:"rps"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// RulesConfig overrides the embedded pattern rules.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

var defaults = map[string]any{
	"backend.base_url":           "http://localhost:8000",
	"backend.token":              "",
	"backend.timeout":            10 * time.Second,
	"cache.ttl":                  5 * time.Minute,
	"conversations.max_retained": 1000,
	"conversations.ttl":          24 * time.Hour,
	"conversations.page_size":    5,
	"redis.url":                  "",
	"redis.lock_ttl":             time.Duration(0),
	"llm.api_key":                "",
	"llm.base_url":               "",
	"llm.model":                  "gpt-4o-mini",
	"llm.rps":                    1.0,
	"log.level":                  "info",
	"log.format":                 "text",
	"http.addr":                  ":8080",
	"rules.path":                 "",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":   "backend.base_url",
	"addr":       "http.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"redis-url":  "redis.url",
	"rules":      "rules.path",
}

// Load reads the configuration. path may be empty; flags may be nil.
// Only flags that were registered are bound.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Conversations.TTL < 0 {
		errs = append(errs, errors.New("conversations.ttl must not be negative"))
	}
	if c.Conversations.PageSize <= 0 {
		errs = append(errs, errors.New("conversations.page_size must be positive"))
	}
	if c.Redis.LockTTL < 0 {
		errs = append(errs, errors.New("redis.lock_ttl must not be negative"))
	}
	if c.LLM.RPS < 0 {
		errs = append(errs, errors.New("llm.rps must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// TurnLockTTL is the lease of the distributed turn lock. Unless set, it
// covers a turn making two backend calls that both use every attempt and the
// full retry schedule.
func (c *Config) TurnLockTTL() time.Duration {
	if c.Redis.LockTTL > 0 {
		return c.Redis.LockTTL
	}
	call := time.Duration(transport.MaxAttempts) * c.Backend.Timeout
	for _, d := range transport.DefaultBackoff {
		call += d
	}
	return 2 * call
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() *slog.Logger {
	level := logging.ParseLevel(c.Log.Level)
	if c.Log.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}
