package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full client configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Board   BoardConfig   `mapstructure:"board" yaml:"board"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Serve   ServeConfig   `mapstructure:"serve" yaml:"serve"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
}

type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// BreakerConfig controls the circuit breaker around backend calls.
type BreakerConfig struct {
	Failures uint32        `mapstructure:"failures" yaml:"failures"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type BoardConfig struct {
	RefreshDelay time.Duration `mapstructure:"refresh_delay" yaml:"refresh_delay"`
}

// SessionConfig selects where tokens are persisted: file, redis or memory.
type SessionConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url" yaml:"url"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// ServeConfig configures the local board view server.
type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token"`
}

// NotifyConfig names the Redis channel notifications are fanned out to.
// Empty disables publishing.
type NotifyConfig struct {
	Channel string `mapstructure:"channel" yaml:"channel"`
}

const envPrefix = "TASKFLOW"

// Load builds the configuration from defaults, the YAML file at path, a .env
// file in the working directory and TASKFLOW_* environment variables, in
// increasing order of precedence. An empty path means DefaultPath and a
// missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Session.Path = expandHome(cfg.Session.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid api.timeout: must be greater than zero")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("invalid api.max_retries: must not be negative")
	}
	if c.API.RetryBaseDelay < 0 {
		return fmt.Errorf("invalid api.retry_base_delay: must not be negative")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("invalid sync.interval: must be greater than zero")
	}
	if c.Board.RefreshDelay < 0 {
		return fmt.Errorf("invalid board.refresh_delay: must not be negative")
	}
	switch c.Session.Backend {
	case "file":
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the file backend")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis session backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid session.backend %q: must be file, redis or memory", c.Session.Backend)
	}
	if c.Notify.Channel != "" && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when notify.channel is set")
	}
	return nil
}

// Dir is the per-user TaskFlow directory holding config and session files.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskflow"
	}
	return filepath.Join(home, ".taskflow")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
