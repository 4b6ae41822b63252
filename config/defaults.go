package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var defaults = map[string]any{
	"api.base_url":         "http://localhost:8000/api",
	"api.timeout":          "15s",
	"api.retry_base_delay": "1s",
	"api.max_retries":      3,
	"breaker.failures":     5,
	"breaker.timeout":      "10s",
	"sync.interval":        "30s",
	"board.refresh_delay":  "500ms",
	"session.backend":      "file",
	"session.path":         "~/.taskflow/session.json",
	"session.profile":      "default",
	"redis.url":            "",
	"redis.ttl":            "0s",
	"log.level":            "info",
	"log.format":           "text",
	"log.file":             "",
	"serve.addr":           "127.0.0.1:8090",
	"serve.token":          "",
	"notify.channel":       "",
}

var comments = map[string]string{
	"api":     "REST backend. 5xx answers are retried max_retries times, waiting 2^n * retry_base_delay before retry n (2s, 4s, 8s).",
	"breaker": "Circuit breaker: opens after this many consecutive failed attempts.",
	"sync":    "Polling interval of watch and serve.",
	"board":   "Delay before the board is refetched after a confirmed move.",
	"session": "Token storage: file, redis or memory.",
	"redis":   "Shared Redis used by the redis session backend and notification fan-out.",
	"log":     "level: debug|info|warn|error, format: text|json, file enables rotation.",
	"serve":   "Local board view server. A non-empty token requires Authorization: Bearer <token>.",
	"notify":  "Redis channel for notification fan-out, empty disables it.",
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	cfg.Session.Path = expandHome(cfg.Session.Path)
	return &cfg
}

// WriteDefault writes a commented YAML file with every default value.
func WriteDefault(path string) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, section := range sectionOrder() {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: section, HeadComment: comments[section]}
		valNode := &yaml.Node{Kind: yaml.MappingNode}
		for _, key := range sectionKeys(section) {
			var v yaml.Node
			if err := v.Encode(defaults[section+"."+key]); err != nil {
				return fmt.Errorf("encode %s.%s: %w", section, key, err)
			}
			valNode.Content = append(valNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		}
		root.Content = append(root.Content, keyNode, valNode)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: "TaskFlow client configuration", Content: []*yaml.Node{root}}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func sectionOrder() []string {
	return []string{"api", "breaker", "sync", "board", "session", "redis", "log", "serve", "notify"}
}

func sectionKeys(section string) []string {
	var keys []string
	for k := range defaults {
		if rest, ok := strings.CutPrefix(k, section+"."); ok {
			keys = append(keys, rest)
		}
	}
	slices.Sort(keys)
	return keys
}
