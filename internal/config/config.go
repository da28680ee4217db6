// Package config loads the service's layered YAML+env configuration:
// a YAML file provides the base, and a small set of environment variables
// override secrets and operational toggles on top of it.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Storage    StorageConfig    `yaml:"storage"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Tooling    ToolingConfig    `yaml:"tooling"`
	History    HistoryConfig    `yaml:"history"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Chat       ChatConfig       `yaml:"chat"`
}

type ServerConfig struct {
	Addr   string `yaml:"addr,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type EvaluationConfig struct {
	Trials       int           `yaml:"trials"`
	Threshold    float64       `yaml:"threshold"`
	OutputFormat string        `yaml:"output_format,omitempty"`
	Concurrency  int           `yaml:"concurrency,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // ledger SQLite file path
}

// DiscoveryConfig configures where the plugin-backed test provider looks
// for compiled test_*.so artifacts, and which roots are trusted enough to
// skip the copy-before-open reload step (see discovery.PluginProvider).
type DiscoveryConfig struct {
	PluginRoots     []string `yaml:"plugin_roots,omitempty"`
	ExcludeFromCopy []string `yaml:"exclude_from_copy,omitempty"`
}

// ToolingConfig configures the plugin roots scanned for tool-bearing
// modules, distinct from the test-case plugin roots in DiscoveryConfig.
type ToolingConfig struct {
	PluginRoots []string `yaml:"plugin_roots,omitempty"`
}

// HistoryConfig points at the directory the history store writes its
// one-file-per-qualified-test-name JSONL records under.
type HistoryConfig struct {
	RootDir string `yaml:"root_dir,omitempty"`
}

// EventBusConfig bounds the per-subscriber queue depth of the job event
// bus; a subscriber slower than this has its pending deltas coalesced to
// the latest state per job rather than blocking publishers.
type EventBusConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer,omitempty"`
}

// ChatConfig holds the chat agent/model catalog settings. Load fills
// DefaultAgent from LLM.DefaultProvider when blank; the chat relay does not
// read DefaultAgent, and a conversation is always created with an explicit
// agent_id.
type ChatConfig struct {
	DefaultAgent string   `yaml:"default_agent,omitempty"`
	Models       []string `yaml:"models,omitempty"`
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}

	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	} else if v := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.LLM.Providers["openai"]
		p.APIKey = v
		cfg.LLM.Providers["openai"] = p
	}

	if v := strings.TrimSpace(os.Getenv("AGENTDECK_API_KEY")); v != "" {
		cfg.Server.APIKey = v
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Evaluation.Concurrency <= 0 {
		cfg.Evaluation.Concurrency = runtime.NumCPU()
	}

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "data/ledger.db"
	}

	if strings.TrimSpace(cfg.History.RootDir) == "" {
		cfg.History.RootDir = "data/history"
	}

	if cfg.EventBus.SubscriberBuffer <= 0 {
		cfg.EventBus.SubscriberBuffer = 64
	}

	if strings.TrimSpace(cfg.Chat.DefaultAgent) == "" {
		cfg.Chat.DefaultAgent = cfg.LLM.DefaultProvider
	}

	return &cfg, nil
}

// DisableAuth reports whether AGENTDECK_DISABLE_AUTH=true was set,
// allowing the protocol surface to start without the X-API-Key gate.
func DisableAuth() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("AGENTDECK_DISABLE_AUTH")), "true")
}
