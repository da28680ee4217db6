package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stellarlinkco/agentdeck/api"
	"github.com/stellarlinkco/agentdeck/internal/agentref"
	"github.com/stellarlinkco/agentdeck/internal/chat"
	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/config"
	"github.com/stellarlinkco/agentdeck/internal/discovery"
	"github.com/stellarlinkco/agentdeck/internal/eventbus"
	"github.com/stellarlinkco/agentdeck/internal/history"
	"github.com/stellarlinkco/agentdeck/internal/jobmanager"
	"github.com/stellarlinkco/agentdeck/internal/ledger"
	"github.com/stellarlinkco/agentdeck/internal/llm"
	"github.com/stellarlinkco/agentdeck/internal/pipeline"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr

	loadConfig     = config.Load
	newLLMRegistry = llm.NewRegistryFromConfig
	newDiscovery   = defaultDiscoveryProvider
	newHistory     = history.New
	newEventBus    = eventbus.New
	newToolingReg  = tooling.NewRegistry
	newJobManager  = jobmanager.New
	newLedgerStore = openLedgerStore
	newChatRelay   = chat.New
	newServer      = api.NewServer
	runServer      = (*api.Server).Run
)

func main() {
	osExit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(stderrWriter)

	var addr string
	var configPath string
	fs.StringVar(&addr, "addr", "", "listen address (overrides config)")
	fs.StringVar(&configPath, "config", config.DefaultPath, "path to config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	llmRegistry, err := newLLMRegistry(cfg)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	ledgerStore, err := newLedgerStore(cfg)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}
	defer func() { _ = ledgerStore.Close() }()

	histStore, err := newHistory(cfg.History.RootDir)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ledgerStore.Consume(ctx, histStore.Feed(), func(err error) {
		fmt.Fprintln(stderrWriter, "ledger: consume:", err)
	})

	disc := newDiscovery(cfg)

	toolReg, err := newToolingReg(ctx, nil)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	provider, err := defaultProvider(cfg, llmRegistry)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	agent := agentref.New(provider, toolReg, "")
	validator := agentref.NewValidator(provider)
	exec := pipeline.New(agent, validator)

	bus := newEventBus(cfg.EventBus.SubscriberBuffer)

	jobs := newJobManager(disc, histStore, bus, exec, jobmanager.Config{Workers: cfg.Evaluation.Concurrency})
	defer jobs.Close()

	factory := chatAgentFactory(llmRegistry, toolReg)
	relay := newChatRelay(factory, chatAgentModels(cfg))

	srv, err := newServer(api.Deps{
		Config:  cfg,
		Jobs:    jobs,
		Bus:     bus,
		Disc:    disc,
		History: histStore,
		Ledger:  ledgerStore,
		Tools:   toolReg,
		Relay:   relay,
		Version: "dev",
	})
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	if err := runServer(srv, addr); err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	return 0
}

func defaultDiscoveryProvider(cfg *config.Config) jobmanager.DiscoverySource {
	if cfg == nil || len(cfg.Discovery.PluginRoots) == 0 {
		return discovery.NewStaticProvider()
	}
	return discovery.NewPluginProvider(cfg.Discovery.PluginRoots, cfg.Discovery.ExcludeFromCopy, os.TempDir())
}

func openLedgerStore(cfg *config.Config) (*ledger.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ledger: missing config")
	}

	storageType := strings.ToLower(strings.TrimSpace(cfg.Storage.Type))
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			path = "data/ledger.db"
		}
		return ledgerNewStore(path)
	case "memory":
		return ledgerNewStore(":memory:")
	default:
		return nil, fmt.Errorf("ledger: unsupported type %q", storageType)
	}
}

var ledgerNewStore = ledger.NewStore

// defaultProvider resolves the configured default LLM provider by name
// ("claude" when none is configured); a name missing from the registry is
// an error.
func defaultProvider(cfg *config.Config, reg *llm.Registry) (llm.Provider, error) {
	name := strings.TrimSpace(cfg.LLM.DefaultProvider)
	if name == "" {
		name = "claude"
	}
	if p, ok := reg.Get(name); ok {
		return p, nil
	}
	return nil, fmt.Errorf("llm: default provider %q not configured", name)
}

// chatAgentFactory builds an AgentFactory that resolves the requested
// agentID against the LLM registry and wraps the provider in a fresh
// agentref.Agent for the turn, per the relay's "no caching across turns"
// contract.
func chatAgentFactory(reg *llm.Registry, tools agentref.ToolExecutor) chat.AgentFactory {
	return func(ctx context.Context, agentID, model string) (collab.StreamingAgent, error) {
		provider, ok := reg.Get(agentID)
		if !ok {
			return nil, fmt.Errorf("chat: unknown agent %q", agentID)
		}
		return agentref.New(provider, tools, ""), nil
	}
}

// chatAgentModels builds the agentID->models catalog the relay's
// ListAgents/GetAgent endpoints serve, from the configured provider set
// and the chat section's model list.
func chatAgentModels(cfg *config.Config) map[string][]string {
	out := make(map[string][]string)
	for name, pcfg := range cfg.LLM.Providers {
		models := append([]string(nil), cfg.Chat.Models...)
		if len(models) == 0 && strings.TrimSpace(pcfg.Model) != "" {
			models = []string{pcfg.Model}
		}
		out[strings.ToLower(strings.TrimSpace(name))] = models
	}
	return out
}
