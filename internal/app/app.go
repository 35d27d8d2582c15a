// Package app wires a loaded Config into a registered, configured kernel
// and the orchestrator that drives it — the one place that knows about
// every plugin package so cmd/cobot stays thin.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cobot-run/cobot/internal/channels/discord"
	"github.com/cobot-run/cobot/internal/channels/filedrop"
	"github.com/cobot-run/cobot/internal/channels/nostr"
	"github.com/cobot-run/cobot/internal/channels/slack"
	"github.com/cobot-run/cobot/internal/channels/telegram"
	"github.com/cobot-run/cobot/internal/compaction"
	"github.com/cobot-run/cobot/internal/config"
	cobotcontext "github.com/cobot-run/cobot/internal/context"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
	"github.com/cobot-run/cobot/internal/llm/anthropic"
	"github.com/cobot-run/cobot/internal/llm/openaicompat"
	"github.com/cobot-run/cobot/internal/lurker"
	"github.com/cobot-run/cobot/internal/metrics"
	"github.com/cobot-run/cobot/internal/observability"
	"github.com/cobot-run/cobot/internal/orchestrator"
	"github.com/cobot-run/cobot/internal/pairing"
	"github.com/cobot-run/cobot/internal/workspace"
)

// llmProviderPlugin is what buildLLMProvider returns: a kernel-registerable
// plugin that is also usable directly as an llm.Provider once the kernel
// has picked it via GetByCapability.
type llmProviderPlugin interface {
	kernel.Plugin
	llm.Provider
}

// App bundles the built kernel and orchestrator plus the components the
// CLI needs direct access to (pairing, for the pairing subcommands).
type App struct {
	Kernel       *kernel.Kernel
	Orchestrator *orchestrator.Orchestrator
	Pairing      *pairing.Plugin
	Workspace    *workspace.Plugin
}

// Build registers every plugin named in cfg, runs ConfigureAll, and
// returns the assembled App. It does not call StartAll — callers decide
// when lifecycle actually begins.
func Build(ctx context.Context, cfg *config.Config, cliWorkspaceFlag string, logger *slog.Logger, m *metrics.Metrics, tracer *observability.Tracer) (*App, error) {
	k := kernel.New()

	ws := workspace.New(cliWorkspaceFlag, cfg.Workspace.Root)
	if err := k.Register(ws); err != nil {
		return nil, err
	}

	pairingStorePath := cfg.Pairing.StorePath
	if pairingStorePath == "" {
		pairingStorePath = ws.Path("pairing.yaml")
	}
	pairingPlugin := pairing.New(pairingStorePath)
	if err := k.Register(pairingPlugin); err != nil {
		return nil, err
	}

	if err := k.Register(cobotcontext.New("", nil)); err != nil {
		return nil, err
	}

	if cfg.Lurker.Enabled {
		baseDir := cfg.Lurker.BaseDir
		if baseDir == "" {
			baseDir = ws.Path("logs", "lurker")
		}
		if err := k.Register(lurker.New(baseDir, cfg.Lurker.JSONL, cfg.Lurker.Markdown, k)); err != nil {
			return nil, err
		}
	}

	llmPlugin, err := buildLLMProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := k.Register(llmPlugin); err != nil {
		return nil, err
	}

	// Compaction calls back into the chosen llm capability provider to
	// summarize older history; it is handed the provider value directly and
	// declares no kernel dependency on the provider's plugin id.
	compactionPlugin := compaction.New(llmPlugin)
	if err := k.Register(compactionPlugin); err != nil {
		return nil, err
	}

	for _, adapter := range buildChannelAdapters(cfg, ws.Path("media")) {
		if err := k.Register(adapter); err != nil {
			return nil, err
		}
	}

	cfgs := map[string]map[string]any{}
	pairingCfg := map[string]any{
		"skip_channels": cfg.Pairing.SkipChannels,
		"owner_ids":     cfg.Pairing.OwnerIDs,
	}
	if cfg.Pairing.Enabled != nil {
		pairingCfg["enabled"] = *cfg.Pairing.Enabled
	}
	if cfg.Owner.ChannelType != "" && cfg.Owner.SenderID != "" {
		pairingCfg["owner_channel_type"] = cfg.Owner.ChannelType
		pairingCfg["owner_sender_id"] = cfg.Owner.SenderID
		pairingCfg["owner_sender_name"] = cfg.Owner.SenderName
	}
	cfgs["pairing"] = pairingCfg
	if cfg.Lurker.Enabled {
		cfgs["lurker"] = map[string]any{"channels": cfg.Lurker.Channels}
	}
	if err := k.ConfigureAll(ctx, cfgs); err != nil {
		return nil, err
	}

	llmCapable, ok := k.GetByCapability("llm")
	if !ok {
		return nil, fmt.Errorf("app: no plugin registered for the llm capability")
	}
	provider, ok := llmCapable.(llm.Provider)
	if !ok {
		return nil, fmt.Errorf("app: plugin %q does not implement llm.Provider", llmCapable.Meta().ID)
	}

	orch := orchestrator.New(k, provider, map[string]llm.Tool{}, orchestrator.Options{
		PollInterval: cfg.Poll.Interval,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Logger:       logger,
		Metrics:      m,
		Tracer:       tracer,
	})

	return &App{Kernel: k, Orchestrator: orch, Pairing: pairingPlugin, Workspace: ws}, nil
}

// Start runs StartAll on the kernel.
func (a *App) Start(ctx context.Context) error { return a.Kernel.StartAll(ctx) }

// Stop runs StopAll on the kernel.
func (a *App) Stop(ctx context.Context) error { return a.Kernel.StopAll(ctx) }

func buildLLMProvider(cfg *config.Config) (llmProviderPlugin, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.LLM.Anthropic.APIKey, cfg.LLM.Model), nil
	case "openai-compat", "openai":
		return openaicompat.New(cfg.LLM.OpenAICompat.APIKey, cfg.LLM.OpenAICompat.BaseURL, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("app: unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildChannelAdapters(cfg *config.Config, mediaDir string) []kernel.Plugin {
	var adapters []kernel.Plugin

	if cfg.Channels.Telegram.Enabled {
		if a, err := telegram.New(cfg.Channels.Telegram.BotToken, cfg.Channels.Telegram.PollTimeout, mediaDir); err == nil {
			adapters = append(adapters, a)
		}
	}
	if cfg.Channels.Nostr.Enabled {
		if a, err := nostr.New(cfg.Channels.Nostr.PrivateKey, cfg.Channels.Nostr.Relays, cfg.Channels.Nostr.SinceMinutes); err == nil {
			adapters = append(adapters, a)
		}
	}
	if cfg.Channels.Filedrop.Enabled {
		dir := cfg.Channels.Filedrop.Dir
		if dir == "" {
			dir = "/tmp/filedrop"
		}
		adapters = append(adapters, filedrop.New(dir, "agent"))
	}
	if cfg.Channels.Discord.Enabled {
		if a, err := discord.New(cfg.Channels.Discord.BotToken); err == nil {
			adapters = append(adapters, a)
		}
	}
	if cfg.Channels.Slack.Enabled {
		adapters = append(adapters, slack.New(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.AppToken))
	}

	return adapters
}
