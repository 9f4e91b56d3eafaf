// Command pitchdrill is the entry point for the PitchDrill sales training bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/leadamp/pitchdrill/internal/config"
	discordbot "github.com/leadamp/pitchdrill/internal/discord"
	"github.com/leadamp/pitchdrill/internal/discord/commands"
	"github.com/leadamp/pitchdrill/internal/health"
	"github.com/leadamp/pitchdrill/internal/history"
	"github.com/leadamp/pitchdrill/internal/observe"
	"github.com/leadamp/pitchdrill/internal/practice"
	"github.com/leadamp/pitchdrill/internal/resilience"
	"github.com/leadamp/pitchdrill/internal/scenario"
	"github.com/leadamp/pitchdrill/internal/scoring"
	"github.com/leadamp/pitchdrill/internal/voice"
	"github.com/leadamp/pitchdrill/pkg/provider/llm"
	"github.com/leadamp/pitchdrill/pkg/provider/llm/anyllm"
	"github.com/leadamp/pitchdrill/pkg/provider/stt"
	sttopenai "github.com/leadamp/pitchdrill/pkg/provider/stt/openai"
	"github.com/leadamp/pitchdrill/pkg/provider/tts"
	"github.com/leadamp/pitchdrill/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/leadamp/pitchdrill/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pitchdrill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pitchdrill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("pitchdrill starting",
		"config", *configPath,
		"scenarios", cfg.ScenariosPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Scenario catalog ──────────────────────────────────────────────────────
	catalog, err := scenario.Load(cfg.ScenariosPath)
	if err != nil {
		slog.Error("failed to load scenario catalog", "err", err)
		return 1
	}
	slog.Info("scenario catalog loaded",
		"routes", len(catalog.RouteKeys()),
		"industries", len(catalog.IndustryKeys()),
		"difficulties", len(catalog.DifficultyKeys()),
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.LLM == nil {
		slog.Error("no usable LLM provider configured", "name", cfg.Providers.LLM.Name)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "pitchdrill"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, cfg.Discord)
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	// ── Session managers ──────────────────────────────────────────────────────
	scorer := scoring.New(providers.LLM, cfg.OrgName)
	textMgr := practice.NewManager(catalog, providers.LLM, scorer, cfg.OrgName)

	var voiceMgr *voice.Manager
	if providers.STT != nil && providers.TTS != nil {
		voiceMgr = voice.NewManager(voice.ManagerConfig{
			Catalog: catalog,
			LLM:     providers.LLM,
			STT:     providers.STT,
			TTS:     providers.TTS,
			Voice: tts.Voice{
				ID:   cfg.Providers.TTS.VoiceID,
				Name: cfg.Providers.TTS.VoiceName,
			},
			Scorer:  scorer,
			OrgName: cfg.OrgName,
			Join:    voice.SessionJoiner(bot.Session()),
		}, voice.WithNotify(func(channelID, content string) {
			if _, err := bot.Session().ChannelMessageSend(channelID, content); err != nil {
				slog.Warn("failed to post voice notice", "channel_id", channelID, "err", err)
			}
		}))
	}

	var hist *history.Store
	if cfg.HistoryPath != "" {
		hist = history.NewStore(cfg.HistoryPath)
		slog.Info("session history enabled", "path", cfg.HistoryPath)
	}

	// ── Command handlers ──────────────────────────────────────────────────────
	commands.NewPracticeCommands(bot, textMgr, voiceMgr, catalog, hist, cfg.Discord.ReportChannelID)
	if voiceMgr != nil {
		commands.NewVoiceCommands(bot, voiceMgr, catalog, hist, cfg.Discord.ReportChannelID)
	}
	relay := commands.NewMessageRelay(textMgr)
	bot.Session().AddHandler(relay.Handle)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, voiceMgr != nil)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bot.Run(runCtx)
	})

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(health.Check{
			Name: "discord",
			Probe: func(context.Context) error {
				if bot.Session().State.User == nil {
					return errors.New("gateway not ready")
				}
				return nil
			},
		}).Register(mux)

		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The hosted backends all share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.TTSEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.TTSEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// providerSet holds the instantiated pipeline providers.
type providerSet struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// buildProviders instantiates all providers named in cfg using the registry.
// When llm_fallbacks are configured the LLM is wrapped in a failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if ps.LLM != nil && len(cfg.LLMFallbacks) > 0 {
		fallback := resilience.NewLLMFallback(ps.LLM, cfg.Providers.LLM.Name, resilience.BreakerConfig{})
		for _, entry := range cfg.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				slog.Warn("skipping llm fallback", "name", entry.Name, "err", err)
				continue
			}
			fallback.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name)
		}
		ps.LLM = fallback
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, voiceEnabled bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       PitchDrill — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if voiceEnabled {
		fmt.Printf("║  Voice practice  : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Voice practice  : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  LLM fallbacks   : %-19d ║\n", len(cfg.LLMFallbacks))
	fmt.Printf("║  Org name        : %-19s ║\n", truncate(cfg.OrgName))
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", truncate(cfg.Server.MetricsAddr))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
