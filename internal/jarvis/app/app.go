// Package app wires all Jarvis subsystems: configuration, storage, the
// model backend, the device, the skills, the agentic loop and the channels
// (HTTP, Matrix, voice, terminal) that feed it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/common/version"
	"github.com/bdobrica/jarvis/internal/jarvis/agent"
	"github.com/bdobrica/jarvis/internal/jarvis/config"
	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/executor"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/learning"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/matrix"
	"github.com/bdobrica/jarvis/internal/jarvis/memory"
	"github.com/bdobrica/jarvis/internal/jarvis/notifications"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/policy"
	"github.com/bdobrica/jarvis/internal/jarvis/profile"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
	"github.com/bdobrica/jarvis/internal/jarvis/server"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
	"github.com/bdobrica/jarvis/internal/jarvis/skillset"
	"github.com/bdobrica/jarvis/internal/jarvis/speech"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
	"github.com/bdobrica/jarvis/internal/jarvis/vision"
)

// Overrides replaces external collaborators, mainly for tests. Nil fields
// are built from the configuration.
type Overrides struct {
	Provider    llm.Provider
	Device      device.Runner
	Searcher    search.Searcher
	Transcriber speech.Transcriber
	// Registry receives the metrics and backs /metrics. Nil means the
	// default Prometheus registry.
	Registry *prometheus.Registry
}

// App is the assembled assistant.
type App struct {
	cfg         *config.Config
	db          *store.Store
	profiles    *profile.Loader
	policyEng   *policy.Engine
	device      device.Runner
	registry    *skills.Registry
	loop        *agent.Loop
	gatherer    prometheus.Gatherer
	transcriber speech.Transcriber
	scanner     *notifications.Scanner
}

// New builds every subsystem. Configuration or storage problems are returned
// before any conversation can start.
func New(cfg *config.Config, ov Overrides) (*App, error) {
	for _, p := range []string{cfg.Data.Database, cfg.Data.FactsFile} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	db, err := store.New(cfg.Data.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	a, err := build(cfg, ov, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, ov Overrides, db *store.Store) (*App, error) {
	profiles := profile.NewLoader()
	if cfg.Agent.ProfilePath != "" {
		if err := profiles.LoadFile(cfg.Agent.ProfilePath); err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
	}
	policyEng := policy.New(profiles)

	provider := ov.Provider
	if provider == nil {
		if err := cfg.RequireLLM(); err != nil {
			return nil, err
		}
		provider = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
			Retry:   retryConfig(cfg.LLM.MaxRetries),
		})
	}

	dev := ov.Device
	if dev == nil {
		dev = device.NewADB(cfg.Device.ADBPath, cfg.Device.Serial)
	}

	searcher := ov.Searcher
	if searcher == nil {
		searcher = buildSearcher(cfg.Search)
	}

	transcriber := ov.Transcriber
	if transcriber == nil && cfg.LLM.APIKey != "" {
		transcriber = speech.NewWhisper(speech.WhisperConfig{
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.Speech.Model,
			Language: cfg.Speech.Language,
			Timeout:  cfg.LLM.Timeout,
			Retry:    retryConfig(cfg.LLM.MaxRetries),
		})
	}

	var metrics *observability.Metrics
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if ov.Registry != nil {
		metrics = observability.MustNewMetrics(ov.Registry)
		gatherer = ov.Registry
	} else {
		metrics = observability.DefaultMetrics()
	}

	facts := memory.NewFactStore(cfg.Data.FactsFile, slog.Default())

	b := skills.NewBuilder()
	if err := skillset.Register(b, skillset.Deps{
		Device:        dev,
		Search:        searcher,
		Vision:        vision.NewAnalyzer(provider, dev, cfg.Vision.Model),
		Facts:         facts,
		Apps:          db,
		Notifications: db,
		Research:      learning.NewResearcher(searcher, provider, cfg.LLM.Model),
	}); err != nil {
		return nil, fmt.Errorf("register skills: %w", err)
	}
	registry := b.Build()

	exec := executor.New(registry, executor.Options{
		Policy:          policyEng,
		Observer:        db,
		Metrics:         metrics,
		RepairArguments: cfg.Agent.RepairArguments,
		SkillTimeout:    cfg.Agent.SkillTimeout,
		MaxParallel:     cfg.Agent.MaxParallel,
	})

	gw := gateway.New(provider, facts, profiles, gateway.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		SearchTools: searchTools(registry),
	}, metrics)

	loop := agent.New(gw, exec, func() []llm.ToolDefinition {
		return registry.Definitions(policyEng.Allowed)
	}, agent.Options{
		MaxRounds:   cfg.Agent.MaxRounds,
		MaxSearches: cfg.Agent.MaxSearches,
		Metrics:     metrics,
		OnState: func(ctx context.Context, s agent.State) {
			observability.WithTrace(ctx).Debug("state", "state", s.String())
		},
	})

	scanner := notifications.NewScanner(
		notifications.DumpsysSource{Runner: dev},
		notifications.NewLLMFilter(provider, cfg.LLM.Model),
		db,
	)

	return &App{
		cfg:         cfg,
		db:          db,
		profiles:    profiles,
		policyEng:   policyEng,
		device:      dev,
		registry:    registry,
		loop:        loop,
		gatherer:    gatherer,
		transcriber: transcriber,
		scanner:     scanner,
	}, nil
}

func retryConfig(attempts int) retry.Config {
	c := retry.DefaultConfig
	c.MaxAttempts = attempts
	return c
}

// buildSearcher picks the web search backend. "auto" prefers SerpApi when a
// key is configured and falls back to DuckDuckGo.
func buildSearcher(cfg config.SearchConfig) search.Searcher {
	ddg := search.NewDuckDuckGo("", cfg.Timeout)
	var s search.Searcher
	switch cfg.Provider {
	case "serpapi":
		s = search.NewSerpAPI(cfg.SerpAPIKey, "", cfg.Timeout)
	case "duckduckgo":
		s = ddg
	default:
		if cfg.SerpAPIKey != "" {
			s = search.Fallback{search.NewSerpAPI(cfg.SerpAPIKey, "", cfg.Timeout), ddg}
		} else {
			s = ddg
		}
	}
	if cfg.CacheSize > 0 {
		s = search.NewCached(s, cfg.CacheSize, cfg.CacheTTL)
	}
	return s
}

func searchTools(reg *skills.Registry) []string {
	var names []string
	for _, n := range reg.Names() {
		if s, ok := reg.Resolve(n); ok && s.HasTag(skills.TagSearch) {
			names = append(names, n)
		}
	}
	return names
}

// Loop returns the agentic loop.
func (a *App) Loop() *agent.Loop { return a.loop }

// Store returns the audit store.
func (a *App) Store() *store.Store { return a.db }

// Skills returns the names of the skills the model is currently offered.
func (a *App) Skills() []string {
	var names []string
	for _, n := range a.registry.Names() {
		if a.policyEng.Allowed(n) {
			names = append(names, n)
		}
	}
	return names
}

// Definitions returns the tool definitions the model is currently offered.
func (a *App) Definitions() []llm.ToolDefinition {
	return a.registry.Definitions(a.policyEng.Allowed)
}

// Close releases the store.
func (a *App) Close() error {
	return a.db.Close()
}

// SyncApps refreshes the app catalog from the device's installed packages.
func (a *App) SyncApps(ctx context.Context) (int, error) {
	apps, err := device.ListPackages(ctx, a.device)
	if err != nil {
		return 0, fmt.Errorf("sync apps: %w", err)
	}
	if err := a.db.ReplaceApps(apps); err != nil {
		return 0, fmt.Errorf("sync apps: %w", err)
	}
	slog.Info("app catalog synced", "apps", len(apps))
	return len(apps), nil
}

// ScanNotifications runs one notification scan.
func (a *App) ScanNotifications(ctx context.Context) (notifications.Result, error) {
	return a.scanner.Scan(ctx)
}

// Chat runs a continuous text conversation over in and out until in is
// exhausted or ctx is cancelled.
func (a *App) Chat(ctx context.Context, in io.Reader, out io.Writer) error {
	return a.converse(ctx, store.ChannelCLI,
		speech.NewLineListener(in, out),
		speech.NewWriterSpeaker(out, "Jarvis"),
	)
}

// Listen runs the voice loop: record, transcribe, respond, speak.
func (a *App) Listen(ctx context.Context) error {
	if len(a.cfg.Speech.RecordCommand) == 0 {
		return errors.New("listen: speech.record_command is not configured")
	}
	if a.transcriber == nil {
		return errors.New("listen: no transcriber (set " + config.EnvPrefix + "LLM__API_KEY)")
	}
	listener := &speech.RecorderListener{
		Command:     a.cfg.Speech.RecordCommand,
		Transcriber: a.transcriber,
	}
	speakers := speech.Speakers{speech.NewWriterSpeaker(os.Stdout, "Jarvis")}
	if len(a.cfg.Speech.TTSCommand) > 0 {
		speakers = append(speakers, speech.CommandSpeaker{Command: a.cfg.Speech.TTSCommand})
	}
	return a.converse(ctx, store.ChannelVoice, listener, speakers)
}

func (a *App) converse(ctx context.Context, channel string, l agent.Listener, s agent.Speaker) error {
	sess := a.loop.NewSession().OnTurn(a.turnRecorder(channel))
	slog.Info("conversation started", "channel", channel, "session_id", sess.ID())
	return sess.Run(ctx, l, s)
}

// turnRecorder writes each completed turn to the audit log.
func (a *App) turnRecorder(channel string) agent.TurnFunc {
	return func(ctx context.Context, text string, reply agent.Reply, elapsed time.Duration) {
		log := observability.WithTrace(ctx)
		id, err := a.db.LogTurn(reply.TraceID, trace.SessionFromContext(ctx), channel, text)
		if err != nil {
			log.Warn("could not log turn", "err", err)
			return
		}
		if err := a.db.FinishTurn(id, reply.Outcome(), reply.Rounds, reply.ToolCalls, reply.Text, elapsed); err != nil {
			log.Warn("could not finish turn", "err", err)
		}
	}
}

// Serve starts the HTTP server, the optional Matrix channel and the
// notification scanner, then blocks until ctx is cancelled or a shutdown
// signal arrives. SIGHUP reloads the assistant profile.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Device.SyncAppsOnStart {
		if _, err := a.SyncApps(ctx); err != nil {
			slog.Warn("initial app sync failed; open_app will use the stored catalog", "err", err)
		}
	}

	srv := server.New(a.cfg.Server.Addr, a.serverHandlers())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer srv.Stop()

	if a.cfg.Matrix.Homeserver != "" {
		mx, err := matrix.New(matrix.Config{
			Homeserver:  a.cfg.Matrix.Homeserver,
			UserID:      a.cfg.Matrix.UserID,
			AccessToken: a.cfg.Matrix.AccessToken,
		})
		if err != nil {
			return fmt.Errorf("init matrix: %w", err)
		}
		bridge := matrix.NewBridge(a.loop, mx, a.db, a.cfg.Matrix.AllowedSenders)
		if err := mx.Start(ctx, a.cfg.Matrix.Rooms, bridge.HandleEvent); err != nil {
			return fmt.Errorf("start matrix: %w", err)
		}
		defer bridge.Wait()
		defer mx.Stop()
	}

	if a.cfg.Notifications.Enabled {
		go a.scanner.Run(ctx, a.cfg.Notifications.Interval)
	}

	slog.Info("Jarvis started",
		"version", version.Version,
		"addr", a.cfg.Server.Addr,
		"skills", a.registry.Len(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := a.profiles.Reload(); err != nil {
					slog.Error("profile reload failed; keeping current profile", "err", err)
				}
				continue
			}
			slog.Info("received shutdown signal", "signal", sig.String())
			return nil
		}
	}
}

func (a *App) serverHandlers() server.Handlers {
	return server.Handlers{
		Agent:          a.loop,
		Transcriber:    a.transcriber,
		Turns:          a.db,
		Gatherer:       a.gatherer,
		Version:        version.Version,
		StartedAt:      time.Now(),
		Token:          a.cfg.Server.Token,
		Skills:         a.Skills,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		SessionTTL:     a.cfg.Server.SessionTTL,
	}
}
