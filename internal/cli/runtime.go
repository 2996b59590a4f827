package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gzhole/shopbot/internal/agent"
	"github.com/gzhole/shopbot/internal/config"
	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/gzhole/shopbot/internal/history"
	"github.com/gzhole/shopbot/internal/llm"
	"github.com/gzhole/shopbot/internal/logger"
	"github.com/gzhole/shopbot/internal/redact"
	"github.com/gzhole/shopbot/internal/sandbox"
	"github.com/gzhole/shopbot/internal/store"
	"github.com/gzhole/shopbot/internal/tools"
)

// runtime is everything a conversational command needs, built from config.
type runtime struct {
	cfg        *config.Config
	log        *slog.Logger
	store      *store.Store
	audit      *logger.AuditLogger
	engine     *guardrail.Engine
	dispatcher *tools.Dispatcher
	agent      *agent.Orchestrator
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		PolicyPath: policyPath,
		LogPath:    logPath,
		Mode:       mode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Level.Set(logger.ParseLevel(cfg.Log.Level))
	if verbose {
		logger.Level.Set(slog.LevelDebug)
	}
	return cfg, logger.NewSlog(os.Stderr, cfg.Log.Journal), nil
}

// loadEngine builds the guardrail engine from the policy file plus the
// enabled packs.
func loadEngine(cfg *config.Config) (*guardrail.Engine, []guardrail.PackInfo, error) {
	pol, err := guardrail.Load(cfg.PolicyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load policy: %w", err)
	}
	pol, infos, err := guardrail.LoadPacks(cfg.PacksDir, pol)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load packs: %w", err)
	}
	engine, err := guardrail.NewEngine(pol)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create guardrail engine: %w", err)
	}
	return engine, infos, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	driver, err := store.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", redact.RedactDSN(cfg.Database.DSN), err)
	}
	return s, nil
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log}

	toolMode, err := tools.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	if rt.engine, _, err = loadEngine(cfg); err != nil {
		return nil, err
	}

	if rt.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if _, err := rt.store.Seed(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	if rt.audit, err = logger.New(cfg.LogPath); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	runner, err := sandbox.NewRunner(cfg.Tools.WorkDir,
		sandbox.WithTimeout(cfg.Tools.CommandTimeout),
		sandbox.WithOutputLimit(cfg.Tools.CommandOutputLimit),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.dispatcher = tools.NewDispatcher(tools.Config{
		Mode:           toolMode,
		SQLRowLimit:    cfg.Tools.SQLRowLimit,
		SQLTimeout:     cfg.Tools.SQLTimeout,
		CommandTimeout: cfg.Tools.CommandTimeout,
	}, rt.engine, tools.StoreBackends(rt.store, runner), rt.audit, log)

	deps := agent.Deps{
		Tools:   rt.dispatcher,
		Users:   rt.store,
		Log:     rt.store,
		History: history.NewManager(history.NewMemoryStore(0), cfg.History.MaxLength),
		Logger:  log,
	}
	model, err := llm.NewOpenAI(llm.Config{
		Name:    cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Timeout: cfg.Model.Timeout,
	})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		log.Warn("no model API key configured, assistant unavailable")
	case err != nil:
		rt.Close()
		return nil, err
	default:
		deps.Model = model
	}

	rt.agent, err = agent.New(agent.Config{
		BotName:      cfg.Bot.Name,
		SystemPrompt: cfg.Bot.SystemPrompt,
		Greeting:     cfg.Bot.Greeting,
		Model:        cfg.Model.Name,
		ModelTimeout: cfg.Model.Timeout,
	}, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}

	log.Debug("runtime ready", "mode", toolMode, "driver", rt.store.Driver(),
		"model", cfg.Model.Name, "available", rt.agent.Available())
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.audit != nil {
		_ = rt.audit.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
}
