package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/labelbot/internal/bot"
	"github.com/xaenox/labelbot/internal/drift"
	"github.com/xaenox/labelbot/internal/engine"
	"github.com/xaenox/labelbot/internal/reconcile"
	"github.com/xaenox/labelbot/internal/remote"
	"github.com/xaenox/labelbot/internal/storage"
	"github.com/xaenox/labelbot/pkg/config"
)

var scopes = []string{engine.ScopeActivity, engine.ScopeValue, engine.ScopeEnergy}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := os.Getenv("LABELBOT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Info("Config file not found, using defaults", zap.String("path", configPath))
		configPath = ""
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}
	if l, err := newLogger(cfg.Log); err != nil {
		logger.Warn("Invalid log settings, keeping defaults", zap.Error(err))
	} else {
		logger = l
		defer logger.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	stores := make(map[string]storage.Storage, len(scopes))
	switch cfg.Storage.Driver {
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Storage.SQLitePath))
		db, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		defer db.Close()
		for _, scope := range scopes {
			stores[scope] = db.Scope(scope)
		}
	default:
		logger.Info("Using in-memory storage")
		for _, scope := range scopes {
			stores[scope] = storage.NewMemoryStorage()
		}
	}

	// Initialize remote store
	remotes := make(map[string]remote.Store, len(scopes))
	switch cfg.Remote.Driver {
	case "postgres":
		logger.Info("Using PostgreSQL remote store")
		pg, err := remote.OpenPostgres(cfg.Remote.Postgres.Database())
		if err != nil {
			logger.Fatal("Failed to connect to remote store", zap.Error(err))
		}
		defer pg.Close()
		for _, scope := range scopes {
			remotes[scope] = pg.Scope(cfg.Remote.UserID, scope)
		}
	case "redis":
		logger.Info("Using Redis remote store")
		client, err := remote.NewRedisClient(cfg.Remote.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to remote store", zap.Error(err))
		}
		defer client.Close()
		for _, scope := range scopes {
			remotes[scope] = remote.NewRedisStore(client, cfg.Remote.UserID, scope)
		}
	default:
		logger.Info("Remote sync disabled")
		for _, scope := range scopes {
			remotes[scope] = remote.Nop{}
		}
	}

	opts := make(map[string]engine.Options, len(scopes))
	deps := make(map[string]engine.Deps, len(scopes))
	for _, scope := range scopes {
		ec := cfg.Engines[scope]
		opts[scope] = engine.Options{
			Scope:      scope,
			Thresholds: ec.Thresholds(),
			Stoplist:   ec.Stoplist,
			Drift:      ec.Drift,
			DriftTTL:   cfg.Drift.TTL,
		}

		dep := engine.Deps{Store: stores[scope], Logger: logger}
		if cfg.Remote.Driver != "none" {
			remotes[scope] = remote.NewBreakerStore("remote-"+scope, remotes[scope], cfg.Remote.Breaker.Breaker(), logger)
			pusher := reconcile.NewPusher(scope, remotes[scope], cfg.Remote.QueueSize, logger)
			pusher.Start(ctx, cfg.Remote.Workers)
			defer pusher.Close()
			dep.Push = pusher
		}
		deps[scope] = dep
	}

	engines, err := engine.NewSet(opts, deps)
	if err != nil {
		logger.Fatal("Failed to create engines", zap.Error(err))
	}

	// Pull remote state once before serving
	if cfg.Remote.Driver != "none" {
		session := reconcile.NewSession()
		learners := map[string]reconcile.Learner{
			engine.ScopeActivity: engines.Activity.Learner(),
			engine.ScopeValue:    engines.Value.Learner(),
			engine.ScopeEnergy:   engines.Energy.Learner(),
		}
		for _, scope := range scopes {
			merger := reconcile.NewMerger(scope, stores[scope], remotes[scope], learners[scope], logger)
			if _, _, err := merger.SyncOnce(ctx, session); err != nil {
				logger.Error("Startup sync failed, continuing with local state",
					zap.Error(err),
					zap.String("scope", scope))
			}
		}
	}

	// Schedule edit log pruning
	logs := make(map[string]storage.EditLog)
	for _, scope := range scopes {
		if opts[scope].Drift {
			logs[scope] = stores[scope]
		}
	}
	if len(logs) > 0 {
		pruner, err := drift.NewPruner(cfg.Drift.PruneSchedule, cfg.Drift.TTL, logs, logger)
		if err != nil {
			logger.Fatal("Failed to schedule pruning", zap.Error(err))
		}
		pruner.PruneOnce(ctx)
		go pruner.Run(ctx)
	}

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, engines, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	logger.Info("Bot started")
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Shutting down")
}
