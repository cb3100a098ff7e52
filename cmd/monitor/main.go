package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/api"
	"github.com/dd0wney/cluso-failover/pkg/config"
	"github.com/dd0wney/cluso-failover/pkg/coordinator"
	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/health"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/pubsub"
	"github.com/dd0wney/cluso-failover/pkg/server"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.NewDefaultLogger().Error("Failed to load config", logging.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		// defaults require either a database URL or the in-memory store
		if errors.Is(err, config.ErrMissingDatabaseURL) && os.Getenv("DATABASE_URL") != "" {
			cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		} else {
			logging.NewDefaultLogger().Error("Invalid configuration", logging.Error(err))
			os.Exit(1)
		}
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logger.Info("Failover monitor starting",
		logging.String("listen_addr", cfg.ListenAddr),
		logging.Bool("memory_store", cfg.MemoryStore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.MemoryStore {
		st = store.NewMemoryStore()
	} else {
		pgStore, err := store.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to open store", logging.Error(err))
			os.Exit(1)
		}
		st = pgStore
	}
	defer st.Close()

	kind, err := fsm.ParseFormationKind(cfg.Formation.Kind)
	if err != nil {
		logger.Error("Invalid formation kind", logging.Error(err))
		os.Exit(1)
	}

	formation := &fsm.Formation{
		ID:                 cfg.Formation.ID,
		Kind:               kind,
		DBName:             cfg.Formation.DBName,
		EnableSecondary:    cfg.Formation.EnableSecondary,
		EnableSyncLagBytes: cfg.Formation.EnableSyncLagBytes,
		PromoteLagBytes:    cfg.Formation.PromoteLagBytes,
		DrainTimeout:       cfg.Formation.DrainTimeout,
		UnhealthyTimeout:   cfg.Formation.UnhealthyTimeout,
		StartupGracePeriod: cfg.Formation.StartupGracePeriod,
	}
	if err := st.CreateFormation(ctx, formation); err != nil &&
		!errors.Is(err, store.ErrFormationExists) {
		logger.Error("Failed to create default formation", logging.Error(err))
		os.Exit(1)
	}

	bus := pubsub.New()
	defer bus.Shutdown()

	emitter := events.NewEmitter(st, bus, logger)
	clock := fsm.SystemClock{}
	engine := fsm.NewEngine(clock)
	coord := coordinator.New(st, emitter, engine, clock, logger)

	prober := health.NewProber(st, logger, cfg.HealthCheckInterval)
	go prober.Run(ctx)

	checker := health.NewChecker()
	checker.Register("store", func() health.Check {
		return health.RunCheck("store", func() error {
			pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
			defer pingCancel()
			return st.Ping(pingCtx)
		})
	})

	apiServer := api.NewServer(coord, st, checker, logger)
	httpServer := server.NewGracefulServer(cfg.ListenAddr, apiServer.Handler(), logger)

	if err := httpServer.Start(); err != nil {
		logger.Error("HTTP server failed", logging.Error(err))
		os.Exit(1)
	}
}
