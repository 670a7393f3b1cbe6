// Command server wires together persistence, leader election, the
// signal-processing engine, and the HTTP ingress into one running
// coordinator process, one instance per running process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbitrage/internal/broker"
	"arbitrage/internal/config"
	"arbitrage/internal/confirm"
	"arbitrage/internal/coordinator"
	"arbitrage/internal/dedup"
	"arbitrage/internal/engine"
	"arbitrage/internal/eod"
	"arbitrage/internal/execution"
	"arbitrage/internal/models"
	"arbitrage/internal/observe"
	"arbitrage/internal/persistence"
	"arbitrage/internal/portfolio"
	"arbitrage/internal/rollover"
	"arbitrage/internal/webhook"
	"arbitrage/pkg/utils"

	"github.com/redis/go-redis/v9"
)

func main() {
	encryptBrokerKey := flag.Bool("encrypt-broker-key", false,
		"encrypt BROKER_API_KEY with ENCRYPTION_KEY, print the ciphertext for BROKER_API_KEY_ENCRYPTED, then exit")
	flag.Parse()

	if *encryptBrokerKey {
		runEncryptBrokerKey()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	store, err := persistence.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open persistence store", utils.Err(err))
	}
	defer store.Close()

	pf, instruments := restorePortfolio(cfg, store, logger)

	var redisClient *redis.Client
	if cfg.Coordinator.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	}

	coord, err := coordinator.New(cfg.Coordinator, redisClient, store, logger)
	if err != nil {
		logger.Fatal("failed to construct coordinator", utils.Err(err))
	}

	confirmMgr, err := confirm.New(cfg.Confirmation, logger)
	if err != nil {
		logger.Fatal("failed to construct confirmation manager", utils.Err(err))
	}
	coord.SetNotifier(coordinator.NotifierFromConfirm(confirmMgr))

	brokerClient := broker.New(cfg.Broker)

	execCfg := execution.Config{
		PartialFillStrategy:    cfg.Execution.PartialFillStrategy,
		HardSlippageLimitPct:   cfg.Execution.HardSlippageLimitPct,
		LimitOffsetsPct:        cfg.Execution.LimitOffsetsPct,
		PollInterval:           cfg.Execution.PollInterval,
		AttemptTimeout:         cfg.Execution.AttemptTimeout,
		WaitFillWindow:         cfg.Execution.WaitFillWindow,
		ReattemptAggressivePct: cfg.Execution.ReattemptAggressivePct,
		MarketConfirmWindow:    cfg.Execution.MarketConfirmWindow,
	}
	progressive := execution.NewExecutor(brokerClient, execCfg, logger)
	synthetic := execution.NewSyntheticExecutor(progressive, brokerClient, logger)

	dedupCache := dedup.New(time.Duration(cfg.Execution.MaxSignalAgeSeconds)*time.Second, store, logger)

	eng := engine.New(
		pf, store, dedupCache, brokerClient, progressive, synthetic,
		engine.NewConfirmAdapter(confirmMgr),
		cfg.Risk, cfg.Execution, instruments, logger,
	)

	rollMgr := rollover.New(instruments, cfg.Rollover, store, pf, brokerClient, synthetic, progressive, logger)

	eodScheduler := eod.New(cfg.EOD, instruments, eodJob(coord, eng, pf, logger), logger)
	if err := eodScheduler.Start(); err != nil {
		logger.Fatal("failed to start eod scheduler", utils.Err(err))
	}

	hub := observe.NewHub(logger)
	go hub.Run()

	handler := webhook.New(eng, dedupCache, coord, store, logger)
	router := webhook.SetupRoutes(&webhook.Dependencies{
		Handler:    handler,
		Hub:        hub,
		JWTSecret:  cfg.Security.JWTSecret,
		RatePerMin: 120,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	go coord.Run(runCtx)
	go runRolloverLoop(runCtx, rollMgr, pf, instruments, logger)

	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	runCancel()
	coord.Stop()
	eodScheduler.Stop(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}

// restorePortfolio seeds a Portfolio from the last persisted account
// state and open positions, so a restart never silently forgets a live
// position.
func restorePortfolio(cfg *config.Config, store *persistence.Store, logger *utils.Logger) (*portfolio.Portfolio, map[string]config.InstrumentConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initial, err := store.GetPortfolioState(ctx)
	if err != nil {
		logger.Warn("no persisted portfolio state found, starting from zero", utils.Err(err))
		initial = &models.PortfolioState{}
	}

	pf := portfolio.New(*initial, portfolio.GateConfig{
		RiskCeilingPct: cfg.Risk.PortfolioRiskCeilingPct,
		VolCeilingPct:  cfg.Risk.PortfolioVolCeilingPct,
	}, logger)

	openPositions, err := store.GetOpenPositions(ctx)
	if err != nil {
		logger.Warn("failed to restore open positions", utils.Err(err))
	}
	for _, pos := range openPositions {
		if err := pf.AddPosition(pos); err != nil {
			logger.Warn("failed to restore position into portfolio", utils.String("position_id", pos.ID), utils.Err(err))
		}
	}

	return pf, cfg.Risk.Instruments
}

// eodJob builds the end-of-day scheduler callback: the condition-check phase
// only checks that market data has been seen, the execution phase exits
// every open position at the last EOD_MONITOR price, and the tracking
// phase flags anything still open after close for manual attention.
func eodJob(coord *coordinator.Coordinator, eng *engine.Engine, pf *portfolio.Portfolio, logger *utils.Logger) eod.Job {
	return func(ctx context.Context, instrument string, phase eod.Phase) error {
		if !coord.IsLeader() {
			return nil
		}
		switch phase {
		case eod.PhaseConditionCheck:
			if _, ok := eng.LastEODSignal(instrument); !ok {
				logger.Warn("eod condition check: no market data received for instrument", utils.String("instrument", instrument))
			}
		case eod.PhaseExecution:
			last, ok := eng.LastEODSignal(instrument)
			if !ok {
				return nil
			}
			sig := models.Signal{
				Instrument: instrument,
				Kind:       models.KindExit,
				Position:   models.PositionAll,
				Price:      last.Price,
				Timestamp:  time.Now(),
			}
			audit := eng.Process(ctx, sig)
			eng.MarkEODExecuted(sig.Fingerprint())
			logger.Info("eod execution phase complete", utils.String("instrument", instrument), utils.String("outcome", string(audit.Outcome)))
		case eod.PhaseTracking:
			if positions := pf.OpenPositionsFor(instrument); len(positions) > 0 {
				logger.Warn("eod tracking: positions still open past close", utils.String("instrument", instrument), utils.Int("count", len(positions)))
			}
		}
		return nil
	}
}

// runEncryptBrokerKey is the operator-facing setup step for keeping the
// broker API secret encrypted at rest: it reads the plaintext from
// BROKER_API_KEY, encrypts it with ENCRYPTION_KEY, and prints the
// ciphertext to stdout for the operator to store as
// BROKER_API_KEY_ENCRYPTED instead.
func runEncryptBrokerKey() {
	plaintext := os.Getenv("BROKER_API_KEY")
	if plaintext == "" {
		fmt.Fprintln(os.Stderr, "BROKER_API_KEY must be set to the plaintext secret to encrypt")
		os.Exit(1)
	}
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	ciphertext, err := config.EncryptBrokerAPIKey(plaintext, encryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encrypt broker API key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(ciphertext)
}

// runRolloverLoop scans every configured instrument for rollover
// candidates once a minute and executes+reconciles whatever it finds,
// during market hours. Market-open detection is left to the broker's
// quote availability: a failed quote during Execute's first leg already
// degrades a candidate to OutcomeSkipped.
func runRolloverLoop(ctx context.Context, rollMgr *rollover.Manager, pf *portfolio.Portfolio, instruments map[string]config.InstrumentConfig, logger *utils.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var positions []*models.Position
			for instr := range instruments {
				positions = append(positions, pf.OpenPositionsFor(instr)...)
			}
			results := rollMgr.Execute(ctx, now, true, positions)
			if len(results) == 0 {
				continue
			}
			if err := rollMgr.Reconcile(ctx, positions, results); err != nil {
				logger.Error("rollover: reconcile failed", utils.Err(err))
			}
		}
	}
}
