package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"mnbudget/cmd/internal/passphrase"
	"mnbudget/config"
	"mnbudget/core/events"
	"mnbudget/core/types"
	"mnbudget/native/budget"
	"mnbudget/observability/logging"
	"mnbudget/p2p"
	"mnbudget/storage"
)

// blockInterval is the local tick rate the standalone chain reader advances
// on, matching DefaultParams' one-minute block spacing assumption.
const blockInterval = time.Minute

func main() {
	configFile := flag.String("config", "./mnbudget.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MNBUDGET_ENV"))
	logger := logging.Setup("mnbudgetd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg.Global()); err != nil {
		logger.Error("invalid budget configuration", slog.Any("error", err))
		os.Exit(1)
	}

	network := networkTagFor(cfg.Network)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to prepare data directory", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	cache := storage.NewCollateralCache(db)

	passEnv := cfg.ValidatorPassEnv
	if passEnv == "" {
		passEnv = "MNBUDGET_VALIDATOR_PASS"
	}
	passSource := passphrase.NewSource(passEnv)
	privKey, err := config.LoadValidatorKey(cfg, passSource.Get)
	if err != nil {
		logger.Error("failed to load validator key", slog.Any("error", err))
		os.Exit(1)
	}

	directory, err := loadStaticDirectory(cfg.DirectoryFile)
	if err != nil {
		logger.Error("failed to load masternode directory fixture", slog.Any("error", err))
		os.Exit(1)
	}

	params := paramsFromConfig(cfg.Budget)
	chainReader := newLocalChainReader(1000)
	wallet := newLocalWallet(privKey, types.Outpoint{}, false)

	manager := budget.NewManager(params, chainReader, directory, wallet, logger, events.NoopEmitter{})
	manager.WithCollateralCache(cache)

	snapshotPath := filepath.Join(cfg.DataDir, "budget-snapshot.dat")
	if _, err := os.Stat(snapshotPath); err == nil {
		if err := manager.Load(snapshotPath, network); err != nil {
			logger.Warn("failed to load persisted budget snapshot, starting empty", slog.Any("error", err))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to stat budget snapshot", slog.Any("error", err))
	}

	slot := &handlerSlot{}
	server := p2p.NewServer(cfg.ListenAddress, slot, privKey, cfg.ChainID)
	transport := p2p.NewBudgetTransport(server, logger)
	handler := p2p.NewBudgetHandler(manager, transport)
	slot.set(handler)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("p2p server stopped", slog.Any("error", err))
		}
	}()

	for _, addr := range cfg.BootstrapPeers {
		addr := addr
		go func() {
			if err := server.Connect(addr); err != nil {
				logger.Warn("failed to connect to bootstrap peer", slog.String("addr", addr), slog.Any("error", err))
			}
		}()
	}

	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mnbudgetd started", slog.String("listen", cfg.ListenAddress), slog.String("network", cfg.Network))

	for {
		select {
		case <-ticker.C:
			height := chainReader.advance()
			manager.OnNewBlock(height, transport, transport)
		case <-sigCh:
			logger.Info("shutting down, saving budget snapshot")
			if err := manager.Save(snapshotPath, network); err != nil {
				logger.Error("failed to save budget snapshot", slog.Any("error", err))
			}
			return
		}
	}
}

func networkTagFor(network string) budget.NetworkTag {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "test", "testnet":
		return budget.NetworkTestnet
	case "regtest":
		return budget.NetworkRegtest
	default:
		return budget.NetworkMainnet
	}
}

func paramsFromConfig(b config.BudgetParams) budget.Params {
	cycleLength, requiredConfs, proposalFee, finalizationFee, establishmentWindowSecs, minUpdateIntervalSecs,
		minProtocolVersion, mode, askThrottleWindowSecs, monthlyBlocks := b.ToParamsArgs()
	return budget.Params{
		CycleLength:         cycleLength,
		RequiredConfs:       requiredConfs,
		ProposalFee:         proposalFee,
		FinalizationFee:     finalizationFee,
		EstablishmentWindow: time.Duration(establishmentWindowSecs) * time.Second,
		MinUpdateInterval:   time.Duration(minUpdateIntervalSecs) * time.Second,
		MinProtocolVersion:  minProtocolVersion,
		Mode:                mode,
		AskThrottleWindow:   time.Duration(askThrottleWindowSecs) * time.Second,
		MonthlyBlocks:       monthlyBlocks,
	}
}
