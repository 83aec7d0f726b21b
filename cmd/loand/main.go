package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"loanchain/config"
	"loanchain/core/events"
	"loanchain/core/state"
	"loanchain/native/bank"
	"loanchain/native/loan"
	"loanchain/observability/logging"
	"loanchain/rpc"
)

const recentEventLimit = 1024

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LOANCHAIN_ENV"))
	logger := logging.Setup("loand", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Env
	}

	db, err := storageOpen(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	pauses := cfg.Pauses()
	recent := events.NewMemoryEmitter(recentEventLimit)

	ledger := bank.NewLedger()
	ledger.SetState(manager)
	ledger.SetPauses(pauses)
	ledger.SetEmitter(recent)

	engine := loan.NewEngine()
	engine.SetState(manager)
	engine.SetTransferer(ledger)
	engine.SetPauses(pauses)
	engine.SetEmitter(recent)

	if err := seedGenesis(manager, ledger, cfg.GenesisBalances, logger); err != nil {
		logger.Error("Failed to seed genesis balances", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, ledger, recent, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
