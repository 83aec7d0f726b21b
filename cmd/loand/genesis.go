package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"loanchain/config"
	"loanchain/core/state"
	"loanchain/native/bank"
	"loanchain/storage"
)

func storageOpen(dataDir string) (storage.Database, error) {
	return storage.NewLevelDB(dataDir)
}

// seedGenesis applies the configured starting balances exactly once per data
// directory.
func seedGenesis(manager *state.Manager, ledger *bank.Ledger, balances []config.GenesisBalance, logger *slog.Logger) error {
	if len(balances) == 0 {
		return nil
	}
	done, err := manager.GenesisDone()
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	for _, entry := range balances {
		addr, err := parseGenesisAddress(entry.Address)
		if err != nil {
			return fmt.Errorf("genesis balance %q: %w", entry.Address, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("genesis balance %q: amount must be a positive base-10 integer", entry.Address)
		}
		if err := ledger.Mint(addr, entry.Asset, amount); err != nil {
			return err
		}
		logger.Info("seeded genesis balance",
			slog.String("address", entry.Address),
			slog.String("asset", entry.Asset),
			slog.String("amount", amount.String()))
	}
	return manager.MarkGenesisDone()
}

func parseGenesisAddress(input string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 hex bytes")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address encoding: %v", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}
