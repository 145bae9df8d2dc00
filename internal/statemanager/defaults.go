package statemanager

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"base-autobot/internal/models"
)

// DefaultState is the state used when nothing is persisted yet: paused,
// starting cash, empty histories and one zero entry per address-book token.
func DefaultState(cfg *models.Config) models.BotState {
	balances := make(map[string]float64, len(cfg.AddressBook.Tokens))
	targets := make(map[string]float64, len(cfg.AddressBook.Tokens))
	for _, key := range tokenKeys(cfg) {
		balances[key] = 0
		targets[key] = 0
	}
	return models.BotState{
		Version: models.StateVersion,
		Paused:  true,
		Portfolio: models.Portfolio{
			CashUSD:           cfg.StartingCashUSD,
			TokenBalancesUSD:  balances,
			AllocationTargets: targets,
		},
		PriceHistory:  []float64{},
		IndexHistory:  []float64{},
		WalletHistory: []models.WalletPoint{},
		Transactions:  []models.TransactionRecord{},
		Params:        cfg.Defaults,
	}
}

// Merge decodes a stored snapshot on top of the current defaults, so any
// field an older snapshot lacks is backfilled instead of left empty.
// Explicit nulls for collections are treated as missing.
func Merge(raw []byte, cfg *models.Config) (models.BotState, error) {
	state := DefaultState(cfg)
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.BotState{}, fmt.Errorf("decode stored state: %w", err)
	}
	return normalize(state, cfg), nil
}

func normalize(state models.BotState, cfg *models.Config) models.BotState {
	defaults := DefaultState(cfg)

	state.Version = models.StateVersion
	if state.Portfolio.TokenBalancesUSD == nil {
		state.Portfolio.TokenBalancesUSD = defaults.Portfolio.TokenBalancesUSD
	}
	if state.Portfolio.AllocationTargets == nil {
		state.Portfolio.AllocationTargets = defaults.Portfolio.AllocationTargets
	}
	for _, key := range tokenKeys(cfg) {
		if _, ok := state.Portfolio.TokenBalancesUSD[key]; !ok {
			state.Portfolio.TokenBalancesUSD[key] = 0
		}
		if _, ok := state.Portfolio.AllocationTargets[key]; !ok {
			state.Portfolio.AllocationTargets[key] = 0
		}
	}
	if state.PriceHistory == nil {
		state.PriceHistory = []float64{}
	}
	if state.IndexHistory == nil {
		state.IndexHistory = []float64{}
	}
	if state.WalletHistory == nil {
		state.WalletHistory = []models.WalletPoint{}
	}
	if state.Transactions == nil {
		state.Transactions = []models.TransactionRecord{}
	}

	if state.AvgEntryPrice != nil && (math.IsNaN(*state.AvgEntryPrice) || math.IsInf(*state.AvgEntryPrice, 0) || *state.AvgEntryPrice <= 0) {
		state.AvgEntryPrice = nil
	}
	if state.Portfolio.Asset > 0 && state.AvgEntryPrice == nil {
		state.AvgEntryPrice = seedEntryPrice(state)
	}
	// A position without a usable entry price is treated as flat.
	if state.Portfolio.Asset <= 0 || state.AvgEntryPrice == nil {
		state.Portfolio.Asset = 0
		state.AvgEntryPrice = nil
	}

	limit := HistoryLimit(state.Params)
	state.PriceHistory = keepLast(state.PriceHistory, limit)
	state.IndexHistory = keepLast(state.IndexHistory, limit)
	state.WalletHistory = keepLast(state.WalletHistory, models.MaxWalletHistory)
	state.Transactions = keepLast(state.Transactions, models.MaxTransactions)
	return state
}

func tokenKeys(cfg *models.Config) []string {
	keys := make([]string, 0, len(cfg.AddressBook.Tokens))
	for key := range cfg.AddressBook.Tokens {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
