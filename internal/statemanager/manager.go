package statemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"base-autobot/internal/models"
	"base-autobot/internal/persistence"

	"go.uber.org/zap"
)

// StateManager owns the single persisted BotState document.
// All read-modify-write cycles go through Update, which serializes them.
type StateManager struct {
	store  persistence.Store
	cfg    *models.Config
	key    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewStateManager creates a new StateManager.
func NewStateManager(store persistence.Store, cfg *models.Config, logger *zap.Logger) *StateManager {
	key := cfg.Store.Key
	if key == "" {
		key = persistence.DefaultStateKey
	}
	return &StateManager{
		store:  store,
		cfg:    cfg,
		key:    key,
		logger: logger,
	}
}

// Load returns the persisted state merged over the defaults. When nothing is
// stored yet the defaults are returned without being written.
func (sm *StateManager) Load(ctx context.Context) (models.BotState, error) {
	raw, err := sm.store.Get(ctx, sm.key)
	if err != nil {
		return models.BotState{}, fmt.Errorf("load state: %w", err)
	}
	if raw == nil {
		sm.logger.Sugar().Debugf("No stored state under %q, using defaults.", sm.key)
		return DefaultState(sm.cfg), nil
	}
	return Merge(raw, sm.cfg)
}

// Save replaces the stored document with state.
func (sm *StateManager) Save(ctx context.Context, state models.BotState) error {
	state.Version = models.StateVersion
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := sm.store.Put(ctx, sm.key, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Update runs load, fn, save under the manager's lock. If fn returns an
// error nothing is saved and the error is returned as is.
func (sm *StateManager) Update(ctx context.Context, fn func(models.BotState) (models.BotState, error)) (models.BotState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, err := sm.Load(ctx)
	if err != nil {
		return models.BotState{}, err
	}
	next, err := fn(state)
	if err != nil {
		return state, err
	}
	if err := sm.Save(ctx, next); err != nil {
		return state, err
	}
	return next, nil
}

// SetPaused flips the paused flag and persists it.
func (sm *StateManager) SetPaused(ctx context.Context, paused bool) (models.BotState, error) {
	return sm.Update(ctx, func(state models.BotState) (models.BotState, error) {
		state.Paused = paused
		return state, nil
	})
}

// PatchParams applies a partial params update and persists it.
func (sm *StateManager) PatchParams(ctx context.Context, patch map[string]any) (models.BotState, error) {
	return sm.Update(ctx, func(state models.BotState) (models.BotState, error) {
		next := ApplyParamsPatch(state, patch)
		limit := HistoryLimit(next.Params)
		next.PriceHistory = keepLast(next.PriceHistory, limit)
		next.IndexHistory = keepLast(next.IndexHistory, limit)
		return next, nil
	})
}

// PatchPortfolio applies a sanitized portfolio update and persists it.
func (sm *StateManager) PatchPortfolio(ctx context.Context, patch map[string]any) (models.BotState, error) {
	return sm.Update(ctx, func(state models.BotState) (models.BotState, error) {
		return ApplyPortfolioPatch(state, patch), nil
	})
}
