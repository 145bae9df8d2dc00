package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"base-autobot/internal/metrics"
	"base-autobot/internal/models"
	"base-autobot/internal/risk"
	"base-autobot/internal/statemanager"
	"base-autobot/internal/strategy"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrPaused 机器人处于暂停状态时 RunOnce 返回该错误，状态不会被修改
var ErrPaused = errors.New("paused")

// Sampler 每个tick获取一次价格
type Sampler interface {
	Fetch(ctx context.Context) (models.PricePoint, error)
}

// Executor 将信号转换为执行结果和新状态
type Executor interface {
	Execute(ctx context.Context, state models.BotState, signal models.Signal) (models.ExecutionResult, models.BotState)
}

// PortfolioSyncer 从链上读取钱包余额覆盖投资组合
type PortfolioSyncer interface {
	SyncPortfolio(ctx context.Context, state models.BotState, price float64) (models.BotState, error)
}

// TickOutcome 一次tick的结果。Err 不为空表示tick失败且已记录到 LastError
type TickOutcome struct {
	State     models.BotState
	Signal    *models.Signal
	Execution *models.ExecutionResult
	Err       error
}

// Bot 是自动交易机器人的核心结构
type Bot struct {
	cfg      *models.Config
	states   *statemanager.StateManager
	sampler  Sampler
	executor Executor
	syncer   PortfolioSyncer // 仅 onchain 模式下使用
	metrics  *metrics.Metrics
	group    singleflight.Group
	now      func() time.Time
	logger   *zap.Logger
}

// New 创建一个新的机器人实例。syncer 和 m 可以为 nil
func New(cfg *models.Config, states *statemanager.StateManager, sampler Sampler, executor Executor, syncer PortfolioSyncer, m *metrics.Metrics, logger *zap.Logger) *Bot {
	if cfg.ExecutionMode != models.ModeOnchain {
		syncer = nil
	}
	return &Bot{
		cfg:      cfg,
		states:   states,
		sampler:  sampler,
		executor: executor,
		syncer:   syncer,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock 替换时间源，用于测试
func (b *Bot) WithClock(now func() time.Time) *Bot {
	b.now = now
	return b
}

// RunOnce 执行一次完整的 加载→采样→决策→执行→保存 流程。
// 并发调用会共享同一次tick的结果。
func (b *Bot) RunOnce(ctx context.Context) (TickOutcome, error) {
	v, err, shared := b.group.Do("tick", func() (interface{}, error) {
		return b.runLocked(ctx)
	})
	if shared {
		b.logger.Debug("tick result shared with concurrent caller")
	}
	if err != nil {
		return TickOutcome{}, err
	}
	return v.(TickOutcome), nil
}

func (b *Bot) runLocked(ctx context.Context) (TickOutcome, error) {
	var tickErr error
	next, err := b.states.Update(ctx, func(state models.BotState) (models.BotState, error) {
		if state.Paused {
			return state, ErrPaused
		}
		result, err := b.tick(ctx, state)
		if err != nil {
			tickErr = err
			failed := state.Clone()
			failed.LastError = &models.ErrorInfo{Message: err.Error(), At: b.now().UTC()}
			failed.ErrorCount++
			return failed, nil
		}
		return result, nil
	})
	if errors.Is(err, ErrPaused) {
		b.metrics.ObservePaused()
		return TickOutcome{}, ErrPaused
	}
	if err != nil {
		b.metrics.ObserveError()
		return TickOutcome{}, err
	}

	if tickErr != nil {
		b.metrics.ObserveError()
		b.logger.Error("tick failed", zap.Error(tickErr), zap.Int("errorCount", next.ErrorCount))
		return TickOutcome{State: next, Err: tickErr}, nil
	}

	b.metrics.ObserveTick(*next.LastSignal, *next.LastExecution, *next.LastPrice, risk.PortfolioValue(next, *next.LastPrice))
	b.logger.Info("tick complete",
		zap.Float64("price", *next.LastPrice),
		zap.String("action", string(next.LastSignal.Action)),
		zap.String("reason", next.LastSignal.Reason),
		zap.String("status", string(next.LastExecution.Status)),
		zap.String("detail", next.LastExecution.Detail))
	return TickOutcome{State: next, Signal: next.LastSignal, Execution: next.LastExecution}, nil
}

// tick 不修改传入的状态；panic 会被转换为错误
func (b *Bot) tick(ctx context.Context, state models.BotState) (next models.BotState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	point, err := b.sampler.Fetch(ctx)
	if err != nil {
		return state, err
	}

	hydrated := state
	if b.syncer != nil {
		hydrated, err = b.syncer.SyncPortfolio(ctx, state, point.Price)
		if err != nil {
			return state, fmt.Errorf("sync portfolio: %w", err)
		}
	}

	withHistory := statemanager.UpdateMarketHistory(hydrated, point)
	signal := strategy.Evaluate(point, withHistory)
	result, executed := b.executor.Execute(ctx, withHistory, signal)
	next = statemanager.UpdateWalletHistory(executed, point.Price, point.FetchedAt)

	now := b.now().UTC()
	next.LastRunAt = &now
	next.LastPrice = models.Ptr(point.Price)
	if point.IndexPrice != nil {
		next.LastIndexPrice = models.Ptr(*point.IndexPrice)
	}
	next.LastSignal = &signal
	next.LastExecution = &result
	return next, nil
}

// Run 按固定周期执行tick，直到 ctx 被取消。单次tick失败不会终止循环
func (b *Bot) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	b.logger.Sugar().Infof("调度器启动，周期 %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runScheduled(ctx)
	for {
		select {
		case <-ctx.Done():
			b.logger.Sugar().Info("调度器已停止")
			return
		case <-ticker.C:
			b.runScheduled(ctx)
		}
	}
}

func (b *Bot) runScheduled(ctx context.Context) {
	_, err := b.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrPaused):
		b.logger.Debug("bot paused, tick skipped")
	case err != nil:
		b.logger.Error("tick could not be persisted", zap.Error(err))
	}
}

// State 返回当前状态；onchain 模式下先用链上余额同步 (不保存)
func (b *Bot) State(ctx context.Context) (models.BotState, error) {
	state, err := b.states.Load(ctx)
	if err != nil {
		return models.BotState{}, err
	}
	if b.syncer == nil {
		return state, nil
	}
	price := 0.0
	if state.LastPrice != nil {
		price = *state.LastPrice
	}
	return b.syncer.SyncPortfolio(ctx, state, price)
}

// States 返回状态管理器，供控制API使用
func (b *Bot) States() *statemanager.StateManager {
	return b.states
}

// Config 返回机器人配置
func (b *Bot) Config() *models.Config {
	return b.cfg
}
