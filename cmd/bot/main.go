package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"base-autobot/internal/api"
	"base-autobot/internal/bot"
	"base-autobot/internal/chain"
	"base-autobot/internal/config"
	"base-autobot/internal/execution"
	"base-autobot/internal/logger"
	"base-autobot/internal/market"
	"base-autobot/internal/metrics"
	"base-autobot/internal/models"
	"base-autobot/internal/persistence"
	"base-autobot/internal/reporter"
	"base-autobot/internal/statemanager"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "serve", "running mode: serve, run-once, report, pause or resume")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	secrets := config.LoadSecrets()

	// --- 使用配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.L().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := persistence.Open(ctx, cfg.Store)
	if err != nil {
		logger.S().Fatalf("无法打开状态存储: %v", err)
	}
	defer store.Close()

	log := logger.L()
	states := statemanager.NewStateManager(store, cfg, log.Named("state"))

	switch *mode {
	case "serve":
		runServe(ctx, cfg, secrets, states, log)
	case "run-once":
		runOnce(ctx, newBot(cfg, secrets, states, nil, log))
	case "report":
		state, err := states.Load(ctx)
		if err != nil {
			logger.S().Fatalf("无法加载状态: %v", err)
		}
		reporter.Render(os.Stdout, cfg, state)
	case "pause", "resume":
		if _, err := states.SetPaused(ctx, *mode == "pause"); err != nil {
			logger.S().Fatalf("无法更新暂停状态: %v", err)
		}
		logger.S().Infof("机器人已%s。", map[bool]string{true: "暂停", false: "恢复"}[*mode == "pause"])
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 serve, run-once, report, pause 或 resume。", *mode)
	}
}

// newBot 组装采样器、执行引擎和链上执行器
func newBot(cfg *models.Config, secrets models.Secrets, states *statemanager.StateManager, m *metrics.Metrics, log *zap.Logger) *bot.Bot {
	sampler := market.NewSampler(cfg, log.Named("market"))

	var chainExecutor *chain.Executor
	var engineChain execution.ChainExecutor
	if cfg.ExecutionMode == models.ModeOnchain {
		chainExecutor = chain.NewExecutor(cfg, secrets, log.Named("chain"))
		engineChain = chainExecutor
	}
	engine := execution.NewEngine(cfg, secrets.WebhookAuthToken, engineChain, log.Named("execution"))

	var syncer bot.PortfolioSyncer
	if chainExecutor != nil {
		syncer = chainExecutor
	}
	return bot.New(cfg, states, sampler, engine, syncer, m, log.Named("bot"))
}

// runServe 启动控制API和调度器，直到收到退出信号
func runServe(ctx context.Context, cfg *models.Config, secrets models.Secrets, states *statemanager.StateManager, log *zap.Logger) {
	logger.S().Infof("--- 启动服务模式 (资产 %s, 执行模式 %s) ---", cfg.AssetSymbol, cfg.ExecutionMode)
	if secrets.AdminToken == "" {
		logger.S().Warn("ADMIN_TOKEN 未设置，控制接口无需认证。")
	}

	m := metrics.New()
	autoBot := newBot(cfg, secrets, states, m, log)

	server := api.NewServer(cfg.HTTPAddr, autoBot, secrets.AdminToken, m, log.Named("api"))
	if err := server.Start(ctx); err != nil {
		logger.S().Fatalf("控制API启动失败: %v", err)
	}

	done := make(chan struct{})
	go func() {
		autoBot.Run(ctx, time.Duration(cfg.TickIntervalSec)*time.Second)
		close(done)
	}()

	// 等待中断信号以实现优雅退出
	<-ctx.Done()
	logger.S().Info("收到退出信号，正在停止...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.S().Warnf("控制API关闭失败: %v", err)
	}
	<-done
	logger.S().Info("机器人已成功停止。")
}

// runOnce 执行一次tick并输出结果
func runOnce(ctx context.Context, b *bot.Bot) {
	out, err := b.RunOnce(ctx)
	if errors.Is(err, bot.ErrPaused) {
		logger.S().Warn("机器人处于暂停状态，请先执行 -mode resume。")
		return
	}
	if err != nil {
		logger.S().Fatalf("tick 执行失败: %v", err)
	}
	if out.Err != nil {
		logger.S().Errorf("tick 失败: %v (累计错误 %d 次)", out.Err, out.State.ErrorCount)
		return
	}
	logger.S().Infof("信号: %s (%s)，执行: %s %s",
		out.Signal.Action, out.Signal.Reason, out.Execution.Status, out.Execution.Detail)
}
