package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradesync/config"
	"tradesync/database"
	"tradesync/etl"
	"tradesync/exchange/binance"
	"tradesync/jobs"
	"tradesync/lock"
	"tradesync/logger"
	"tradesync/utils"
	"tradesync/web"
)

const configPath = "config.yaml"

func main() {
	// .env 不存在是正常情况，环境变量也可以从外部注入
	if err := godotenv.Load(); err == nil {
		logger.Info("已加载 .env 文件")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("加载配置失败: %v", err)
	}

	if err := utils.SetLocation(cfg.Timezone); err != nil {
		logger.Warn("时区 %q 加载失败，使用默认时区: %v", cfg.Timezone, err)
	}
	logger.SetLevel(logger.ParseLogLevel(cfg.Log.Level))
	logger.SetLocation(utils.GlobalLocation)
	if cfg.Log.FileEnabled {
		logger.EnableFileLog(cfg.Log.Dir)
	}
	defer logger.Close()

	if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
		logger.Fatal("未配置币安 API 密钥（BINANCE_API_KEY / BINANCE_API_SECRET）")
	}

	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal("初始化数据库失败: %v", err)
	}
	defer db.Close()

	dlock, err := lock.NewDistributedLock(&lock.Config{
		Enabled:    cfg.Lock.Enabled,
		Type:       cfg.Lock.Type,
		Prefix:     cfg.Lock.Prefix,
		DefaultTTL: time.Duration(cfg.Lock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.Lock.Redis.Addr,
			Password: cfg.Lock.Redis.Password,
			DB:       cfg.Lock.Redis.DB,
			PoolSize: cfg.Lock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Fatal("初始化分布式锁失败: %v", err)
	}
	defer dlock.Close()

	gateway := binance.NewClient(
		cfg.Binance.APIKey,
		cfg.Binance.APISecret,
		cfg.Binance.BaseURL,
		time.Duration(cfg.Binance.MinRequestInterval*float64(time.Second)),
		cfg.Binance.RecvWindowMs,
	)

	// 配置热加载：编排器和调度器都通过快照函数取当前配置
	current := config.NewSnapshot(cfg)
	orch := etl.NewOrchestrator(gateway, current.Get)
	controller := jobs.NewController(gateway)
	runner := jobs.NewRunner(current.Get, db, gateway, orch, dlock, controller)
	scheduler := jobs.NewScheduler(runner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		current.Set(newCfg)
		scheduler.OnConfigChange(newCfg)
	})
	if err != nil {
		logger.Warn("创建配置监控器失败，热加载不可用: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("启动配置监控失败，热加载不可用: %v", err)
	} else {
		defer watcher.Stop()
	}

	// 用户数据流：账户变动时立刻触发一轮持仓同步，比周期轮询快
	if cfg.Binance.EnableUserStream {
		stream := binance.NewUserStream(gateway, func() {
			scheduler.TriggerSync("open_positions")
		})
		go stream.Start(ctx)
	}

	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(db, scheduler)
		server.Start(cfg.Web.Listen)
	}

	go scheduler.Start(ctx)
	logger.Info("tradesync 已启动")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("收到信号 %v，开始退出", sig)

	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Web 服务关闭异常: %v", err)
		}
	}
	logger.Info("tradesync 已退出")
}
