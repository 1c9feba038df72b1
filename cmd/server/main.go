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

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/api/handler"
	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/internal/api/router"
	"github.com/mohamed66886/sehaty-sub000/internal/job"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/database"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
	applogger "github.com/mohamed66886/sehaty-sub000/pkg/logger"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
	"github.com/mohamed66886/sehaty-sub000/pkg/metrics"
	"github.com/mohamed66886/sehaty-sub000/pkg/realtime"
	"github.com/mohamed66886/sehaty-sub000/pkg/redis"
	"github.com/mohamed66886/sehaty-sub000/pkg/storage"
	"github.com/mohamed66886/sehaty-sub000/pkg/validate"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("storage", cfg.Storage.Driver),
	)

	if err := validate.Register(); err != nil {
		logger.Fatal("注册校验规则失败", zap.Error(err))
	}

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，黑名单、限流与提交锁将不可用", zap.Error(err))
		rdb = nil
	}
	// 接口变量只在 Redis 可用时赋值，避免 typed nil
	var (
		tokens  middleware.TokenChecker
		limiter middleware.RateLimiter
		locker  job.Locker
	)
	if rdb != nil {
		tokens, limiter, locker = rdb, rdb, rdb
	}

	// 5. 附件存储与邮件
	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		logger.Fatal("初始化附件存储失败", zap.Error(err))
	}
	mail := mailer.New(&cfg.Mail, logger)

	// 6. JWT、实时推送与指标
	jwtMgr := jwt.NewManager(&cfg.Auth)
	hub := realtime.NewHub(logger)
	m := metrics.New()

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, rdb, store, mail, hub, logger)
	h := handler.NewHandler(svc, cfg, handler.Deps{
		JWT:    jwtMgr,
		Tokens: tokens,
		Hub:    hub,
		DB:     sqlDB,
		Logger: logger,
	})

	// 8. 定时任务
	scheduler, err := job.NewScheduler(&cfg.Job, service.SchoolLocation(cfg.Job.Timezone),
		svc.Homework, svc.Attendance, locker, m, logger)
	if err != nil {
		logger.Fatal("初始化定时任务失败", zap.Error(err))
	}
	scheduler.Start()

	// 9. 初始化路由
	engine := router.Setup(cfg, h, router.Deps{
		JWT:     jwtMgr,
		Tokens:  tokens,
		Limiter: limiter,
		Metrics: m,
		Logger:  logger,
	})

	// 10. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	scheduler.Stop(ctx)

	// WebSocket 连接已被劫持，需单独关闭
	hub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
