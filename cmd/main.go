package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"job-portal-go/internal/api/handler"
	"job-portal-go/internal/api/middleware"
	"job-portal-go/internal/api/router"
	"job-portal-go/internal/application"
	"job-portal-go/internal/auth"
	"job-portal-go/internal/catalog"
	"job-portal-go/internal/config"
	"job-portal-go/internal/outbox"
	"job-portal-go/internal/status"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/telemetry"

	appCoreLogger "job-portal-go/internal/logger"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

var (
	version     = "1.0.0"         //nolint:gochecknoglobals
	serviceName = "job-portal-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg.Logger)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	var tracerShutdown func(context.Context) error
	if cfg.Telemetry.Enabled {
		tracerShutdown, err = telemetry.InitTracer(ctx, serviceName, cfg.Telemetry.Endpoint)
		if err != nil {
			glog.Warnf("初始化链路追踪失败: %v", err)
		} else {
			glog.Info("链路追踪初始化成功")
		}
	}

	storageManager, err := storage.NewStorage(cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 岗位目录: 监听前同步完成首次刷新，避免启动初期有效岗位查不到，
	// 之后按配置间隔后台重建
	jobCatalog := catalog.New(storageManager.MySQL, config.GetDuration(cfg.Catalog.RefreshInterval, time.Minute))
	jobCatalog.Refresh(ctx)
	go jobCatalog.Start(ctx)
	glog.Infof("岗位目录已启动，刷新间隔: %s", cfg.Catalog.RefreshInterval)

	// 发件箱中继
	var messageRelay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL, storageManager.RabbitMQ)
		messageRelay.Start()
		glog.Info("发件箱中继已启动")
	} else {
		glog.Warn("RabbitMQ不可用，发件箱消息将累积等待中继重启")
	}

	// 状态解析器: Redis可用时带缓存
	var statusCache status.Cache
	if storageManager.Redis != nil {
		statusCache = storageManager.Redis
	}
	statusResolver := status.NewResolver(storageManager.MySQL, statusCache)

	// 投递服务
	var dedup application.DedupIndex
	if storageManager.Redis != nil {
		dedup = storageManager.Redis
	}
	submitService := application.NewService(jobCatalog, storageManager.MySQL, dedup, statusResolver, storageManager.Resumes, application.Config{
		EventsExchange:      cfg.RabbitMQ.ApplicationEventsExchange,
		SubmittedRoutingKey: cfg.RabbitMQ.SubmittedRoutingKey,
	})
	glog.Info("投递服务初始化成功")

	appHandler := handler.NewApplicationHandler(submitService, jobCatalog)

	// 中间件
	verifier := auth.NewVerifier(cfg.JWT.Secret)
	authMW := middleware.CookieAuth(verifier, cfg.JWT.CookieName)
	var limiter middleware.RateLimiter
	if storageManager.Redis != nil {
		limiter = storageManager.Redis
	}
	limitMW := middleware.ApplyRateLimit(limiter)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, appHandler, authMW, limitMW)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，版本: %s, 监听地址: %s", version, cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("发件箱中继已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			glog.Warnf("链路追踪关闭失败: %v", err)
		}
	}
	glog.Info("优雅退出完成")
}

// initLogger 按配置初始化日志: 控制台+文件双落地，文件始终是JSON行
func initLogger(logCfg config.LoggerConfig) {
	logFilePath := "logs/app.log"
	if err := os.MkdirAll("logs", 0o755); err != nil {
		log.Fatalf("无法创建日志目录: %v", err)
	}
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	appCoreLogger.Init(appCoreLogger.Config{
		Level:        logCfg.Level,
		Format:       logCfg.Format,
		TimeFormat:   logCfg.TimeFormat,
		ReportCaller: logCfg.ReportCaller,
	}, fileWriter)
	zlog.Logger = appCoreLogger.Logger

	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(hertzLogLevel(logCfg.Level))
}

// hertzLogLevel 把配置的日志级别映射到Hertz框架日志级别
func hertzLogLevel(level string) glog.Level {
	switch level {
	case "trace":
		return glog.LevelTrace
	case "debug":
		return glog.LevelDebug
	case "warn":
		return glog.LevelWarn
	case "error":
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}
