// file: cmd/ingestor/main.go

package main

import (
	"ClickFlow/internal/adapter/datasource/clickhouse"
	"ClickFlow/internal/adapter/datasource/flatfile"
	"ClickFlow/internal/adapter/jobstore"
	"ClickFlow/internal/config"
	"ClickFlow/internal/middleware"
	"ClickFlow/internal/observe"
	"ClickFlow/internal/service"
	"ClickFlow/internal/transport/grpchealth"
	"ClickFlow/internal/transport/http/router"
	"ClickFlow/internal/ui"
	"ClickFlow/pkg/ingestclient"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "v0.3.0"

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("ClickFlow ingestor %s 正在启动...", version)

	configPath := flag.String("config", "configs/config.yaml", "配置文件路径，留空表示仅使用默认值和环境变量")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("CRITICAL: 加载配置失败: %v", err)
	}

	observe.InitLogger(cfg.Server.LogLevel)
	observe.Register()
	slog.Info("ClickFlow ingestor starting up", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 适配器层 ---
	jobs, err := jobstore.Open(cfg.Storage.InstanceDir)
	if err != nil {
		log.Fatalf("CRITICAL: 初始化任务数据库失败: %v", err)
	}
	defer func() {
		slog.Info("正在关闭任务数据库连接...")
		if err := jobs.Close(); err != nil {
			slog.Error("关闭任务数据库时发生错误", "error", err)
		}
	}()

	warehouse := clickhouse.NewManager(clickhouse.Options{
		Default:            cfg.ClickHouse.Default,
		DialTimeout:        cfg.ClickHouse.DialTimeout,
		MaxOpenConns:       cfg.ClickHouse.MaxOpenConns,
		BatchSize:          cfg.ClickHouse.BatchSize,
		QueryTimeout:       cfg.ClickHouse.QueryTimeout,
		SchemaCacheEntries: cfg.ClickHouse.SchemaCache,
		SchemaCacheTTL:     cfg.ClickHouse.SchemaTTL,
	})
	defer func() {
		if err := warehouse.Close(); err != nil {
			slog.Error("关闭 ClickHouse 连接池时发生错误", "error", err)
		}
	}()

	files, err := flatfile.NewStore(flatfile.Options{
		BaseDir:   cfg.FlatFile.BaseDir,
		HeaderTTL: cfg.FlatFile.HeaderTTL,
	})
	if err != nil {
		log.Fatalf("CRITICAL: 初始化平面文件存储失败: %v", err)
	}
	if cfg.FlatFile.Watch {
		if err := files.StartWatcher(ctx); err != nil {
			slog.Warn("平面文件监听启动失败，表头缓存将仅依赖 TTL 过期", "error", err)
		}
	}

	// --- 服务层 ---
	ingestion := service.NewIngestionService(warehouse, files, jobs, service.Options{
		DefaultOutput:  cfg.FlatFile.DefaultOutput,
		PreviewLimit:   cfg.ClickHouse.PreviewLimit,
		PreviewMaxRows: cfg.ClickHouse.PreviewMaxRow,
	})
	slog.Info("服务层: IngestionService 初始化完成")

	auth := service.NewAuthService(cfg.Auth)
	if auth.Enabled() {
		slog.Info("服务层: API 鉴权已启用", "users", len(cfg.Auth.Users))
	}

	scheduler := service.NewScheduler(ingestion, cfg.ClickHouse.QueryTimeout)
	if err := scheduler.Load(cfg.Schedules); err != nil {
		log.Fatalf("CRITICAL: 加载定时摄取计划失败: %v", err)
	}

	// --- 传输层 ---
	loginLock := middleware.NewLoginFailureLock(cfg.Auth.MaxFailures, cfg.Auth.LockoutDuration)
	deps := router.Dependencies{
		Ingestion:      ingestion,
		Auth:           auth,
		Limiter:        middleware.NewRateLimiter(ctx, cfg.RateLimit.GlobalRate, cfg.RateLimit.GlobalBurst, cfg.RateLimit.IPRate, cfg.RateLimit.IPBurst),
		LoginLock:      loginLock,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		HealthTimeout:  cfg.ClickHouse.DialTimeout,
	}
	if cfg.UI.Enabled {
		base := cfg.UI.APIBaseURL
		if base == "" {
			base = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		}
		deps.UI = ui.NewHandler(ingestclient.New(base), ui.WithAuth(auth), ui.WithLoginGuard(loginLock.Middleware()))
		slog.Info("传输层: Web 界面已挂载", "api", base, "login_required", auth.Enabled())
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("传输层: HTTP 路由器创建完成。")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ClickFlow 启动成功，开始监听HTTP请求...", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务启动失败: %w", err)
		}
		return nil
	})

	if cfg.Server.GRPCPort > 0 {
		hs := grpchealth.New(ingestion, 0)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatalf("CRITICAL: 监听 gRPC 端口失败: %v", err)
		}
		g.Go(func() error {
			hs.Run(gctx)
			return nil
		})
		g.Go(func() error { return hs.Serve(lis) })
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	if cfg.Server.PprofAddr != "" {
		g.Go(func() error {
			if err := observe.ServeDebug(gctx, cfg.Server.PprofAddr); err != nil {
				slog.Warn("调试端点启动失败，服务继续运行", "address", cfg.Server.PprofAddr, "error", err)
			}
			return nil
		})
	}

	scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("收到停机信号，准备优雅关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP服务优雅关闭失败: %w", err)
		}
		slog.Info("HTTP服务已成功关闭。")
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
	slog.Info("程序即将退出。")
}
