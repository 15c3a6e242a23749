package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	adapterhttp "render-engine/ddd/adapter/http"
	application "render-engine/ddd/application/app"
	"render-engine/ddd/domain/gateway"
	"render-engine/ddd/domain/repo"
	"render-engine/ddd/domain/service"
	"render-engine/ddd/infrastructure/client"
	"render-engine/ddd/infrastructure/database/persistence"
	"render-engine/ddd/infrastructure/database/po"
	"render-engine/ddd/infrastructure/executor"
	"render-engine/ddd/infrastructure/progress"
	"render-engine/ddd/infrastructure/queue"
	"render-engine/ddd/infrastructure/storage"
	"render-engine/ddd/infrastructure/worker"
	"render-engine/pkg/config"
	"render-engine/pkg/kafka"
	"render-engine/pkg/logger"
	"render-engine/pkg/minioclient"
	"render-engine/pkg/redisclient"
	"render-engine/pkg/registry"
	"render-engine/pkg/task"
)

// container holds the wired service graph plus the closers that release its
// external connections in reverse build order.
type container struct {
	cfg       *config.Config
	renderApp application.RenderApp
	jobQueue  queue.JobQueue
	closers   []func()
}

func (c *container) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Run 启动完整服务：HTTP接口 + 渲染worker（按配置开关）
func Run() {
	fmt.Println("[STARTUP] Starting render engine...")

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[ERROR] Failed to load config (%s): %v\n", cfgPath, err)
		os.Exit(1)
	}
	fmt.Printf("[STARTUP] Config file loaded: %s\n", cfgPath)

	logService := logger.NewLogger(cfg)
	logger.SetGlobalLogger(logService)
	defer logService.Close()

	logger.Infof("Render engine starting version=%s", "1.0.0")

	checkFFmpeg(cfg)

	c, err := buildContainer(cfg)
	if err != nil {
		logger.Errorf("Failed to build service container: %v", err)
		os.Exit(1)
	}
	defer c.close()

	// 后台任务：渲染worker
	mgr := task.NewManager()
	if cfg.Worker.Enabled {
		workerID := cfg.Worker.WorkerID
		if workerID == "" {
			workerID = "render-worker"
		}
		mgr.Register(worker.NewRenderWorker(
			workerID,
			c.jobQueue,
			c.renderApp,
			cfg.Worker.MaxConcurrentJobs,
			cfg.Worker.ShutdownGracePeriod,
		))
	}
	if err := mgr.StartAll(context.Background()); err != nil {
		logger.Errorf("Failed to start background tasks: %v", err)
		os.Exit(1)
	}

	// HTTP服务
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	adapterhttp.NewRouter(cfg, c.renderApp).SetupRoutes(engine)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("HTTP server started address=%s service=%s", addr, "render-engine")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// 服务注册
	var reg *registry.ServiceRegistry
	if cfg.ServiceRegistry.Enabled {
		reg, err = newServiceRegistry(cfg)
		if err != nil {
			logger.Warnf("Service registry unavailable, continuing unregistered: %v", err)
		} else if err := reg.Register(); err != nil {
			logger.Warnf("Service registration failed: %v", err)
			reg = nil
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Received shutdown signal, shutting down...")

	if reg != nil {
		if err := reg.Deregister(); err != nil {
			logger.Warnf("Service deregistration failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server forced to close: %v", err)
	}

	mgr.StopAll()

	logger.Infof("Render engine exited safely")
}

// RunWorker 启动纯worker进程：只消费队列，不开HTTP接口
func RunWorker() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[ERROR] Failed to load config (%s): %v\n", cfgPath, err)
		os.Exit(1)
	}

	logService := logger.NewLogger(cfg)
	logger.SetGlobalLogger(logService)
	defer logService.Close()

	checkFFmpeg(cfg)

	c, err := buildContainer(cfg)
	if err != nil {
		logger.Errorf("Failed to build service container: %v", err)
		os.Exit(1)
	}
	defer c.close()

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		workerID = "render-worker"
	}
	mgr := task.NewManager()
	mgr.Register(worker.NewRenderWorker(
		workerID,
		c.jobQueue,
		c.renderApp,
		cfg.Worker.MaxConcurrentJobs,
		cfg.Worker.ShutdownGracePeriod,
	))
	if err := mgr.StartAll(context.Background()); err != nil {
		logger.Errorf("Failed to start render worker: %v", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Received shutdown signal, stopping worker...")
	mgr.StopAll()
}

// buildContainer wires repositories, queue, gateways and the orchestrator.
// Missing external endpoints degrade to in-memory fallbacks so a single
// binary can run standalone in development.
func buildContainer(cfg *config.Config) (*container, error) {
	c := &container{cfg: cfg}

	// 任务仓储
	var jobRepo repo.RenderJobRepository
	if cfg.Database.Host != "" {
		db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		if err := db.AutoMigrate(&po.RenderJobPO{}); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		jobRepo = persistence.NewRenderJobRepository(db)
		logger.Infof("Job repository backed by MySQL host=%s database=%s", cfg.Database.Host, cfg.Database.Database)
	} else {
		jobRepo = persistence.NewMemoryRenderJobRepository()
		logger.Warnf("No database configured, using in-memory job repository")
	}

	// Redis（创建锁）；不可用时降级为无锁创建
	var redisCli *redisclient.Client
	if cfg.Redis.Host != "" {
		cli, err := redisclient.New(cfg.Redis)
		if err != nil {
			logger.Warnf("Redis unavailable, creation locking disabled: %v", err)
		} else {
			redisCli = cli
			c.closers = append(c.closers, func() { _ = cli.Close() })
		}
	}

	// 任务队列
	if cfg.Kafka.Enabled {
		kafkaCli := kafka.NewClient(cfg.Kafka)
		q, err := queue.NewKafkaJobQueue(kafkaCli, cfg.Kafka.Topics.RenderJobs, cfg.Kafka.GroupID)
		if err != nil {
			return nil, fmt.Errorf("kafka job queue: %w", err)
		}
		c.closers = append(c.closers, func() { _ = q.Close() }, kafkaCli.Close)
		c.jobQueue = q
		logger.Infof("Job queue backed by Kafka topic=%s", cfg.Kafka.Topics.RenderJobs)
	} else {
		c.jobQueue = queue.NewMemoryJobQueue(cfg.Worker.QueueCapacity)
		logger.Warnf("Kafka disabled, using in-memory job queue capacity=%d", cfg.Worker.QueueCapacity)
	}

	// 对象存储
	var storageGW gateway.StorageGateway
	switch {
	case cfg.Minio.Endpoint != "":
		minioCli, err := minioclient.New(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		storageGW = storage.NewMinioStorage(minioCli)
	case os.Getenv("RUSTFS_ENDPOINT") != "":
		storageGW = storage.NewRustFSStorage(
			os.Getenv("RUSTFS_ENDPOINT"),
			os.Getenv("RUSTFS_ACCESS_KEY"),
			os.Getenv("RUSTFS_SECRET_KEY"),
		)
	default:
		if cfg.Worker.Enabled {
			return nil, fmt.Errorf("no object storage configured (minio.endpoint or RUSTFS_ENDPOINT)")
		}
		logger.Warnf("No object storage configured, render outputs will stay local")
	}

	// 协作服务网关；无地址且无注册中心时落到内存网关（独立开发模式）
	var discovery *registry.ServiceDiscovery
	if cfg.ServiceRegistry.Enabled {
		d, err := registry.NewServiceDiscovery(registry.RegistryConfig{
			Endpoints:   cfg.ServiceRegistry.Endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			logger.Warnf("Service discovery unavailable: %v", err)
		} else {
			discovery = d
			c.closers = append(c.closers, func() { _ = d.Close() })
		}
	}
	var timelineGW gateway.TimelineGateway
	var mediaGW gateway.MediaGateway
	if cfg.Dependencies.TimelineService.BaseURL != "" || discovery != nil {
		timelineGW = client.NewTimelineClient(cfg.Dependencies.TimelineService, discovery)
		mediaGW = client.NewMediaClient(cfg.Dependencies.MediaService, discovery)
	} else {
		logger.Warnf("No collaborator endpoints configured, using in-memory timeline/media gateways")
		timelineGW = client.NewMemoryTimelineGateway()
		mediaGW = client.NewMemoryMediaGateway()
	}

	compiler := service.NewPlanCompiler(
		timelineGW,
		mediaGW,
		service.NewEncoderResolver(cfg.Render.FFmpeg.BinaryPath),
		service.NewTransitionPlanner(),
		cfg.Render.FFmpeg.TempDir,
		cfg.Render.SlowMoQuality,
		cfg.Render.TargetLUFS,
	)
	ffExecutor := executor.NewFFmpegExecutor(cfg, storageGW)
	progressSink := progress.NewDBSink(jobRepo)

	c.renderApp = application.NewRenderAppWith(
		cfg,
		jobRepo,
		c.jobQueue,
		compiler,
		ffExecutor,
		mediaGW,
		progressSink,
		redisCli,
	)
	return c, nil
}

func newServiceRegistry(cfg *config.Config) (*registry.ServiceRegistry, error) {
	host := cfg.ServiceRegistry.RegisterHost
	if host == "" {
		host = cfg.Server.Host
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	serviceID := cfg.ServiceRegistry.ServiceID
	if serviceID == "" {
		serviceID = fmt.Sprintf("%s-%d", cfg.ServiceRegistry.ServiceName, os.Getpid())
	}
	return registry.NewServiceRegistry(
		registry.RegistryConfig{
			Endpoints:   cfg.ServiceRegistry.Endpoints,
			DialTimeout: 5 * time.Second,
		},
		registry.ServiceConfig{
			ServiceName:     cfg.ServiceRegistry.ServiceName,
			ServiceID:       serviceID,
			TTL:             cfg.ServiceRegistry.TTL,
			RefreshInterval: cfg.ServiceRegistry.RefreshInterval,
		},
		fmt.Sprintf("%s:%d", host, cfg.Server.Port),
	)
}

// checkFFmpeg 启动时验证转码器可用，缺失时立即失败而不是首个任务才报错
func checkFFmpeg(cfg *config.Config) {
	bin := strings.TrimSpace(cfg.Render.FFmpeg.BinaryPath)
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		if cfg.Worker.Enabled {
			logger.Errorf("FFmpeg binary not found binary=%s error=%v", bin, err)
			os.Exit(1)
		}
		logger.Warnf("FFmpeg binary not found, rendering disabled binary=%s", bin)
	}
}

// resolveConfigPath 根据环境选择配置文件，支持CONFIG_PATH覆盖、CONFIG_ENV区分环境
func resolveConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	env := strings.ToLower(strings.TrimSpace(os.Getenv("CONFIG_ENV")))
	if env == "" {
		env = "dev"
	}

	switch env {
	case "prod", "production":
		return "configs/config_prod.yaml"
	case "dev", "development":
		return "configs/config.dev.yaml"
	default:
		return fmt.Sprintf("configs/config.%s.yaml", env)
	}
}
