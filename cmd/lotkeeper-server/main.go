package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/api"
	"github.com/warestack/lotkeeper/internal/cache"
	"github.com/warestack/lotkeeper/internal/config"
	"github.com/warestack/lotkeeper/internal/database"
	"github.com/warestack/lotkeeper/internal/limiter"
	"github.com/warestack/lotkeeper/internal/logger"
	mw "github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/mq"
	"github.com/warestack/lotkeeper/internal/repo"
	"github.com/warestack/lotkeeper/internal/resp"
	"github.com/warestack/lotkeeper/internal/service"
	"github.com/warestack/lotkeeper/internal/worker"
)

// AppDependencies 包含应用的所有依赖
type AppDependencies struct {
	ReservationHandler *api.ReservationHandler
	StockHandler       *api.StockHandler
	ReportHandler      *api.ReportHandler
	SettingsHandler    *api.SettingsHandler

	ReservationService service.ReservationService
	ReservationRepo    repo.StockReservationRepository
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %v", err)
	}

	return cfg, lg, nil
}

// initDatabase 初始化数据库连接并执行迁移
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// 在 HTTP 服务器启动前执行迁移，确保处理请求时表结构已就绪
	migrationsDir := cfg.Migrations.Dir
	lg.Sugar().Infow("using migrations directory", "path", migrationsDir)

	if err := db.RunMigrations(migrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %v", err)
	}

	return db, nil
}

// initCache 初始化缓存实例；Redis 连接失败时降级为内存缓存
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			return cache.NewMemoryCache()
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", redisAddr, "ttl", cfg.Cache.TTL)
		return redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache()
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache()
	}
}

// initMQ 初始化消息队列连接与事件发布器；MQ 未启用时两者均为 nil
func initMQ(cfg *config.Config, lg *zap.Logger) (*mq.Connection, *mq.EventPublisher) {
	if !cfg.MQ.Enabled {
		lg.Sugar().Infow("mq disabled, reservation events will not be published")
		return nil, nil
	}

	conn, err := mq.NewConnection(cfg.MQ.URL, lg)
	if err != nil {
		lg.Sugar().Warnw("failed to connect to RabbitMQ, reservation events disabled", "error", err)
		return nil, nil
	}

	publisher, err := mq.NewEventPublisher(conn, cfg.MQ.Exchange, lg)
	if err != nil {
		lg.Sugar().Warnw("failed to declare mq topology, reservation events disabled", "error", err)
		return conn, nil
	}

	lg.Sugar().Infow("mq enabled", "exchange", cfg.MQ.Exchange)
	return conn, publisher
}

// initDependencies 初始化应用依赖（仓储、服务、处理器）
func initDependencies(cfg *config.Config, db *database.DB, cacheInstance cache.Cache, publisher *mq.EventPublisher, lg *zap.Logger) *AppDependencies {
	// 依赖注入链：仓储 -> 服务 -> API处理器
	txManager := repo.NewTxManager(db.DB)
	stockItemRepo := repo.NewStockItemRepository(db.DB)
	lotRepo := repo.NewBatchLotRepository(db.DB)
	reservationRepo := repo.NewStockReservationRepository(db.DB)
	settingsRepo := repo.NewCompanySettingsRepository(db.DB)
	movementRepo := repo.NewStockMovementRepository(db.DB)

	allocator := service.NewLotAllocator(settingsRepo, lotRepo, reservationRepo, lg)

	// 接口型依赖不能直接塞 typed nil，否则 nil 判断失效
	var eventPublisher service.ReservationEventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}

	reservationService := service.NewReservationService(
		txManager, stockItemRepo, reservationRepo, movementRepo, allocator, eventPublisher, lg)
	stockService := service.NewStockService(stockItemRepo, lotRepo, movementRepo, lg)
	settingsService := service.NewSettingsService(settingsRepo)
	reportService := service.NewReportService(lotRepo, cacheInstance, cfg.Cache.TTL, lg)

	return &AppDependencies{
		ReservationHandler: api.NewReservationHandler(reservationService, cfg.Reservation.DefaultTTL, lg),
		StockHandler:       api.NewStockHandler(stockService, lg),
		ReportHandler:      api.NewReportHandler(reportService, lg),
		SettingsHandler:    api.NewSettingsHandler(settingsService, lg),
		ReservationService: reservationService,
		ReservationRepo:    reservationRepo,
	}
}

// initRateLimiter 初始化预留接口的限流中间件；未启用或 Redis 不可用时直接放行
func initRateLimiter(cfg *config.Config, cacheInstance cache.Cache, lg *zap.Logger) func(http.Handler) http.Handler {
	passthrough := func(next http.Handler) http.Handler { return next }
	if !cfg.RateLimit.Enabled {
		return passthrough
	}

	redisCache, ok := cacheInstance.(*cache.RedisCache)
	if !ok {
		lg.Sugar().Warnw("rate limit requires redis cache, running without limiter")
		return passthrough
	}

	l, err := limiter.NewTokenBucketLimiter(redisCache.Client(), &limiter.Config{
		Rate:   int64(cfg.RateLimit.Rate),
		Window: time.Second,
		Burst:  cfg.RateLimit.Capacity,
	})
	if err != nil {
		lg.Sugar().Warnw("failed to build rate limiter, running without limiter", "error", err)
		return passthrough
	}

	lg.Sugar().Infow("rate limit enabled", "rate", cfg.RateLimit.Rate, "capacity", cfg.RateLimit.Capacity)
	return limiter.Middleware(l, limiter.CompanyKey, lg)
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *AppDependencies, rateLimit func(http.Handler) http.Handler, lg *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqID := mw.RequestIDFromContext(r.Context())
		data := map[string]any{
			"status":  "ok",
			"version": cfg.App.Version,
		}
		resp.OK(w, &data, reqID, "")
	})

	authMiddleware := mw.Auth(cfg.JWT.Secret, cfg.JWT.Issuer, lg)
	adminMiddleware := mw.RequireAdmin(lg)

	// 预留生命周期（需要认证，预留接口额外限流）
	mux.Handle("/api/v1/reservations/reserve", authMiddleware(rateLimit(http.HandlerFunc(deps.ReservationHandler.Reserve))))
	mux.Handle("/api/v1/reservations/confirm", authMiddleware(http.HandlerFunc(deps.ReservationHandler.Confirm)))
	mux.Handle("/api/v1/reservations/release", authMiddleware(http.HandlerFunc(deps.ReservationHandler.Release)))
	mux.Handle("/api/v1/reservations/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.ReservationHandler.ListByOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 库存桶与批次管理
	mux.Handle("/api/v1/stock", authMiddleware(adminMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			deps.StockHandler.CreateStockItem(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))))
	mux.Handle("/api/v1/stock/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/adjust") {
			adminMiddleware(http.HandlerFunc(deps.StockHandler.AdjustStock)).ServeHTTP(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			deps.StockHandler.GetStockItem(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/lots", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			adminMiddleware(http.HandlerFunc(deps.StockHandler.ReceiveLot)).ServeHTTP(w, r)
		case http.MethodGet:
			deps.StockHandler.ListLots(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/movements", authMiddleware(http.HandlerFunc(deps.StockHandler.ListMovements)))

	// 效期报表
	mux.Handle("/api/v1/reports/expiry-alerts", authMiddleware(http.HandlerFunc(deps.ReportHandler.ExpiryAlerts)))
	mux.Handle("/api/v1/reports/rotation", authMiddleware(http.HandlerFunc(deps.ReportHandler.RotationSuggestions)))

	// 公司级配置
	mux.Handle("/api/v1/settings", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.SettingsHandler.Get(w, r)
		case http.MethodPut:
			adminMiddleware(http.HandlerFunc(deps.SettingsHandler.Update)).ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID
	handler := mw.RequestID(mux)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger, onShutdown func()) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			lg.Sugar().Fatalw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	onShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}

	// 2) 初始化数据库连接并执行迁移
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database connection", "err", err)
		}
	}()

	// 3) 初始化缓存
	cacheInstance := initCache(cfg, lg)

	// 4) 初始化消息队列（可选）
	mqConn, publisher := initMQ(cfg, lg)
	if mqConn != nil {
		defer mqConn.Close()
	}

	// 5) 初始化应用依赖（仓储、服务、处理器）
	deps := initDependencies(cfg, db, cacheInstance, publisher, lg)

	// 6) 启动后台任务：过期预留清扫 + 订单取消事件消费
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	expirer := worker.NewReservationExpirer(
		deps.ReservationRepo,
		deps.ReservationService,
		cfg.Reservation.SweepInterval,
		cfg.Reservation.SweepBatchSize,
		lg,
	)
	go expirer.Run(workerCtx)

	if mqConn != nil {
		consumer := mq.NewOrderEventsConsumer(mqConn, cfg.MQ.Exchange, deps.ReservationService, lg)
		if err := consumer.Start(workerCtx); err != nil {
			lg.Sugar().Warnw("failed to start order events consumer", "err", err)
		}
	}

	// 7) 设置路由和限流、认证中间件
	rateLimit := initRateLimiter(cfg, cacheInstance, lg)
	handler := setupRoutes(cfg, deps, rateLimit, lg)

	// 8) 启动 HTTP 服务器
	startServer(cfg, handler, lg, stopWorkers)
}
