package server

import (
	"context"
	"fmt"
	"time"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/config"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/execution"
	"spaces-backend/pkg/hackatime"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/metrics"
	"spaces-backend/pkg/piston"
	"spaces-backend/pkg/ratelimit"
	"spaces-backend/pkg/runtimes"
	"spaces-backend/pkg/services"

	"go.uber.org/zap"
)

// App 进程内共享的全部依赖，路由与命令行从这里取用
type App struct {
	Config  *config.Config
	DB      database.DatabaseInterface
	Metrics *metrics.Metrics

	Liveness *database.Liveness
	Limiter  *ratelimit.Limiter
	Sessions *auth.SessionService
	Gate     *auth.Gate

	Activity *services.ActivityLog
	Settings *services.SettingsStore
	Accounts *services.Accounts
	Spaces   *services.SpaceStore
	Pages    *services.PageStore

	Catalog *runtimes.Catalog
	Gateway *execution.Gateway
	Bridge  *hackatime.Bridge

	closers []func() error
}

// NewApp 按配置组装数据库、服务与外部客户端
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log.SetLevel(cfg.LogLevel)

	db, err := database.NewDatabase(ctx, database.DatabaseConfig{
		UseLocalDB:      cfg.UseLocalDB,
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns(),
		MaxIdleConns:    cfg.DBPoolSize,
		ConnMaxLifetime: cfg.DBPoolRecycle,
		Debug:           cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return NewAppWithDatabase(cfg, db), nil
}

// NewAppWithDatabase 使用已打开的数据库组装应用（测试中传入内存库）
func NewAppWithDatabase(cfg *config.Config, db database.DatabaseInterface) *App {
	logger := log.WithName("server")
	m := metrics.New()

	pistonClient := piston.NewClient(cfg.PistonURL)
	catalog := runtimes.NewCatalog(pistonClient, runtimes.DefaultBanned)

	gate := auth.NewGate(db)
	activity := services.NewActivityLog(db)

	app := &App{
		Config:   cfg,
		DB:       db,
		Metrics:  m,
		Liveness: database.NewLiveness(db, cfg.DBLivenessCache),
		Sessions: auth.NewSessionService(cfg.SecretKey, cfg.SessionMaxAge, cfg.IsProduction()),
		Gate:     gate,
		Activity: activity,
		Settings: services.NewSettingsStore(db, gate, activity),
		Accounts: services.NewAccounts(db, gate, activity),
		Spaces:   services.NewSpaceStore(db, gate, activity, catalog),
		Pages:    services.NewPageStore(db, gate, activity),
		Catalog:  catalog,
		Gateway:  execution.NewGateway(pistonClient, catalog, m),
		Bridge:   hackatime.NewBridge(cfg.HackatimeURL, db, activity, m),
	}
	app.closers = append(app.closers, db.Close)

	app.Limiter = ratelimit.NewLimiter(app.limiterStore(logger), nil, m)

	if cfg.UsesDefaultSecret() {
		logger.Warn("SECRET_KEY is not set, using the development default")
	}
	logger.Info("application initialized",
		zap.String("environment", cfg.Environment),
		zap.String("database", app.DatabaseKind()),
		zap.String("piston", cfg.PistonURL))
	return app
}

// limiterStore 配置了 Redis 时多实例共享限流窗口，连接失败退回进程内存
func (a *App) limiterStore(logger *zap.Logger) ratelimit.Store {
	if a.Config.RedisAddr == "" {
		return ratelimit.NewMemoryStore()
	}
	store := ratelimit.NewRedisStore(a.Config.RedisAddr, a.Config.RedisPassword, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory rate limiting",
			zap.String("addr", a.Config.RedisAddr), zap.Error(err))
		_ = store.Close()
		return ratelimit.NewMemoryStore()
	}
	a.closers = append(a.closers, store.Close)
	return store
}

// DatabaseKind "memory" 或 "postgresql"
func (a *App) DatabaseKind() string {
	if _, ok := a.DB.(*database.LocalDatabase); ok {
		return "memory"
	}
	return "postgresql"
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
