package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"spaces-backend/pkg/database/migrations"
	"spaces-backend/pkg/log"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// OpenPool 打开 PostgreSQL 连接池并 ping 验证
func OpenPool(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	dsn := addConnectionParams(config.DatabaseURL, "connect_timeout=10")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 30
	}
	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	lifetime := config.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	// 定期回收连接，避免使用被服务端关闭的陈旧连接
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	log.WithName("database").Info("PostgreSQL connection pool ready",
		zap.Int("max_open", maxOpen), zap.Int("max_idle", maxIdle), zap.Duration("recycle", lifetime))
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations 执行内嵌的 goose 迁移
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Liveness 缓存最近一次健康检查结果，避免每个请求都 ping 数据库
type Liveness struct {
	db  DatabaseInterface
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
}

// NewLiveness 创建健康检查器；ttl<=0 时每次都检查
func NewLiveness(db DatabaseInterface, ttl time.Duration) *Liveness {
	return &Liveness{db: db, ttl: ttl, now: time.Now}
}

// Check 返回数据库是否可用
func (l *Liveness) Check(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.ttl > 0 && !l.checkedAt.IsZero() && now.Sub(l.checkedAt) < l.ttl && l.lastErr == nil {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	l.lastErr = l.db.HealthCheck(pingCtx)
	l.checkedAt = now
	if l.lastErr != nil {
		log.WithName("database").Warn("database health check failed", zap.Error(l.lastErr))
	}
	return l.lastErr
}
