package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spaces-backend/pkg/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation 唯一约束冲突（用户名、邮箱、slug、文件名）
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// DatabaseInterface 定义数据库访问接口
//
// 所有方法都接受 context，取消时不会留下部分写入。InTx 内的 tx 句柄
// 实现同一接口，嵌套调用 InTx 会复用外层事务。
type DatabaseInterface interface {
	// 事务
	InTx(ctx context.Context, fn func(tx DatabaseInterface) error) error

	// 用户管理
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	LockUser(ctx context.Context, id string) error
	SetUserSuspended(ctx context.Context, id string, suspended bool) error
	SetHackatimeKey(ctx context.Context, id string, key *string) error
	// MarkHeartbeatDay 将用户最近心跳日期设为 day，返回是否发生了变化
	MarkHeartbeatDay(ctx context.Context, id, day string) (bool, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	// Spaces
	CreateSpace(ctx context.Context, space *models.Space) error
	GetSpaceByID(ctx context.Context, id string) (*models.Space, error)
	GetSpaceBySlug(ctx context.Context, slug string) (*models.Space, error)
	// LockSpace 读取并锁定空间行，串行化同一空间上的修改
	LockSpace(ctx context.Context, id string) (*models.Space, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	CountSpacesByOwner(ctx context.Context, ownerID string) (int, error)
	ListSpacesByOwner(ctx context.Context, ownerID string) ([]models.Space, error)
	UpdateSpace(ctx context.Context, space *models.Space) error
	IncrementViewCount(ctx context.Context, id string) error
	DeleteSpace(ctx context.Context, id string) error

	// Pages
	ListPages(ctx context.Context, spaceID string) ([]models.Page, error)
	GetPage(ctx context.Context, spaceID, filename string) (*models.Page, error)
	UpsertPage(ctx context.Context, page *models.Page) error
	InsertPageIfAbsent(ctx context.Context, page *models.Page) (bool, error)
	DeletePage(ctx context.Context, spaceID, filename string) (bool, error)

	// 活动日志（只追加）
	AppendActivity(ctx context.Context, event *models.ActivityEvent) error
	ListActivity(ctx context.Context, limit int) ([]models.ActivityEvent, error)
	ListActivityByUser(ctx context.Context, userID string, limit int) ([]models.ActivityEvent, error)

	// 系统设置
	GetSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error

	// 社团成员
	GetClubRole(ctx context.Context, clubID, userID string) (models.ClubRole, error)

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB      bool
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	if config.UseLocalDB {
		return NewLocalDatabase(), nil
	}
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("no valid database configuration found: set DATABASE_URL or USE_LOCAL_DB")
	}
	db, err := NewPostgresDatabase(ctx, config)
	if err != nil {
		return nil, err
	}
	return db, nil
}
