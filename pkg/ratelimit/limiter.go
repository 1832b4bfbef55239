// Package ratelimit implements per-client sliding-window request limits.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"spaces-backend/pkg/log"
	"spaces-backend/pkg/metrics"

	"go.uber.org/zap"
)

// Class 限流类别，每个请求只计入一个类别
type Class string

const (
	ClassDefault   Class = "default"
	ClassExecute   Class = "execute"
	ClassLogin     Class = "login"
	ClassSignup    Class = "signup"
	ClassAIChat    Class = "ai-chat"
	ClassHeartbeat Class = "heartbeat"
)

// Limit 窗口内允许的请求数
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits 各类别默认配额
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassDefault:   {Requests: 4500, Window: time.Minute},
		ClassExecute:   {Requests: 750, Window: time.Minute},
		ClassLogin:     {Requests: 375, Window: time.Minute},
		ClassSignup:    {Requests: 75, Window: time.Minute},
		ClassAIChat:    {Requests: 15, Window: 500 * time.Millisecond},
		ClassHeartbeat: {Requests: 200, Window: time.Minute},
	}
}

// Decision 单次判定结果
type Decision struct {
	Allowed bool
	// RetryAfter 被拒绝时距离最早一条记录过期的时间
	RetryAfter time.Duration
}

// Store 滑动窗口日志存储
type Store interface {
	// Hit 丢弃 <= now-window 的记录，剩余数小于配额时记录本次并放行
	Hit(ctx context.Context, key string, limit Limit, now time.Time) (Decision, error)
}

// Limiter 按 (ip, class) 限流
type Limiter struct {
	store   Store
	limits  map[Class]Limit
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLimiter limits 为 nil 时使用默认配额；m 可为 nil
func NewLimiter(store Store, limits map[Class]Limit, m *metrics.Metrics) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{store: store, limits: limits, metrics: m, logger: log.WithName("ratelimit"), now: time.Now}
}

// Decide 判定并返回重试时间
func (l *Limiter) Decide(ctx context.Context, ip string, class Class) (Decision, error) {
	limit, ok := l.limits[class]
	if !ok {
		class = ClassDefault
		limit = l.limits[ClassDefault]
	}
	if limit.Requests <= 0 || limit.Window <= 0 {
		return Decision{Allowed: true}, nil
	}
	d, err := l.store.Hit(ctx, string(class)+":"+ip, limit, l.now())
	if err != nil {
		// 存储不可用时放行
		l.logger.Warn("rate limit store failed, allowing request",
			zap.String("class", string(class)), zap.Error(err))
		return Decision{Allowed: true}, err
	}
	if !d.Allowed && l.metrics != nil {
		l.metrics.RateLimitDenied.WithLabelValues(string(class)).Inc()
	}
	return d, nil
}

// Limit 返回类别配额
func (l *Limiter) Limit(class Class) Limit {
	if limit, ok := l.limits[class]; ok {
		return limit
	}
	return l.limits[ClassDefault]
}

// Allow 是否放行
func (l *Limiter) Allow(ctx context.Context, ip string, class Class) (bool, error) {
	d, err := l.Decide(ctx, ip, class)
	return d.Allowed, err
}

// Classify 将请求映射到唯一的限流类别
func Classify(r *http.Request) Class {
	path := strings.TrimRight(r.URL.Path, "/")
	if strings.HasPrefix(path, "/api/ai/") || path == "/api/ai" {
		return ClassAIChat
	}
	if r.Method != http.MethodPost {
		return ClassDefault
	}
	switch {
	case path == "/signup":
		return ClassSignup
	case path == "/login":
		return ClassLogin
	case path == "/hackatime/heartbeat":
		return ClassHeartbeat
	case strings.HasPrefix(path, "/api/run/"):
		return ClassExecute
	case strings.HasPrefix(path, "/api/sites/") && strings.HasSuffix(path, "/run"):
		return ClassExecute
	}
	return ClassDefault
}
