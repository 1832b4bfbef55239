package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// KEYS[1] 有序集合；ARGV: now(us), cutoff(us), limit, member, ttl(ms), window(us)
// 分数以字符串传入，避免 Lua 数字格式化丢失精度
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = 0
  if oldest[2] then
    retry = tonumber(oldest[2]) + tonumber(ARGV[6]) - tonumber(ARGV[1])
  end
  return {0, retry}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, 0}
`)

// RedisStore 多实例共享的滑动窗口，每个键一个有序集合
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 连接 Redis
func NewRedisStore(addr, password string, db int) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// NewRedisStoreFromClient 复用已有客户端
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "spaces:ratelimit:"}
}

// Ping 启动时检查连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Hit 实现 Store
func (s *RedisStore) Hit(ctx context.Context, key string, limit Limit, now time.Time) (Decision, error) {
	nowUS := now.UnixMicro()
	windowUS := limit.Window.Microseconds()
	ttl := (windowUS + 999) / 1000
	res, err := slidingWindow.Run(ctx, s.client, []string{s.prefix + key},
		strconv.FormatInt(nowUS, 10),
		strconv.FormatInt(nowUS-windowUS, 10),
		limit.Requests,
		uuid.NewString(),
		ttl,
		strconv.FormatInt(windowUS, 10),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit script: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{}, fmt.Errorf("ratelimit script: unexpected reply %v", res)
	}
	allowed, _ := vals[0].(int64)
	retry, _ := vals[1].(int64)
	return Decision{Allowed: allowed == 1, RetryAfter: time.Duration(retry) * time.Microsecond}, nil
}
