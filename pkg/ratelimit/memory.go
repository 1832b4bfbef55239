package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery 每隔多少次调用清理一次空键
const sweepEvery = 1024

// MemoryStore 进程内滑动窗口日志，适合单实例部署
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	windows map[string]time.Duration
	calls   uint64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string][]time.Time{},
		windows: map[string]time.Duration{},
	}
}

// prune 丢弃 <= now-window 的记录；记录按时间递增
func prune(log []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return log[i:]
}

// Hit 实现 Store
func (m *MemoryStore) Hit(_ context.Context, key string, limit Limit, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweepLocked(now)
	}

	log := prune(m.entries[key], now, limit.Window)
	if len(log) >= limit.Requests {
		m.entries[key] = log
		return Decision{Allowed: false, RetryAfter: log[0].Add(limit.Window).Sub(now)}, nil
	}
	m.entries[key] = append(log, now)
	m.windows[key] = limit.Window
	return Decision{Allowed: true}, nil
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	for key, log := range m.entries {
		log = prune(log, now, m.windows[key])
		if len(log) == 0 {
			delete(m.entries, key)
			delete(m.windows, key)
			continue
		}
		m.entries[key] = log
	}
}

// Len 当前跟踪的键数量
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
