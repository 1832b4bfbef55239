// Package hackatime forwards editor heartbeats to a WakaTime-compatible time
// tracker using the caller's own API key.
package hackatime

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/metrics"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// ForwardTimeout 单次转发超时
	ForwardTimeout = 10 * time.Second
	// MaxBatch 单次请求最多心跳数
	MaxBatch = 25
)

// CanonicalFields 转发的全部字段，调用方提供的其他键会被丢弃
var CanonicalFields = []string{
	"entity", "type", "time", "category", "project", "branch", "language",
	"is_write", "lines", "lineno", "cursorpos", "line_additions", "line_deletions",
	"project_root_count", "dependencies", "machine", "editor", "operating_system", "user_agent",
}

var canonical = func() map[string]bool {
	m := make(map[string]bool, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[f] = true
	}
	return m
}()

// Result 转发结果
type Result struct {
	Forwarded  int  `json:"forwarded"`
	FirstOfDay bool `json:"first_of_day"`
	StatusCode int  `json:"status_code"`
}

// Bridge HeartbeatBridge
type Bridge struct {
	http     *resty.Client
	db       database.DatabaseInterface
	activity *services.ActivityLog
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewBridge baseURL 形如 https://hackatime.hackclub.com/api/hackatime/v1；m 可为 nil
func NewBridge(baseURL string, db database.DatabaseInterface, activity *services.ActivityLog, m *metrics.Metrics) *Bridge {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(ForwardTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "spaces-backend")
	return &Bridge{
		http:     client,
		db:       db,
		activity: activity,
		metrics:  m,
		logger:   log.WithName("hackatime"),
		now:      time.Now,
	}
}

// MachineID 客户端 IP 的 sha256 前 16 位十六进制
func MachineID(clientIP string) string {
	sum := sha256.Sum256([]byte(clientIP))
	return hex.EncodeToString(sum[:])[:16]
}

// defaults 单条心跳的默认模板
func (b *Bridge) defaults(clientIP, userAgent string) map[string]any {
	return map[string]any{
		"entity":             "untitled",
		"type":               "file",
		"time":               float64(b.now().UnixNano()) / 1e9,
		"category":           "coding",
		"project":            "spaces",
		"branch":             "main",
		"language":           "Unknown",
		"is_write":           false,
		"lines":              0,
		"lineno":             0,
		"cursorpos":          0,
		"line_additions":     0,
		"line_deletions":     0,
		"project_root_count": 0,
		"dependencies":       []string{},
		"machine":            MachineID(clientIP),
		"editor":             "Spaces",
		"operating_system":   "Web",
		"user_agent":         userAgent,
	}
}

// Normalize 解析单个对象或对象数组，并叠加到默认模板上
func (b *Bridge) Normalize(payload json.RawMessage, clientIP, userAgent string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "Heartbeat payload is required")
	}

	var partials []map[string]json.RawMessage
	switch trimmed[0] {
	case '{':
		var single map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "Heartbeat must be a JSON object", err)
		}
		partials = append(partials, single)
	case '[':
		if err := json.Unmarshal(trimmed, &partials); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "Heartbeats must be an array of JSON objects", err)
		}
	default:
		return nil, apperr.New(apperr.InvalidInput, "Heartbeat must be a JSON object or array")
	}
	if len(partials) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "At least one heartbeat is required")
	}
	if len(partials) > MaxBatch {
		return nil, apperr.Newf(apperr.InvalidInput, "At most %d heartbeats may be sent at once", MaxBatch)
	}

	out := make([]map[string]any, 0, len(partials))
	for _, partial := range partials {
		if partial == nil {
			return nil, apperr.New(apperr.InvalidInput, "Heartbeat must be a JSON object")
		}
		hb := b.defaults(clientIP, userAgent)
		for key, value := range partial {
			if !canonical[key] || string(value) == "null" {
				continue
			}
			hb[key] = value
		}
		out = append(out, hb)
	}
	return out, nil
}

// ForwardHeartbeat 以调用者的密钥转发心跳；失败直接返回，不排队也不重试
func (b *Bridge) ForwardHeartbeat(ctx context.Context, caller *models.User, clientIP, userAgent string, payload json.RawMessage) (Result, error) {
	if caller == nil || !caller.HasHackatimeKey() {
		return Result{}, apperr.New(apperr.Unauthenticated, "Connect your Hackatime account first")
	}
	heartbeats, err := b.Normalize(payload, clientIP, userAgent)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, ForwardTimeout)
	defer cancel()
	resp, err := b.http.R().
		SetContext(ctx).
		SetAuthToken(*caller.HackatimeAPIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(heartbeats).
		Post("/users/current/heartbeats")
	if err != nil {
		b.count("transport_error")
		b.logger.Warn("heartbeat forward failed", zap.String("user_id", caller.ID), zap.Error(err))
		return Result{}, apperr.Wrap(apperr.UpstreamUnavailable, "Hackatime is unavailable", err)
	}
	if !resp.IsSuccess() {
		b.count("rejected")
		b.logger.Warn("heartbeat rejected upstream",
			zap.String("user_id", caller.ID), zap.Int("status", resp.StatusCode()))
		return Result{StatusCode: resp.StatusCode()}, apperr.Newf(apperr.UpstreamUnavailable,
			"Hackatime rejected the heartbeat (status %d)", resp.StatusCode())
	}
	b.count("success")

	result := Result{Forwarded: len(heartbeats), StatusCode: resp.StatusCode()}
	day := b.now().UTC().Format("2006-01-02")
	err = b.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		changed, err := tx.MarkHeartbeatDay(ctx, caller.ID, day)
		if err != nil || !changed {
			return err
		}
		result.FirstOfDay = true
		return b.activity.Append(ctx, tx, services.Entry{
			Type:     models.ActivityHackatimeBeat,
			Template: "{username} started coding today",
			Actor:    auth.ForUser(caller),
		})
	})
	if err != nil {
		// 心跳已送达，活动记录失败只记日志
		b.logger.Error("failed to record first heartbeat of the day", zap.String("user_id", caller.ID), zap.Error(err))
		result.FirstOfDay = false
	}
	return result, nil
}

// Connect 校验并保存用户的 API key
func (b *Bridge) Connect(ctx context.Context, actor auth.Principal, apiKey string) error {
	if actor.User == nil {
		return apperr.New(apperr.Unauthenticated, "Authentication required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return apperr.New(apperr.InvalidInput, "API key is required")
	}
	if err := b.validateKey(ctx, apiKey); err != nil {
		return err
	}

	err := b.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		if err := tx.SetHackatimeKey(ctx, actor.UserID(), &apiKey); err != nil {
			return err
		}
		return b.activity.Append(ctx, tx, services.Entry{
			Type:     models.ActivityHackatimeLinked,
			Template: "{username} connected Hackatime",
			Actor:    actor,
		})
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to store API key", err)
	}
	return nil
}

func (b *Bridge) validateKey(ctx context.Context, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, ForwardTimeout)
	defer cancel()
	resp, err := b.http.R().SetContext(ctx).SetAuthToken(apiKey).Get("/users/current/statusbar/today")
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "Hackatime is unavailable", err)
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return apperr.New(apperr.InvalidInput, "Invalid Hackatime API key")
	default:
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("Hackatime returned status %d", resp.StatusCode()))
	}
}

// Disconnect 清除 API key
func (b *Bridge) Disconnect(ctx context.Context, actor auth.Principal) error {
	if actor.User == nil {
		return apperr.New(apperr.Unauthenticated, "Authentication required")
	}
	if err := b.db.SetHackatimeKey(ctx, actor.UserID(), nil); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to clear API key", err)
	}
	return nil
}

// Status 是否已绑定
func (b *Bridge) Status(actor auth.Principal) map[string]bool {
	return map[string]bool{"connected": actor.User != nil && actor.User.HasHackatimeKey()}
}

func (b *Bridge) count(outcome string) {
	if b.metrics != nil {
		b.metrics.HeartbeatsForward.WithLabelValues(outcome).Inc()
	}
}
