package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/hackatime"
	"spaces-backend/pkg/middleware"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/utils"
)

// HeartbeatForwarder 心跳转发
type HeartbeatForwarder interface {
	ForwardHeartbeat(ctx context.Context, caller *models.User, clientIP, userAgent string, payload json.RawMessage) (hackatime.Result, error)
	Connect(ctx context.Context, actor auth.Principal, apiKey string) error
	Disconnect(ctx context.Context, actor auth.Principal) error
	Status(actor auth.Principal) map[string]bool
}

// HackatimeHandler 时间追踪桥接
type HackatimeHandler struct {
	bridge HeartbeatForwarder
}

// NewHackatimeHandler 创建处理器
func NewHackatimeHandler(bridge HeartbeatForwarder) *HackatimeHandler {
	return &HackatimeHandler{bridge: bridge}
}

// Heartbeat 转发编辑器心跳
// POST /hackatime/heartbeat
func (h *HackatimeHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.WriteError(w, apperr.New(apperr.PayloadTooLarge, "Request body too large"))
			return
		}
		utils.WriteError(w, apperr.Wrap(apperr.InvalidInput, "Failed to read body", err))
		return
	}

	p := auth.FromContext(r.Context())
	result, err := h.bridge.ForwardHeartbeat(r.Context(), p.User, middleware.ClientIP(r), r.UserAgent(), payload)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"forwarded":    result.Forwarded,
		"first_of_day": result.FirstOfDay,
	})
}

// Status 是否已绑定
// GET /hackatime/status
func (h *HackatimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.bridge.Status(auth.FromContext(r.Context()))
	utils.WriteSuccess(w, map[string]interface{}{"connected": status["connected"]})
}

// Connect 绑定 API key
// POST /hackatime/connect
func (h *HackatimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key" validate:"required"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.bridge.Connect(r.Context(), auth.FromContext(r.Context()), req.APIKey); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"connected": true})
}

// Disconnect 解绑
// POST /hackatime/disconnect
func (h *HackatimeHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Disconnect(r.Context(), auth.FromContext(r.Context())); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"connected": false})
}
