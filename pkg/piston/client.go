// Package piston is a thin client for the Piston code execution engine
// (https://github.com/engineer-man/piston) v2 API.
package piston

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// RuntimesTimeout bounds GET /runtimes
	RuntimesTimeout = 5 * time.Second
	// ExecuteTimeout bounds POST /execute: compile 10s + run 3s + transfer slack
	ExecuteTimeout = 15 * time.Second

	CompileTimeoutMs = 10000
	RunTimeoutMs     = 3000
)

// Runtime 沙箱返回的单个语言版本
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
	Runtime  string   `json:"runtime,omitempty"`
}

// File 提交给沙箱的源文件
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExecuteRequest POST /execute 请求体
type ExecuteRequest struct {
	Language           string   `json:"language"`
	Version            string   `json:"version"`
	Files              []File   `json:"files"`
	Stdin              string   `json:"stdin"`
	Args               []string `json:"args"`
	CompileTimeout     int      `json:"compile_timeout"`
	RunTimeout         int      `json:"run_timeout"`
	CompileMemoryLimit int      `json:"compile_memory_limit"`
	RunMemoryLimit     int      `json:"run_memory_limit"`
}

// StageResult 编译或运行阶段的输出
type StageResult struct {
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	Output   string   `json:"output"`
	Code     *int     `json:"code"`
	Signal   *string  `json:"signal"`
	WallTime *float64 `json:"wall_time,omitempty"` // milliseconds, newer Piston versions only
}

// ExecuteResponse POST /execute 响应体；compile 仅在编译型语言中出现
type ExecuteResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Run      StageResult  `json:"run"`
	Compile  *StageResult `json:"compile,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// TransportError 沙箱不可达、超时或返回 5xx
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("sandbox returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sandbox unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client Piston API 客户端
type Client struct {
	http *resty.Client
}

// NewClient 创建客户端，baseURL 形如 https://emkc.org/api/v2/piston
func NewClient(baseURL string) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(ExecuteTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "spaces-backend")
	return &Client{http: client}
}

// Runtimes 获取沙箱支持的全部运行时
func (c *Client) Runtimes(ctx context.Context) ([]Runtime, error) {
	ctx, cancel := context.WithTimeout(ctx, RuntimesTimeout)
	defer cancel()

	var runtimes []Runtime
	resp, err := c.http.R().SetContext(ctx).SetResult(&runtimes).Get("/runtimes")
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.IsError() {
		return nil, &TransportError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("%s", truncate(resp.String(), 200))}
	}
	return runtimes, nil
}

// Execute 提交执行；4xx 视为请求错误，5xx 与网络错误视为 TransportError
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if req.Args == nil {
		req.Args = []string{}
	}

	var out ExecuteResponse
	var apiErr struct {
		Message string `json:"message"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/execute")
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode() >= 500 {
		return nil, &TransportError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("%s", truncate(resp.String(), 200))}
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = truncate(resp.String(), 200)
		}
		return nil, fmt.Errorf("sandbox rejected request (%d): %s", resp.StatusCode(), msg)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
