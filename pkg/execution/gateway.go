// Package execution submits user source code to the remote sandbox and
// normalises its compile/run output into a single ExecutionResult.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/metrics"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/piston"
	"spaces-backend/pkg/runtimes"

	"go.uber.org/zap"
)

// MaxSourceLength 单次提交的源码上限（字节）
const MaxSourceLength = 10000

// Sandbox 远程执行沙箱
type Sandbox interface {
	Execute(ctx context.Context, req piston.ExecuteRequest) (*piston.ExecuteResponse, error)
}

// Catalog 语言与版本解析
type Catalog interface {
	Canonical(lang string) string
	LatestVersion(ctx context.Context, lang string) (string, bool)
}

// Request 一次执行请求
type Request struct {
	Language string
	Version  string
	Source   string
	Stdin    string
	Args     []string
}

// Gateway ExecutionGateway
type Gateway struct {
	sandbox Sandbox
	catalog Catalog
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewGateway 创建执行网关；m 可为 nil
func NewGateway(sandbox Sandbox, catalog Catalog, m *metrics.Metrics) *Gateway {
	return &Gateway{
		sandbox: sandbox,
		catalog: catalog,
		metrics: m,
		logger:  log.WithName("execution"),
		now:     time.Now,
	}
}

// Execute 校验、解析版本并提交沙箱执行。
// 沙箱不可达时返回 phase=transport 的结果而不是错误。
func (g *Gateway) Execute(ctx context.Context, req Request) (models.ExecutionResult, error) {
	if len(req.Source) > MaxSourceLength {
		return models.ExecutionResult{}, apperr.Newf(apperr.PayloadTooLarge,
			"Code exceeds the maximum length of 10,000 characters (got %d)", len(req.Source))
	}

	language := g.catalog.Canonical(req.Language)
	if language == "" {
		return models.ExecutionResult{}, apperr.New(apperr.UnsupportedLanguage, "Language is required")
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		latest, ok := g.catalog.LatestVersion(ctx, language)
		if !ok {
			return models.ExecutionResult{}, apperr.Newf(apperr.UnsupportedLanguage,
				"Language %q is not supported by the sandbox", req.Language)
		}
		version = latest
	}

	args := req.Args
	if args == nil {
		args = []string{}
	}
	sandboxReq := piston.ExecuteRequest{
		Language: language,
		Version:  version,
		Files: []piston.File{{
			Name:    "main." + runtimes.Extension(language),
			Content: req.Source,
		}},
		Stdin:              req.Stdin,
		Args:               args,
		CompileTimeout:     piston.CompileTimeoutMs,
		RunTimeout:         piston.RunTimeoutMs,
		CompileMemoryLimit: -1,
		RunMemoryLimit:     -1,
	}

	ctx, cancel := context.WithTimeout(ctx, piston.ExecuteTimeout)
	defer cancel()

	start := g.now()
	resp, err := g.sandbox.Execute(ctx, sandboxReq)
	elapsed := g.now().Sub(start)
	g.observeDuration(language, elapsed)

	if err != nil {
		var te *piston.TransportError
		if errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded) {
			g.logger.Warn("sandbox transport failure",
				zap.String("language", language), zap.String("version", version), zap.Error(err))
			g.count(models.PhaseTransport, false)
			return models.ExecutionResult{
				Success:    false,
				Language:   language,
				Version:    version,
				Phase:      models.PhaseTransport,
				WallTimeMs: elapsed.Milliseconds(),
				Error:      fmt.Sprintf("Execution service unavailable: %v", err),
			}, nil
		}
		return models.ExecutionResult{}, apperr.Wrap(apperr.ExecutionFailed, err.Error(), err)
	}

	result := Merge(language, version, resp)
	if result.WallTimeMs == 0 {
		result.WallTimeMs = elapsed.Milliseconds()
	}
	g.count(result.Phase, result.Success)
	return result, nil
}

// Merge 合并编译与运行阶段：编译 stderr 非空即判定编译失败
func Merge(language, version string, resp *piston.ExecuteResponse) models.ExecutionResult {
	result := models.ExecutionResult{Language: language, Version: version}
	if resp.Version != "" {
		result.Version = resp.Version
	}

	var wall float64
	if resp.Compile != nil {
		if resp.Compile.WallTime != nil {
			wall += *resp.Compile.WallTime
		}
		if resp.Compile.Stderr != "" {
			result.Phase = models.PhaseCompile
			result.Stdout = resp.Compile.Stdout
			result.Stderr = resp.Compile.Stderr
			result.ExitCode = resp.Compile.Code
			result.Error = "Compilation failed"
			result.WallTimeMs = int64(wall)
			return result
		}
		result.Stdout = resp.Compile.Stdout
	}

	run := resp.Run
	if run.WallTime != nil {
		wall += *run.WallTime
	}
	result.Phase = models.PhaseRun
	result.Stdout += run.Stdout
	result.Stderr = run.Stderr
	result.ExitCode = run.Code
	if run.Signal != nil {
		result.Signal = *run.Signal
	}
	result.Success = run.Code != nil && *run.Code == 0 && run.Signal == nil
	if !result.Success {
		switch {
		case run.Signal != nil:
			result.Error = fmt.Sprintf("Process terminated by signal %s", *run.Signal)
		case run.Code != nil:
			result.Error = fmt.Sprintf("Process exited with code %d", *run.Code)
		default:
			result.Error = "Process did not report an exit code"
		}
	}
	result.WallTimeMs = int64(wall)
	return result
}

func (g *Gateway) count(phase models.ExecutionPhase, success bool) {
	if g.metrics == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	g.metrics.Executions.WithLabelValues(string(phase), outcome).Inc()
}

func (g *Gateway) observeDuration(language string, d time.Duration) {
	if g.metrics == nil {
		return
	}
	g.metrics.ExecutionDuration.WithLabelValues(language).Observe(d.Seconds())
}
