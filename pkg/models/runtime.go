package models

// LanguageRuntime 沙箱支持的语言及本地元数据
type LanguageRuntime struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	Versions      []string `json:"versions"`
	LatestVersion string   `json:"latest_version"`
	Aliases       []string `json:"aliases,omitempty"`
	Extension     string   `json:"extension"`
	EditorMode    string   `json:"editor_mode"`
	Icon          string   `json:"icon"`
	Template      string   `json:"-"`
}

// ExecutionPhase 执行结果所处阶段
type ExecutionPhase string

const (
	PhaseCompile   ExecutionPhase = "compile"
	PhaseRun       ExecutionPhase = "run"
	PhaseTransport ExecutionPhase = "transport"
)

// ExecutionResult 规范化后的执行结果
type ExecutionResult struct {
	Success    bool           `json:"success"`
	Language   string         `json:"language"`
	Version    string         `json:"version"`
	Stdout     string         `json:"stdout"`
	Stderr     string         `json:"stderr"`
	ExitCode   *int           `json:"exit_code,omitempty"`
	Signal     string         `json:"signal,omitempty"`
	WallTimeMs int64          `json:"wall_time_ms"`
	Phase      ExecutionPhase `json:"phase"`
	Error      string         `json:"error,omitempty"`
}
