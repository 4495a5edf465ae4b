package config

// Engine identifies the external tool family a worker is bound to.
// The set is closed: two automated CLI engines and two manual lanes.
type Engine string

const (
	EngineCodex        Engine = "codex"         // Primary automated engine
	EngineClaudeCLI    Engine = "claude-cli"    // Secondary automated engine (UI-oriented)
	EngineManual       Engine = "manual"        // Human-operated lane
	EngineClaudeManual Engine = "claude-manual" // Human-operated lane for the secondary engine
)

// Engines lists every supported engine in display order.
var Engines = []Engine{EngineCodex, EngineClaudeCLI, EngineManual, EngineClaudeManual}

// MaxWorkers is the hard cap on roster size.
const MaxWorkers = 10

// WorkerSpec is one unit of partitioned work, bound to a single tool invocation.
type WorkerSpec struct {
	TaskID     string   `json:"task_id" toml:"task_id" yaml:"task_id"`                               // Unique within the roster
	Owner      string   `json:"owner" toml:"owner" yaml:"owner"`                                     // Owner label (free text)
	Role       string   `json:"role" toml:"role" yaml:"role"`                                        // Role label (may be inferred from WorkMethod)
	Engine     Engine   `json:"engine" toml:"engine" yaml:"engine"`                                  // Tool family
	Enabled    *bool    `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"` // nil means enabled
	Repo       string   `json:"repo,omitempty" toml:"repo,omitempty" yaml:"repo,omitempty"`          // Subpath under the workspace root
	PromptFile string   `json:"prompt_file" toml:"prompt_file" yaml:"prompt_file"`                   // Prompt template path
	ScopePaths []string `json:"scope_paths,omitempty" toml:"scope_paths,omitempty" yaml:"scope_paths,omitempty"`
	Goal       string   `json:"goal,omitempty" toml:"goal,omitempty" yaml:"goal,omitempty"`
	DoneWhen   []string `json:"done_when,omitempty" toml:"done_when,omitempty" yaml:"done_when,omitempty"`
	WorkMethod string   `json:"work_method,omitempty" toml:"work_method,omitempty" yaml:"work_method,omitempty"` // Declared intent tag
	FixedRole  bool     `json:"fixed_role,omitempty" toml:"fixed_role,omitempty" yaml:"fixed_role,omitempty"`    // Exempt from role inference
	DependsOn  []string `json:"depends_on,omitempty" toml:"depends_on,omitempty" yaml:"depends_on,omitempty"`    // Launch after these task IDs

	GlobalPrompt         *string `json:"global_prompt,omitempty" toml:"global_prompt,omitempty" yaml:"global_prompt,omitempty"`
	ReadOnlyGuard        *bool   `json:"read_only_guard,omitempty" toml:"read_only_guard,omitempty" yaml:"read_only_guard,omitempty"`
	HistoryReadOnlyGuard *bool   `json:"history_readonly_guard,omitempty" toml:"history_readonly_guard,omitempty" yaml:"history_readonly_guard,omitempty"`
	AllowReadOnlyRetry   bool    `json:"allow_readonly_retry,omitempty" toml:"allow_readonly_retry,omitempty" yaml:"allow_readonly_retry,omitempty"`
	AllowTokenRetry      bool    `json:"allow_token_retry,omitempty" toml:"allow_token_retry,omitempty" yaml:"allow_token_retry,omitempty"`

	CLICmd                string  `json:"cli_cmd,omitempty" toml:"cli_cmd,omitempty" yaml:"cli_cmd,omitempty"`
	CLIArgs               ArgList `json:"cli_args,omitempty" toml:"cli_args,omitempty" yaml:"cli_args,omitempty"`
	CLIContinue           *bool   `json:"cli_continue,omitempty" toml:"cli_continue,omitempty" yaml:"cli_continue,omitempty"`
	CLIResume             *string `json:"cli_resume,omitempty" toml:"cli_resume,omitempty" yaml:"cli_resume,omitempty"`
	CLIStdin              *bool   `json:"cli_stdin,omitempty" toml:"cli_stdin,omitempty" yaml:"cli_stdin,omitempty"`
	ClaudeAutoApprove     *bool   `json:"claude_auto_approve,omitempty" toml:"claude_auto_approve,omitempty" yaml:"claude_auto_approve,omitempty"`
	ClaudePermissionMode  *string `json:"claude_permission_mode,omitempty" toml:"claude_permission_mode,omitempty" yaml:"claude_permission_mode,omitempty"`
	ClaudeDangerouslySkip *bool   `json:"claude_dangerously_skip_permissions,omitempty" toml:"claude_dangerously_skip_permissions,omitempty" yaml:"claude_dangerously_skip_permissions,omitempty"`
}

// Defaults holds batch-level settings shared by every worker in the roster.
type Defaults struct {
	Model                string `json:"model,omitempty" toml:"model,omitempty" yaml:"model,omitempty"`
	ReasoningEffort      string `json:"reasoning_effort,omitempty" toml:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	Sandbox              string `json:"sandbox,omitempty" toml:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Approval             string `json:"approval,omitempty" toml:"approval,omitempty" yaml:"approval,omitempty"` // Recorded only; codex exec ignores it
	Search               bool   `json:"search,omitempty" toml:"search,omitempty" yaml:"search,omitempty"`       // Recorded only
	GlobalPrompt         string `json:"global_prompt,omitempty" toml:"global_prompt,omitempty" yaml:"global_prompt,omitempty"`
	ReadOnlyGuard        *bool  `json:"read_only_guard,omitempty" toml:"read_only_guard,omitempty" yaml:"read_only_guard,omitempty"`
	HistoryReadOnlyGuard *bool  `json:"history_readonly_guard,omitempty" toml:"history_readonly_guard,omitempty" yaml:"history_readonly_guard,omitempty"`
	SingleRunDir         *bool  `json:"single_run_dir,omitempty" toml:"single_run_dir,omitempty" yaml:"single_run_dir,omitempty"`
	CleanRunDir          *bool  `json:"clean_run_dir,omitempty" toml:"clean_run_dir,omitempty" yaml:"clean_run_dir,omitempty"`
	PruneLegacyRuns      *bool  `json:"prune_legacy_runs,omitempty" toml:"prune_legacy_runs,omitempty" yaml:"prune_legacy_runs,omitempty"`

	CodexCmd               string `json:"codex_cmd,omitempty" toml:"codex_cmd,omitempty" yaml:"codex_cmd,omitempty"`
	CodexDangerouslyBypass bool   `json:"codex_dangerously_bypass,omitempty" toml:"codex_dangerously_bypass,omitempty" yaml:"codex_dangerously_bypass,omitempty"`

	ClaudeCmd             string  `json:"claude_cmd,omitempty" toml:"claude_cmd,omitempty" yaml:"claude_cmd,omitempty"`
	ClaudeArgs            ArgList `json:"claude_args,omitempty" toml:"claude_args,omitempty" yaml:"claude_args,omitempty"`
	ClaudeAutoApprove     bool    `json:"claude_auto_approve,omitempty" toml:"claude_auto_approve,omitempty" yaml:"claude_auto_approve,omitempty"`
	ClaudePermissionMode  string  `json:"claude_permission_mode,omitempty" toml:"claude_permission_mode,omitempty" yaml:"claude_permission_mode,omitempty"`
	ClaudeDangerouslySkip bool    `json:"claude_dangerously_skip_permissions,omitempty" toml:"claude_dangerously_skip_permissions,omitempty" yaml:"claude_dangerously_skip_permissions,omitempty"`
	ClaudeContinue        bool    `json:"claude_continue,omitempty" toml:"claude_continue,omitempty" yaml:"claude_continue,omitempty"`
	ClaudeResume          string  `json:"claude_resume,omitempty" toml:"claude_resume,omitempty" yaml:"claude_resume,omitempty"`
	ClaudeStdin           bool    `json:"claude_stdin,omitempty" toml:"claude_stdin,omitempty" yaml:"claude_stdin,omitempty"`

	// Delegation audit trail, written by delegate.Apply.
	PMLastRequest       string   `json:"pm_last_request,omitempty" toml:"pm_last_request,omitempty" yaml:"pm_last_request,omitempty"`
	PMLastSelected      []string `json:"pm_last_selected,omitempty" toml:"pm_last_selected,omitempty" yaml:"pm_last_selected,omitempty"`
	PMLastSelectedCount int      `json:"pm_last_selected_count,omitempty" toml:"pm_last_selected_count,omitempty" yaml:"pm_last_selected_count,omitempty"`
}

// OrchestratorConfig is the roster document: one orchestrator id, its
// workspace root, batch defaults and up to MaxWorkers workers.
type OrchestratorConfig struct {
	OrchID    string       `json:"orch_id" toml:"orch_id" yaml:"orch_id"`
	Workspace string       `json:"workspace,omitempty" toml:"workspace,omitempty" yaml:"workspace,omitempty"`
	Defaults  Defaults     `json:"defaults" toml:"defaults" yaml:"defaults"`
	Workers   []WorkerSpec `json:"workers" toml:"workers" yaml:"workers"`
}
