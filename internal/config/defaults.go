package config

// Built-in batch defaults applied when the roster leaves a field empty.
const (
	DefaultOrchID          = "AGENT"
	DefaultModel           = "gpt-5.3-codex"
	DefaultReasoningEffort = "xhigh"
	DefaultSandbox         = "workspace-write"
	DefaultApproval        = "never"
	PromptPlaceholder      = "{prompt}"
)

// DefaultClaudeArgs is the argument template for claude-cli workers that
// configure none.
func DefaultClaudeArgs() ArgList {
	return ArgList{"--print", PromptPlaceholder}
}

// DefaultConfig returns an empty roster carrying the built-in defaults.
func DefaultConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		OrchID: DefaultOrchID,
		Defaults: Defaults{
			Model:           DefaultModel,
			ReasoningEffort: DefaultReasoningEffort,
			Sandbox:         DefaultSandbox,
			Approval:        DefaultApproval,
		},
		Workers: []WorkerSpec{},
	}
}

// BoolValue dereferences an optional flag, falling back to def when unset.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Bool returns a pointer to b, for building rosters in code.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s, for building rosters in code.
func String(s string) *string { return &s }

// IsEnabled reports whether the worker takes part in dispatch. Unset means enabled.
func (w WorkerSpec) IsEnabled() bool {
	return BoolValue(w.Enabled, true)
}

// ReadOnlyGuard reports whether the write probe applies to w.
func (c *OrchestratorConfig) ReadOnlyGuard(w WorkerSpec) bool {
	if w.ReadOnlyGuard != nil {
		return *w.ReadOnlyGuard
	}
	return BoolValue(c.Defaults.ReadOnlyGuard, true)
}

// HistoryReadOnlyGuard reports whether prior run logs are scanned for w.
func (c *OrchestratorConfig) HistoryReadOnlyGuard(w WorkerSpec) bool {
	if w.HistoryReadOnlyGuard != nil {
		return *w.HistoryReadOnlyGuard
	}
	return BoolValue(c.Defaults.HistoryReadOnlyGuard, true)
}

// GlobalPrompt returns the worker's override when set (even if empty),
// otherwise the batch default.
func (c *OrchestratorConfig) GlobalPrompt(w WorkerSpec) string {
	if w.GlobalPrompt != nil {
		return *w.GlobalPrompt
	}
	return c.Defaults.GlobalPrompt
}

func (d Defaults) SingleRun() bool   { return BoolValue(d.SingleRunDir, true) }
func (d Defaults) CleanRun() bool    { return BoolValue(d.CleanRunDir, true) }
func (d Defaults) PruneLegacy() bool { return BoolValue(d.PruneLegacyRuns, true) }
