package backend

import (
	"fmt"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

var claudeProbeNames = []string{
	"claude-code", "claude-code.cmd", "claude-code.ps1", "claude-code.exe",
	"claude", "claude.cmd", "claude.ps1", "claude.exe",
}

// ClaudeBuilder builds one-shot claude CLI invocations.
type ClaudeBuilder struct {
	env Env
}

// NewClaudeBuilder creates a claude builder using env for lookups.
func NewClaudeBuilder(env Env) *ClaudeBuilder {
	return &ClaudeBuilder{env: env.withDefaults()}
}

// Build resolves the binary and assembles the argument template. It fails
// with ErrBinaryNotFound when no candidate binary exists.
func (c *ClaudeBuilder) Build(req Request) (Command, error) {
	w, d := req.Worker, req.Defaults

	requested := firstNonEmpty(w.CLICmd, d.ClaudeCmd, c.env.Getenv("CLAUDE_CLI_CMD"), "claude")
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return Command{}, fmt.Errorf("claude %w", ErrEmptyCommand)
	}

	bin := requested
	if !isAbs(bin) {
		found, ok := c.env.resolve(append([]string{bin}, claudeProbeNames...))
		if !ok {
			return Command{}, fmt.Errorf("claude %w: %s", ErrBinaryNotFound, requested)
		}
		bin = found
	}

	args := c.buildArgs(w, d)
	useStdin := config.BoolValue(w.CLIStdin, d.ClaudeStdin)

	cmd := Command{Args: withLauncher(bin)}
	replaced := false
	for _, arg := range args {
		if strings.Contains(arg, config.PromptPlaceholder) {
			arg = strings.ReplaceAll(arg, config.PromptPlaceholder, req.Prompt)
			replaced = true
		}
		cmd.Args = append(cmd.Args, arg)
	}
	if !replaced {
		if useStdin {
			cmd.Stdin = req.Prompt + "\n"
		} else {
			cmd.Args = append(cmd.Args, req.Prompt)
		}
	}
	return cmd, nil
}

// buildArgs returns the argument template with permission and session flags
// injected. Flags already present in the template are never duplicated.
func (c *ClaudeBuilder) buildArgs(w config.WorkerSpec, d config.Defaults) []string {
	var args []string
	switch {
	case w.CLIArgs != nil:
		args = append(args, w.CLIArgs...)
	case d.ClaudeArgs != nil:
		args = append(args, d.ClaudeArgs...)
	default:
		args = config.DefaultClaudeArgs()
	}

	autoApprove := config.BoolValue(w.ClaudeAutoApprove, d.ClaudeAutoApprove)
	mode := d.ClaudePermissionMode
	if w.ClaudePermissionMode != nil {
		mode = *w.ClaudePermissionMode
	} else if mode == "" {
		mode = c.env.Getenv("CLAUDE_PERMISSION_MODE")
	}
	mode = strings.TrimSpace(mode)
	if autoApprove && mode == "" {
		mode = "bypassPermissions"
	}
	if mode != "" && !hasArg(args, "--permission-mode") {
		args = prepend(args, "--permission-mode", mode)
	}

	if config.BoolValue(w.ClaudeDangerouslySkip, d.ClaudeDangerouslySkip) {
		hasSkip := hasArg(args, "--dangerously-skip-permissions")
		if !hasArg(args, "--allow-dangerously-skip-permissions") {
			args = prepend(args, "--allow-dangerously-skip-permissions")
		}
		if !hasSkip {
			args = prepend(args, "--dangerously-skip-permissions")
		}
	}

	useContinue := config.BoolValue(w.CLIContinue, d.ClaudeContinue)
	resume := d.ClaudeResume
	if w.CLIResume != nil {
		resume = *w.CLIResume
	}
	resume = strings.TrimSpace(resume)
	hasSession := hasArg(args, "-c", "--continue", "-r", "--resume")
	if useContinue && !hasSession {
		args = prepend(args, "--continue")
	}
	if resume != "" && !hasSession {
		args = prepend(args, "--resume", resume)
	}
	return args
}

func prepend(args []string, head ...string) []string {
	return append(append([]string{}, head...), args...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
