package backend

import (
	"os"
	"path/filepath"
	"strings"
)

// CodexBuilder builds `codex exec` invocations.
type CodexBuilder struct {
	env Env
}

// NewCodexBuilder creates a codex builder using env for binary lookup.
func NewCodexBuilder(env Env) *CodexBuilder {
	return &CodexBuilder{env: env.withDefaults()}
}

// Build never fails: an unresolvable binary is kept as configured and the
// launch reports the problem.
func (c *CodexBuilder) Build(req Request) (Command, error) {
	bin := c.binary(req)
	args := append(withLauncher(bin), c.buildArgs(req)...)
	return Command{Args: args}, nil
}

func (c *CodexBuilder) binary(req Request) string {
	bin := strings.TrimSpace(req.Defaults.CodexCmd)
	if bin == "" {
		bin = strings.TrimSpace(c.env.Getenv("CODEX_CLI_CMD"))
	}
	if bin == "" {
		bin = "codex"
	}
	if isAbs(bin) {
		return bin
	}
	if found, ok := c.env.resolve([]string{bin, "codex", "codex.cmd", "codex.exe", "codex.ps1"}); ok {
		return found
	}
	return bin
}

// buildArgs constructs the arguments after the executable.
func (c *CodexBuilder) buildArgs(req Request) []string {
	args := []string{
		"exec",
		"-C", req.Workdir,
		"--sandbox", req.Defaults.Sandbox,
		"-m", req.Model,
		"-c", `model_reasoning_effort="` + req.ReasoningEffort + `"`,
	}
	if req.Defaults.CodexDangerouslyBypass {
		args = append(args, "--dangerously-bypass-approvals-and-sandbox")
	}
	if !isGitRepo(req.Workdir) {
		args = append(args, "--skip-git-repo-check")
	}
	return append(args, req.Prompt)
}

func isGitRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
