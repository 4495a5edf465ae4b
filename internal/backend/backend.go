// Package backend turns a worker and its resolved prompt into the exact
// argument vector of the CLI that runs it.
package backend

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

var (
	ErrBinaryNotFound = errors.New("command not found")
	ErrEmptyCommand   = errors.New("command is empty")
	ErrNotAutomated   = errors.New("engine is not automated")
)

// Builder builds the invocation for one engine. Identical requests yield
// identical commands.
type Builder interface {
	Build(req Request) (Command, error)
}

// New returns the builder for an automated engine.
func New(engine config.Engine, env Env) (Builder, error) {
	env = env.withDefaults()
	switch engine {
	case config.EngineCodex:
		return &CodexBuilder{env: env}, nil
	case config.EngineClaudeCLI:
		return &ClaudeBuilder{env: env}, nil
	case config.EngineManual, config.EngineClaudeManual:
		return nil, fmt.Errorf("%w: %s", ErrNotAutomated, engine)
	default:
		return nil, fmt.Errorf("unknown engine: %s", engine)
	}
}

// withLauncher returns the argv prefix for bin; .ps1 scripts run through powershell.
func withLauncher(bin string) []string {
	if strings.HasSuffix(strings.ToLower(bin), ".ps1") {
		return []string{"powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", bin}
	}
	return []string{bin}
}

func isAbs(bin string) bool {
	return filepath.IsAbs(bin)
}

func hasArg(args []string, names ...string) bool {
	for _, a := range args {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}
