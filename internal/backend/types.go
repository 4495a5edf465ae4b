package backend

import (
	"os"
	"os/exec"

	"github.com/aristath/fleet/internal/config"
)

// Command is a fully resolved invocation of a worker CLI.
type Command struct {
	Args  []string // Args[0] is the executable
	Stdin string   // Payload written to stdin; empty means none
}

// Request carries everything a builder needs for one worker.
type Request struct {
	Worker          config.WorkerSpec
	Defaults        config.Defaults
	Workdir         string // Resolved working directory
	Prompt          string // Final prompt text, global prompt included
	Model           string // Resolved model (flag over roster default)
	ReasoningEffort string
}

// Env is the host lookup surface used when resolving binaries.
type Env struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
}

// HostEnv resolves binaries through PATH and reads the process environment.
func HostEnv() Env {
	return Env{
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
	}
}

func (e Env) withDefaults() Env {
	if e.LookPath == nil {
		e.LookPath = exec.LookPath
	}
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}
	return e
}

// resolve returns the first candidate found on PATH.
func (e Env) resolve(candidates []string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if found, err := e.LookPath(c); err == nil && found != "" {
			return found, true
		}
	}
	return "", false
}
