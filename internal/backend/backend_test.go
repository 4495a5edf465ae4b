package backend

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aristath/fleet/internal/config"
)

// fakeEnv resolves only the listed names, to /bin/<name>.
func fakeEnv(found []string, vars map[string]string) Env {
	return Env{
		LookPath: func(file string) (string, error) {
			for _, f := range found {
				if f == file {
					return "/bin/" + file, nil
				}
			}
			return "", errors.New("not found")
		},
		Getenv: func(key string) string { return vars[key] },
	}
}

// TestNew_ReturnsBuilderPerEngine verifies the factory covers every engine.
func TestNew_ReturnsBuilderPerEngine(t *testing.T) {
	env := fakeEnv(nil, nil)

	if b, err := New(config.EngineCodex, env); err != nil {
		t.Fatalf("codex: %v", err)
	} else if _, ok := b.(*CodexBuilder); !ok {
		t.Errorf("codex builder type = %T", b)
	}

	if b, err := New(config.EngineClaudeCLI, env); err != nil {
		t.Fatalf("claude-cli: %v", err)
	} else if _, ok := b.(*ClaudeBuilder); !ok {
		t.Errorf("claude builder type = %T", b)
	}

	for _, e := range []config.Engine{config.EngineManual, config.EngineClaudeManual} {
		if _, err := New(e, env); !errors.Is(err, ErrNotAutomated) {
			t.Errorf("%s: error = %v, want ErrNotAutomated", e, err)
		}
	}

	if _, err := New("gemini", env); err == nil {
		t.Error("expected error for unknown engine")
	}
}

// TestCodexBuilder_Argv verifies the exact codex argument vector.
func TestCodexBuilder_Argv(t *testing.T) {
	ws := t.TempDir()
	req := Request{
		Worker:          config.WorkerSpec{TaskID: "T1", Engine: config.EngineCodex},
		Defaults:        config.Defaults{Sandbox: "workspace-write"},
		Workdir:         ws,
		Prompt:          "do the thing",
		Model:           "gpt-5.3-codex",
		ReasoningEffort: "xhigh",
	}

	b := NewCodexBuilder(fakeEnv([]string{"codex"}, nil))
	cmd, err := b.Build(req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{
		"/bin/codex", "exec", "-C", ws, "--sandbox", "workspace-write",
		"-m", "gpt-5.3-codex", "-c", `model_reasoning_effort="xhigh"`,
		"--skip-git-repo-check", "do the thing",
	}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("Args =\n%q\nwant\n%q", cmd.Args, want)
	}
	if cmd.Stdin != "" {
		t.Errorf("codex should not use stdin, got %q", cmd.Stdin)
	}

	// Deterministic for identical input.
	again, _ := b.Build(req)
	if !reflect.DeepEqual(cmd, again) {
		t.Error("Build is not deterministic")
	}
}

// TestCodexBuilder_GitRepoAndBypass verifies optional flags.
func TestCodexBuilder_GitRepoAndBypass(t *testing.T) {
	ws := t.TempDir()
	if err := os.Mkdir(filepath.Join(ws, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	req := Request{
		Defaults: config.Defaults{Sandbox: "workspace-write", CodexDangerouslyBypass: true},
		Workdir:  ws,
		Prompt:   "p",
	}

	cmd, _ := NewCodexBuilder(fakeEnv(nil, nil)).Build(req)
	if hasArg(cmd.Args, "--skip-git-repo-check") {
		t.Error("git workdir should not skip the repo check")
	}
	n := len(cmd.Args)
	if cmd.Args[n-2] != "--dangerously-bypass-approvals-and-sandbox" || cmd.Args[n-1] != "p" {
		t.Errorf("tail = %q", cmd.Args[n-2:])
	}
	// Unresolvable binaries fall back to the configured name.
	if cmd.Args[0] != "codex" {
		t.Errorf("binary = %q, want codex", cmd.Args[0])
	}
}

// TestCodexBuilder_BinaryResolution verifies configured names, env and probes.
func TestCodexBuilder_BinaryResolution(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		vars     map[string]string
		found    []string
		wantHead []string
	}{
		{"absolute path kept", "/opt/codex", nil, nil, []string{"/opt/codex"}},
		{"env override", "", map[string]string{"CODEX_CLI_CMD": "my-codex"}, []string{"my-codex"}, []string{"/bin/my-codex"}},
		{"probe falls through to codex.cmd", "custom", nil, []string{"codex.cmd"}, []string{"/bin/codex.cmd"}},
		{"ps1 wrapped", "", nil, []string{"codex.ps1"}, []string{"powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", "/bin/codex.ps1", "exec"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Defaults: config.Defaults{CodexCmd: tt.cmd}, Workdir: t.TempDir()}
			cmd, _ := NewCodexBuilder(fakeEnv(tt.found, tt.vars)).Build(req)
			if !reflect.DeepEqual(cmd.Args[:len(tt.wantHead)], tt.wantHead) {
				t.Errorf("head = %q, want %q", cmd.Args[:len(tt.wantHead)], tt.wantHead)
			}
		})
	}
}
