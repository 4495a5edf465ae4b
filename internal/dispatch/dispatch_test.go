//go:build !windows

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/fleet/internal/backend"
	"github.com/aristath/fleet/internal/config"
	"github.com/aristath/fleet/internal/events"
	"github.com/aristath/fleet/internal/guard"
	"github.com/aristath/fleet/internal/manifest"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	root      string
	runs      string
	workspace string
	prompts   string
	fakeCLI   string
	logs      *syncBuffer
	bus       *events.Bus
}

// newFixture lays out a workspace, a prompt directory and a fake CLI that
// echoes its arguments and stdin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:      root,
		runs:      filepath.Join(root, "runs"),
		workspace: filepath.Join(root, "ws"),
		prompts:   filepath.Join(root, "prompts"),
		fakeCLI:   filepath.Join(root, "bin", "fake-cli"),
		logs:      &syncBuffer{},
		bus:       events.NewBus(),
	}
	for _, dir := range []string{f.workspace, f.prompts, filepath.Dir(f.fakeCLI)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	script := "#!/bin/sh\necho \"argv: $*\"\nif [ ! -t 0 ]; then cat; fi\nexit 0\n"
	if err := os.WriteFile(f.fakeCLI, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) prompt(t *testing.T, name, body string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.prompts, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func (f *fixture) dispatcher(launcher Launcher) *Dispatcher {
	retry := RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second}
	return New(Config{
		Logger: log.New(f.logs, "", 0),
		Bus:    f.bus,
		Env: backend.Env{
			LookPath: func(file string) (string, error) {
				if file == "claude" {
					return f.fakeCLI, nil
				}
				return "", exec.ErrNotFound
			},
			Getenv: func(string) string { return "" },
		},
		Launcher: launcher,
		Retry:    &retry,
		Now:      func() time.Time { return time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC) },
		NewRunID: func() string { return "run-1" },
	})
}

func (f *fixture) options() Options {
	return Options{
		TasksFile:    filepath.Join(f.root, "orchestrator.json"),
		RunsRoot:     f.runs,
		PromptRoot:   f.prompts,
		PollInterval: 10 * time.Millisecond,
	}
}

func (f *fixture) roster(workers ...config.WorkerSpec) *config.OrchestratorConfig {
	cfg := config.DefaultConfig()
	cfg.OrchID = "WEB"
	cfg.Workspace = f.workspace
	cfg.Defaults.CodexCmd = f.fakeCLI
	cfg.Workers = workers
	return cfg
}

func taskIDs(entries []manifest.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TaskID
	}
	return ids
}

func TestRunDryRunPartitionsWorkers(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "Work on {{TASK_ID}}")

	roster := f.roster(
		config.WorkerSpec{TaskID: "WEB-T1", Owner: "ann", Role: "Core", Engine: config.EngineCodex, PromptFile: p},
		config.WorkerSpec{TaskID: "WEB-T2", Owner: "bob", Role: "UI", Engine: config.EngineClaudeCLI, PromptFile: p},
		config.WorkerSpec{TaskID: "WEB-T3", Owner: "cy", Engine: config.EngineManual},
		config.WorkerSpec{TaskID: "WEB-T4", Owner: "di", Engine: config.EngineCodex, PromptFile: "missing.md"},
		config.WorkerSpec{TaskID: "WEB-T5", Owner: "ed", Engine: config.EngineCodex, PromptFile: p, Enabled: config.Bool(false)},
	)
	opts := f.options()
	opts.DryRun = true

	res, err := f.dispatcher(nil).Run(context.Background(), roster, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, err := manifest.Load(res.ManifestPath)
	if err != nil {
		t.Fatalf("loading manifest: %v", err)
	}
	if got := taskIDs(m.Started); strings.Join(got, ",") != "WEB-T1,WEB-T2" {
		t.Errorf("started = %v", got)
	}
	for _, e := range m.Started {
		if e.PID != nil {
			t.Errorf("%s: dry-run pid should be null", e.TaskID)
		}
	}
	if len(m.Manual) != 1 || m.Manual[0].TaskID != "WEB-T3" {
		t.Errorf("manual = %+v", m.Manual)
	}
	if len(m.Failed) != 1 || m.Failed[0].TaskID != "WEB-T4" {
		t.Errorf("failed = %+v", m.Failed)
	}
	if total := len(m.Started) + len(m.Manual) + len(m.Failed); total != 4 {
		t.Errorf("partition covers %d workers, want the 4 enabled ones", total)
	}

	if m.RunID != "run-1" || m.Timestamp != "20260504_103000" || !m.DryRun {
		t.Errorf("manifest header = %+v", m)
	}
	if m.ApprovalNote != "ignored by current codex exec cli: never" {
		t.Errorf("ApprovalNote = %q", m.ApprovalNote)
	}

	codexCmd := m.Started[0].Command
	if codexCmd[0] != f.fakeCLI || codexCmd[len(codexCmd)-1] != "Work on WEB-T1" {
		t.Errorf("codex command = %q", codexCmd)
	}
	if _, err := os.Stat(m.Started[0].LogFile); !os.IsNotExist(err) {
		t.Error("dry run should not create worker logs")
	}
	if !strings.Contains(f.logs.String(), "[DRY] WEB-T1 (codex) -> ") {
		t.Errorf("missing [DRY] notice in:\n%s", f.logs.String())
	}
}

func TestRunLaunchesAndWaits(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "hello from {{OWNER}}")

	roster := f.roster(
		config.WorkerSpec{TaskID: "WEB-T1", Owner: "ann", Engine: config.EngineCodex, PromptFile: p},
		config.WorkerSpec{
			TaskID: "WEB-T2", Owner: "bob", Engine: config.EngineClaudeCLI, PromptFile: p,
			CLIArgs: config.ArgList{"-p"}, CLIStdin: config.Bool(true),
		},
	)
	roster.Defaults.GlobalPrompt = "be brief"
	opts := f.options()
	opts.Wait = true

	res, err := f.dispatcher(nil).Run(context.Background(), roster, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Manifest.Started) != 2 {
		t.Fatalf("started = %+v, failed = %+v", res.Manifest.Started, res.Manifest.Failed)
	}
	for _, e := range res.Manifest.Started {
		if e.PID == nil || *e.PID <= 0 {
			t.Errorf("%s: missing pid", e.TaskID)
		}
	}

	codexLog, _ := os.ReadFile(filepath.Join(res.RunDir, "WEB-T1.log"))
	if !strings.Contains(string(codexLog), "argv: exec -C "+f.workspace) {
		t.Errorf("codex log = %q", codexLog)
	}
	if !strings.Contains(string(codexLog), "be brief\n\n---\n\nhello from ann") {
		t.Errorf("codex log missing global prompt: %q", codexLog)
	}

	claudeLog, _ := os.ReadFile(filepath.Join(res.RunDir, "WEB-T2.log"))
	if !strings.Contains(string(claudeLog), "argv: -p\n") || !strings.Contains(string(claudeLog), "hello from bob") {
		t.Errorf("claude log = %q", claudeLog)
	}

	out := f.logs.String()
	for _, want := range []string{"[START] WEB-T1 (codex) pid=", "[DONE] WEB-T1 exit=0", "[DONE] WEB-T2 exit=0", "[INFO] manifest: "} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in notices:\n%s", want, out)
		}
	}
}

func TestRunGuardAndBuilderDiversions(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")

	// A previous run of WEB-T1 hit the read-only sandbox.
	prev := filepath.Join(f.runs, "WEB")
	os.MkdirAll(prev, 0o755)
	os.WriteFile(filepath.Join(prev, "WEB-T1.log"), []byte("error: writes are blocked by policy"), 0o644)

	roster := f.roster(
		config.WorkerSpec{TaskID: "WEB-T1", Owner: "ann", Engine: config.EngineCodex, PromptFile: p},
		config.WorkerSpec{TaskID: "WEB-T2", Owner: "bob", Engine: config.EngineClaudeCLI, PromptFile: p, CLICmd: "no-such-claude"},
	)
	// Make the probe-list lookup fail for WEB-T2 only.
	d := f.dispatcher(nil)
	d.env.LookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	res, err := d.Run(context.Background(), roster, f.options())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Manifest.Manual) != 2 {
		t.Fatalf("manual = %+v", res.Manifest.Manual)
	}
	g := res.Manifest.Manual[0]
	if g.TaskID != "WEB-T1" || g.Engine != config.EngineManual || g.Reason != guard.ReasonReadOnlyHistory {
		t.Errorf("guarded entry = %+v", g)
	}
	b := res.Manifest.Manual[1]
	if b.TaskID != "WEB-T2" || b.Engine != config.EngineClaudeManual || !strings.Contains(b.Reason, "claude command not found: no-such-claude") {
		t.Errorf("builder entry = %+v", b)
	}
	if !strings.Contains(f.logs.String(), "[GUARD] WEB-T1: switched to manual") {
		t.Errorf("missing [GUARD] notice:\n%s", f.logs.String())
	}
}

func TestRunWriteGuardDivertsReadOnlyWorkdir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")

	locked := filepath.Join(f.workspace, "locked")
	if err := os.MkdirAll(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	roster := f.roster(config.WorkerSpec{TaskID: "WEB-T1", Owner: "ann", Engine: config.EngineCodex, PromptFile: p, Repo: "locked"})
	l := &failingLauncher{}
	res, err := f.dispatcher(l).Run(context.Background(), roster, f.options())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Manifest.Started) != 0 {
		t.Errorf("started = %+v, want none", res.Manifest.Started)
	}
	if len(res.Manifest.Manual) != 1 {
		t.Fatalf("manual = %+v", res.Manifest.Manual)
	}
	m := res.Manifest.Manual[0]
	if m.TaskID != "WEB-T1" || m.Engine != config.EngineManual || !strings.HasPrefix(m.Reason, "workspace write probe failed:") {
		t.Errorf("manual entry = %+v", m)
	}
	if l.calls != 0 {
		t.Errorf("launcher called %d times, want 0", l.calls)
	}
	if !strings.Contains(f.logs.String(), "[GUARD] WEB-T1") {
		t.Errorf("missing [GUARD] notice:\n%s", f.logs.String())
	}
}

func TestRunInvalidRosterCreatesNothing(t *testing.T) {
	f := newFixture(t)
	roster := f.roster(
		config.WorkerSpec{TaskID: "A", Engine: config.EngineCodex},
		config.WorkerSpec{TaskID: "A", Engine: config.EngineCodex},
	)
	_, err := f.dispatcher(nil).Run(context.Background(), roster, f.options())
	if !errors.Is(err, config.ErrDuplicateTaskID) {
		t.Fatalf("error = %v, want ErrDuplicateTaskID", err)
	}
	if _, err := os.Stat(f.runs); !os.IsNotExist(err) {
		t.Error("no run directory should be created for an invalid roster")
	}
}

type failingLauncher struct {
	calls int
}

func (l *failingLauncher) Launch(backend.Command, string, string) (*exec.Cmd, error) {
	l.calls++
	return nil, errors.New("exec format error")
}

func TestRunLaunchBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")

	var workers []config.WorkerSpec
	for _, id := range []string{"T1", "T2", "T3", "T4"} {
		workers = append(workers, config.WorkerSpec{TaskID: id, Engine: config.EngineCodex, PromptFile: p})
	}
	l := &failingLauncher{}
	res, err := f.dispatcher(l).Run(context.Background(), f.roster(workers...), f.options())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Manifest.Failed) != 4 {
		t.Fatalf("failed = %d entries, want 4", len(res.Manifest.Failed))
	}
	if l.calls != 3 {
		t.Errorf("launcher called %d times, want 3 before the breaker opens", l.calls)
	}
	if last := res.Manifest.Failed[3].Error; !strings.Contains(last, "launch circuit open for codex") {
		t.Errorf("last error = %q", last)
	}
}

func TestRunDependenciesLaunchFirst(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")
	roster := f.roster(
		config.WorkerSpec{TaskID: "T1", Engine: config.EngineCodex, PromptFile: p, DependsOn: []string{"T2"}},
		config.WorkerSpec{TaskID: "T2", Engine: config.EngineCodex, PromptFile: p},
	)
	opts := f.options()
	opts.DryRun = true

	res, err := f.dispatcher(nil).Run(context.Background(), roster, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(taskIDs(res.Manifest.Started), ","); got != "T2,T1" {
		t.Errorf("launch order = %s, want T2,T1", got)
	}
}

func TestRunDirectoryModes(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")
	roster := f.roster(config.WorkerSpec{TaskID: "T1", Engine: config.EngineCodex, PromptFile: p})
	opts := f.options()
	opts.DryRun = true

	// Leftovers from earlier runs.
	os.MkdirAll(filepath.Join(f.runs, "WEB"), 0o755)
	os.WriteFile(filepath.Join(f.runs, "WEB", "stale.log"), []byte("x"), 0o644)
	os.MkdirAll(filepath.Join(f.runs, "WEB_20250101_000000"), 0o755)
	os.MkdirAll(filepath.Join(f.runs, "OTHER_20250101_000000"), 0o755)

	res, err := f.dispatcher(nil).Run(context.Background(), roster, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunDir != filepath.Join(f.runs, "WEB") {
		t.Errorf("single run dir = %s", res.RunDir)
	}
	if _, err := os.Stat(filepath.Join(res.RunDir, "stale.log")); !os.IsNotExist(err) {
		t.Error("single run dir should be cleared")
	}
	if _, err := os.Stat(filepath.Join(f.runs, "WEB_20250101_000000")); !os.IsNotExist(err) {
		t.Error("legacy stamped dir should be pruned")
	}
	if _, err := os.Stat(filepath.Join(f.runs, "OTHER_20250101_000000")); err != nil {
		t.Error("other orchestrators' dirs must be kept")
	}

	roster.Defaults.SingleRunDir = config.Bool(false)
	res, err = f.dispatcher(nil).Run(context.Background(), roster, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunDir != filepath.Join(f.runs, "WEB_20260504_103000") {
		t.Errorf("stamped run dir = %s", res.RunDir)
	}
}

func TestRunPublishesEvents(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "task.md", "go")
	all := f.bus.SubscribeAll(32)

	roster := f.roster(
		config.WorkerSpec{TaskID: "T1", Engine: config.EngineCodex, PromptFile: p},
		config.WorkerSpec{TaskID: "T2", Engine: config.EngineManual},
		config.WorkerSpec{TaskID: "T3", Engine: config.EngineCodex},
	)
	opts := f.options()
	opts.DryRun = true
	if _, err := f.dispatcher(nil).Run(context.Background(), roster, opts); err != nil {
		t.Fatal(err)
	}
	f.bus.Close()

	var got []string
	for ev := range all {
		got = append(got, ev.EventType())
	}
	want := []string{
		events.EventTypeRunCreated,
		events.EventTypeWorkerStarted,
		events.EventTypeWorkerManual,
		events.EventTypeWorkerFailed,
		events.EventTypeRunFinished,
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestResolveWorkdir(t *testing.T) {
	ws := t.TempDir()
	os.MkdirAll(filepath.Join(ws, "frontend"), 0o755)

	if got := ResolveWorkdir(ws, "frontend"); got != filepath.Join(ws, "frontend") {
		t.Errorf("existing repo = %s", got)
	}
	if got := ResolveWorkdir(ws, "missing"); got != ws {
		t.Errorf("missing repo = %s, want workspace", got)
	}
	if got := ResolveWorkdir(ws, ""); got != ws {
		t.Errorf("no repo = %s", got)
	}
}
