// Package dispatch turns a roster into running worker processes, diverting
// workers that cannot or should not run unattended to the manual list, and
// records every outcome in the run manifest.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/fleet/internal/backend"
	"github.com/aristath/fleet/internal/config"
	"github.com/aristath/fleet/internal/events"
	"github.com/aristath/fleet/internal/guard"
	"github.com/aristath/fleet/internal/manifest"
	"github.com/aristath/fleet/internal/process"
)

// Options are the per-invocation settings.
type Options struct {
	TasksFile       string        // Roster path, recorded in the manifest
	RunsRoot        string        // Parent of all run directories
	PromptRoot      string        // Base for relative prompt_file paths
	Workspace       string        // Used when the roster names none
	Model           string        // Overrides defaults.model when set
	ReasoningEffort string        // Overrides defaults.reasoning_effort when set
	DryRun          bool          // Record commands without launching
	Wait            bool          // Block until every launched worker exits
	PollInterval    time.Duration // Wait-mode poll period (default 1s)
}

// Config wires a Dispatcher's collaborators. Zero fields take defaults.
type Config struct {
	Logger   *log.Logger
	Bus      *events.Bus
	Env      backend.Env
	Launcher Launcher
	Retry    *RetryConfig
	Now      func() time.Time
	NewRunID func() string
}

// Result describes a finished dispatch invocation.
type Result struct {
	RunID        string
	RunDir       string
	ManifestPath string
	Manifest     manifest.Manifest
}

// Dispatcher launches rosters. A Dispatcher may be reused across invocations.
type Dispatcher struct {
	logger   *log.Logger
	bus      *events.Bus
	env      backend.Env
	launcher Launcher
	breakers *BreakerRegistry
	retry    RetryConfig
	now      func() time.Time
	newRunID func() string
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		logger:   cfg.Logger,
		bus:      cfg.Bus,
		env:      cfg.Env,
		launcher: cfg.Launcher,
		now:      cfg.Now,
		newRunID: cfg.NewRunID,
		retry:    DefaultRetryConfig(),
	}
	if d.logger == nil {
		d.logger = log.New(io.Discard, "", 0)
	}
	if d.env.LookPath == nil || d.env.Getenv == nil {
		d.env = backend.HostEnv()
	}
	if d.launcher == nil {
		d.launcher = ProcessLauncher{}
	}
	if cfg.Retry != nil {
		d.retry = *cfg.Retry
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newRunID == nil {
		d.newRunID = func() string { return uuid.New().String() }
	}
	d.breakers = NewBreakerRegistry(d.logger, 3)
	return d
}

// Run dispatches every enabled worker of roster. Per-worker problems end up in
// the manifest's manual or failed lists; only an invalid roster, a run
// directory that cannot be created or a manifest that cannot be written are
// returned as errors.
func (d *Dispatcher) Run(ctx context.Context, roster *config.OrchestratorConfig, opts Options) (*Result, error) {
	if err := config.Validate(roster); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}

	defaults := roster.Defaults
	model := firstSet(opts.Model, defaults.Model, config.DefaultModel)
	effort := firstSet(opts.ReasoningEffort, defaults.ReasoningEffort, config.DefaultReasoningEffort)
	if defaults.Sandbox == "" {
		defaults.Sandbox = config.DefaultSandbox
	}
	workspace := firstSet(roster.Workspace, opts.Workspace, ".")
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}
	runsRoot := firstSet(opts.RunsRoot, "runs")

	var workers []config.WorkerSpec
	for _, w := range config.LaunchOrder(roster.Workers) {
		if w.IsEnabled() {
			workers = append(workers, w)
		}
	}

	// Guards read prior run logs, so they are evaluated before the run
	// directory is cleared.
	evaluator := guard.New(runsRoot)
	decisions := make(map[string]guard.Decision, len(workers))
	for _, w := range workers {
		if w.Engine.IsManual() {
			continue
		}
		workdir := ResolveWorkdir(workspace, w.Repo)
		decisions[w.TaskID] = evaluator.Evaluate(roster, w, workdir, opts.DryRun)
	}

	started := d.now()
	stamp := started.Format(manifest.StampLayout)
	runDir, err := prepareRunDir(runsRoot, roster.OrchID, stamp, defaults)
	if err != nil {
		return nil, err
	}

	runID := d.newRunID()
	m := &manifest.Manifest{
		OrchID:          roster.OrchID,
		RunID:           runID,
		Timestamp:       stamp,
		TasksFile:       opts.TasksFile,
		Workspace:       workspace,
		Model:           model,
		ReasoningEffort: effort,
		ApprovalNote:    fmt.Sprintf("ignored by current codex exec cli: %s", firstSet(defaults.Approval, config.DefaultApproval)),
		SearchNote:      fmt.Sprintf("ignored by current codex exec cli: %t", defaults.Search),
		DryRun:          opts.DryRun,
	}
	writer := manifest.NewWriter(manifest.Path(runDir), m, d.now)
	if err := writer.Touch(); err != nil {
		return nil, err
	}
	d.bus.Publish(events.TopicRun, events.RunCreatedEvent{
		RunID:           runID,
		OrchID:          roster.OrchID,
		RunDir:          runDir,
		Model:           model,
		ReasoningEffort: effort,
		DryRun:          opts.DryRun,
		Timestamp:       started,
	})

	run := &runState{
		d:        d,
		roster:   roster,
		defaults: defaults,
		opts:     opts,
		runID:    runID,
		runDir:   runDir,
		wsRoot:   workspace,
		model:    model,
		effort:   effort,
		writer:   writer,
		tracker:  process.NewTracker(),
	}
	for _, w := range workers {
		if err := run.dispatchWorker(w, decisions[w.TaskID]); err != nil {
			return nil, err
		}
	}
	if err := writer.Touch(); err != nil {
		return nil, err
	}
	d.logger.Printf("[INFO] manifest: %s", writer.Path())

	if opts.Wait && !opts.DryRun {
		if err := run.wait(ctx); err != nil {
			return nil, err
		}
	}

	snap := writer.Snapshot()
	d.bus.Publish(events.TopicRun, events.RunFinishedEvent{
		RunID:     runID,
		Started:   len(snap.Started),
		Manual:    len(snap.Manual),
		Failed:    len(snap.Failed),
		Timestamp: d.now(),
	})
	return &Result{
		RunID:        runID,
		RunDir:       runDir,
		ManifestPath: writer.Path(),
		Manifest:     snap,
	}, nil
}

// runState is the per-invocation context shared by the worker steps.
type runState struct {
	d        *Dispatcher
	roster   *config.OrchestratorConfig
	defaults config.Defaults
	opts     Options
	runID    string
	runDir   string
	wsRoot   string
	model    string
	effort   string
	writer   *manifest.Writer
	tracker  *process.Tracker
}

// dispatchWorker routes one enabled worker to exactly one of the manual,
// failed or started lists. The returned error is a manifest write failure.
func (r *runState) dispatchWorker(w config.WorkerSpec, decision guard.Decision) error {
	logger := r.d.logger

	switch w.Engine {
	case config.EngineManual, config.EngineClaudeManual:
		return r.manual(w, w.Engine, "")
	case config.EngineCodex, config.EngineClaudeCLI:
	default:
		return r.manual(w, config.EngineManual, fmt.Sprintf("unsupported engine %q", w.Engine))
	}

	if decision.Manual {
		logger.Printf("[GUARD] %s: switched to manual (%s)", w.TaskID, decision.Reason)
		return r.manual(w, config.EngineManual, decision.Reason)
	}

	workdir := ResolveWorkdir(r.wsRoot, w.Repo)
	entry := manifest.Entry{
		TaskID:    w.TaskID,
		Owner:     w.Owner,
		Role:      w.Role,
		Engine:    w.Engine,
		LogFile:   filepath.Join(r.runDir, w.TaskID+".log"),
		Workspace: workdir,
		Repo:      w.Repo,
	}

	promptPath := strings.TrimSpace(w.PromptFile)
	if promptPath == "" {
		return r.fail(entry, fmt.Errorf("prompt_file missing"))
	}
	if !filepath.IsAbs(promptPath) {
		promptPath = filepath.Join(r.opts.PromptRoot, promptPath)
	}
	entry.PromptFile = promptPath

	prompt, err := backend.LoadPrompt(promptPath, w)
	if err != nil {
		return r.fail(entry, err)
	}
	prompt = backend.WithGlobalPrompt(prompt, r.roster.GlobalPrompt(w))

	builder, err := backend.New(w.Engine, r.d.env)
	if err != nil {
		return r.fail(entry, err)
	}
	cmd, err := builder.Build(backend.Request{
		Worker:          w,
		Defaults:        r.defaults,
		Workdir:         workdir,
		Prompt:          prompt,
		Model:           r.model,
		ReasoningEffort: r.effort,
	})
	if err != nil {
		return r.manual(w, config.EngineClaudeManual, err.Error())
	}
	entry.Command = cmd.Args

	if r.opts.DryRun {
		logger.Printf("[DRY] %s (%s) -> %s ...", w.TaskID, w.Engine, strings.Join(head(cmd.Args, 8), " "))
		if err := r.writer.AddStarted(entry); err != nil {
			return err
		}
		r.d.bus.Publish(events.TopicWorker, events.WorkerStartedEvent{
			RunID: r.runID, ID: w.TaskID, Engine: string(w.Engine), LogFile: entry.LogFile, DryRun: true, Timestamp: r.d.now(),
		})
		return nil
	}

	proc, err := launch(r.d.launcher, r.d.breakers.Get(string(w.Engine)), r.d.retry, cmd, workdir, entry.LogFile)
	if proc != nil && proc.Process != nil {
		pid := proc.Process.Pid
		entry.PID = &pid
		r.tracker.Track(w.TaskID, proc)
	}
	if err != nil {
		return r.fail(entry, err)
	}
	if entry.PID == nil {
		return r.fail(entry, fmt.Errorf("launcher returned no process"))
	}

	if err := r.writer.AddStarted(entry); err != nil {
		return err
	}
	logger.Printf("[START] %s (%s) pid=%d log=%s", w.TaskID, w.Engine, *entry.PID, entry.LogFile)
	r.d.bus.Publish(events.TopicWorker, events.WorkerStartedEvent{
		RunID: r.runID, ID: w.TaskID, Engine: string(w.Engine), PID: *entry.PID, LogFile: entry.LogFile, Timestamp: r.d.now(),
	})
	return nil
}

func (r *runState) manual(w config.WorkerSpec, engine config.Engine, reason string) error {
	w.Engine = engine
	if err := r.writer.AddManual(manifest.ManualEntry{WorkerSpec: w, Reason: reason}); err != nil {
		return err
	}
	r.d.logger.Printf("[MANUAL] %s owner=%s engine=%s reason=%s", w.TaskID, w.Owner, engine, orDash(reason))
	r.d.bus.Publish(events.TopicWorker, events.WorkerManualEvent{
		RunID: r.runID, ID: w.TaskID, Engine: string(engine), Reason: reason, Timestamp: r.d.now(),
	})
	return nil
}

func (r *runState) fail(entry manifest.Entry, cause error) error {
	entry.Error = cause.Error()
	if err := r.writer.AddFailed(entry); err != nil {
		return err
	}
	r.d.logger.Printf("[FAIL] %s: %v", entry.TaskID, cause)
	r.d.bus.Publish(events.TopicWorker, events.WorkerFailedEvent{
		RunID: r.runID, ID: entry.TaskID, Engine: string(entry.Engine), Err: cause, Timestamp: r.d.now(),
	})
	return nil
}

// wait polls for worker exits until none remain or ctx is cancelled. Workers
// keep running when the wait is interrupted.
func (r *runState) wait(ctx context.Context) error {
	interval := r.opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Exits are recorded before a process leaves the running set, so
		// reading the count first guarantees the final reap sees every exit.
		remaining := r.tracker.Count()
		for _, exit := range r.tracker.Reap() {
			r.d.logger.Printf("[DONE] %s exit=%d", exit.TaskID, exit.Code)
			r.d.bus.Publish(events.TopicWorker, events.WorkerExitedEvent{
				RunID: r.runID, ID: exit.TaskID, PID: exit.PID, ExitCode: exit.Code, Timestamp: r.d.now(),
			})
			if err := r.writer.Touch(); err != nil {
				return err
			}
		}
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			r.d.logger.Printf("[INFO] wait interrupted; %d worker(s) still running", r.tracker.Count())
			return nil
		case <-ticker.C:
		}
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
